package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCategory(t *testing.T) {
	c, err := NewCategory("BOOK", []Sequence{
		{{1, 2}, {3, 4}},
		{{5, 6}},
		{{7, 8}, {9, 10}, {11, 12}},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1, 3}, c.Lengths)
	assert.Equal(t, 6, c.Frames())
	assert.Equal(t, 2, c.Features())
	assert.Equal(t, []float64{5, 6}, c.X[2])

	t.Run("empty", func(t *testing.T) {
		_, err := NewCategory("X", nil)
		assert.ErrorIs(t, err, ErrInvalidCorpus)
	})
	t.Run("empty sequence", func(t *testing.T) {
		_, err := NewCategory("X", []Sequence{{{1}}, {}})
		assert.ErrorIs(t, err, ErrInvalidCorpus)
	})
	t.Run("ragged features", func(t *testing.T) {
		_, err := NewCategory("X", []Sequence{{{1, 2}}, {{1}}})
		assert.ErrorIs(t, err, ErrInvalidCorpus)
	})
}

func TestCombine(t *testing.T) {
	seqs := []Sequence{
		{{0}, {0}},
		{{1}},
		{{2}, {2}, {2}},
	}
	x, lengths := Combine([]int{2, 0}, seqs)
	assert.Equal(t, []int{3, 2}, lengths)
	assert.Equal(t, [][]float64{{2}, {2}, {2}, {0}, {0}}, x)

	x, lengths = Combine(nil, seqs)
	assert.Empty(t, x)
	assert.Empty(t, lengths)
}

func TestIndexNames(t *testing.T) {
	idx, err := NewIndex(map[string][]Sequence{
		"JOHN": {{{1}}},
		"ANN":  {{{1}}},
		"BOOK": {{{1}}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ANN", "BOOK", "JOHN"}, idx.Names())
}

func TestKFold(t *testing.T) {
	tests := []struct {
		n, k  int
		sizes []int
	}{
		{3, 3, []int{1, 1, 1}},
		{7, 3, []int{3, 2, 2}},
		{10, 3, []int{4, 3, 3}},
		{2, 2, []int{1, 1}},
	}
	for _, tt := range tests {
		folds, err := KFold{}.Split(tt.n, tt.k)
		require.NoError(t, err)
		require.Len(t, folds, tt.k)

		covered := map[int]int{}
		for i, f := range folds {
			assert.Len(t, f.Test, tt.sizes[i])
			assert.Len(t, f.Train, tt.n-tt.sizes[i])
			assert.True(t, f.Disjoint(), "fold %d overlaps", i)
			for _, j := range f.Test {
				covered[j]++
			}
		}
		// every item is held out exactly once
		assert.Len(t, covered, tt.n)
		for j, c := range covered {
			assert.Equal(t, 1, c, "item %d", j)
		}
	}

	folds, err := KFold{}.Split(5, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, folds[0].Test)
	assert.Equal(t, []int{3, 4}, folds[0].Train)
}

func TestKFoldShuffle(t *testing.T) {
	a, err := KFold{Shuffle: true, Seed: 14}.Split(9, 3)
	require.NoError(t, err)
	b, err := KFold{Shuffle: true, Seed: 14}.Split(9, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	for _, f := range a {
		assert.True(t, f.Disjoint())
	}
}

func TestKFoldErrors(t *testing.T) {
	_, err := KFold{}.Split(1, 1)
	assert.ErrorIs(t, err, ErrInvalidSplit)
	_, err = KFold{}.Split(2, 3)
	assert.ErrorIs(t, err, ErrInvalidSplit)
}

func TestFoldDisjoint(t *testing.T) {
	assert.True(t, Fold{Train: []int{0, 1}, Test: []int{2}}.Disjoint())
	assert.False(t, Fold{Train: []int{0, 1}, Test: []int{1}}.Disjoint())
}

func TestFoldValid(t *testing.T) {
	assert.True(t, Fold{Train: []int{0, 1}, Test: []int{2}}.Valid(3))
	assert.False(t, Fold{Train: []int{0, 1}, Test: []int{3}}.Valid(3))
	assert.False(t, Fold{Train: []int{-1}, Test: []int{2}}.Valid(3))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte(`
categories:
  BOOK:
    - [[0.1, 2.3], [0.2, 2.1]]
    - [[0.3, 1.9]]
  CHOCOLATE:
    - [[5, 5]]
`), 0o600))

	idx, err := Load(yamlFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"BOOK", "CHOCOLATE"}, idx.Names())
	assert.Equal(t, []int{2, 1}, idx["BOOK"].Lengths)
	assert.Equal(t, []float64{0.2, 2.1}, idx["BOOK"].X[1])

	jsonFile := filepath.Join(dir, "corpus.json")
	require.NoError(t, os.WriteFile(jsonFile, []byte(`{"categories": {"A": [[[1], [2]]]}}`), 0o600))
	idx, err = Load(jsonFile)
	require.NoError(t, err)
	assert.Equal(t, 2, idx["A"].Frames())

	t.Run("round trip", func(t *testing.T) {
		b, err := Encode(idx)
		require.NoError(t, err)
		again, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, idx["A"].X, again["A"].X)
	})

	t.Run("no categories", func(t *testing.T) {
		_, err := Decode([]byte("categories: {}\n"))
		assert.ErrorIs(t, err, ErrInvalidCorpus)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}
