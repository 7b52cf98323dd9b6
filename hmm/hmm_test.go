package hmm

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStateModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewModel(Params{
		StartProb: []float64{0.6, 0.3, 0.1},
		TransMat: [][]float64{
			{0.8, 0.15, 0.05},
			{0.05, 0.8, 0.15},
			{0.15, 0.05, 0.8},
		},
		Means: [][]float64{{0, 0}, {10, 10}, {-10, 10}},
		Vars:  [][]float64{{1, 1}, {1, 1}, {1, 1}},
	})
	require.NoError(t, err)
	return m
}

// sampleSequences draws count sequences of the given length and returns
// them concatenated together with their lengths.
func sampleSequences(m *Model, seed uint64, count, frames int) ([][]float64, []int) {
	r := rand.New(rand.NewPCG(seed, seed))
	var obs [][]float64
	var lengths []int
	for i := 0; i < count; i++ {
		x, _ := m.Sample(r, frames)
		obs = append(obs, x...)
		lengths = append(lengths, frames)
	}
	return obs, lengths
}

func TestFitRecoversSeparatedMeans(t *testing.T) {
	truth := threeStateModel(t)
	obs, lengths := sampleSequences(truth, 1, 10, 50)

	m, err := Fitter{}.Fit(obs, lengths, 3, 14)
	require.NoError(t, err)
	assert.Equal(t, 3, m.States())
	assert.Equal(t, 2, m.Features())
	assert.Greater(t, m.Iterations, 0)

	means := m.Params().Means
	// feature 0 tells every state apart
	sort.Slice(means, func(i, j int) bool {
		return means[i][0] < means[j][0]
	})
	want := [][]float64{{-10, 10}, {0, 0}, {10, 10}}
	for i := range want {
		for d := range want[i] {
			assert.InDelta(t, want[i][d], means[i][d], 0.5, "state %d feature %d", i, d)
		}
	}

	for _, row := range m.Params().TransMat {
		var s float64
		for _, v := range row {
			s += v
		}
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestFitLogLikelihoodMatchesParams(t *testing.T) {
	truth := threeStateModel(t)
	obs, lengths := sampleSequences(truth, 3, 6, 40)

	m, err := Fitter{}.Fit(obs, lengths, 3, 14)
	require.NoError(t, err)

	ll, err := m.Score(obs, lengths)
	require.NoError(t, err)
	assert.InDelta(t, ll, m.LogLikelihood, 1e-9)
}

func TestFitIsDeterministic(t *testing.T) {
	truth := threeStateModel(t)
	obs, lengths := sampleSequences(truth, 2, 5, 40)

	a, err := Fitter{}.Fit(obs, lengths, 4, 14)
	if err != nil {
		// a failing fit must fail the same way every time
		_, err2 := Fitter{}.Fit(obs, lengths, 4, 14)
		require.Error(t, err2)
		return
	}
	b, err := Fitter{}.Fit(obs, lengths, 4, 14)
	require.NoError(t, err)
	assert.Equal(t, a.Params(), b.Params())
	assert.Equal(t, a.LogLikelihood, b.LogLikelihood)
}

func TestFitErrors(t *testing.T) {
	obs := [][]float64{{1}, {2}, {3}}

	tests := []struct {
		name    string
		obs     [][]float64
		lengths []int
		states  int
		want    error
	}{
		{"zero states", obs, []int{3}, 0, ErrInvalidInput},
		{"no observations", nil, []int{1}, 2, ErrInvalidInput},
		{"lengths mismatch", obs, []int{2}, 2, ErrInvalidInput},
		{"empty sequence", obs, []int{3, 0}, 2, ErrInvalidInput},
		{"ragged frames", [][]float64{{1}, {2, 3}}, []int{2}, 1, ErrDimension},
		{"not finite", [][]float64{{1}, {math.NaN()}}, []int{2}, 1, ErrInvalidInput},
		{"too few samples", obs, []int{3}, 4, ErrTooFewSamples},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fitter{}.Fit(tt.obs, tt.lengths, tt.states, 1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFitNotConverged(t *testing.T) {
	truth := threeStateModel(t)
	obs, lengths := sampleSequences(truth, 3, 4, 30)

	_, err := Fitter{MaxIter: 1}.Fit(obs, lengths, 3, 14)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)
	assert.True(t, IsNumerical(err))
}

func TestIsNumerical(t *testing.T) {
	assert.True(t, IsNumerical(ErrDegenerate))
	assert.True(t, IsNumerical(ErrTooFewSamples))
	assert.False(t, IsNumerical(ErrInvalidInput))
	assert.False(t, IsNumerical(ErrDimension))
	assert.False(t, IsNumerical(nil))
}

func TestScore(t *testing.T) {
	m := threeStateModel(t)
	obs, lengths := sampleSequences(m, 4, 3, 20)

	total, err := m.Score(obs, lengths)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(total))
	assert.Less(t, total, 0.0)

	// sequences are scored independently
	var sum float64
	start := 0
	for _, l := range lengths {
		s, err := m.Score(obs[start:start+l], []int{l})
		require.NoError(t, err)
		sum += s
		start += l
	}
	assert.InDelta(t, total, sum, 1e-9)

	t.Run("single gaussian", func(t *testing.T) {
		g, err := NewModel(Params{
			StartProb: []float64{1},
			TransMat:  [][]float64{{1}},
			Means:     [][]float64{{0}},
			Vars:      [][]float64{{1}},
		})
		require.NoError(t, err)
		s, err := g.Score([][]float64{{0}}, []int{1})
		require.NoError(t, err)
		assert.InDelta(t, -0.5*math.Log(2*math.Pi), s, 1e-12)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := m.Score([][]float64{{1, 2, 3}}, []int{1})
		assert.ErrorIs(t, err, ErrDimension)
	})
}

func TestNewModelValidates(t *testing.T) {
	_, err := NewModel(Params{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewModel(Params{
		StartProb: []float64{1},
		TransMat:  [][]float64{{1}},
		Means:     [][]float64{{0}},
		Vars:      [][]float64{{0}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParamsAreCopied(t *testing.T) {
	m := threeStateModel(t)
	p := m.Params()
	p.Means[0][0] = 1000
	assert.Equal(t, 0.0, m.Params().Means[0][0])
}
