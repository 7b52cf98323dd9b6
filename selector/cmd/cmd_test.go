package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.ntppool.org/common/logger"

	"github.com/signrec/hmmselect/corpus"
	"github.com/signrec/hmmselect/testutil"
)

func writeCorpus(t *testing.T) string {
	t.Helper()
	return testutil.WriteCorpus(t, testutil.NewIndex(t, map[string][]corpus.Sequence{
		"BOOK": testutil.Sample(testutil.Generator(t, 0), 3, 4, 30),
		"JOHN": testutil.Sample(testutil.Generator(t, 5), 4, 1, 30),
	}))
}

func testContext(t *testing.T) context.Context {
	return logger.NewContext(context.Background(), testutil.NewTestLogger(t))
}

func selectCmd(path string) *SelectCmd {
	return &SelectCmd{
		Corpus:         path,
		Strategy:       "cv",
		MinStates:      2,
		MaxStates:      3,
		ConstantStates: 2,
		Seed:           14,
		MaxIter:        1000,
		Workers:        2,
		Parallel:       2,
	}
}

func TestSelectAndShow(t *testing.T) {
	ctx := testContext(t)
	cmd := selectCmd(writeCorpus(t))
	cmd.Store = t.TempDir()

	var out bytes.Buffer
	require.NoError(t, cmd.run(ctx, &out))

	lines := testutil.Lines(out.String())
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "CATEGORY"))
	assert.True(t, strings.HasPrefix(lines[1], "BOOK"))
	assert.Contains(t, lines[1], "cv")
	// one sequence can't be cross-validated
	assert.True(t, strings.HasPrefix(lines[2], "JOHN"))
	assert.Contains(t, lines[2], "true")

	show := &ShowCmd{Store: cmd.Store, Strategy: "cv"}
	out.Reset()
	require.NoError(t, show.run(ctx, &out))
	lines = testutil.Lines(out.String())
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "BOOK"))
	assert.True(t, strings.HasPrefix(lines[2], "JOHN"))

	show.Strategy = "bic"
	out.Reset()
	assert.Error(t, show.run(ctx, &out))
}

func TestSelectCategoryFilter(t *testing.T) {
	cmd := selectCmd(writeCorpus(t))
	cmd.Strategy = "constant"
	cmd.Category = []string{"JOHN"}

	var out bytes.Buffer
	require.NoError(t, cmd.run(testContext(t), &out))
	assert.NotContains(t, out.String(), "BOOK")
	assert.Contains(t, out.String(), "JOHN")
}

func TestSelectErrors(t *testing.T) {
	path := writeCorpus(t)

	tests := []struct {
		name   string
		mutate func(*SelectCmd)
	}{
		{"unknown category", func(c *SelectCmd) { c.Category = []string{"NOPE"} }},
		{"unknown strategy", func(c *SelectCmd) { c.Strategy = "aic" }},
		{"bad range", func(c *SelectCmd) { c.MinStates, c.MaxStates = 4, 3 }},
		{"missing corpus", func(c *SelectCmd) { c.Corpus = filepath.Join(t.TempDir(), "nope.yaml") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := selectCmd(path)
			tt.mutate(cmd)
			var out bytes.Buffer
			assert.Error(t, cmd.run(testContext(t), &out))
		})
	}
}
