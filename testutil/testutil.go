// Package testutil has helpers shared by the package tests: a logger that
// writes through testing.T and synthetic corpora drawn from known models.
package testutil

import (
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/signrec/hmmselect/corpus"
	"github.com/signrec/hmmselect/hmm"
)

// tWriter sends each log line to t.Log so output is attached to the test
// that produced it.
type tWriter struct {
	t  testing.TB
	mu sync.Mutex
}

func (w *tWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.t.Helper()
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// NewTestLogger returns a debug level text logger writing to t.
func NewTestLogger(t testing.TB) *slog.Logger {
	handler := slog.NewTextHandler(&tWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return slog.New(handler)
}

// Generator returns a three state, two feature model whose state means are
// offset, offset+(8,0) and offset+(0,8), unit variance.
func Generator(t testing.TB, offset float64) *hmm.Model {
	t.Helper()
	m, err := hmm.NewModel(hmm.Params{
		StartProb: []float64{0.5, 0.3, 0.2},
		TransMat: [][]float64{
			{0.85, 0.1, 0.05},
			{0.05, 0.85, 0.1},
			{0.1, 0.05, 0.85},
		},
		Means: [][]float64{{offset, offset}, {offset + 8, offset}, {offset, offset + 8}},
		Vars:  [][]float64{{1, 1}, {1, 1}, {1, 1}},
	})
	if err != nil {
		t.Fatalf("generator model: %v", err)
	}
	return m
}

// Sample draws count sequences of frames frames from m.
func Sample(m *hmm.Model, seed uint64, count, frames int) []corpus.Sequence {
	r := rand.New(rand.NewPCG(seed, seed))
	seqs := make([]corpus.Sequence, count)
	for i := range seqs {
		obs, _ := m.Sample(r, frames)
		seqs[i] = obs
	}
	return seqs
}

// ConstSequences returns count sequences of frames frames whose features
// all equal value.
func ConstSequences(value float64, count, frames, features int) []corpus.Sequence {
	seqs := make([]corpus.Sequence, count)
	for i := range seqs {
		s := make(corpus.Sequence, frames)
		for t := range s {
			s[t] = make([]float64, features)
			for d := range s[t] {
				s[t][d] = value
			}
		}
		seqs[i] = s
	}
	return seqs
}

// NewIndex builds an index and fails the test on error.
func NewIndex(t testing.TB, raw map[string][]corpus.Sequence) corpus.Index {
	t.Helper()
	idx, err := corpus.NewIndex(raw)
	if err != nil {
		t.Fatalf("corpus index: %v", err)
	}
	return idx
}

// WriteCorpus encodes idx to a corpus file in a temporary directory and
// returns its path.
func WriteCorpus(t testing.TB, idx corpus.Index) string {
	t.Helper()
	b, err := corpus.Encode(idx)
	if err != nil {
		t.Fatalf("encode corpus: %v", err)
	}
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write corpus: %v", err)
	}
	return path
}

// Lines splits s into trimmed, non-empty lines.
func Lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
