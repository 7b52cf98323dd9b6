// Package corpus holds the per-category observation data used for model
// selection and the helpers to slice it into training and test sets.
package corpus

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidCorpus is returned for categories that cannot be used for fitting.
var ErrInvalidCorpus = errors.New("corpus: invalid data")

// Sequence is one example: a list of frames, each a feature vector.
type Sequence [][]float64

// Category is the data for one recognition unit (a "word").
type Category struct {
	Name      string
	Sequences []Sequence

	// X is every sequence concatenated in order and Lengths the frame
	// count of each, the layout the fitter consumes.
	X       [][]float64
	Lengths []int
}

// NewCategory builds a category from its example sequences. Every frame of
// every sequence must have the same number of features.
func NewCategory(name string, seqs []Sequence) (*Category, error) {
	if len(seqs) == 0 {
		return nil, fmt.Errorf("%w: category %q has no sequences", ErrInvalidCorpus, name)
	}
	features := -1
	for i, s := range seqs {
		if len(s) == 0 {
			return nil, fmt.Errorf("%w: category %q sequence %d is empty", ErrInvalidCorpus, name, i)
		}
		for t, frame := range s {
			if features < 0 {
				features = len(frame)
			}
			if len(frame) != features || features == 0 {
				return nil, fmt.Errorf("%w: category %q sequence %d frame %d has %d features, want %d",
					ErrInvalidCorpus, name, i, t, len(frame), features)
			}
		}
	}

	all := make([]int, len(seqs))
	for i := range all {
		all[i] = i
	}
	x, lengths := Combine(all, seqs)

	return &Category{
		Name:      name,
		Sequences: seqs,
		X:         x,
		Lengths:   lengths,
	}, nil
}

// Features returns the feature count of the category's frames.
func (c *Category) Features() int {
	if len(c.X) == 0 {
		return 0
	}
	return len(c.X[0])
}

// Frames returns the total number of frames across all sequences.
func (c *Category) Frames() int {
	return len(c.X)
}

// Combine concatenates the selected sequences, in the given order, and
// returns the frames together with the length of each sequence.
func Combine(indices []int, seqs []Sequence) ([][]float64, []int) {
	n := 0
	for _, i := range indices {
		n += len(seqs[i])
	}
	x := make([][]float64, 0, n)
	lengths := make([]int, 0, len(indices))
	for _, i := range indices {
		x = append(x, seqs[i]...)
		lengths = append(lengths, len(seqs[i]))
	}
	return x, lengths
}

// Index maps category names to their data.
type Index map[string]*Category

// NewIndex builds an index from raw sequences keyed by category name.
func NewIndex(raw map[string][]Sequence) (Index, error) {
	idx := make(Index, len(raw))
	for name, seqs := range raw {
		c, err := NewCategory(name, seqs)
		if err != nil {
			return nil, err
		}
		idx[name] = c
	}
	return idx, nil
}

// Names returns the category names in sorted order.
func (idx Index) Names() []string {
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
