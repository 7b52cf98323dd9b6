package corpus

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var ErrInvalidSplit = errors.New("corpus: invalid split")

// Fold is one train/test partition of sequence indices.
type Fold struct {
	Train []int
	Test  []int
}

// Disjoint reports whether no index appears in both the training and the
// test side of the fold.
func (f Fold) Disjoint() bool {
	seen := make(map[int]struct{}, len(f.Train))
	for _, i := range f.Train {
		seen[i] = struct{}{}
	}
	for _, i := range f.Test {
		if _, ok := seen[i]; ok {
			return false
		}
	}
	return true
}

// Valid reports whether every index of the fold lies in [0, n).
func (f Fold) Valid(n int) bool {
	for _, side := range [][]int{f.Train, f.Test} {
		for _, i := range side {
			if i < 0 || i >= n {
				return false
			}
		}
	}
	return true
}

// KFold splits n items into k consecutive folds. Each fold is the test set
// once while the remaining folds form the training set. The first n%k folds
// get one extra item.
//
// With Shuffle set the items are permuted with Seed before splitting.
type KFold struct {
	Shuffle bool
	Seed    uint64
}

// Split returns k folds over the indices 0..n-1.
func (kf KFold) Split(n, k int) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 folds, got %d", ErrInvalidSplit, k)
	}
	if k > n {
		return nil, fmt.Errorf("%w: %d folds for %d items", ErrInvalidSplit, k, n)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if kf.Shuffle {
		r := rand.New(rand.NewPCG(kf.Seed, kf.Seed))
		r.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	folds := make([]Fold, 0, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		end := start + size

		test := append([]int(nil), order[start:end]...)
		train := make([]int, 0, n-size)
		train = append(train, order[:start]...)
		train = append(train, order[end:]...)

		folds = append(folds, Fold{Train: train, Test: test})
		start = end
	}
	return folds, nil
}
