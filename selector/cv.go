package selector

import (
	"context"
	"fmt"

	"github.com/signrec/hmmselect/corpus"
)

// maxFolds is the fold count used when a category has enough sequences.
const maxFolds = 3

// CV selects the state count with the highest mean held-out log-likelihood
// under k-fold cross-validation over the category's sequences, with
// k = min(3, sequences). The returned model is refit on all sequences.
//
// A category with a single sequence can't be cross-validated; the selector
// returns the Constant model for it.
type CV struct {
	base
}

func NewCV(index corpus.Index, category string, cfg Config) (*CV, error) {
	b, err := newBase(StrategyCV, index, category, cfg)
	if err != nil {
		return nil, err
	}
	return &CV{b}, nil
}

func (s *CV) Select(ctx context.Context) Result {
	return s.run(ctx, s.selectCV)
}

func (s *CV) selectCV(ctx context.Context) Result {
	c := s.category
	k := min(maxFolds, len(c.Sequences))
	if k < 2 {
		return s.fallback(ctx, nil, fmt.Errorf("%w: %d sequence(s)", ErrTooFewSequences, len(c.Sequences)))
	}

	cands := s.search(ctx, func(ctx context.Context, states int) Candidate {
		score, err := s.crossValidate(ctx, states, k)
		if err != nil {
			return Candidate{States: states, Err: err}
		}
		return Candidate{States: states, Score: score}
	})

	// fold models were trained on subsets; refit the winner on everything,
	// moving down the ranking if that fails
	for _, cand := range rank(cands, false) {
		m, err := s.fit(ctx, c.X, c.Lengths, cand.States)
		if err != nil {
			s.verbose(ctx, "refit on all sequences failed", "states", cand.States, "err", err)
			continue
		}
		return Result{
			Strategy:   s.strategy,
			Category:   c.Name,
			Model:      m,
			States:     cand.States,
			Score:      cand.Score,
			Candidates: cands,
		}
	}

	return s.fallback(ctx, cands, fmt.Errorf("%w: %d candidates failed", ErrSearchExhausted, len(cands)))
}

// crossValidate returns the mean held-out log-likelihood of models with the
// given state count. Any failing fold fails the candidate.
func (s *CV) crossValidate(ctx context.Context, states, k int) (float64, error) {
	seqs := s.category.Sequences

	folds, err := s.cfg.Partitioner.Split(len(seqs), k)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFold, err)
	}
	if len(folds) == 0 {
		return 0, fmt.Errorf("%w: partitioner returned no folds", ErrFold)
	}

	var total float64
	for i, f := range folds {
		if len(f.Train) == 0 || len(f.Test) == 0 {
			return 0, fmt.Errorf("%w: fold %d has an empty side", ErrFold, i)
		}
		if !f.Valid(len(seqs)) {
			return 0, fmt.Errorf("%w: fold %d has an index outside [0, %d)", ErrFold, i, len(seqs))
		}
		if !f.Disjoint() {
			return 0, fmt.Errorf("%w: fold %d train and test overlap", ErrFold, i)
		}

		xTrain, lTrain := corpus.Combine(f.Train, seqs)
		m, err := s.fit(ctx, xTrain, lTrain, states)
		if err != nil {
			return 0, err
		}

		xTest, lTest := corpus.Combine(f.Test, seqs)
		ll, err := s.score(m, xTest, lTest, s.category.Name)
		if err != nil {
			return 0, err
		}
		total += ll
	}

	return total / float64(len(folds)), nil
}
