package selector

import (
	"context"
	"math"

	"github.com/signrec/hmmselect/corpus"
)

// BIC selects the model with the lowest Bayesian Information Criterion,
// trading the training log-likelihood against the parameter count.
type BIC struct {
	base
}

func NewBIC(index corpus.Index, category string, cfg Config) (*BIC, error) {
	b, err := newBase(StrategyBIC, index, category, cfg)
	if err != nil {
		return nil, err
	}
	return &BIC{b}, nil
}

// FreeParameters is the parameter count of an HMM with diagonal Gaussian
// emissions: n² transition and start parameters plus a mean and a variance
// per state and feature, less one for normalization.
func FreeParameters(states, features int) int {
	return states*states + 2*states*features - 1
}

// BICScore returns -2·logL + p·ln(N) for a model with the given state count
// trained on frames observations of features dimensions.
func BICScore(logL float64, states, features, frames int) float64 {
	p := float64(FreeParameters(states, features))
	return -2*logL + p*math.Log(float64(frames))
}

func (s *BIC) Select(ctx context.Context) Result {
	return s.run(ctx, s.selectBIC)
}

func (s *BIC) selectBIC(ctx context.Context) Result {
	c := s.category

	cands := s.search(ctx, func(ctx context.Context, states int) Candidate {
		m, err := s.fit(ctx, c.X, c.Lengths, states)
		if err != nil {
			return Candidate{States: states, Err: err}
		}
		logL, err := s.score(m, c.X, c.Lengths, c.Name)
		if err != nil {
			return Candidate{States: states, Err: err}
		}
		return Candidate{
			States: states,
			Model:  m,
			Score:  BICScore(logL, states, c.Features(), c.Frames()),
		}
	})

	return s.finish(ctx, cands, true)
}
