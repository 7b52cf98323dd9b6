package selector

import (
	"context"

	"github.com/signrec/hmmselect/corpus"
)

// DIC selects the model with the highest Discriminative Information
// Criterion: how much better the model explains its own category than the
// other categories of the corpus, on average.
//
// In a corpus with a single category there is nothing to discriminate
// against and the penalty is zero, so the score is the training
// log-likelihood.
type DIC struct {
	base
	others []string
}

func NewDIC(index corpus.Index, category string, cfg Config) (*DIC, error) {
	b, err := newBase(StrategyDIC, index, category, cfg)
	if err != nil {
		return nil, err
	}
	var others []string
	for _, name := range index.Names() {
		if name != category {
			others = append(others, name)
		}
	}
	return &DIC{base: b, others: others}, nil
}

// DICScore returns own minus the mean of others, or own when others is
// empty. others holds one log-likelihood per competing category, so the
// penalty averages scores rather than models.
func DICScore(own float64, others []float64) float64 {
	if len(others) == 0 {
		return own
	}
	var sum float64
	for _, v := range others {
		sum += v
	}
	return own - sum/float64(len(others))
}

func (s *DIC) Select(ctx context.Context) Result {
	return s.run(ctx, s.selectDIC)
}

func (s *DIC) selectDIC(ctx context.Context) Result {
	c := s.category

	if len(s.others) == 0 {
		s.log.DebugContext(ctx, "no other categories, scoring without penalty")
	}

	cands := s.search(ctx, func(ctx context.Context, states int) Candidate {
		m, err := s.fit(ctx, c.X, c.Lengths, states)
		if err != nil {
			return Candidate{States: states, Err: err}
		}
		own, err := s.score(m, c.X, c.Lengths, c.Name)
		if err != nil {
			return Candidate{States: states, Err: err}
		}

		others := make([]float64, 0, len(s.others))
		for _, name := range s.others {
			o := s.index[name]
			ll, err := s.score(m, o.X, o.Lengths, name)
			if err != nil {
				return Candidate{States: states, Err: err}
			}
			others = append(others, ll)
		}

		return Candidate{
			States: states,
			Model:  m,
			Score:  DICScore(own, others),
		}
	})

	return s.finish(ctx, cands, false)
}
