package selector

import (
	"context"

	"github.com/signrec/hmmselect/corpus"
)

// Constant always returns the model fit with ConstantStates. It is the
// baseline strategy and the fallback of the others.
type Constant struct {
	base
}

func NewConstant(index corpus.Index, category string, cfg Config) (*Constant, error) {
	b, err := newBase(StrategyConstant, index, category, cfg)
	if err != nil {
		return nil, err
	}
	return &Constant{b}, nil
}

func (s *Constant) Select(ctx context.Context) Result {
	return s.run(ctx, s.constant)
}
