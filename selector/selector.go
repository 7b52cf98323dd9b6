package selector

import (
	"context"
	"fmt"

	"github.com/signrec/hmmselect/corpus"
)

// Selector picks one model for a category.
type Selector interface {
	// Select runs the search. It never fails: when nothing in range can
	// be scored the Constant model is returned with Result.Fallback set.
	Select(ctx context.Context) Result
}

// New returns the selector for strategy, bound to one category of index.
func New(strategy Strategy, index corpus.Index, category string, cfg Config) (Selector, error) {
	var (
		sel Selector
		err error
	)
	switch strategy {
	case StrategyConstant:
		sel, err = NewConstant(index, category, cfg)
	case StrategyBIC:
		sel, err = NewBIC(index, category, cfg)
	case StrategyDIC:
		sel, err = NewDIC(index, category, cfg)
	case StrategyCV:
		sel, err = NewCV(index, category, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %s", ErrConfig, strategy)
	}
	if err != nil {
		return nil, err
	}
	return sel, nil
}
