package selector

import (
	"fmt"
	"math"
	"strings"

	"github.com/signrec/hmmselect/corpus"
)

// Model is a trained HMM as far as selection is concerned.
type Model interface {
	States() int
	// Score returns the log-likelihood of the concatenated observations.
	Score(obs [][]float64, lengths []int) (float64, error)
}

// Fitter trains a model with the given number of states. Implementations
// must be safe for concurrent use and deterministic for a given seed.
type Fitter interface {
	Fit(obs [][]float64, lengths []int, states int, seed uint64) (Model, error)
}

// Partitioner splits n sequences into k train/test folds.
type Partitioner interface {
	Split(n, k int) ([]corpus.Fold, error)
}

// Strategy identifies a selection policy.
type Strategy uint8

const (
	StrategyConstant Strategy = iota
	StrategyBIC
	StrategyDIC
	StrategyCV
)

var strategyNames = []string{"constant", "bic", "dic", "cv"}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("Strategy(%d)", s)
}

// Strategies returns every strategy in declaration order.
func Strategies() []Strategy {
	return []Strategy{StrategyConstant, StrategyBIC, StrategyDIC, StrategyCV}
}

// ParseStrategy maps a name (case insensitive) to its Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for i, n := range strategyNames {
		if strings.EqualFold(n, name) {
			return Strategy(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrConfig, name)
}

// Candidate is the outcome of evaluating one state count.
type Candidate struct {
	States int
	Score  float64
	// Model is the fitted model scored for this candidate, nil for
	// strategies that score fold models (CV) and for failures.
	Model Model
	// Err is set when the candidate could not be scored.
	Err error
}

// OK reports whether the candidate produced a score.
func (c Candidate) OK() bool {
	return c.Err == nil
}

// Result is the outcome of one Select call.
type Result struct {
	Strategy Strategy
	Category string

	Model  Model
	States int
	// Score of the chosen candidate, NaN for Constant and fallbacks.
	Score float64

	// Fallback is set when the search produced nothing usable and the
	// Constant model was returned instead. Reason says why.
	Fallback bool
	Reason   error

	// Candidates holds every evaluated state count in ascending order.
	Candidates []Candidate

	// Err is set only when no model at all could be fit.
	Err error
}

// HasScore reports whether the chosen model is backed by a search score.
func (r Result) HasScore() bool {
	return !math.IsNaN(r.Score)
}
