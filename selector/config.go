package selector

import (
	"fmt"
	"log/slog"

	"go.ntppool.org/common/logger"

	"github.com/signrec/hmmselect/corpus"
	"github.com/signrec/hmmselect/hmm"
)

const (
	DefaultMinStates      = 2
	DefaultMaxStates      = 10
	DefaultConstantStates = 3
	DefaultSeed           = 14
)

// Config holds the settings shared by every strategy.
type Config struct {
	MinStates      int
	MaxStates      int
	ConstantStates int

	// Seed is passed to every fit so repeated runs pick the same model.
	Seed uint64

	// Verbose logs each candidate fit at info level instead of debug.
	Verbose bool

	// Workers is the number of candidates fit concurrently. Results do
	// not depend on it.
	Workers int

	Fitter      Fitter
	Partitioner Partitioner
	Logger      *slog.Logger
	Metrics     *Metrics
}

// DefaultConfig returns a config with the default range, constant state
// count and seed, fitting Gaussian HMMs with diagonal covariance.
func DefaultConfig() Config {
	return Config{
		MinStates:      DefaultMinStates,
		MaxStates:      DefaultMaxStates,
		ConstantStates: DefaultConstantStates,
		Seed:           DefaultSeed,
	}.withDefaults()
}

// withDefaults fills in unset fields. The seed is left alone since zero is
// a valid seed.
func (c Config) withDefaults() Config {
	if c.MinStates == 0 {
		c.MinStates = DefaultMinStates
	}
	if c.MaxStates == 0 {
		c.MaxStates = DefaultMaxStates
	}
	if c.ConstantStates == 0 {
		c.ConstantStates = DefaultConstantStates
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Fitter == nil {
		c.Fitter = GaussianFitter(hmm.Fitter{MaxIter: hmm.DefaultMaxIter})
	}
	if c.Partitioner == nil {
		c.Partitioner = corpus.KFold{}
	}
	if c.Logger == nil {
		c.Logger = logger.Setup()
	}
	return c
}

// Validate checks the state count settings.
func (c Config) Validate() error {
	if c.MinStates < 1 {
		return fmt.Errorf("%w: min states %d, must be at least 1", ErrConfig, c.MinStates)
	}
	if c.MinStates > c.MaxStates {
		return fmt.Errorf("%w: min states %d > max states %d", ErrConfig, c.MinStates, c.MaxStates)
	}
	if c.ConstantStates < 1 {
		return fmt.Errorf("%w: constant states %d, must be at least 1", ErrConfig, c.ConstantStates)
	}
	return nil
}

// GaussianFitter adapts an hmm.Fitter to the Fitter interface.
func GaussianFitter(f hmm.Fitter) Fitter {
	return gaussianFitter{f}
}

type gaussianFitter struct {
	f hmm.Fitter
}

func (g gaussianFitter) Fit(obs [][]float64, lengths []int, states int, seed uint64) (Model, error) {
	m, err := g.f.Fit(obs, lengths, states, seed)
	if err != nil {
		return nil, err
	}
	return m, nil
}
