package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signrec/hmmselect/corpus"
	"github.com/signrec/hmmselect/hmm"
)

var tracer = otel.Tracer("github.com/signrec/hmmselect/selector")

// base holds the per-category data and the fitting helpers shared by the
// strategies.
type base struct {
	strategy Strategy
	cfg      Config
	index    corpus.Index
	category *corpus.Category
	log      *slog.Logger
}

func newBase(strategy Strategy, index corpus.Index, category string, cfg Config) (base, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return base{}, err
	}
	c, ok := index[category]
	if !ok || c == nil {
		return base{}, fmt.Errorf("%w: category %q not in corpus", ErrConfig, category)
	}
	return base{
		strategy: strategy,
		cfg:      cfg,
		index:    index,
		category: c,
		log:      cfg.Logger.With("category", category, "strategy", strategy.String()),
	}, nil
}

// verbose logs per-candidate progress; Info with Config.Verbose, else Debug.
func (b *base) verbose(ctx context.Context, msg string, args ...any) {
	level := slog.LevelDebug
	if b.cfg.Verbose {
		level = slog.LevelInfo
	}
	b.log.Log(ctx, level, msg, args...)
}

// fit trains a model with the given number of states. Failures are returned
// as *FitError so the caller can exclude the candidate.
func (b *base) fit(ctx context.Context, obs [][]float64, lengths []int, states int) (Model, error) {
	_, span := tracer.Start(ctx, "selector.fit", trace.WithAttributes(
		attribute.Int("states", states),
		attribute.Int("frames", len(obs)),
	))
	defer span.End()

	m, err := b.cfg.Fitter.Fit(obs, lengths, states, b.cfg.Seed)
	if err == nil && m == nil {
		err = errors.New("fitter returned no model")
	}
	if err != nil {
		span.RecordError(err)
		result := "error"
		if hmm.IsNumerical(err) {
			// expected when there is too little data for the state count
			result = "failed"
			b.verbose(ctx, "fit failed", "states", states, "err", err)
		} else {
			b.log.WarnContext(ctx, "fit error", "states", states, "err", err)
		}
		if b.cfg.Metrics != nil {
			b.cfg.Metrics.Fits.WithLabelValues(b.strategy.String(), result).Inc()
		}
		return nil, &FitError{States: states, Err: err}
	}

	if b.cfg.Metrics != nil {
		b.cfg.Metrics.Fits.WithLabelValues(b.strategy.String(), "ok").Inc()
	}
	b.verbose(ctx, "model created", "states", states)
	return m, nil
}

// score evaluates m on the observations of the named category (or a
// subset of it). Non-finite log-likelihoods count as failures.
func (b *base) score(m Model, obs [][]float64, lengths []int, category string) (float64, error) {
	ll, err := m.Score(obs, lengths)
	if err == nil && (math.IsNaN(ll) || math.IsInf(ll, 0)) {
		err = fmt.Errorf("log-likelihood is %v", ll)
	}
	if err != nil {
		return 0, &ScoreError{States: m.States(), Category: category, Err: err}
	}
	return ll, nil
}

type scoreFunc func(ctx context.Context, states int) Candidate

// search evaluates every state count in range. Candidates are returned in
// ascending order of states regardless of how many workers ran them.
func (b *base) search(ctx context.Context, scoreFn scoreFunc) []Candidate {
	cands := make([]Candidate, b.cfg.MaxStates-b.cfg.MinStates+1)

	score := func(ctx context.Context, states int) Candidate {
		c := scoreFn(ctx, states)
		if !c.OK() {
			b.verbose(ctx, "candidate excluded", "states", states, "err", c.Err)
		}
		return c
	}

	if b.cfg.Workers <= 1 {
		for i := range cands {
			cands[i] = score(ctx, b.cfg.MinStates+i)
		}
		return cands
	}

	var g errgroup.Group
	g.SetLimit(b.cfg.Workers)
	for i := range cands {
		g.Go(func() error {
			cands[i] = score(ctx, b.cfg.MinStates+i)
			return nil
		})
	}
	_ = g.Wait()

	return cands
}

// rank returns the scored candidates best first. Equal scores keep
// ascending state order.
func rank(cands []Candidate, lowerIsBetter bool) []Candidate {
	ok := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.OK() {
			ok = append(ok, c)
		}
	}
	sort.SliceStable(ok, func(i, j int) bool {
		if lowerIsBetter {
			return ok[i].Score < ok[j].Score
		}
		return ok[i].Score > ok[j].Score
	})
	return ok
}

// finish picks the best candidate or falls back to the constant model.
func (b *base) finish(ctx context.Context, cands []Candidate, lowerIsBetter bool) Result {
	ranked := rank(cands, lowerIsBetter)
	if len(ranked) == 0 {
		return b.fallback(ctx, cands, fmt.Errorf("%w: %d candidates failed", ErrSearchExhausted, len(cands)))
	}
	best := ranked[0]
	return Result{
		Strategy:   b.strategy,
		Category:   b.category.Name,
		Model:      best.Model,
		States:     best.States,
		Score:      best.Score,
		Candidates: cands,
	}
}

// constant fits the model at the configured constant state count.
func (b *base) constant(ctx context.Context) Result {
	r := Result{
		Strategy: b.strategy,
		Category: b.category.Name,
		States:   b.cfg.ConstantStates,
		Score:    math.NaN(),
	}
	m, err := b.fit(ctx, b.category.X, b.category.Lengths, b.cfg.ConstantStates)
	if err != nil {
		b.log.ErrorContext(ctx, "constant model could not be fit", "states", b.cfg.ConstantStates, "err", err)
		r.Err = err
		return r
	}
	r.Model = m
	return r
}

func (b *base) fallback(ctx context.Context, cands []Candidate, reason error) Result {
	b.verbose(ctx, "falling back to constant model", "states", b.cfg.ConstantStates, "reason", reason)

	if b.cfg.Metrics != nil {
		label := "exhausted"
		if errors.Is(reason, ErrTooFewSequences) {
			label = "too_few_sequences"
		}
		b.cfg.Metrics.Fallbacks.WithLabelValues(b.strategy.String(), label).Inc()
	}

	r := b.constant(ctx)
	r.Fallback = true
	r.Reason = reason
	r.Candidates = cands
	return r
}

// run wraps a strategy's selection with tracing, metrics and a summary log
// line.
func (b *base) run(ctx context.Context, selectFn func(context.Context) Result) Result {
	ctx, span := tracer.Start(ctx, "selector.Select", trace.WithAttributes(
		attribute.String("category", b.category.Name),
		attribute.String("strategy", b.strategy.String()),
	))
	defer span.End()

	start := time.Now()
	r := selectFn(ctx)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.Int("states", r.States),
		attribute.Bool("fallback", r.Fallback),
	)
	if r.Err != nil {
		span.RecordError(r.Err)
	}

	if b.cfg.Metrics != nil {
		b.cfg.Metrics.SearchDuration.WithLabelValues(b.strategy.String()).Observe(duration.Seconds())
		if r.Model != nil {
			b.cfg.Metrics.SelectedStates.WithLabelValues(b.strategy.String()).Observe(float64(r.States))
		}
	}

	b.log.DebugContext(ctx, "selected model",
		"states", r.States,
		"score", r.Score,
		"fallback", r.Fallback,
		"duration", duration)

	return r
}
