// Package cmd is the hmm-select command line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"go.ntppool.org/common/logger"
	"go.ntppool.org/common/metricsserver"
	"go.ntppool.org/common/version"
	"golang.org/x/sync/errgroup"

	"github.com/signrec/hmmselect/corpus"
	"github.com/signrec/hmmselect/hmm"
	"github.com/signrec/hmmselect/modelstore"
	"github.com/signrec/hmmselect/selector"
	"github.com/signrec/hmmselect/ulid"
	versioncmd "github.com/signrec/hmmselect/version"
)

func init() {
	logger.ConfigPrefix = "HMMSELECT"
}

// Cmd provides the command structure for CLI integration
type Cmd struct {
	Select  SelectCmd      `cmd:"" help:"select the number of states for each category"`
	Show    ShowCmd        `cmd:"" help:"list stored selections"`
	Version versioncmd.Cmd `cmd:"" help:"print version and build information"`
}

type (
	SelectCmd struct {
		Corpus   string   `required:"" type:"existingfile" help:"corpus file (YAML or JSON)"`
		Strategy string   `default:"bic" enum:"constant,bic,dic,cv" help:"selection strategy (${enum})"`
		Category []string `help:"categories to select for, all when unset"`

		MinStates      int    `default:"2" help:"smallest state count tried"`
		MaxStates      int    `default:"10" help:"largest state count tried"`
		ConstantStates int    `default:"3" help:"state count of the constant and fallback model"`
		Seed           uint64 `default:"14" help:"random seed for model initialization"`
		MaxIter        int    `default:"1000" help:"Baum-Welch iteration cap"`

		Workers  int `default:"1" help:"candidate fits run concurrently per category"`
		Parallel int `default:"4" help:"categories selected concurrently"`

		Store       string `help:"store the selections in this database directory" env:"HMMSELECT_STORE"`
		MetricsPort int    `help:"serve prometheus metrics on this port while running" flag:"metrics-port"`
		Verbose     bool   `flag:"verbose" short:"v" help:"log every candidate fit"`
	}

	ShowCmd struct {
		Store    string `required:"" help:"database directory" env:"HMMSELECT_STORE"`
		Strategy string `help:"only show this strategy"`
	}
)

func (cmd *SelectCmd) Run(ctx context.Context) error {
	return cmd.run(ctx, os.Stdout)
}

func (cmd *SelectCmd) run(ctx context.Context, out io.Writer) error {
	log := logger.FromContext(ctx)

	if cmd.Verbose {
		debugHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		log = slog.New(debugHandler)
		ctx = logger.NewContext(ctx, log)
	}

	strategy, err := selector.ParseStrategy(cmd.Strategy)
	if err != nil {
		return err
	}

	index, err := corpus.Load(cmd.Corpus)
	if err != nil {
		return err
	}

	names := cmd.Category
	if len(names) == 0 {
		names = index.Names()
	}
	for _, name := range names {
		if _, ok := index[name]; !ok {
			return fmt.Errorf("category %q not in %s", name, cmd.Corpus)
		}
	}

	var metrics *selector.Metrics
	if cmd.MetricsPort > 0 {
		metricssrv := metricsserver.New()
		go metricssrv.ListenAndServe(ctx, cmd.MetricsPort)
		version.RegisterMetric("hmm-select", metricssrv.Registry())
		metrics = selector.NewMetrics(metricssrv.Registry())
	}

	cfg := selector.Config{
		MinStates:      cmd.MinStates,
		MaxStates:      cmd.MaxStates,
		ConstantStates: cmd.ConstantStates,
		Seed:           cmd.Seed,
		Verbose:        cmd.Verbose,
		Workers:        cmd.Workers,
		Fitter:         selector.GaussianFitter(hmm.Fitter{MaxIter: cmd.MaxIter}),
		Logger:         log,
		Metrics:        metrics,
	}

	log.InfoContext(ctx, "selecting models",
		"version", version.Version(),
		"strategy", strategy.String(),
		"categories", len(names))

	results := make([]selector.Result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cmd.Parallel, 1))
	for i, name := range names {
		g.Go(func() error {
			sel, err := selector.New(strategy, index, name, cfg)
			if err != nil {
				return err
			}
			results[i] = sel.Select(gctx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeReport(out, results); err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			log.ErrorContext(ctx, "no model", "category", r.Category, "err", r.Err)
		}
	}

	if cmd.Store != "" {
		if err := cmd.store(ctx, results); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d categories have no model", failed, len(results))
	}
	return nil
}

func (cmd *SelectCmd) store(ctx context.Context, results []selector.Result) error {
	now := time.Now()
	runID, err := ulid.RunID(now)
	if err != nil {
		return err
	}

	st, err := modelstore.Open(ctx, modelstore.Options{Dir: cmd.Store})
	if err != nil {
		return err
	}
	defer st.Close()

	recs := make([]modelstore.Record, 0, len(results))
	for _, r := range results {
		if r.Model == nil {
			continue
		}
		recs = append(recs, modelstore.FromResult(runID, r, now))
	}
	if err := st.PutAll(ctx, recs); err != nil {
		return err
	}

	logger.FromContext(ctx).InfoContext(ctx, "stored selections", "runID", runID, "count", len(recs), "dir", cmd.Store)
	return nil
}

func (cmd *ShowCmd) Run(ctx context.Context) error {
	return cmd.run(ctx, os.Stdout)
}

func (cmd *ShowCmd) run(ctx context.Context, out io.Writer) error {
	if cmd.Strategy != "" {
		if _, err := selector.ParseStrategy(cmd.Strategy); err != nil {
			return err
		}
	}

	st, err := modelstore.Open(ctx, modelstore.Options{Dir: cmd.Store})
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.List(ctx, cmd.Strategy)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return errors.New("no stored selections")
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTRATEGY\tSTATES\tSCORE\tFALLBACK\tRUN\tCREATED")
	for _, rec := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\t%s\t%s\n",
			rec.Category, rec.Strategy, rec.States, formatScore(rec.Score),
			rec.Fallback, rec.RunID, rec.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeReport(out io.Writer, results []selector.Result) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSTRATEGY\tSTATES\tSCORE\tFALLBACK\tFAILED")
	for _, r := range results {
		var failed int
		for _, c := range r.Candidates {
			if !c.OK() {
				failed++
			}
		}
		states := strconv.Itoa(r.States)
		if r.Model == nil {
			states = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%d\n",
			r.Category, r.Strategy, states, formatScore(r.Score), r.Fallback, failed)
	}
	return tw.Flush()
}

func formatScore(s float64) string {
	if math.IsNaN(s) {
		return "-"
	}
	return strconv.FormatFloat(s, 'f', 2, 64)
}
