package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/config"
	"github.com/chriserin/ftr/internal/db"
	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/logging"
	"github.com/chriserin/ftr/internal/reporter"
	"github.com/chriserin/ftr/internal/ui"
)

// ErrCorrelation is returned when events could not be matched to their
// source and were dropped.
var ErrCorrelation = errors.New("events could not be correlated")

var errRunFinished = errors.New("run finished")

type reportOptions struct {
	Reporter *string
	Launch   *string
	FailFast *bool
	DryRun   bool
	Tree     bool
}

var (
	reportReporter string
	reportLaunch   string
	reportFailFast bool
	reportDryRun   bool
	reportTree     bool
)

var reportCmd = &cobra.Command{
	Use:   "report [file|-]",
	Short: "Report an NDJSON event stream",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(cmd.InOrStdin())
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening events: %w", err)
			}
			defer f.Close()
			in = f
		}

		opts := reportOptions{DryRun: reportDryRun, Tree: reportTree}
		if cmd.Flags().Changed("reporter") {
			opts.Reporter = &reportReporter
		}
		if cmd.Flags().Changed("launch") {
			opts.Launch = &reportLaunch
		}
		if cmd.Flags().Changed("fail-fast") {
			opts.FailFast = &reportFailFast
		}
		return RunReport(cmd.Context(), cmd.OutOrStdout(), in, opts)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportReporter, "reporter", "step", "Reporting granularity: step or scenario (env: FTR_REPORTER)")
	reportCmd.Flags().StringVar(&reportLaunch, "launch", "", "Launch name (env: FTR_LAUNCH_NAME)")
	reportCmd.Flags().BoolVar(&reportFailFast, "fail-fast", false, "Stop at the first correlation error")
	reportCmd.Flags().BoolVar(&reportDryRun, "dry-run", false, "Report into memory and print the tree instead of storing it")
	reportCmd.Flags().BoolVar(&reportTree, "tree", false, "Print the reported item tree")
	rootCmd.AddCommand(reportCmd)
}

func RunReport(ctx context.Context, w io.Writer, in io.Reader, opts reportOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(&config.CLIOverrides{
		LaunchName:  opts.Launch,
		Granularity: opts.Reporter,
		FailFast:    opts.FailFast,
	})
	if err != nil {
		return err
	}
	strategy, err := reporter.StrategyFor(cfg.Reporter.Granularity)
	if err != nil {
		return err
	}

	var c client.Client
	var store *db.Client
	var mem *client.Memory
	if opts.DryRun {
		mem = client.NewMemory()
		c = mem
	} else {
		if err := requireStore(cfg.Store.Path); err != nil {
			return err
		}
		sqlDB, err := db.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer sqlDB.Close()
		store = db.NewClient(sqlDB, logging.New("db"))
		c = store
	}

	rep := reporter.New(c,
		reporter.WithStrategy(strategy),
		reporter.WithLaunch(launchFromConfig(cfg.Launch)),
		reporter.WithLogger(logging.New("reporter")),
		reporter.WithVersion(version),
	)

	d := newDispatcher(ctx, rep, cfg.Reporter.FailFast, logging.New("cli"))
	malformed, streamErr := events.Stream(d.ctx, in, d.dispatch)
	finished := errors.Is(streamErr, errRunFinished)
	if finished {
		streamErr = nil
	}

	// A failing worker cancels the stream, so its error is the cause.
	if waitErr := d.wait(); waitErr != nil {
		streamErr = waitErr
	}
	if streamErr != nil {
		if store != nil {
			store.Close(context.Background())
		}
		return fmt.Errorf("reporting events: %w", streamErr)
	}

	if !finished {
		d.logger.Warn("event stream ended without run_finished; closing the launch")
	}
	rep.RunFinished(ctx, d.finishedAt(finished))

	summary := ui.Summary{
		Scenarios: int(d.scenarios.Load()),
		Failed:    int(d.failed.Load()),
		Malformed: malformed,
		Errors:    int(d.errors.Load()),
		DryRun:    opts.DryRun,
	}
	if store != nil {
		if err := store.Close(context.Background()); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		summary.LaunchID = store.LaunchID()
	}
	if opts.DryRun || opts.Tree {
		if mem != nil {
			ui.ItemTree(w, memoryRows(mem), memoryLogs(mem))
		}
	}
	ui.ReportSummary(w, summary)

	if n := d.errors.Load(); n > 0 {
		return fmt.Errorf("%w: %d test cases affected", ErrCorrelation, n)
	}
	return nil
}

func launchFromConfig(l config.LaunchConfig) reporter.Launch {
	return reporter.Launch{
		Name:         l.Name,
		Description:  l.Description,
		Mode:         l.Mode,
		Attributes:   config.ParseAttributes(l.Attributes),
		Rerun:        l.Rerun,
		RerunOf:      l.RerunOf,
		SkippedIssue: l.SkipsAreIssues(),
	}
}

// dispatcher feeds run-level events to the reporter inline and everything
// else to one goroutine per thread, so each thread's events stay in order
// while threads proceed in parallel.
type dispatcher struct {
	base     context.Context // for reporter calls; outlives the group
	ctx      context.Context // canceled when a worker fails or the group is done
	g        *errgroup.Group
	rep      *reporter.Reporter
	failFast bool
	logger   *log.Logger

	// only touched by the reading goroutine
	workers map[events.ThreadID]chan events.Event
	finish  time.Time

	scenarios atomic.Int64
	failed    atomic.Int64
	errors    atomic.Int64
}

func newDispatcher(ctx context.Context, rep *reporter.Reporter, failFast bool, logger *log.Logger) *dispatcher {
	g, gctx := errgroup.WithContext(ctx)
	return &dispatcher{
		base:     ctx,
		ctx:      gctx,
		g:        g,
		rep:      rep,
		failFast: failFast,
		logger:   logger,
		workers:  make(map[events.ThreadID]chan events.Event),
	}
}

func (d *dispatcher) dispatch(e events.Event) error {
	switch e.Type {
	case events.RunStarted, events.SourceRead:
		return d.rep.Handle(d.base, e)
	case events.RunFinished:
		d.finish = e.Timestamp
		return errRunFinished
	}

	thread := e.ThreadOrMain()
	ch, ok := d.workers[thread]
	if !ok {
		ch = make(chan events.Event, 64)
		d.workers[thread] = ch
		d.g.Go(func() error { return d.work(thread, ch) })
	}
	select {
	case ch <- e:
		return nil
	case <-d.ctx.Done():
		return d.ctx.Err()
	}
}

// work handles one thread's events. Without fail-fast a correlation error
// aborts the open test case as failed, drops the rest of its events and the
// thread resumes at its next case_started.
func (d *dispatcher) work(thread events.ThreadID, ch <-chan events.Event) error {
	skipping := false
	for {
		var e events.Event
		var ok bool
		select {
		case e, ok = <-ch:
			if !ok {
				return nil
			}
		case <-d.ctx.Done():
			return d.ctx.Err()
		}

		if skipping && e.Type != events.CaseStarted {
			continue
		}
		skipping = false

		if err := d.rep.Handle(d.base, e); err != nil {
			if d.failFast {
				return fmt.Errorf("thread %s: %w", thread, err)
			}
			d.logger.Error("dropping test case", "thread", thread, "event", e.Type, "err", err)
			d.errors.Add(1)
			if d.rep.AbortCase(d.base, thread, err, e.TimeOr(time.Now())) {
				d.scenarios.Add(1)
				d.failed.Add(1)
			}
			skipping = true
			continue
		}
		if e.Type == events.CaseFinished {
			d.scenarios.Add(1)
			if e.Result.Status == events.StatusFailed {
				d.failed.Add(1)
			}
		}
	}
}

// wait closes every worker queue and waits for the workers to drain.
func (d *dispatcher) wait() error {
	for _, ch := range d.workers {
		close(ch)
	}
	return d.g.Wait()
}

func (d *dispatcher) finishedAt(finished bool) time.Time {
	if finished && !d.finish.IsZero() {
		return d.finish
	}
	return time.Now()
}

// memoryRows lays out a dry run's items depth-first like the store does.
// Items finished without a status take the folded status of their children.
func memoryRows(mem *client.Memory) []db.ItemRow {
	var out []db.ItemRow
	var walk func(parentID string, depth int) []string
	walk = func(parentID string, depth int) []string {
		var statuses []string
		for _, it := range mem.Children(parentID) {
			idx := len(out)
			out = append(out, db.ItemRow{
				ID:       it.ID,
				ParentID: it.ParentID,
				Name:     it.Start.Name,
				Type:     string(it.Start.Type),
				CodeRef:  it.Start.CodeRef,
				HasStats: it.Start.HasStats,
				Depth:    depth,
				Start:    it.Start.StartTime,
			})
			children := walk(it.ID, depth+1)
			if it.Finish != nil {
				status := string(it.Finish.Status)
				if status == "" {
					status = foldStatus(children)
				}
				out[idx].Status = status
				out[idx].End = it.Finish.EndTime
			}
			statuses = append(statuses, out[idx].Status)
		}
		return statuses
	}
	walk("", 0)
	return out
}

func foldStatus(children []string) string {
	status := string(client.StatusSkipped)
	if len(children) == 0 {
		return string(client.StatusPassed)
	}
	for _, s := range children {
		switch client.Status(s) {
		case client.StatusFailed:
			return s
		case client.StatusPassed:
			status = s
		}
	}
	return status
}

func memoryLogs(mem *client.Memory) []db.LogRow {
	var out []db.LogRow
	for _, l := range mem.Logs() {
		out = append(out, db.LogRow{ItemID: l.ItemID, Time: l.Time, Level: string(l.Level), Message: l.Message})
	}
	return out
}
