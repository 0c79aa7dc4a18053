package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/logging"
	"github.com/chriserin/ftr/internal/parser"
	"github.com/chriserin/ftr/internal/pickle"
	"github.com/chriserin/ftr/internal/reporter"
)

type simulateOptions struct {
	Threads int
	Fail    []string // uri:line of steps or test cases to fail
	Hooks   bool
	Start   time.Time
}

var simulateOpts simulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate <glob>...",
	Short: "Write a synthetic event stream for feature files",
	Long: `Parses the feature files matched by the globs (** supported), compiles
their test cases and writes the events a runner would emit as NDJSON on
stdout, ready to pipe into ftr report.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := simulateOpts
		opts.Start = time.Now()
		return RunSimulate(cmd.OutOrStdout(), args, opts)
	},
}

func init() {
	simulateCmd.Flags().IntVar(&simulateOpts.Threads, "threads", 1, "Interleave test cases across this many threads")
	simulateCmd.Flags().StringSliceVar(&simulateOpts.Fail, "fail", nil, "Fail the step or test case at uri:line (repeatable)")
	simulateCmd.Flags().BoolVar(&simulateOpts.Hooks, "hooks", false, "Emit before and after hooks around each test case")
	rootCmd.AddCommand(simulateCmd)
}

// expandGlobs returns the sorted, de-duplicated files matching patterns.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			m = filepath.ToSlash(m)
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func RunSimulate(w io.Writer, patterns []string, opts simulateOptions) error {
	logger := logging.New("cli")
	files, err := expandGlobs(patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no feature files match %v", patterns)
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	failAt := make(map[string]bool, len(opts.Fail))
	for _, f := range opts.Fail {
		failAt[f] = true
	}

	enc := events.NewEncoder(w)
	now := opts.Start
	tick := func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	emit := func(e events.Event) error {
		e.Timestamp = tick()
		return enc.Encode(e)
	}

	if err := emit(events.Event{Type: events.RunStarted}); err != nil {
		return err
	}

	var pickles []pickle.Pickle
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := emit(events.Event{Type: events.SourceRead, URI: path, Source: string(content)}); err != nil {
			return err
		}
		doc, parseErrors := parser.Parse(path, content)
		if len(parseErrors) > 0 {
			logger.Warn("skipping unparsable feature", "uri", path, "line", parseErrors[0].Line, "err", parseErrors[0].Message)
			continue
		}
		pickles = append(pickles, pickle.Compile(doc)...)
	}

	// Each thread gets every Threads-th test case; threads then take turns
	// emitting one event at a time.
	queues := make([][]events.Event, opts.Threads)
	for i, p := range pickles {
		thread := i % opts.Threads
		queues[thread] = append(queues[thread], caseEvents(threadID(thread), p, failAt, opts.Hooks)...)
	}
	for remaining := true; remaining; {
		remaining = false
		for i := range queues {
			if len(queues[i]) == 0 {
				continue
			}
			remaining = true
			if err := emit(queues[i][0]); err != nil {
				return err
			}
			queues[i] = queues[i][1:]
		}
	}

	return emit(events.Event{Type: events.RunFinished})
}

func threadID(i int) events.ThreadID {
	return events.ThreadID(fmt.Sprintf("thread-%d", i+1))
}

// caseEvents is the event sequence of one test case. A step listed in failAt
// fails and the steps after it are skipped; a listed test case fails on its
// last step.
func caseEvents(thread events.ThreadID, p pickle.Pickle, failAt map[string]bool, hooks bool) []events.Event {
	tc := p.TestCase
	out := []events.Event{{Type: events.CaseStarted, Thread: thread, TestCase: &tc}}

	hook := func(t events.HookType) {
		st := &events.TestStep{Hook: true, HookType: t, CodeLocation: "simulate:" + string(t)}
		out = append(out,
			events.Event{Type: events.StepStarted, Thread: thread, TestStep: st},
			events.Event{Type: events.StepFinished, Thread: thread, TestStep: st, Result: &events.Result{Status: events.StatusPassed}},
		)
	}
	if hooks {
		hook(events.HookBefore)
	}

	caseStatus := events.StatusPassed
	for i, s := range p.Steps {
		st := s.Event()
		result := &events.Result{Status: events.StatusPassed}
		ref := reporter.CodeRef(tc.URI, s.Line)
		last := i == len(p.Steps)-1
		switch {
		case caseStatus == events.StatusFailed:
			result.Status = events.StatusSkipped
		case failAt[ref] || (last && failAt[reporter.CodeRef(tc.URI, tc.Line)]):
			result = &events.Result{Status: events.StatusFailed, Error: "simulated failure at " + ref}
			caseStatus = events.StatusFailed
		}
		out = append(out,
			events.Event{Type: events.StepStarted, Thread: thread, TestStep: st},
			events.Event{Type: events.StepFinished, Thread: thread, TestStep: st, Result: result},
		)
	}

	if hooks {
		hook(events.HookAfter)
	}
	return append(out, events.Event{Type: events.CaseFinished, Thread: thread, Result: &events.Result{Status: caseStatus}})
}
