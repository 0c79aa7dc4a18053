// Package reporter turns test-execution events into reporting requests. It
// routes each event to the correlation registry and derives item requests
// from the scenario context the event belongs to.
package reporter

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/correlate"
	"github.com/chriserin/ftr/internal/events"
)

// Reporter is safe for concurrent use as long as each thread's events are
// delivered in order by a single goroutine at a time.
type Reporter struct {
	client   client.Client
	registry *correlate.Registry
	strategy Strategy
	launch   Launch
	version  string
	logger   *log.Logger
	now      func() time.Time

	launchOnce sync.Once
	rootOnce   sync.Once
	root       atomic.Pointer[client.Handle]

	failed atomic.Bool
}

type Option func(*Reporter)

func WithStrategy(s Strategy) Option {
	return func(r *Reporter) { r.strategy = s }
}

func WithLaunch(l Launch) Option {
	return func(r *Reporter) { r.launch = l }
}

// WithLogger attaches a logger; without one the reporter is silent.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reporter) { r.logger = logger }
}

// WithClock sets the time source used for events that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

func WithVersion(v string) Option {
	return func(r *Reporter) { r.version = v }
}

func New(c client.Client, opts ...Option) *Reporter {
	r := &Reporter{
		client:   c,
		strategy: StepStrategy,
		launch:   Launch{Name: "ftr", Mode: "DEFAULT", SkippedIssue: true},
		version:  "dev",
		logger:   log.New(io.Discard),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registry = correlate.NewRegistry(correlate.NewDocuments(r.logger), correlate.WithLogger(r.logger))
	return r
}

// Registry exposes the correlation state, mostly for tests.
func (r *Reporter) Registry() *correlate.Registry { return r.registry }

// Failed reports whether any test case finished as failed.
func (r *Reporter) Failed() bool { return r.failed.Load() }

// Handle routes one event. Events missing the fields their type needs and
// consistency violations are returned, never absorbed; the caller decides
// whether the run goes on.
func (r *Reporter) Handle(ctx context.Context, e events.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	at := e.TimeOr(r.now())
	thread := e.ThreadOrMain()

	switch e.Type {
	case events.RunStarted:
		r.RunStarted(ctx, at)
	case events.SourceRead:
		r.SourceRead(e.URI, e.Source)
	case events.CaseStarted:
		return r.CaseStarted(ctx, thread, e.TestCase, at)
	case events.StepStarted:
		return r.StepStarted(ctx, thread, e.TestStep, at)
	case events.StepFinished:
		return r.StepFinished(ctx, thread, e.TestStep, e.Result, at)
	case events.CaseFinished:
		return r.CaseFinished(ctx, thread, e.Result, at)
	case events.RunFinished:
		r.RunFinished(ctx, at)
	case events.Embed:
		r.Embed(ctx, thread, e.MimeType, e.Data, at)
	case events.Write:
		r.Write(ctx, thread, e.Text, at)
	}
	return nil
}

// RunStarted starts the launch. Later calls do nothing.
func (r *Reporter) RunStarted(ctx context.Context, at time.Time) {
	r.launchOnce.Do(func() {
		rq := r.launchRequest(at)
		r.client.StartLaunch(ctx, rq)
		r.logger.Debug("launch started", "name", rq.Name, "mode", rq.Mode)
	})
}

func (r *Reporter) SourceRead(uri, source string) {
	r.registry.Documents().RecordSource(uri, source)
}

// CaseStarted opens the test case on thread, starting its feature first if
// this is the feature's first test case.
func (r *Reporter) CaseStarted(ctx context.Context, thread events.ThreadID, tc *events.TestCase, at time.Time) error {
	r.RunStarted(ctx, at)

	startFeature := func(fc *correlate.FeatureContext) *client.Handle {
		rq := r.featureRequest(fc, at)
		r.logger.Debug("feature started", "name", rq.Name, "uri", fc.URI())
		return r.startItem(ctx, r.rootItem(ctx, at), rq)
	}
	startScenario := func(sc *correlate.ScenarioContext) *client.Handle {
		rq := r.scenarioRequest(sc, at)
		r.logger.Debug("scenario started", "name", rq.Name, "thread", thread)
		return r.startItem(ctx, sc.Feature().Handle(), rq)
	}

	_, err := r.registry.OpenScenario(thread, tc, startFeature, startScenario)
	return err
}

func (r *Reporter) StepStarted(ctx context.Context, thread events.ThreadID, step *events.TestStep, at time.Time) error {
	sc, err := r.registry.Current(thread)
	if err != nil {
		return err
	}
	if step.Hook {
		sc.StartHook(r.startItem(ctx, sc.ID(), r.hookRequest(step, at)))
		return nil
	}

	background := sc.ConsumeBackgroundStep()
	node, err := sc.StepFor(step.Line)
	if err != nil {
		return err
	}
	rq := r.stepRequest(sc, step, node, background, at)
	sc.SetStep(r.startItem(ctx, sc.ID(), rq))
	r.logger.Debug("step started", "name", rq.Name, "thread", thread)
	return nil
}

func (r *Reporter) StepFinished(ctx context.Context, thread events.ThreadID, step *events.TestStep, result *events.Result, at time.Time) error {
	sc, err := r.registry.Current(thread)
	if err != nil {
		return err
	}

	if step.Hook {
		hook := sc.Hook()
		if hook == nil {
			r.logger.Warn("hook finished without a start", "thread", thread, "location", step.CodeLocation)
			return nil
		}
		r.logResult(ctx, hook, result, r.strategy.hookMessage(isBeforeHook(step.HookType), step.CodeLocation), at)
		sc.ObserveHookStatus(result.Status)
		_, status := sc.EndHook()
		r.client.FinishItem(ctx, hook, client.FinishItemRQ{EndTime: at, Status: MapStatus(status)})
		return nil
	}

	item := sc.Step()
	if item == nil {
		r.logger.Warn("step finished without a start", "thread", thread, "line", step.Line)
		return nil
	}
	r.logResult(ctx, item, result, "", at)
	r.client.FinishItem(ctx, item, client.FinishItemRQ{EndTime: at, Status: MapStatus(result.Status)})
	sc.SetStep(nil)
	return nil
}

// CaseFinished closes thread's current test case and finishes its item.
func (r *Reporter) CaseFinished(ctx context.Context, thread events.ThreadID, result *events.Result, at time.Time) error {
	sc, err := r.registry.CloseScenario(thread, at)
	if err != nil {
		return err
	}
	status := MapStatus(result.Status)
	if status == client.StatusFailed {
		r.failed.Store(true)
	}
	r.client.FinishItem(ctx, sc.ID(), client.FinishItemRQ{EndTime: at, Status: status})
	r.logger.Debug("scenario finished", "case", sc.TestCase().Key(), "status", status)
	return nil
}

// AbortCase closes thread's current test case after cause made the rest of
// it impossible to correlate. An in-flight hook or step and then the
// scenario are finished as failed, with cause logged on the scenario. It
// reports whether the thread had a test case open.
func (r *Reporter) AbortCase(ctx context.Context, thread events.ThreadID, cause error, at time.Time) bool {
	sc, err := r.registry.CloseScenario(thread, at)
	if err != nil {
		return false
	}
	failed := client.FinishItemRQ{EndTime: at, Status: client.StatusFailed}
	if hook, _ := sc.EndHook(); hook != nil {
		r.client.FinishItem(ctx, hook, failed)
	}
	if step := sc.Step(); step != nil {
		r.client.FinishItem(ctx, step, failed)
		sc.SetStep(nil)
	}
	r.client.Log(ctx, client.LogRQ{Item: sc.ID(), Time: at, Level: client.LevelError, Message: cause.Error()})
	r.client.FinishItem(ctx, sc.ID(), failed)
	r.failed.Store(true)
	r.logger.Warn("test case aborted", "case", sc.TestCase().Key(), "thread", thread, "err", cause)
	return true
}

// RunFinished finishes every feature at its last scenario completion, the
// root item if there is one, and the launch.
func (r *Reporter) RunFinished(ctx context.Context, at time.Time) {
	r.RunStarted(ctx, at)
	if n := r.registry.OpenScenarios(); n > 0 {
		r.logger.Warn("run finished with test cases still open", "open", n)
	}

	r.registry.CloseFeatures(at, func(fc *correlate.FeatureContext, end time.Time) {
		r.client.FinishItem(ctx, fc.Handle(), client.FinishItemRQ{EndTime: end})
		r.logger.Debug("feature finished", "uri", fc.URI(), "end", end)
	})
	if root := r.root.Load(); root != nil {
		r.client.FinishItem(ctx, root, client.FinishItemRQ{EndTime: at})
	}

	status := client.StatusPassed
	if r.Failed() {
		status = client.StatusFailed
	}
	r.client.FinishLaunch(ctx, client.FinishExecutionRQ{EndTime: at, Status: status})
	r.logger.Debug("launch finished", "status", status)
}

// Embed attaches data to whatever thread is currently reporting into.
func (r *Reporter) Embed(ctx context.Context, thread events.ThreadID, declared string, data []byte, at time.Time) {
	mimeType, ok := DetectMIME(data, declared)
	if !ok {
		r.logger.Warn("attachment type not detected", "declared", declared, "using", mimeType)
	}
	r.client.Log(ctx, client.LogRQ{
		Item:    r.target(thread),
		Time:    at,
		Level:   client.LevelInfo,
		Message: attachmentName(mimeType),
		Attachment: &client.Attachment{
			Name:     attachmentName(mimeType),
			MimeType: mimeType,
			Data:     data,
		},
	})
}

func (r *Reporter) Write(ctx context.Context, thread events.ThreadID, text string, at time.Time) {
	r.client.Log(ctx, client.LogRQ{Item: r.target(thread), Time: at, Level: client.LevelInfo, Message: text})
}

// target is the innermost open item of thread: hook, step, scenario, or the
// launch (nil) when the thread has no test case open.
func (r *Reporter) target(thread events.ThreadID) *client.Handle {
	sc, err := r.registry.Current(thread)
	if err != nil {
		return nil
	}
	if h := sc.Hook(); h != nil {
		return h
	}
	if h := sc.Step(); h != nil {
		return h
	}
	return sc.ID()
}

// startItem issues rq under parent. The item's id is logged once the client
// assigns it; nothing waits for that.
func (r *Reporter) startItem(ctx context.Context, parent *client.Handle, rq client.StartItemRQ) *client.Handle {
	h := r.client.StartItem(ctx, parent, rq)
	h.OnResolve(func(id string) {
		r.logger.Debug("item created", "id", id, "type", rq.Type, "name", rq.Name)
	})
	return h
}

func (r *Reporter) rootItem(ctx context.Context, at time.Time) *client.Handle {
	if r.strategy.RootItemName == "" {
		return nil
	}
	r.rootOnce.Do(func() {
		r.root.Store(r.startItem(ctx, nil, r.rootRequest(at)))
	})
	return r.root.Load()
}

func (r *Reporter) logResult(ctx context.Context, item *client.Handle, result *events.Result, message string, at time.Time) {
	level := MapLevel(result.Status)
	if result.Error != "" {
		r.client.Log(ctx, client.LogRQ{Item: item, Time: at, Level: level, Message: result.Error})
	}
	if message != "" {
		r.client.Log(ctx, client.LogRQ{Item: item, Time: at, Level: level, Message: message})
	}
}
