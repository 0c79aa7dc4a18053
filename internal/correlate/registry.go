// Package correlate maps the flat event stream of a test run onto the parsed
// feature documents. It owns the documents, one context per exercised
// feature, one per open test case, and each runner thread's current test case.
package correlate

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/events"
)

// Registry correlates test cases with features and tracks, per runner
// thread, the test case its step and hook events belong to.
//
// The current-scenario map is keyed by events.ThreadID because step events
// carry no test case of their own. Each entry is written only while handling
// that thread's events.
type Registry struct {
	docs     *Documents
	outlines outlineIndex
	logger   *log.Logger

	features  sync.Map // normalized path -> *FeatureContext
	scenarios sync.Map // scenarioKey -> *ScenarioContext
	current   sync.Map // events.ThreadID -> *ScenarioContext
}

type RegistryOption func(*Registry)

// WithLogger attaches a logger. Without one the registry is silent.
func WithLogger(logger *log.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

func NewRegistry(docs *Documents, opts ...RegistryOption) *Registry {
	r := &Registry{docs: docs}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Documents() *Documents { return r.docs }

// OpenScenario moves a test case from absent to open.
//
// The feature context for the case's path is created on first sight and its
// start issued exactly once through startFeature, synchronously; concurrent
// openers wait for it. The scenario context is then inserted by identity;
// only the winner of that insert becomes current for thread and has its start
// issued through startScenario. A loser gets ErrDuplicateScenario.
func (r *Registry) OpenScenario(
	thread events.ThreadID,
	tc *events.TestCase,
	startFeature func(*FeatureContext) *client.Handle,
	startScenario func(*ScenarioContext) *client.Handle,
) (*ScenarioContext, error) {
	fc, err := r.feature(tc.URI)
	if err != nil {
		return nil, err
	}
	if fc.URI() != tc.URI {
		return nil, inconsistent(ErrURIMismatch, tc.URI, tc.Line, "feature registered as %q", fc.URI())
	}
	fc.ensureStarted(startFeature)

	node, err := fc.MatchScenario(tc)
	if err != nil {
		return nil, err
	}
	sc, err := newScenarioContext(fc, node, *tc, &r.outlines)
	if err != nil {
		return nil, err
	}
	if _, loaded := r.scenarios.LoadOrStore(sc.key, sc); loaded {
		return nil, inconsistent(ErrDuplicateScenario, tc.URI, tc.Line, "%s", tc.Key())
	}

	if prev, ok := r.current.Swap(thread, sc); ok && r.logger != nil {
		r.logger.Warn("test case started before the previous one finished",
			"thread", thread, "previous", prev.(*ScenarioContext).testCase.Key())
	}
	if err := sc.SetID(startScenario(sc)); err != nil {
		return nil, err
	}
	if r.logger != nil {
		r.logger.Debug("scenario opened", "thread", thread, "case", tc.Key(), "iteration", sc.Iteration())
	}
	return sc, nil
}

// feature returns the context for uri's path, creating it on first sight. The
// first writer wins; every later caller gets that same instance.
func (r *Registry) feature(uri string) (*FeatureContext, error) {
	path := NormalizePath(uri)
	if v, ok := r.features.Load(path); ok {
		return v.(*FeatureContext), nil
	}
	doc, err := r.docs.Resolve(uri)
	if err != nil {
		return nil, err
	}
	v, _ := r.features.LoadOrStore(path, newFeatureContext(uri, doc))
	return v.(*FeatureContext), nil
}

// Current returns the open test case of thread.
func (r *Registry) Current(thread events.ThreadID) (*ScenarioContext, error) {
	v, ok := r.current.Load(thread)
	if !ok {
		return nil, &ConsistencyError{Kind: ErrNoActiveScenario, Detail: string(thread)}
	}
	return v.(*ScenarioContext), nil
}

// CloseScenario moves thread's current test case from open to closed: it is
// removed from the registry, its feature's completion time advanced to
// finishedAt, and the thread left without a current test case.
func (r *Registry) CloseScenario(thread events.ThreadID, finishedAt time.Time) (*ScenarioContext, error) {
	sc, err := r.Current(thread)
	if err != nil {
		return nil, err
	}
	r.scenarios.CompareAndDelete(sc.key, sc)
	sc.feature.markFinished(finishedAt)
	r.current.CompareAndDelete(thread, sc)
	if r.logger != nil {
		r.logger.Debug("scenario closed", "thread", thread, "case", sc.testCase.Key())
	}
	return sc, nil
}

// CloseFeatures finishes every started feature at its last scenario
// completion time, or now if none completed, then empties the registry.
// Features are finished in path order.
func (r *Registry) CloseFeatures(now time.Time, finish func(fc *FeatureContext, end time.Time)) {
	for _, fc := range r.Features() {
		if fc.Handle() == nil {
			continue
		}
		end, ok := fc.LastFinished()
		if !ok {
			end = now
		}
		finish(fc, end)
	}
	r.features.Clear()
	r.scenarios.Clear()
	r.current.Clear()
}

// Features returns the known feature contexts sorted by path.
func (r *Registry) Features() []*FeatureContext {
	var out []*FeatureContext
	r.features.Range(func(_, v any) bool {
		out = append(out, v.(*FeatureContext))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// OpenScenarios returns the number of test cases currently open.
func (r *Registry) OpenScenarios() int {
	n := 0
	r.scenarios.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
