package correlate

import (
	"strings"
	"sync"
	"time"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/parser"
)

// FeatureContext is one feature document actually exercised by the run.
type FeatureContext struct {
	uri        string
	path       string
	doc        *Document
	attributes []client.Attribute

	startOnce sync.Once
	handle    *client.Handle

	mu           sync.Mutex
	lastFinished time.Time
}

func newFeatureContext(uri string, doc *Document) *FeatureContext {
	fc := &FeatureContext{uri: uri, path: NormalizePath(uri), doc: doc}
	if !doc.Degraded() {
		fc.attributes = AttributesOf(doc.Feature)
	}
	return fc
}

// URI is the feature URI as declared by the first test case that opened it.
func (f *FeatureContext) URI() string { return f.uri }

func (f *FeatureContext) Path() string { return f.path }

func (f *FeatureContext) Document() *Document { return f.doc }

// Feature returns the parsed feature, nil for a degraded document.
func (f *FeatureContext) Feature() *parser.Feature { return f.doc.Feature }

func (f *FeatureContext) Attributes() []client.Attribute { return f.attributes }

// Handle returns the feature item, nil until its start has been issued.
func (f *FeatureContext) Handle() *client.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle
}

// ensureStarted issues the feature start exactly once. Concurrent callers
// block until the first one has the handle.
func (f *FeatureContext) ensureStarted(start func(*FeatureContext) *client.Handle) *client.Handle {
	f.startOnce.Do(func() {
		h := start(f)
		f.mu.Lock()
		f.handle = h
		f.mu.Unlock()
	})
	return f.Handle()
}

// markFinished records a scenario completion; the latest one wins.
func (f *FeatureContext) markFinished(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.After(f.lastFinished) {
		f.lastFinished = t
	}
}

// LastFinished returns the latest scenario completion time, if any scenario
// of the feature has finished.
func (f *FeatureContext) LastFinished() (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFinished, !f.lastFinished.IsZero()
}

// MatchScenario finds the scenario node a test case was compiled from: by
// declared line and name, or for an outline by any example row line. A
// degraded document matches nothing and returns nil without error.
func (f *FeatureContext) MatchScenario(tc *events.TestCase) (*parser.Scenario, error) {
	if f.doc.Degraded() {
		return nil, nil
	}
	for _, sc := range f.doc.Feature.Scenarios() {
		if sc.Location.Line == tc.Line && sc.Name == tc.Name {
			return sc, nil
		}
		if !sc.IsOutline() {
			continue
		}
		for _, line := range sc.RowLines() {
			if line == tc.Line {
				return sc, nil
			}
		}
	}
	return nil, inconsistent(ErrScenarioNotFound, tc.URI, tc.Line, "no scenario %q in %s", tc.Name, f.uri)
}

// AttributesOf maps feature tags to attributes: one per tag, the tag name
// without its @ as value, no key.
func AttributesOf(feature *parser.Feature) []client.Attribute {
	if feature == nil {
		return nil
	}
	names := make([]string, len(feature.Tags))
	for i, t := range feature.Tags {
		names[i] = t.Name
	}
	return TagAttributes(names)
}

// TagAttributes maps tag names to attributes, dropping duplicates.
func TagAttributes(tags []string) []client.Attribute {
	var out []client.Attribute
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		v := strings.TrimPrefix(tag, "@")
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, client.Attribute{Value: v})
	}
	return out
}
