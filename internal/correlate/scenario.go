package correlate

import (
	"strings"
	"sync/atomic"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/parser"
)

// scenarioKey identifies one open test case. The line is the example row's
// line for outline iterations, so iterations never collide.
type scenarioKey struct {
	path        string
	line        int
	designation string
}

// ScenarioContext is one scenario, or one outline iteration, being reported.
//
// Everything except the id is touched only by the thread that owns the test
// case, so none of it is locked.
type ScenarioContext struct {
	feature    *FeatureContext
	node       *parser.Scenario // nil for a degraded document
	background *parser.Background
	testCase   events.TestCase
	key        scenarioKey

	steps           map[int]*parser.Step
	backgroundQueue []*parser.Step
	iteration       int
	attributes      []client.Attribute

	id atomic.Pointer[client.Handle]

	step       *client.Handle
	hook       *client.Handle
	hookStatus events.Status
}

func newScenarioContext(fc *FeatureContext, node *parser.Scenario, tc events.TestCase, outlines *outlineIndex) (*ScenarioContext, error) {
	sc := &ScenarioContext{
		feature:    fc,
		node:       node,
		testCase:   tc,
		key:        scenarioKey{path: fc.Path(), line: tc.Line, designation: tc.Key()},
		steps:      make(map[int]*parser.Step),
		attributes: TagAttributes(tc.Tags),
	}
	if node == nil {
		return sc, nil
	}

	for i := range node.Steps {
		st := &node.Steps[i]
		sc.steps[st.Location.Line] = st
	}
	if bg := fc.Document().Background; bg != nil {
		sc.background = bg
		for i := range bg.Steps {
			st := &bg.Steps[i]
			sc.steps[st.Location.Line] = st
			sc.backgroundQueue = append(sc.backgroundQueue, st)
		}
	}
	if node.IsOutline() {
		n, err := outlines.iteration(node, tc.URI, tc.Line)
		if err != nil {
			return nil, err
		}
		sc.iteration = n
	}
	return sc, nil
}

func (s *ScenarioContext) Feature() *FeatureContext { return s.feature }

// Node returns the scenario node, nil for a degraded document.
func (s *ScenarioContext) Node() *parser.Scenario { return s.node }

func (s *ScenarioContext) Background() *parser.Background { return s.background }

func (s *ScenarioContext) TestCase() events.TestCase { return s.testCase }

func (s *ScenarioContext) Attributes() []client.Attribute { return s.attributes }

// Line is the example row line for an outline iteration, else the scenario line.
func (s *ScenarioContext) Line() int {
	if s.node != nil && !s.node.IsOutline() {
		return s.node.Location.Line
	}
	return s.testCase.Line
}

// Keyword and Name fall back to the runtime test case for degraded documents.
func (s *ScenarioContext) Keyword() string {
	if s.node != nil {
		return s.node.Keyword
	}
	if s.testCase.Keyword != "" {
		return s.testCase.Keyword
	}
	return "Scenario"
}

func (s *ScenarioContext) Name() string {
	if s.node != nil {
		return s.node.Name
	}
	return s.testCase.Name
}

// Iteration is the 1-based outline ordinal, 0 when not an outline.
func (s *ScenarioContext) Iteration() int { return s.iteration }

// OutlineIteration is the display suffix, "[n]" or "".
func (s *ScenarioContext) OutlineIteration() string { return FormatIteration(s.iteration) }

// StepFor returns the source step at line. A degraded document has no index
// and returns nil without error.
func (s *ScenarioContext) StepFor(line int) (*parser.Step, error) {
	if s.node == nil {
		return nil, nil
	}
	st, ok := s.steps[line]
	if !ok {
		return nil, inconsistent(ErrStepLineNotFound, s.testCase.URI, line, "scenario %q, line %d", s.Name(), s.Line())
	}
	return st, nil
}

// ConsumeBackgroundStep is called once per non-hook step. It reports whether
// that step belongs to the background and drains one queued background step
// if so.
func (s *ScenarioContext) ConsumeBackgroundStep() bool {
	if len(s.backgroundQueue) == 0 {
		return false
	}
	s.backgroundQueue = s.backgroundQueue[1:]
	return true
}

// StepPrefix is the label put before background step names, "BACKGROUND: ".
func (s *ScenarioContext) StepPrefix() string {
	if s.background == nil {
		return ""
	}
	return strings.ToUpper(s.background.Keyword) + ": "
}

// SetID stores the scenario item handle. It may be set once.
func (s *ScenarioContext) SetID(h *client.Handle) error {
	if !s.id.CompareAndSwap(nil, h) {
		return inconsistent(ErrIDAlreadySet, s.testCase.URI, s.testCase.Line, "%s", s.testCase.Key())
	}
	return nil
}

// ID returns the scenario item handle, nil before SetID.
func (s *ScenarioContext) ID() *client.Handle { return s.id.Load() }

func (s *ScenarioContext) SetStep(h *client.Handle) { s.step = h }

// Step is the in-flight step item, nil between steps.
func (s *ScenarioContext) Step() *client.Handle { return s.step }

// StartHook stores the in-flight hook item and resets its status to passed.
func (s *ScenarioContext) StartHook(h *client.Handle) {
	s.hook = h
	s.hookStatus = events.StatusPassed
}

func (s *ScenarioContext) Hook() *client.Handle { return s.hook }

// ObserveHookStatus records a hook outcome; the last one observed wins.
func (s *ScenarioContext) ObserveHookStatus(st events.Status) { s.hookStatus = st }

func (s *ScenarioContext) HookStatus() events.Status { return s.hookStatus }

// EndHook clears the in-flight hook and returns it with its final status.
func (s *ScenarioContext) EndHook() (*client.Handle, events.Status) {
	h, st := s.hook, s.hookStatus
	s.hook = nil
	return h, st
}
