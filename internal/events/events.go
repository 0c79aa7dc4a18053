// Package events models the test-execution event stream ftr consumes: one JSON
// object per line, emitted by a test runner as features, scenarios, steps and
// hooks start and finish.
package events

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	RunStarted   Type = "run_started"
	SourceRead   Type = "source_read"
	CaseStarted  Type = "case_started"
	StepStarted  Type = "step_started"
	StepFinished Type = "step_finished"
	CaseFinished Type = "case_finished"
	RunFinished  Type = "run_finished"
	Embed        Type = "embed"
	Write        Type = "write"
)

// ThreadID names the runner thread an event was emitted on. Steps and hooks of
// one test case always arrive on the thread that started the case.
type ThreadID string

// MainThread is assumed when an event carries no thread.
const MainThread ThreadID = "main"

// Status is a step or test case outcome as reported by the runner.
type Status string

const (
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusPending   Status = "pending"
	StatusUndefined Status = "undefined"
	StatusAmbiguous Status = "ambiguous"
)

// HookType distinguishes scenario hooks from step hooks.
type HookType string

const (
	HookBefore     HookType = "before"
	HookAfter      HookType = "after"
	HookBeforeStep HookType = "before_step"
	HookAfterStep  HookType = "after_step"
)

type Event struct {
	Type      Type      `json:"type"`
	Thread    ThreadID  `json:"thread,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`

	// source_read
	URI    string `json:"uri,omitempty"`
	Source string `json:"source,omitempty"`

	TestCase *TestCase `json:"test_case,omitempty"`
	TestStep *TestStep `json:"test_step,omitempty"`
	Result   *Result   `json:"result,omitempty"`

	// embed / write
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Text     string `json:"text,omitempty"`
}

// TestCase identifies one runtime test case. For an outline example the line
// is the example row's line, not the outline's.
type TestCase struct {
	URI         string   `json:"uri"`
	Line        int      `json:"line"`
	Name        string   `json:"name"`
	Keyword     string   `json:"keyword,omitempty"`
	Designation string   `json:"designation,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Key returns the designation, or "uri:line # name" when the runner sent none.
func (tc TestCase) Key() string {
	if tc.Designation != "" {
		return tc.Designation
	}
	return fmt.Sprintf("%s:%d # %s", tc.URI, tc.Line, tc.Name)
}

type TestStep struct {
	Line         int        `json:"line,omitempty"`
	Keyword      string     `json:"keyword,omitempty"`
	Text         string     `json:"text,omitempty"`
	Hook         bool       `json:"hook,omitempty"`
	HookType     HookType   `json:"hook_type,omitempty"`
	CodeLocation string     `json:"code_location,omitempty"`
	Arguments    []string   `json:"arguments,omitempty"`
	DocString    string     `json:"doc_string,omitempty"`
	DataTable    [][]string `json:"data_table,omitempty"`
}

type Result struct {
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

var (
	ErrUnknownType  = errors.New("unknown event type")
	ErrMissingField = errors.New("missing field")
)

// Validate checks that the fields an event type depends on are present.
func (e *Event) Validate() error {
	switch e.Type {
	case RunStarted, RunFinished:
		return nil
	case SourceRead:
		if e.URI == "" {
			return fmt.Errorf("%s: %w: uri", e.Type, ErrMissingField)
		}
	case CaseStarted:
		if e.TestCase == nil || e.TestCase.URI == "" {
			return fmt.Errorf("%s: %w: test_case", e.Type, ErrMissingField)
		}
	case CaseFinished:
		if e.Result == nil {
			return fmt.Errorf("%s: %w: result", e.Type, ErrMissingField)
		}
	case StepStarted:
		if e.TestStep == nil {
			return fmt.Errorf("%s: %w: test_step", e.Type, ErrMissingField)
		}
	case StepFinished:
		if e.TestStep == nil {
			return fmt.Errorf("%s: %w: test_step", e.Type, ErrMissingField)
		}
		if e.Result == nil {
			return fmt.Errorf("%s: %w: result", e.Type, ErrMissingField)
		}
	case Embed:
		if len(e.Data) == 0 {
			return fmt.Errorf("%s: %w: data", e.Type, ErrMissingField)
		}
	case Write:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	return nil
}

// ThreadOrMain returns the event's thread, defaulting to MainThread.
func (e *Event) ThreadOrMain() ThreadID {
	if e.Thread == "" {
		return MainThread
	}
	return e.Thread
}

// TimeOr returns the event timestamp, or fallback when it is unset.
func (e *Event) TimeOr(fallback time.Time) time.Time {
	if e.Timestamp.IsZero() {
		return fallback
	}
	return e.Timestamp
}
