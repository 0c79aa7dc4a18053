package correlate

import (
	"errors"
	"fmt"
)

// Kinds of consistency violation. Each means the event stream and the parsed
// documents disagree; the affected scenario must not be reported further.
var (
	ErrScenarioNotFound   = errors.New("scenario can't be nil")
	ErrStepLineNotFound   = errors.New("step for unknown line in feature")
	ErrURIMismatch        = errors.New("scenario URI does not match feature URI")
	ErrIDAlreadySet       = errors.New("scenario ID already set for unfinished scenario")
	ErrOutlineRowNotFound = errors.New("no outline iteration number found")
	ErrDuplicateScenario  = errors.New("scenario already open")
	ErrNoActiveScenario   = errors.New("no active scenario on thread")
	ErrSourceNotRecorded  = errors.New("source was never read")
)

// ConsistencyError reports a consistency violation with the location that
// triggered it. Match on Kind with errors.Is.
type ConsistencyError struct {
	Kind   error
	URI    string
	Line   int
	Detail string
}

func (e *ConsistencyError) Error() string {
	msg := e.Kind.Error()
	if e.URI != "" {
		msg += fmt.Sprintf(" (%s:%d)", e.URI, e.Line)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ConsistencyError) Unwrap() error {
	return e.Kind
}

func inconsistent(kind error, uri string, line int, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Kind: kind, URI: uri, Line: line, Detail: fmt.Sprintf(format, args...)}
}
