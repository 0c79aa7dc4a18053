// Package client defines the boundary between the reporter and a reporting
// backend: a launch holding a tree of test items, each with timing, status,
// attributes and logs. Backends return handles for ids they assign later.
package client

import (
	"context"
	"time"
)

// Client accepts reporting requests. Implementations must be safe for
// concurrent use and must not block on backend I/O; failures surface through
// the returned handles only.
type Client interface {
	StartLaunch(ctx context.Context, rq StartLaunchRQ) *Handle
	// StartItem starts an item under parent, or under the launch root when
	// parent is nil.
	StartItem(ctx context.Context, parent *Handle, rq StartItemRQ) *Handle
	FinishItem(ctx context.Context, item *Handle, rq FinishItemRQ) *Handle
	FinishLaunch(ctx context.Context, rq FinishExecutionRQ) *Handle
	Log(ctx context.Context, rq LogRQ)
}

type ItemType string

const (
	ItemSuite        ItemType = "SUITE"
	ItemStory        ItemType = "STORY"
	ItemTest         ItemType = "TEST"
	ItemScenario     ItemType = "SCENARIO"
	ItemStep         ItemType = "STEP"
	ItemBeforeTest   ItemType = "BEFORE_TEST"
	ItemAfterTest    ItemType = "AFTER_TEST"
	ItemBeforeMethod ItemType = "BEFORE_METHOD"
	ItemAfterMethod  ItemType = "AFTER_METHOD"
)

type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

// Attribute is a key/value label. Key may be empty. System attributes are
// hidden from the default view of a launch.
type Attribute struct {
	Key    string
	Value  string
	System bool
}

type Parameter struct {
	Key   string
	Value string
}

type StartLaunchRQ struct {
	Name        string
	Description string
	StartTime   time.Time
	Mode        string
	Attributes  []Attribute
	Rerun       bool
	RerunOf     string
}

type StartItemRQ struct {
	Name         string
	Description  string
	Type         ItemType
	StartTime    time.Time
	CodeRef      string
	TestCaseID   string
	TestCaseHash uint64
	Attributes   []Attribute
	Parameters   []Parameter
	HasStats     bool
}

type FinishItemRQ struct {
	EndTime     time.Time
	Status      Status
	Description string
}

type FinishExecutionRQ struct {
	EndTime time.Time
	Status  Status
}

type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// LogRQ is a log record. Item nil means the record belongs to the launch.
type LogRQ struct {
	Item       *Handle
	Time       time.Time
	Level      LogLevel
	Message    string
	Attachment *Attachment
}
