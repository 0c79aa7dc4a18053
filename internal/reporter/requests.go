package reporter

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/chriserin/ftr/internal/client"
	"github.com/chriserin/ftr/internal/correlate"
	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/parser"
	"github.com/chriserin/ftr/internal/pickle"
)

const colonInfix = ": "

// Launch describes the launch a run reports into.
type Launch struct {
	Name         string
	Description  string
	Mode         string
	Attributes   []client.Attribute
	Rerun        bool
	RerunOf      string
	SkippedIssue bool
}

// BuildNodeName joins prefix, infix and text, then the suffix after a space
// when there is one.
func BuildNodeName(prefix, infix, text, suffix string) string {
	name := prefix + infix + text
	if suffix != "" {
		name += " " + suffix
	}
	return name
}

// CodeRef is uri for line 0 and uri:line otherwise.
func CodeRef(uri string, line int) string {
	if line <= 0 {
		return uri
	}
	return uri + ":" + strconv.Itoa(line)
}

// Parameters pairs the <name> placeholders of a source step with the argument
// values the runner matched, in order.
func Parameters(sourceText string, args []string) []client.Parameter {
	names := pickle.Placeholders(sourceText)
	var out []client.Parameter
	for i, name := range names {
		if i >= len(args) {
			break
		}
		out = append(out, client.Parameter{Key: name, Value: args[i]})
	}
	return out
}

// TestCaseID is the code reference with the arguments appended in brackets,
// plus its hash.
func TestCaseID(codeRef string, args []string) (string, uint64) {
	id := codeRef
	if len(args) > 0 {
		id += "[" + strings.Join(args, ",") + "]"
	}
	return id, xxhash.Sum64String(id)
}

// MapStatus maps a runner status onto an item status. Anything that is not a
// pass or a failure counts as skipped.
func MapStatus(s events.Status) client.Status {
	switch s {
	case events.StatusPassed:
		return client.StatusPassed
	case events.StatusFailed:
		return client.StatusFailed
	default:
		return client.StatusSkipped
	}
}

// MapLevel picks the log level for messages about a result.
func MapLevel(s events.Status) client.LogLevel {
	switch s {
	case events.StatusPassed:
		return client.LevelInfo
	case events.StatusFailed:
		return client.LevelError
	default:
		return client.LevelWarn
	}
}

// HookItem returns the item type and name of a hook.
func HookItem(t events.HookType) (client.ItemType, string) {
	switch t {
	case events.HookAfter:
		return client.ItemAfterTest, "After hooks"
	case events.HookBeforeStep:
		return client.ItemBeforeMethod, "Before step"
	case events.HookAfterStep:
		return client.ItemAfterMethod, "After step"
	default:
		return client.ItemBeforeTest, "Before hooks"
	}
}

func isBeforeHook(t events.HookType) bool {
	return t == events.HookBefore || t == events.HookBeforeStep || t == ""
}

// MultilineArgument renders a step's doc string or data table as text.
func MultilineArgument(step *events.TestStep) string {
	if step.DocString != "" {
		return "\"\"\"\n" + step.DocString + "\n\"\"\""
	}
	if len(step.DataTable) == 0 {
		return ""
	}
	var b strings.Builder
	for i, row := range step.DataTable {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("|")
		for _, cell := range row {
			b.WriteString(" " + cell + " |")
		}
	}
	return b.String()
}

func (r *Reporter) launchRequest(at time.Time) client.StartLaunchRQ {
	attrs := append([]client.Attribute(nil), r.launch.Attributes...)
	attrs = append(attrs,
		client.Attribute{Key: "agent", Value: "ftr|" + r.version, System: true},
		client.Attribute{Key: "os", Value: runtime.GOOS, System: true},
		client.Attribute{Key: "skippedIssue", Value: strconv.FormatBool(r.launch.SkippedIssue), System: true},
	)
	return client.StartLaunchRQ{
		Name:        r.launch.Name,
		Description: r.launch.Description,
		StartTime:   at,
		Mode:        r.launch.Mode,
		Attributes:  attrs,
		Rerun:       r.launch.Rerun,
		RerunOf:     r.launch.RerunOf,
	}
}

func (r *Reporter) featureRequest(fc *correlate.FeatureContext, at time.Time) client.StartItemRQ {
	name := BuildNodeName("Feature", colonInfix, pickle.FeatureName(fc.URI()), "")
	if !fc.Document().Degraded() {
		f := fc.Feature()
		name = BuildNodeName(f.Keyword, colonInfix, f.Name, "")
	}
	codeRef := CodeRef(fc.URI(), 0)
	id, hash := TestCaseID(codeRef, nil)
	return client.StartItemRQ{
		Name:         name,
		Description:  fc.URI(),
		Type:         r.strategy.FeatureItemType,
		StartTime:    at,
		CodeRef:      codeRef,
		TestCaseID:   id,
		TestCaseHash: hash,
		Attributes:   fc.Attributes(),
		HasStats:     true,
	}
}

func (r *Reporter) scenarioRequest(sc *correlate.ScenarioContext, at time.Time) client.StartItemRQ {
	uri := sc.Feature().URI()
	codeRef := CodeRef(uri, sc.Line())
	id, hash := TestCaseID(codeRef, nil)
	return client.StartItemRQ{
		Name:         BuildNodeName(sc.Keyword(), colonInfix, sc.Name(), sc.OutlineIteration()),
		Description:  uri,
		Type:         r.strategy.ScenarioItemType,
		StartTime:    at,
		CodeRef:      codeRef,
		TestCaseID:   id,
		TestCaseHash: hash,
		Attributes:   sc.Attributes(),
		HasStats:     true,
	}
}

// stepRequest derives a step item from the runtime step and, when the
// document parsed, its source node.
func (r *Reporter) stepRequest(sc *correlate.ScenarioContext, step *events.TestStep, node *parser.Step, background bool, at time.Time) client.StartItemRQ {
	keyword := step.Keyword
	var params []client.Parameter
	if node != nil {
		keyword = node.Keyword
		params = Parameters(node.Text, step.Arguments)
	}
	prefix := ""
	itemType := client.ItemStep
	if background {
		prefix = sc.StepPrefix()
		if r.strategy.BackgroundStepType != "" {
			itemType = r.strategy.BackgroundStepType
		}
	}

	codeRef := step.CodeLocation
	if codeRef == "" {
		codeRef = CodeRef(sc.Feature().URI(), step.Line)
	}
	id, hash := TestCaseID(codeRef, step.Arguments)

	return client.StartItemRQ{
		Name:         BuildNodeName(prefix, keyword, step.Text, ""),
		Description:  MultilineArgument(step),
		Type:         itemType,
		StartTime:    at,
		CodeRef:      codeRef,
		TestCaseID:   id,
		TestCaseHash: hash,
		Parameters:   params,
		HasStats:     r.strategy.StepHasStats,
	}
}

func (r *Reporter) hookRequest(step *events.TestStep, at time.Time) client.StartItemRQ {
	itemType, name := HookItem(step.HookType)
	return client.StartItemRQ{
		Name:      name,
		Type:      itemType,
		StartTime: at,
		CodeRef:   step.CodeLocation,
		HasStats:  r.strategy.StepHasStats,
	}
}

func (r *Reporter) rootRequest(at time.Time) client.StartItemRQ {
	return client.StartItemRQ{
		Name:      r.strategy.RootItemName,
		Type:      r.strategy.RootItemType,
		StartTime: at,
		HasStats:  true,
	}
}
