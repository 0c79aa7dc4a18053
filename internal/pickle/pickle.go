// Package pickle compiles parsed feature documents into the runtime test cases
// a runner would execute: one per scenario and one per outline example row.
package pickle

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/chriserin/ftr/internal/events"
	"github.com/chriserin/ftr/internal/parser"
)

// Pickle is one executable test case with its steps in run order.
type Pickle struct {
	TestCase events.TestCase
	Steps    []Step
}

type Step struct {
	Line       int
	Keyword    string
	Text       string
	Arguments  []string // outline values substituted into Text, in placeholder order
	DocString  string
	DataTable  [][]string
	Background bool
}

// Event returns the step as it appears on the event stream.
func (s Step) Event() *events.TestStep {
	return &events.TestStep{
		Line:      s.Line,
		Keyword:   s.Keyword,
		Text:      s.Text,
		Arguments: s.Arguments,
		DocString: s.DocString,
		DataTable: s.DataTable,
	}
}

var placeholder = regexp.MustCompile(`<([^<>]+)>`)

// Compile returns the pickles of doc in declaration order. A document without a
// feature compiles to nothing.
func Compile(doc *parser.Document) []Pickle {
	if doc == nil || doc.Feature == nil {
		return nil
	}
	f := doc.Feature
	bg := f.Background()

	var out []Pickle
	for _, sc := range f.Scenarios() {
		if !sc.IsOutline() {
			out = append(out, compileScenario(doc.URI, f, bg, sc, nil, nil, sc.Location.Line))
			continue
		}
		for _, ex := range sc.Examples {
			if ex.Header == nil {
				continue
			}
			for _, row := range ex.Body {
				values := make(map[string]string, len(ex.Header.Cells))
				for i, name := range ex.Header.Cells {
					if i < len(row.Cells) {
						values[name] = row.Cells[i]
					}
				}
				out = append(out, compileScenario(doc.URI, f, bg, sc, ex.Tags, values, row.Location.Line))
			}
		}
	}
	return out
}

func compileScenario(uri string, f *parser.Feature, bg *parser.Background, sc *parser.Scenario, exTags []parser.Tag, values map[string]string, line int) Pickle {
	name, _ := substitute(sc.Name, values)

	var tags []string
	for _, group := range [][]parser.Tag{f.Tags, sc.Tags, exTags} {
		for _, t := range group {
			tags = append(tags, t.Name)
		}
	}

	p := Pickle{
		TestCase: events.TestCase{
			URI:         uri,
			Line:        line,
			Name:        name,
			Keyword:     sc.Keyword,
			Designation: Designation(uri, line, name),
			Tags:        tags,
		},
	}

	if bg != nil {
		for _, st := range bg.Steps {
			s := compileStep(st, nil)
			s.Background = true
			p.Steps = append(p.Steps, s)
		}
	}
	for _, st := range sc.Steps {
		p.Steps = append(p.Steps, compileStep(st, values))
	}
	return p
}

func compileStep(st parser.Step, values map[string]string) Step {
	text, args := substitute(st.Text, values)
	s := Step{
		Line:      st.Location.Line,
		Keyword:   st.Keyword,
		Text:      text,
		Arguments: args,
	}
	if st.Argument != nil {
		if ds := st.Argument.DocString; ds != nil {
			s.DocString, _ = substitute(ds.Content, values)
		}
		if dt := st.Argument.DataTable; dt != nil {
			for _, row := range dt.Rows {
				cells := make([]string, len(row.Cells))
				for i, c := range row.Cells {
					cells[i], _ = substitute(c, values)
				}
				s.DataTable = append(s.DataTable, cells)
			}
		}
	}
	return s
}

// substitute replaces <name> placeholders with their example values and returns
// the values used, in the order they appear. Unknown placeholders stay as is.
func substitute(text string, values map[string]string) (string, []string) {
	if len(values) == 0 {
		return text, nil
	}
	var used []string
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		v, ok := values[m[1:len(m)-1]]
		if !ok {
			return m
		}
		used = append(used, v)
		return v
	})
	return out, used
}

// Designation is the stable identity string of a test case.
func Designation(uri string, line int, name string) string {
	return fmt.Sprintf("%s:%d # %s", uri, line, name)
}

// Placeholders returns the <name> placeholders of a step text in order.
func Placeholders(text string) []string {
	var names []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		names = append(names, m[1])
	}
	return names
}

// FeatureName is the name used for a document that has no parsable feature:
// the file name without its extension.
func FeatureName(uri string) string {
	base := path.Base(strings.ReplaceAll(uri, "\\", "/"))
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	return base
}
