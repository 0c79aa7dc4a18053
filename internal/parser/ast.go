package parser

import (
	"fmt"
	"strings"
)

// Gherkin AST. Line numbers are 1-based, columns are 1-based.

type Document struct {
	URI     string
	Feature *Feature
}

type Location struct {
	Line   int
	Column int
}

type Feature struct {
	Location    Location
	Tags        []Tag
	Keyword     string
	Name        string
	Description string
	Children    []Child
}

// Child is one entry of a feature body: exactly one of Background or Scenario is set.
type Child struct {
	Background *Background
	Scenario   *Scenario
}

type Background struct {
	Location    Location
	Keyword     string
	Name        string
	Description string
	Steps       []Step
}

type Scenario struct {
	Location    Location
	Tags        []Tag
	Keyword     string
	Name        string
	Description string
	Steps       []Step
	Examples    []Examples
}

type Examples struct {
	Location    Location
	Tags        []Tag
	Keyword     string
	Name        string
	Description string
	Header      *TableRow
	Body        []TableRow
}

type Tag struct {
	Location Location
	Name     string // e.g. "@smoke"
}

type Step struct {
	Location Location
	Keyword  string // "Given ", "When ", "Then ", "And ", "But ", "* "
	Text     string
	Argument *StepArgument
}

type StepArgument struct {
	DocString *DocString
	DataTable *DataTable
}

type DocString struct {
	Location  Location
	MediaType string
	Content   string
	Delimiter string
}

type DataTable struct {
	Location Location
	Rows     []TableRow
}

type TableRow struct {
	Location Location
	Cells    []string
}

type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// Background returns the feature's background when it is the first child.
func (f *Feature) Background() *Background {
	if f == nil || len(f.Children) == 0 {
		return nil
	}
	return f.Children[0].Background
}

// Scenarios returns the feature's scenarios and outlines in declaration order.
func (f *Feature) Scenarios() []*Scenario {
	if f == nil {
		return nil
	}
	var out []*Scenario
	for _, c := range f.Children {
		if c.Scenario != nil {
			out = append(out, c.Scenario)
		}
	}
	return out
}

// IsOutline reports whether the scenario is a Scenario Outline (or a Scenario
// carrying Examples).
func (s *Scenario) IsOutline() bool {
	if s == nil {
		return false
	}
	return len(s.Examples) > 0 || strings.HasPrefix(s.Keyword, "Scenario Outline") ||
		strings.HasPrefix(s.Keyword, "Scenario Template")
}

// RowLines returns the source lines of every example row, in declaration order.
func (s *Scenario) RowLines() []int {
	var lines []int
	for _, ex := range s.Examples {
		for _, row := range ex.Body {
			lines = append(lines, row.Location.Line)
		}
	}
	return lines
}
