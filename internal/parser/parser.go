package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`@[^@\s]+`)

var stepKeywords = []string{"Given ", "When ", "Then ", "And ", "But ", "* "}

type parser struct {
	lines  []string
	i      int
	errors []ParseError

	feature     *Feature
	pendingTags []Tag
	sawScenario bool

	steps    *[]Step // where the next step goes; nil outside scenario/background
	scenario *Scenario
	examples *Examples
	lastStep *Step
}

// Parse parses a .feature file and returns a Document AST and any parse errors.
// A document with errors must be treated as having no usable structure.
func Parse(uri string, content []byte) (*Document, []ParseError) {
	p := &parser{lines: strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")}
	p.run()
	return &Document{URI: uri, Feature: p.feature}, p.errors
}

func (p *parser) errorf(line int, format string, args ...any) {
	p.errors = append(p.errors, ParseError{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (p *parser) run() {
	for p.i < len(p.lines) {
		raw := p.lines[p.i]
		trimmed := strings.TrimSpace(raw)
		line := p.i + 1

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
			p.i++

		case isTagLine(trimmed):
			p.pendingTags = append(p.pendingTags, parseTags(trimmed, line, indentOf(raw))...)
			p.i++

		case strings.HasPrefix(trimmed, "Feature:"):
			p.startFeature(raw, trimmed, line)

		case p.feature == nil:
			p.errorf(line, "expected Feature:, got %q", trimmed)
			p.i++

		case strings.HasPrefix(trimmed, "Background:"):
			p.startBackground(raw, trimmed, line)

		case strings.HasPrefix(trimmed, "Scenario Outline:"),
			strings.HasPrefix(trimmed, "Scenario Template:"),
			strings.HasPrefix(trimmed, "Scenario:"),
			strings.HasPrefix(trimmed, "Example:"):
			p.startScenario(raw, trimmed, line)

		case strings.HasPrefix(trimmed, "Examples:"), strings.HasPrefix(trimmed, "Scenarios:"):
			p.startExamples(raw, trimmed, line)

		case strings.HasPrefix(trimmed, "Rule:"):
			p.errorf(line, "Rule is not supported")
			p.pendingTags = nil
			p.i++
			p.i = consumeBlock(p.lines, p.i)

		case stepKeyword(trimmed) != "":
			p.addStep(raw, trimmed, line)

		case strings.HasPrefix(trimmed, "|"):
			p.addRow(raw, trimmed, line)

		case isDocStringDelimiter(trimmed):
			p.addDocString(raw, trimmed, line)

		default:
			p.errorf(line, "unexpected line %q", trimmed)
			p.i++
		}
	}

	if len(p.pendingTags) > 0 && p.feature != nil {
		p.errorf(p.pendingTags[0].Location.Line, "tags must be followed by a Scenario or Examples")
	}
}

func (p *parser) takeTags() []Tag {
	tags := p.pendingTags
	p.pendingTags = nil
	return tags
}

func (p *parser) startFeature(raw, trimmed string, line int) {
	if p.feature != nil {
		p.errorf(line, "only one Feature is allowed per file")
		p.i++
		return
	}
	p.feature = &Feature{
		Location: Location{Line: line, Column: indentOf(raw) + 1},
		Tags:     p.takeTags(),
		Keyword:  "Feature",
		Name:     headerName(trimmed, "Feature:"),
	}
	p.i++
	p.feature.Description = p.description()
}

func (p *parser) startBackground(raw, trimmed string, line int) {
	if p.sawScenario || len(p.feature.Children) > 0 {
		p.errorf(line, "Background must be the first element of a Feature")
	}
	p.pendingTags = nil // Background doesn't get tags
	bg := &Background{
		Location: Location{Line: line, Column: indentOf(raw) + 1},
		Keyword:  "Background",
		Name:     headerName(trimmed, "Background:"),
	}
	p.i++
	bg.Description = p.description()
	p.feature.Children = append(p.feature.Children, Child{Background: bg})
	p.steps = &bg.Steps
	p.scenario = nil
	p.examples = nil
	p.lastStep = nil
}

func (p *parser) startScenario(raw, trimmed string, line int) {
	keyword := trimmed[:strings.Index(trimmed, ":")]
	sc := &Scenario{
		Location: Location{Line: line, Column: indentOf(raw) + 1},
		Tags:     p.takeTags(),
		Keyword:  keyword,
		Name:     headerName(trimmed, keyword+":"),
	}
	p.i++
	sc.Description = p.description()
	p.feature.Children = append(p.feature.Children, Child{Scenario: sc})
	p.sawScenario = true
	p.steps = &sc.Steps
	p.scenario = sc
	p.examples = nil
	p.lastStep = nil
}

func (p *parser) startExamples(raw, trimmed string, line int) {
	keyword := trimmed[:strings.Index(trimmed, ":")]
	if p.scenario == nil {
		p.errorf(line, "Examples is not supported outside a Scenario Outline")
		p.pendingTags = nil
		p.i++
		p.i = consumeBlock(p.lines, p.i)
		return
	}
	p.scenario.Examples = append(p.scenario.Examples, Examples{
		Location: Location{Line: line, Column: indentOf(raw) + 1},
		Tags:     p.takeTags(),
		Keyword:  keyword,
		Name:     headerName(trimmed, keyword+":"),
	})
	p.i++
	p.examples = &p.scenario.Examples[len(p.scenario.Examples)-1]
	p.examples.Description = p.description()
	p.steps = nil
	p.lastStep = nil
}

func (p *parser) addStep(raw, trimmed string, line int) {
	if p.steps == nil {
		p.errorf(line, "step outside of a Scenario or Background")
		p.i++
		return
	}
	if len(p.pendingTags) > 0 {
		p.errorf(line, "tags are not allowed on steps")
		p.pendingTags = nil
	}
	keyword := stepKeyword(trimmed)
	*p.steps = append(*p.steps, Step{
		Location: Location{Line: line, Column: indentOf(raw) + 1},
		Keyword:  keyword,
		Text:     strings.TrimSpace(strings.TrimPrefix(trimmed, keyword)),
	})
	p.lastStep = &(*p.steps)[len(*p.steps)-1]
	p.i++
}

func (p *parser) addRow(raw, trimmed string, line int) {
	row := TableRow{
		Location: Location{Line: line, Column: indentOf(raw) + 1},
		Cells:    parseCells(trimmed),
	}
	p.i++

	switch {
	case p.lastStep != nil:
		if p.lastStep.Argument == nil {
			p.lastStep.Argument = &StepArgument{DataTable: &DataTable{Location: row.Location}}
		}
		if p.lastStep.Argument.DataTable == nil {
			p.errorf(line, "step already has a doc string argument")
			return
		}
		dt := p.lastStep.Argument.DataTable
		if len(dt.Rows) > 0 && len(dt.Rows[0].Cells) != len(row.Cells) {
			p.errorf(line, "inconsistent cell count within the table")
		}
		dt.Rows = append(dt.Rows, row)
	case p.examples != nil:
		if p.examples.Header == nil {
			p.examples.Header = &row
			return
		}
		if len(p.examples.Header.Cells) != len(row.Cells) {
			p.errorf(line, "inconsistent cell count within the table")
		}
		p.examples.Body = append(p.examples.Body, row)
	default:
		p.errorf(line, "table row without a step or Examples")
	}
}

func (p *parser) addDocString(raw, trimmed string, line int) {
	indent := indentOf(raw)
	delimiter := `"""`
	if strings.HasPrefix(trimmed, "```") {
		delimiter = "```"
	}
	ds := &DocString{
		Location:  Location{Line: line, Column: indent + 1},
		MediaType: strings.TrimSpace(strings.TrimPrefix(trimmed, delimiter)),
		Delimiter: delimiter,
	}

	end := skipDocString(p.lines, p.i)
	closed := end <= len(p.lines) && end-1 > p.i && strings.TrimSpace(p.lines[end-1]) == delimiter
	if !closed {
		p.errorf(line, "unterminated doc string")
		p.i = end
		return
	}
	var content []string
	for _, l := range p.lines[p.i+1 : end-1] {
		content = append(content, strings.ReplaceAll(trimIndent(l, indent), `\"\"\"`, `"""`))
	}
	ds.Content = strings.Join(content, "\n")
	p.i = end

	if p.lastStep == nil {
		p.errorf(line, "doc string without a step")
		return
	}
	if p.lastStep.Argument != nil {
		p.errorf(line, "step already has an argument")
		return
	}
	p.lastStep.Argument = &StepArgument{DocString: ds}
}

// description collects free-text lines following a header until the next
// structural line. Leading indentation is removed and trailing blanks dropped.
func (p *parser) description() string {
	var descLines []string
	for p.i < len(p.lines) {
		trimmed := strings.TrimSpace(p.lines[p.i])
		if isKeyword(trimmed) || isTagLine(trimmed) || stepKeyword(trimmed) != "" ||
			strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, "#") ||
			isDocStringDelimiter(trimmed) {
			break
		}
		descLines = append(descLines, trimmed)
		p.i++
	}
	for len(descLines) > 0 && descLines[len(descLines)-1] == "" {
		descLines = descLines[:len(descLines)-1]
	}
	for len(descLines) > 0 && descLines[0] == "" {
		descLines = descLines[1:]
	}
	return strings.Join(descLines, "\n")
}

func headerName(trimmed, keyword string) string {
	return strings.TrimSpace(strings.TrimPrefix(trimmed, keyword))
}

func parseTags(trimmed string, line, indent int) []Tag {
	if idx := strings.Index(trimmed, " #"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	var tags []Tag
	for _, loc := range tagPattern.FindAllStringIndex(trimmed, -1) {
		tags = append(tags, Tag{
			Location: Location{Line: line, Column: indent + loc[0] + 1},
			Name:     trimmed[loc[0]:loc[1]],
		})
	}
	return tags
}

// parseCells splits a table row on unescaped pipes. \| \\ and \n are unescaped.
func parseCells(trimmed string) []string {
	body := strings.TrimPrefix(trimmed, "|")
	var cells []string
	var cell strings.Builder
	closed := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\\' && i+1 < len(body):
			i++
			switch body[i] {
			case '|':
				cell.WriteByte('|')
			case 'n':
				cell.WriteByte('\n')
			case '\\':
				cell.WriteByte('\\')
			default:
				cell.WriteByte('\\')
				cell.WriteByte(body[i])
			}
		case c == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
			closed = true
			continue
		default:
			cell.WriteByte(c)
		}
		closed = false
	}
	if !closed && strings.TrimSpace(cell.String()) != "" {
		cells = append(cells, strings.TrimSpace(cell.String()))
	}
	return cells
}

func stepKeyword(trimmed string) string {
	for _, kw := range stepKeywords {
		if strings.HasPrefix(trimmed, kw) {
			return kw
		}
	}
	return ""
}

func indentOf(raw string) int {
	return len(raw) - len(strings.TrimLeft(raw, " \t"))
}

func trimIndent(line string, indent int) string {
	n := indentOf(line)
	if n > indent {
		n = indent
	}
	return line[n:]
}

func isTagLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "@")
}

func isKeyword(trimmed string) bool {
	return strings.HasPrefix(trimmed, "Feature:") ||
		strings.HasPrefix(trimmed, "Background:") ||
		strings.HasPrefix(trimmed, "Scenario:") ||
		strings.HasPrefix(trimmed, "Example:") ||
		strings.HasPrefix(trimmed, "Scenario Outline:") ||
		strings.HasPrefix(trimmed, "Scenario Template:") ||
		strings.HasPrefix(trimmed, "Rule:") ||
		strings.HasPrefix(trimmed, "Examples:") ||
		strings.HasPrefix(trimmed, "Scenarios:")
}

func isDocStringDelimiter(trimmed string) bool {
	return strings.HasPrefix(trimmed, `"""`) || strings.HasPrefix(trimmed, "```")
}

// skipDocString advances past a doc string block. i points at the opening delimiter.
// Returns the index of the line after the closing delimiter.
func skipDocString(lines []string, i int) int {
	opener := strings.TrimSpace(lines[i])
	delimiter := `"""`
	if strings.HasPrefix(opener, "```") {
		delimiter = "```"
	}
	i++ // move past opening delimiter
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) == delimiter {
			return i + 1 // past the closing delimiter
		}
		i++
	}
	return i // EOF without closing delimiter
}

// consumeBlock advances past content lines, skipping over doc strings,
// until the next keyword, tag line, or EOF.
func consumeBlock(lines []string, i int) int {
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		if isDocStringDelimiter(t) {
			i = skipDocString(lines, i)
			continue
		}
		if isKeyword(t) || isTagLine(t) {
			break
		}
		i++
	}
	return i
}
