package correlate

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chriserin/ftr/internal/parser"
)

// outlineIndex maps an outline node to its example row lines in declaration
// order. Entries are computed once and shared by every iteration of the
// outline, whichever thread runs it.
type outlineIndex struct {
	entries sync.Map // *parser.Scenario -> *outlineRows
}

type outlineRows struct {
	once  sync.Once
	lines []int
}

func (o *outlineIndex) rows(sc *parser.Scenario) []int {
	v, _ := o.entries.LoadOrStore(sc, &outlineRows{})
	e := v.(*outlineRows)
	e.once.Do(func() {
		e.lines = sc.RowLines()
	})
	return e.lines
}

// iteration returns the 1-based ordinal of the example row at line.
func (o *outlineIndex) iteration(sc *parser.Scenario, uri string, line int) (int, error) {
	idx := slices.Index(o.rows(sc), line)
	if idx < 0 {
		return 0, inconsistent(ErrOutlineRowNotFound, uri, line, "outline %q", sc.Name)
	}
	return idx + 1, nil
}

// FormatIteration renders an outline ordinal for display, "[n]". Zero means
// not an outline and renders as "".
func FormatIteration(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("[%d]", n)
}
