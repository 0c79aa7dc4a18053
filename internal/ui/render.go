package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chriserin/ftr/internal/db"
)

const timeFormat = "2006-01-02 15:04:05"

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// LaunchList prints one aligned line per launch.
func LaunchList(w io.Writer, launches []db.LaunchRow) {
	nameWidth := 0
	for _, l := range launches {
		nameWidth = max(nameWidth, len(l.Name))
	}
	for _, l := range launches {
		fmt.Fprintf(w, "%s  %s  %s  %s  %s\n",
			Faint(shortID(l.ID)),
			Pad(l.Name, nameWidth),
			Pad(Status(l.Status), len("in-progress")),
			l.Start.Local().Format(timeFormat),
			Faint(fmt.Sprintf("%d items", l.Items)),
		)
	}
}

// LaunchHeader prints the launch line shown above a tree or counts.
func LaunchHeader(w io.Writer, l db.LaunchRow) {
	Header(w, fmt.Sprintf("%s  %s", l.Name, shortID(l.ID)))
	line := fmt.Sprintf("%s  started %s", Status(l.Status), l.Start.Local().Format(timeFormat))
	if !l.End.IsZero() {
		line += "  took " + l.End.Sub(l.Start).Round(time.Millisecond).String()
	}
	fmt.Fprintln(w, line)
}

// ItemTree prints items indented by depth. Error logs are shown under the
// item they belong to.
func ItemTree(w io.Writer, items []db.ItemRow, logs []db.LogRow) {
	errorsByItem := make(map[string][]string)
	for _, l := range logs {
		if l.Level == "ERROR" && l.ItemID != "" {
			errorsByItem[l.ItemID] = append(errorsByItem[l.ItemID], l.Message)
		}
	}

	for _, it := range items {
		indent := strings.Repeat("  ", it.Depth)
		name := it.Name
		if !it.HasStats {
			name = Faint(name)
		}
		fmt.Fprintf(w, "%s%s  %s\n", indent, Status(it.Status), name)
		for _, msg := range errorsByItem[it.ID] {
			for _, line := range strings.Split(msg, "\n") {
				fmt.Fprintf(w, "%s    %s\n", indent, failedStyle.Render(line))
			}
		}
	}
}

// StatusCounts prints counts grouped by item type, e.g.
// "SCENARIO  2 passed  1 failed".
func StatusCounts(w io.Writer, counts []db.StatusCount) {
	var order []string
	byType := make(map[string][]db.StatusCount)
	for _, c := range counts {
		if _, ok := byType[c.Type]; !ok {
			order = append(order, c.Type)
		}
		byType[c.Type] = append(byType[c.Type], c)
	}

	width := 0
	for _, t := range order {
		width = max(width, len(t))
	}
	for _, t := range order {
		parts := []string{Pad(t, width)}
		for _, c := range byType[t] {
			parts = append(parts, fmt.Sprintf("%d %s", c.Count, Status(c.Status)))
		}
		fmt.Fprintln(w, strings.Join(parts, "  "))
	}
}

// Summary is what `ftr report` prints when the stream ends.
type Summary struct {
	LaunchID  string
	Scenarios int
	Failed    int
	Malformed int
	Errors    int
	DryRun    bool
}

func ReportSummary(w io.Writer, s Summary) {
	status := "PASSED"
	if s.Failed > 0 {
		status = "FAILED"
	}
	line := fmt.Sprintf("%s  %d scenarios, %d failed", Status(status), s.Scenarios, s.Failed)
	if s.Malformed > 0 {
		line += fmt.Sprintf(", %d malformed events skipped", s.Malformed)
	}
	if s.Errors > 0 {
		line += fmt.Sprintf(", %d correlation errors", s.Errors)
	}
	fmt.Fprintln(w, line)
	switch {
	case s.DryRun:
		fmt.Fprintln(w, Faint("dry run, nothing stored"))
	case s.LaunchID != "":
		fmt.Fprintln(w, Faint("launch "+shortID(s.LaunchID)))
	}
}
