package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	passedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// DisableColor switches all rendering to plain ASCII.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func statusStyle(status string) lipgloss.Style {
	switch strings.ToUpper(status) {
	case "PASSED":
		return passedStyle
	case "FAILED":
		return failedStyle
	case "SKIPPED":
		return skippedStyle
	default:
		return faintStyle
	}
}

// Status renders a status word in its color; unfinished items show as
// in-progress.
func Status(status string) string {
	if status == "" {
		status = "in-progress"
	}
	return statusStyle(status).Render(strings.ToLower(status))
}

func Header(w io.Writer, text string) {
	fmt.Fprintln(w, headerStyle.Render(text))
}

func Faint(text string) string {
	return faintStyle.Render(text)
}

// Pad right-pads s to width using its unstyled length.
func Pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
