package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chriserin/ftr/internal/db"
)

func TestMain(m *testing.M) {
	DisableColor()
	os.Exit(m.Run())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "passed", Status("PASSED"))
	assert.Equal(t, "in-progress", Status(""))
}

func TestPad(t *testing.T) {
	assert.Equal(t, "ab  ", Pad("ab", 4))
	assert.Equal(t, "abcdef", Pad("abcdef", 4))
}

func TestLaunchList(t *testing.T) {
	var buf bytes.Buffer
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	LaunchList(&buf, []db.LaunchRow{
		{ID: "0123456789abcdef", Name: "nightly", Status: "FAILED", Start: start, Items: 4},
		{ID: "fedcba9876543210", Name: "ci", Start: start, Items: 0},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"01234567  nightly  failed       2024-03-01 12:00:00  4 items",
		"fedcba98  ci       in-progress  2024-03-01 12:00:00  0 items",
	}, lines)
}

func TestItemTree(t *testing.T) {
	var buf bytes.Buffer
	ItemTree(&buf, []db.ItemRow{
		{ID: "f", Name: "Feature: Login", Status: "FAILED", HasStats: true},
		{ID: "s", Name: "Scenario: User logs in", Status: "FAILED", Depth: 1, HasStats: true},
		{ID: "st", Name: "When they sign in", Status: "FAILED", Depth: 2, HasStats: true},
	}, []db.LogRow{
		{ItemID: "st", Level: "ERROR", Message: "boom\nat line 3"},
		{ItemID: "st", Level: "INFO", Message: "ignored"},
	})

	assert.Equal(t, "failed  Feature: Login\n"+
		"  failed  Scenario: User logs in\n"+
		"    failed  When they sign in\n"+
		"        boom\n"+
		"        at line 3\n", buf.String())
}

func TestStatusCounts(t *testing.T) {
	var buf bytes.Buffer
	StatusCounts(&buf, []db.StatusCount{
		{Type: "STORY", Status: "PASSED", Count: 1},
		{Type: "SCENARIO", Status: "PASSED", Count: 2},
		{Type: "SCENARIO", Status: "FAILED", Count: 1},
	})

	assert.Equal(t, "STORY     1 passed\nSCENARIO  2 passed  1 failed\n", buf.String())
}

func TestReportSummary(t *testing.T) {
	var buf bytes.Buffer
	ReportSummary(&buf, Summary{LaunchID: "0123456789", Scenarios: 3, Failed: 1, Malformed: 2})

	out := buf.String()
	assert.Contains(t, out, "failed  3 scenarios, 1 failed, 2 malformed events skipped")
	assert.Contains(t, out, "launch 01234567")

	buf.Reset()
	ReportSummary(&buf, Summary{Scenarios: 1, DryRun: true})
	assert.Contains(t, buf.String(), "passed  1 scenarios, 0 failed")
	assert.Contains(t, buf.String(), "dry run")
}
