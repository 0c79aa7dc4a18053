package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chriserin/ftr/internal/client"
)

type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

type ValidationIssue struct {
	Severity ValidationSeverity
	Field    string // dotted path, e.g. "reporter.granularity"
	Message  string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Field, i.Message)
}

type ValidationResult struct {
	Issues []ValidationIssue
}

func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors()) > 0
}

func (vr *ValidationResult) Errors() []ValidationIssue {
	return vr.filter(SeverityError)
}

func (vr *ValidationResult) Warnings() []ValidationIssue {
	return vr.filter(SeverityWarning)
}

func (vr *ValidationResult) filter(s ValidationSeverity) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range vr.Issues {
		if issue.Severity == s {
			out = append(out, issue)
		}
	}
	return out
}

var validGranularities = map[string]bool{"step": true, "scenario": true}

var validModes = map[string]bool{"DEFAULT": true, "DEBUG": true}

// Validate checks cfg for values the reporter cannot use. meta may be nil when
// no file was loaded; otherwise unknown keys are reported as warnings.
func Validate(cfg *Config, meta *toml.MetaData) *ValidationResult {
	vr := &ValidationResult{}
	if cfg == nil {
		addError(vr, "", "configuration is nil")
		return vr
	}

	if strings.TrimSpace(cfg.Launch.Name) == "" {
		addError(vr, "launch.name", "must not be empty")
	}
	if !validModes[cfg.Launch.Mode] {
		addError(vr, "launch.mode", fmt.Sprintf("unknown mode %q (want DEFAULT or DEBUG)", cfg.Launch.Mode))
	}
	if cfg.Launch.RerunOf != "" && !cfg.Launch.Rerun {
		addWarning(vr, "launch.rerun_of", "ignored unless rerun = true")
	}
	for _, a := range cfg.Launch.Attributes {
		if strings.TrimSpace(a) == "" || strings.HasSuffix(a, ":") {
			addError(vr, "launch.attributes", fmt.Sprintf("attribute %q has no value", a))
		}
	}
	if !validGranularities[cfg.Reporter.Granularity] {
		addError(vr, "reporter.granularity", fmt.Sprintf("unknown granularity %q (want step or scenario)", cfg.Reporter.Granularity))
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		addError(vr, "store.path", "must not be empty")
	}

	validateUnknownKeys(vr, meta)
	return vr
}

func validateUnknownKeys(vr *ValidationResult, meta *toml.MetaData) {
	if meta == nil {
		return
	}
	for _, key := range meta.Undecoded() {
		addWarning(vr, strings.Join(key, "."), "unknown configuration key")
	}
}

func addError(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{Severity: SeverityError, Field: field, Message: message})
}

func addWarning(vr *ValidationResult, field, message string) {
	vr.Issues = append(vr.Issues, ValidationIssue{Severity: SeverityWarning, Field: field, Message: message})
}

// ParseAttributes turns "key:value" and bare "value" strings into launch
// attributes. Only the first colon separates key from value.
func ParseAttributes(raw []string) []client.Attribute {
	var out []client.Attribute
	for _, a := range raw {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if k, v, ok := strings.Cut(a, ":"); ok {
			out = append(out, client.Attribute{Key: k, Value: v})
			continue
		}
		out = append(out, client.Attribute{Value: a})
	}
	return out
}
