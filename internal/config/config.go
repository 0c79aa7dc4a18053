// Package config loads ftr.toml and layers environment variables and CLI
// flags over it.
package config

// Config is the top-level configuration structure mapping to ftr.toml.
type Config struct {
	Launch   LaunchConfig   `toml:"launch"`
	Reporter ReporterConfig `toml:"reporter"`
	Store    StoreConfig    `toml:"store"`
}

// LaunchConfig maps to the [launch] section.
type LaunchConfig struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Mode        string   `toml:"mode"`
	Attributes  []string `toml:"attributes"` // "key:value" or "value"
	Rerun       bool     `toml:"rerun"`
	RerunOf     string   `toml:"rerun_of"`

	// SkippedIssue is nil when unset so a file can turn it off.
	SkippedIssue *bool `toml:"skipped_issue"`
}

// ReporterConfig maps to the [reporter] section.
type ReporterConfig struct {
	Granularity string `toml:"granularity"`
	FailFast    bool   `toml:"fail_fast"`
}

// StoreConfig maps to the [store] section.
type StoreConfig struct {
	Path string `toml:"path"`
}

// SkipsAreIssues reports the effective skipped_issue setting, true when unset.
func (l LaunchConfig) SkipsAreIssues() bool {
	return l.SkippedIssue == nil || *l.SkippedIssue
}
