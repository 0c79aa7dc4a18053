package config

// NewDefaults returns a Config populated with all default values.
func NewDefaults() *Config {
	skipped := true
	return &Config{
		Launch: LaunchConfig{
			Name:         "ftr",
			Mode:         "DEFAULT",
			SkippedIssue: &skipped,
		},
		Reporter: ReporterConfig{
			Granularity: "step",
		},
		Store: StoreConfig{
			Path: ".ftr/ftr.db",
		},
	}
}

// DefaultFile is the ftr.toml written by `ftr init`.
const DefaultFile = `[launch]
name = "ftr"
mode = "DEFAULT"
# attributes = ["team:core", "nightly"]
skipped_issue = true

[reporter]
# "step" reports steps as test items, "scenario" reports scenarios.
granularity = "step"
fail_fast = false

[store]
path = ".ftr/ftr.db"
`
