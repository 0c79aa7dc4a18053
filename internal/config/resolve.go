package config

import (
	"strconv"
	"strings"
)

// ConfigSource identifies where a configuration value came from.
type ConfigSource string

const (
	SourceDefault ConfigSource = "default"
	SourceFile    ConfigSource = "file"
	SourceEnv     ConfigSource = "env"
	SourceCLI     ConfigSource = "cli"
)

// ResolvedConfig holds the merged configuration. Sources is keyed by dotted
// path, e.g. "launch.name".
type ResolvedConfig struct {
	Config  *Config
	Sources map[string]ConfigSource
	Path    string // config file used, empty if none
}

// CLIOverrides captures flag values that override configuration. A nil field
// means the flag was not given.
type CLIOverrides struct {
	LaunchName  *string
	Granularity *string
	FailFast    *bool
	StorePath   *string
}

// EnvFunc looks up environment variables; os.LookupEnv in production.
type EnvFunc func(key string) (string, bool)

// Resolve merges configuration in priority order:
// CLI flags > environment variables > config file > defaults.
func Resolve(defaults *Config, fileConfig *Config, envFn EnvFunc, overrides *CLIOverrides) *ResolvedConfig {
	rc := &ResolvedConfig{
		Config:  &Config{},
		Sources: make(map[string]ConfigSource),
	}
	if defaults == nil {
		defaults = &Config{}
	}
	if envFn == nil {
		envFn = func(string) (string, bool) { return "", false }
	}
	if overrides == nil {
		overrides = &CLIOverrides{}
	}

	resolveFromDefaults(rc, defaults)
	if fileConfig != nil {
		resolveFromFile(rc, fileConfig)
	}
	resolveFromEnv(rc, envFn)
	resolveFromCLI(rc, overrides)

	return rc
}

func resolveFromDefaults(rc *ResolvedConfig, d *Config) {
	l := &rc.Config.Launch
	setString(&l.Name, d.Launch.Name, "launch.name", SourceDefault, rc.Sources)
	setString(&l.Description, d.Launch.Description, "launch.description", SourceDefault, rc.Sources)
	setString(&l.Mode, d.Launch.Mode, "launch.mode", SourceDefault, rc.Sources)
	setString(&l.RerunOf, d.Launch.RerunOf, "launch.rerun_of", SourceDefault, rc.Sources)
	l.Attributes = append([]string(nil), d.Launch.Attributes...)
	rc.Sources["launch.attributes"] = SourceDefault
	l.Rerun = d.Launch.Rerun
	rc.Sources["launch.rerun"] = SourceDefault
	l.SkippedIssue = copyBool(d.Launch.SkippedIssue)
	rc.Sources["launch.skipped_issue"] = SourceDefault

	setString(&rc.Config.Reporter.Granularity, d.Reporter.Granularity, "reporter.granularity", SourceDefault, rc.Sources)
	rc.Config.Reporter.FailFast = d.Reporter.FailFast
	rc.Sources["reporter.fail_fast"] = SourceDefault

	setString(&rc.Config.Store.Path, d.Store.Path, "store.path", SourceDefault, rc.Sources)
}

func resolveFromFile(rc *ResolvedConfig, f *Config) {
	l := &rc.Config.Launch
	mergeString(&l.Name, f.Launch.Name, "launch.name", SourceFile, rc.Sources)
	mergeString(&l.Description, f.Launch.Description, "launch.description", SourceFile, rc.Sources)
	mergeString(&l.Mode, f.Launch.Mode, "launch.mode", SourceFile, rc.Sources)
	mergeString(&l.RerunOf, f.Launch.RerunOf, "launch.rerun_of", SourceFile, rc.Sources)
	if len(f.Launch.Attributes) > 0 {
		l.Attributes = append([]string(nil), f.Launch.Attributes...)
		rc.Sources["launch.attributes"] = SourceFile
	}
	if f.Launch.Rerun {
		l.Rerun = true
		rc.Sources["launch.rerun"] = SourceFile
	}
	if f.Launch.SkippedIssue != nil {
		l.SkippedIssue = copyBool(f.Launch.SkippedIssue)
		rc.Sources["launch.skipped_issue"] = SourceFile
	}

	mergeString(&rc.Config.Reporter.Granularity, f.Reporter.Granularity, "reporter.granularity", SourceFile, rc.Sources)
	if f.Reporter.FailFast {
		rc.Config.Reporter.FailFast = true
		rc.Sources["reporter.fail_fast"] = SourceFile
	}

	mergeString(&rc.Config.Store.Path, f.Store.Path, "store.path", SourceFile, rc.Sources)
}

func resolveFromEnv(rc *ResolvedConfig, envFn EnvFunc) {
	if val, ok := envFn("FTR_LAUNCH_NAME"); ok {
		rc.Config.Launch.Name = val
		rc.Sources["launch.name"] = SourceEnv
	}
	if val, ok := envFn("FTR_LAUNCH_ATTRIBUTES"); ok {
		rc.Config.Launch.Attributes = splitList(val)
		rc.Sources["launch.attributes"] = SourceEnv
	}
	if val, ok := envFn("FTR_REPORTER"); ok {
		rc.Config.Reporter.Granularity = val
		rc.Sources["reporter.granularity"] = SourceEnv
	}
	if val, ok := envFn("FTR_FAIL_FAST"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			rc.Config.Reporter.FailFast = b
			rc.Sources["reporter.fail_fast"] = SourceEnv
		}
	}
	if val, ok := envFn("FTR_STORE_PATH"); ok {
		rc.Config.Store.Path = val
		rc.Sources["store.path"] = SourceEnv
	}
}

func resolveFromCLI(rc *ResolvedConfig, o *CLIOverrides) {
	if o.LaunchName != nil {
		rc.Config.Launch.Name = *o.LaunchName
		rc.Sources["launch.name"] = SourceCLI
	}
	if o.Granularity != nil {
		rc.Config.Reporter.Granularity = *o.Granularity
		rc.Sources["reporter.granularity"] = SourceCLI
	}
	if o.FailFast != nil {
		rc.Config.Reporter.FailFast = *o.FailFast
		rc.Sources["reporter.fail_fast"] = SourceCLI
	}
	if o.StorePath != nil {
		rc.Config.Store.Path = *o.StorePath
		rc.Sources["store.path"] = SourceCLI
	}
}

func setString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	*target = value
	sources[path] = source
}

// mergeString overwrites target only when value is non-empty.
func mergeString(target *string, value string, path string, source ConfigSource, sources map[string]ConfigSource) {
	if value != "" {
		*target = value
		sources[path] = source
	}
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
