package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftr/internal/config"
	"github.com/chriserin/ftr/internal/logging"
	"github.com/chriserin/ftr/internal/ui"
)

// version is set at build time with -ldflags "-X github.com/chriserin/ftr/cmd.version=..."
var version = "dev"

var (
	flagVerbose bool
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:           "ftr",
	Short:         "ftr — feature test reporter",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("verbose") && os.Getenv("FTR_VERBOSE") != "" {
			flagVerbose = true
		}
		if !cmd.Flags().Changed("quiet") && os.Getenv("FTR_QUIET") != "" {
			flagQuiet = true
		}
		if !cmd.Flags().Changed("no-color") && os.Getenv("NO_COLOR") != "" {
			flagNoColor = true
		}
		logging.Setup(flagVerbose, flagQuiet, os.Getenv("FTR_LOG_FORMAT") == "json")
		if flagNoColor {
			ui.DisableColor()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging (env: FTR_VERBOSE)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Log errors only (env: FTR_QUIET)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to ftr.toml")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output (env: NO_COLOR)")
	rootCmd.Version = version
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves ftr.toml from the working directory (or --config),
// the environment and overrides. Warnings are logged; errors fail.
func loadConfig(overrides *config.CLIOverrides) (*config.Config, error) {
	rc, vr, err := config.Load(".", flagConfig, os.LookupEnv, overrides)
	if err != nil {
		return nil, err
	}
	logger := logging.New("cli")
	for _, w := range vr.Warnings() {
		logger.Warn("config", "field", w.Field, "issue", w.Message, "file", rc.Path)
	}
	if vr.HasErrors() {
		var errs []error
		for _, issue := range vr.Errors() {
			errs = append(errs, fmt.Errorf("%s: %s", issue.Field, issue.Message))
		}
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return rc.Config, nil
}

// requireStore fails with the init hint when the store has not been created.
func requireStore(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("run `ftr init` first")
	}
	return nil
}
