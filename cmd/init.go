package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftr/internal/config"
	"github.com/chriserin/ftr/internal/db"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize ftr in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunInit(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// initStep sets up one piece of the workspace and describes what it did.
type initStep func() ([]string, error)

func RunInit(w io.Writer) error {
	for _, step := range []initStep{ensureStateDir, ensureStore, ensureConfig, gitignoreStep} {
		msgs, err := step()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			fmt.Fprintln(w, msg)
		}
	}
	return nil
}

// outcome reports whether name was made by this run or found in place.
func outcome(name string, existed bool) []string {
	if existed {
		return []string{name + " already exists"}
	}
	return []string{name + " created"}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureStateDir() ([]string, error) {
	dir := filepath.Dir(db.DefaultPath)
	existed := exists(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s directory: %w", dir, err)
	}
	return outcome(dir+"/", existed), nil
}

// ensureStore opens the store once so its schema is migrated.
func ensureStore() ([]string, error) {
	existed := exists(db.DefaultPath)
	sqlDB, err := db.Open(db.DefaultPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return nil, fmt.Errorf("closing database: %w", err)
	}
	return outcome(db.DefaultPath, existed), nil
}

// ensureConfig writes the commented default ftr.toml, never replacing one.
func ensureConfig() ([]string, error) {
	if exists(config.ConfigFileName) {
		return outcome(config.ConfigFileName, true), nil
	}
	if err := os.WriteFile(config.ConfigFileName, []byte(config.DefaultFile), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", config.ConfigFileName, err)
	}
	return outcome(config.ConfigFileName, false), nil
}

func gitignoreStep() ([]string, error) {
	msgs, err := ensureGitignore()
	if err != nil {
		return nil, fmt.Errorf("updating .gitignore: %w", err)
	}
	return msgs, nil
}

func ensureGitignore() ([]string, error) {
	const entry = db.DefaultPath

	data, err := os.ReadFile(".gitignore")
	if os.IsNotExist(err) {
		if err := os.WriteFile(".gitignore", []byte(entry+"\n"), 0o644); err != nil {
			return nil, err
		}
		return []string{".gitignore created", entry + " added to .gitignore"}, nil
	}
	if err != nil {
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return []string{entry + " already in .gitignore"}, nil
		}
	}

	content := string(data)
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += entry + "\n"

	if err := os.WriteFile(".gitignore", []byte(content), 0o644); err != nil {
		return nil, err
	}
	return []string{entry + " added to .gitignore"}, nil
}
