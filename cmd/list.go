package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftr/internal/db"
	"github.com/chriserin/ftr/internal/ui"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reported launches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunList(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// openConfiguredStore opens the store named by the resolved configuration.
func openConfiguredStore() (*sql.DB, error) {
	cfg, err := loadConfig(nil)
	if err != nil {
		return nil, err
	}
	if err := requireStore(cfg.Store.Path); err != nil {
		return nil, err
	}
	sqlDB, err := db.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return sqlDB, nil
}

func RunList(w io.Writer) error {
	sqlDB, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	launches, err := db.ListLaunches(context.Background(), sqlDB)
	if err != nil {
		return err
	}
	if len(launches) == 0 {
		fmt.Fprintln(w, "no launches yet")
		return nil
	}
	ui.LaunchList(w, launches)
	return nil
}
