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

var statusCmd = &cobra.Command{
	Use:   "status [launch-id]",
	Short: "Count a launch's items by status (latest launch by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		return RunStatus(cmd.OutOrStdout(), id)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func RunStatus(w io.Writer, id string) error {
	ctx := context.Background()
	sqlDB, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	launch, err := findLaunch(ctx, sqlDB, id)
	if err != nil {
		return err
	}
	counts, err := db.StatusCounts(ctx, sqlDB, launch.ID)
	if err != nil {
		return err
	}

	ui.LaunchHeader(w, launch)
	if len(counts) == 0 {
		fmt.Fprintln(w, "no items")
		return nil
	}
	ui.StatusCounts(w, counts)
	return nil
}

func findLaunch(ctx context.Context, sqlDB *sql.DB, id string) (db.LaunchRow, error) {
	if id == "" {
		return db.LatestLaunch(ctx, sqlDB)
	}
	return db.FindLaunch(ctx, sqlDB, id)
}
