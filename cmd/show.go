package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftr/internal/db"
	"github.com/chriserin/ftr/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show [launch-id]",
	Short: "Show a launch's item tree (latest launch by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		return RunShow(cmd.OutOrStdout(), id)
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}

// RunShow prints the launch with id, which may be a unique prefix, or the
// latest launch when id is empty.
func RunShow(w io.Writer, id string) error {
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
	items, err := db.LaunchItems(ctx, sqlDB, launch.ID)
	if err != nil {
		return err
	}
	logs, err := db.LaunchLogs(ctx, sqlDB, launch.ID)
	if err != nil {
		return err
	}

	ui.LaunchHeader(w, launch)
	if len(items) > 0 {
		io.WriteString(w, "\n")
		ui.ItemTree(w, items, logs)
	}
	return nil
}
