package cmd

import (
	"fmt"

	"content-history/feature/history"

	"github.com/spf13/cobra"
)

// undoCmd reverts commits and reconciles the database.
var undoCmd = &cobra.Command{
	Use:   "undo <hash>[,<hash>...]",
	Short: "Undo one or more commits",
	Long: `Reverts the given commits newest first, records the result as one commit
and synchronizes the affected entities.

Exit status is 2 when git refused the change (nothing happened) and 3 when
a referential integrity violation stopped the run. A violation found before
committing leaves git and the database untouched; the log line says which
case occurred.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hashes := history.ParseHashes(args[0])
		if len(hashes) == 0 {
			return fmt.Errorf("no commit hashes given")
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.report(a.service.Undo(ctx, hashes))
	},
}

// rollbackCmd restores an earlier commit and reconciles the database.
var rollbackCmd = &cobra.Command{
	Use:   "rollback <hash>",
	Short: "Roll back to a commit",
	Long: `Restores the entity files of the given commit as a new commit and
synchronizes every entity type.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.report(a.service.Rollback(ctx, args[0]))
	},
}

func init() {
	RootCmd.AddCommand(undoCmd)
	RootCmd.AddCommand(rollbackCmd)
}
