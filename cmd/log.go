package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// logCmd prints the history of the entity files.
var logCmd = &cobra.Command{
	Use:   "log [range]",
	Short: "List commits",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		revRange := ""
		if len(args) == 1 {
			revRange = args[0]
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		commits, err := a.service.Commits(ctx, revRange)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, c := range commits {
			fmt.Fprintf(w, "%s %s %s\n", c.Hash[:min(len(c.Hash), 10)], c.Date.Format("2006-01-02 15:04"), c.Subject())
			for _, action := range c.Actions() {
				fmt.Fprintf(w, "    %s\n", action)
			}
		}
		if len(commits) == 0 {
			fmt.Fprintln(w, "no commits")
		}
		return nil
	},
}

// initCmd prepares the repository and identifier table.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the git repository and identifier table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repo.Init(ctx); err != nil {
			return err
		}
		a.logger.Info("Repository ready",
			zap.String("path", a.repo.Dir()),
			zap.String("identifiers", a.env.IDs.Table()))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(logCmd)
	RootCmd.AddCommand(initCmd)
}
