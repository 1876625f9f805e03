package cmd

import (
	"content-history/core/reconcile"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncTypes  []string
	syncDryRun bool
)

// syncCmd reconciles the database with the current entity files.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the database with the entity files",
	Long: `Makes the database match the entity files of the working tree.

Examples:
  # Report what would change
  sync --dry-run

  # Synchronize posts and their meta only
  sync --type post --type postmeta`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if syncDryRun {
			plans, err := a.service.Plan(ctx, syncTypes)
			if err != nil {
				return err
			}
			printPlans(a.logger, plans)
			return nil
		}
		return a.report(a.service.Synchronize(ctx, syncTypes))
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncTypes, "type", nil, "Entity type to synchronize (repeatable, default all)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Only report planned changes")
	RootCmd.AddCommand(syncCmd)
}

// printPlans logs a summary per type and a sample of the planned actions.
func printPlans(l *zap.Logger, plans []*reconcile.Plan) {
	const maxShow = 5
	for _, p := range plans {
		s := p.Summary
		l.Info("Synchronization plan",
			zap.String("type", p.EntityType),
			zap.Int("scope", s.Scope),
			zap.Int("inserts", s.Inserts),
			zap.Int("updates", s.Updates),
			zap.Int("deletes", s.Deletes),
			zap.Int("unchanged", s.Unchanged),
			zap.Int("ignored", s.Ignored))

		for i, action := range p.Actions {
			if i == maxShow {
				l.Info("Additional actions not shown", zap.Int("count", len(p.Actions)-maxShow))
				break
			}
			l.Info("Planned action",
				zap.String("type", string(action.Type)),
				zap.String("ref", action.Ref.String()),
				zap.String("reason", action.Reason))
		}
	}
}
