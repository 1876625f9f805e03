package cmd

import (
	"errors"
	"fmt"
	"os"

	"content-history/core/logger"
	"content-history/feature/history"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes distinguishing why a history operation stopped.
const (
	exitFailure         = 1
	exitFailedGit       = 2
	exitFailedIntegrity = 3
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "content-history",
	Short: "Versioned content for a WordPress database",
	Long: `content-history keeps a WordPress database in sync with a git-versioned
directory of entity files, and moves the database through that history
with undo and rollback.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Use the application's standard logger for error reporting
		// We default to console format to match user expectations (CLI tool)
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			// Absolute fallback if logger creation fails (rare)
			fmt.Println(err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, history.ErrFailedGit):
		return exitFailedGit
	case errors.Is(err, history.ErrFailedIntegrity):
		return exitFailedIntegrity
	default:
		return exitFailure
	}
}
