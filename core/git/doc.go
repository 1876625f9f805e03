// Package git wraps the git command line for the history operations.
//
// CLIRepository runs git in the repository directory and exposes the few
// operations undo and rollback need: reading the log and the files a commit
// touched, reverting commits without committing, hard resets, and committing
// the whole working tree.
//
// Commit messages carry one "VP-Action: <type>/<action>/<vpId>" trailer per
// entity change. Commit.Actions parses them back.
//
// # Usage
//
//	repo := git.NewCLIRepository(cfg.Repository.Path)
//	commits, err := repo.Log(ctx, "")
package git
