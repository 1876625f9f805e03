package history

import (
	"context"

	"content-history/core/git"
	"content-history/core/reconcile"

	"go.uber.org/zap"
)

// Service exposes the history of the entity storage and the operations
// moving the database through it.
type Service struct {
	repo         git.Repository
	env          *reconcile.Environment
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewService creates a history service.
func NewService(repo git.Repository, env *reconcile.Environment, orchestrator *Orchestrator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, env: env, orchestrator: orchestrator, logger: logger}
}

// Commits lists commits of revRange, newest first.
func (s *Service) Commits(ctx context.Context, revRange string) ([]git.Commit, error) {
	return s.repo.Log(ctx, revRange)
}

// Commit returns one commit with its changed files.
func (s *Service) Commit(ctx context.Context, hash string) (*git.Commit, error) {
	return s.repo.Commit(ctx, hash)
}

// Undo reverts the given commits.
func (s *Service) Undo(ctx context.Context, hashes []string) *Outcome {
	return s.orchestrator.Undo(ctx, hashes)
}

// Rollback restores the tree of a commit.
func (s *Service) Rollback(ctx context.Context, hash string) *Outcome {
	return s.orchestrator.Rollback(ctx, hash)
}

// Synchronize reconciles the database with the current tree.
func (s *Service) Synchronize(ctx context.Context, types []string) *Outcome {
	return s.orchestrator.Synchronize(ctx, types)
}

// Plan reports what a synchronization of types would change.
func (s *Service) Plan(ctx context.Context, types []string) ([]*reconcile.Plan, error) {
	return s.env.PlanAll(ctx, types, nil)
}
