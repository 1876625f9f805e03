package cmd

import (
	"context"
	"fmt"

	"content-history/core/config"
	"content-history/core/database"
	"content-history/core/git"
	"content-history/core/logger"
	"content-history/core/reconcile"
	"content-history/core/replacer"
	"content-history/core/schema"
	"content-history/core/storage"
	"content-history/feature/history"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app is the wired runtime shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	repo    *git.CLIRepository
	env     *reconcile.Environment
	service *history.Service
}

// newApp loads configuration and connects every component.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	info, err := schema.LoadOrDefault(cfg.Schema.Path)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := git.NewCLIRepository(cfg.Repository.Path)
	storages := storage.NewFactory(afero.NewOsFs(), cfg.Repository.StoragePath(), info)

	env := reconcile.NewEnvironment(storages, db, cfg.Database.TablePrefix, nil, l)
	env.Replacers = replacer.Chain{
		replacer.NewShortcodeReplacer(info, env.IDs),
		replacer.NewAbsoluteURLReplacer(cfg.Site.URL),
	}
	if err := env.EnsureTables(ctx); err != nil {
		return nil, err
	}

	orchestrator := history.NewOrchestrator(repo, env, history.Options{
		StorageDir:     cfg.Repository.StorageDir,
		LockPath:       cfg.Repository.LockPath(),
		Author:         cfg.Repository.Author(),
		IgnoredActions: cfg.History.IgnoredActionTags(),
		Logger:         l,
	})

	return &app{
		cfg:     cfg,
		logger:  l,
		db:      db,
		repo:    repo,
		env:     env,
		service: history.NewService(repo, env, orchestrator, l),
	}, nil
}

// Close releases the database connection and flushes the logger.
func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

// report logs a finished history operation and returns its error.
func (a *app) report(out *history.Outcome) error {
	fields := []zap.Field{
		zap.String("operation", string(out.Operation)),
		zap.String("state", string(out.State)),
		zap.Strings("commits", out.Commits),
		zap.Strings("synchronized_types", out.SynchronizedTypes),
	}
	if out.NewCommit != "" {
		fields = append(fields, zap.String("new_commit", out.NewCommit))
	}
	if out.NoChanges {
		fields = append(fields, zap.Bool("no_changes", true))
	}

	if out.Succeeded() {
		a.logger.Info("History operation committed", fields...)
		return nil
	}

	fields = append(fields,
		zap.Bool("git_changed", out.GitChanged),
		zap.String("failed_type", out.FailedType),
		zap.String("failed_entity", out.FailedEntity))
	for _, v := range out.Violations {
		a.logger.Warn("Dangling reference",
			zap.String("entity", v.EntityType+"/"+v.VpID),
			zap.String("field", v.Field),
			zap.String("target", v.TargetType+"/"+v.TargetVpID))
	}
	if out.GitChanged {
		a.logger.Error("Git history changed but the database is only partially reconciled; fix the reported entity and run sync", fields...)
	} else {
		a.logger.Error("Nothing was changed", fields...)
	}
	return out.Err()
}
