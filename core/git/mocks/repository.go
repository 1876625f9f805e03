package mocks

import (
	"context"

	"content-history/core/git"

	"github.com/stretchr/testify/mock"
)

// Repository is a mock implementation of git.Repository
type Repository struct {
	mock.Mock
}

var _ git.Repository = (*Repository)(nil)

func (m *Repository) Init(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Repository) Dir() string {
	args := m.Called()
	return args.String(0)
}

func (m *Repository) Log(ctx context.Context, revRange string) ([]git.Commit, error) {
	args := m.Called(ctx, revRange)
	if commits, ok := args.Get(0).([]git.Commit); ok {
		return commits, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) Commit(ctx context.Context, hash string) (*git.Commit, error) {
	args := m.Called(ctx, hash)
	if c, ok := args.Get(0).(*git.Commit); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) ChangedFiles(ctx context.Context, hash string) ([]git.FileChange, error) {
	args := m.Called(ctx, hash)
	if files, ok := args.Get(0).([]git.FileChange); ok {
		return files, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Repository) IsClean(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) Revert(ctx context.Context, hashes ...string) error {
	args := m.Called(ctx, hashes)
	return args.Error(0)
}

func (m *Repository) Discard(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *Repository) Reset(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *Repository) Restore(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *Repository) CommitAll(ctx context.Context, message string, author git.Author) (string, error) {
	args := m.Called(ctx, message, author)
	return args.String(0), args.Error(1)
}

func (m *Repository) HasStagedChanges(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *Repository) LastCommitHash(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Repository) Order(ctx context.Context, hashes []string) ([]string, error) {
	args := m.Called(ctx, hashes)
	if ordered, ok := args.Get(0).([]string); ok {
		return ordered, args.Error(1)
	}
	return nil, args.Error(1)
}
