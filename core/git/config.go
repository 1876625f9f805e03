package git

import "path/filepath"

// Config holds configuration for the versioned repository.
type Config struct {
	// Path is the git working tree.
	Path string `mapstructure:"path" default:"./repository"`
	// StorageDir is the entity storage directory relative to Path.
	StorageDir string `mapstructure:"storage_dir" default:"db"`
	// LockFile guards history operations. Relative paths are resolved
	// against Path.
	LockFile string `mapstructure:"lock_file" default:".git/history.lock"`
	// AuthorName is used for commits created by history operations.
	AuthorName string `mapstructure:"author_name" default:"content-history"`
	// AuthorEmail is used for commits created by history operations.
	AuthorEmail string `mapstructure:"author_email" default:"history@localhost"`
}

// StoragePath returns the absolute or working-directory-relative storage root.
func (c Config) StoragePath() string {
	return filepath.Join(c.Path, c.StorageDir)
}

// LockPath returns the lock file location.
func (c Config) LockPath() string {
	if filepath.IsAbs(c.LockFile) {
		return c.LockFile
	}
	return filepath.Join(c.Path, c.LockFile)
}

// Author returns the configured commit author.
func (c Config) Author() Author {
	return Author{Name: c.AuthorName, Email: c.AuthorEmail}
}
