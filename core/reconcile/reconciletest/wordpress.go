// Package reconciletest provides WordPress-shaped sqlite databases and
// synchronization environments for tests.
package reconciletest

import (
	"context"
	"testing"

	"content-history/core/database"
	"content-history/core/reconcile"
	"content-history/core/replacer"
	"content-history/core/schema"
	"content-history/core/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TablePrefix is the table prefix of test databases.
const TablePrefix = "wp_"

// SiteURL is the site URL test replacers expand placeholders to.
const SiteURL = "https://example.test"

var tables = []string{
	`CREATE TABLE wp_users (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		user_login TEXT NOT NULL DEFAULT '',
		user_email TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE wp_usermeta (
		umeta_id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`,
	`CREATE TABLE wp_posts (
		ID INTEGER PRIMARY KEY AUTOINCREMENT,
		post_author INTEGER NOT NULL DEFAULT 0,
		post_title TEXT NOT NULL DEFAULT '',
		post_content TEXT NOT NULL DEFAULT '',
		post_excerpt TEXT NOT NULL DEFAULT '',
		post_status TEXT NOT NULL DEFAULT 'publish',
		post_type TEXT NOT NULL DEFAULT 'post',
		post_parent INTEGER NOT NULL DEFAULT 0,
		guid TEXT NOT NULL DEFAULT '',
		comment_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE wp_postmeta (
		meta_id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`,
	`CREATE TABLE wp_terms (
		term_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		slug TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE wp_term_taxonomy (
		term_taxonomy_id INTEGER PRIMARY KEY AUTOINCREMENT,
		term_id INTEGER NOT NULL DEFAULT 0,
		taxonomy TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		parent INTEGER NOT NULL DEFAULT 0,
		count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE wp_termmeta (
		meta_id INTEGER PRIMARY KEY AUTOINCREMENT,
		term_id INTEGER NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`,
	`CREATE TABLE wp_comments (
		comment_ID INTEGER PRIMARY KEY AUTOINCREMENT,
		comment_post_ID INTEGER NOT NULL DEFAULT 0,
		comment_author TEXT NOT NULL DEFAULT '',
		comment_content TEXT NOT NULL DEFAULT '',
		comment_approved TEXT NOT NULL DEFAULT '1',
		comment_parent INTEGER NOT NULL DEFAULT 0,
		user_id INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE wp_commentmeta (
		meta_id INTEGER PRIMARY KEY AUTOINCREMENT,
		comment_id INTEGER NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`,
	`CREATE TABLE wp_options (
		option_id INTEGER PRIMARY KEY AUTOINCREMENT,
		option_name TEXT NOT NULL UNIQUE,
		option_value TEXT NOT NULL DEFAULT '',
		autoload TEXT NOT NULL DEFAULT 'yes'
	)`,
}

// NewDB opens an in-memory sqlite database with the WordPress tables.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	for _, ddl := range tables {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

// Fixture is a ready synchronization environment.
type Fixture struct {
	DB       *gorm.DB
	FS       afero.Fs
	Storages *storage.Factory
	Env      *reconcile.Environment
}

// New builds an environment over an in-memory filesystem rooted at /vpdb.
func New(t *testing.T) *Fixture {
	t.Helper()
	return NewAt(t, afero.NewMemMapFs(), "/vpdb")
}

// NewAt builds an environment over fsys rooted at root.
func NewAt(t *testing.T, fsys afero.Fs, root string) *Fixture {
	t.Helper()
	db := NewDB(t)
	info := schema.Default()
	storages := storage.NewFactory(fsys, root, info)

	env := reconcile.NewEnvironment(storages, db, TablePrefix, nil, zap.NewNop())
	env.Replacers = replacer.Chain{
		replacer.NewShortcodeReplacer(info, env.IDs),
		replacer.NewAbsoluteURLReplacer(SiteURL),
	}
	require.NoError(t, env.EnsureTables(context.Background()))

	return &Fixture{DB: db, FS: fsys, Storages: storages, Env: env}
}

// Save stores entities, failing the test on error.
func (f *Fixture) Save(t *testing.T, entities ...storage.Entity) {
	t.Helper()
	for _, e := range entities {
		require.NoError(t, f.Storages.MustStorage(e.Type).Save(e))
	}
}

// Delete removes entities from storage.
func (f *Fixture) Delete(t *testing.T, entities ...storage.Entity) {
	t.Helper()
	for _, e := range entities {
		require.NoError(t, f.Storages.MustStorage(e.Type).Delete(e))
	}
}

// Rows returns every row of a table ordered by its first column.
func (f *Fixture) Rows(t *testing.T, table string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	require.NoError(t, f.DB.Table(TablePrefix+table).Order("1").Find(&rows).Error)
	return rows
}

// Count returns the number of rows of a table.
func (f *Fixture) Count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.DB.Table(TablePrefix+table).Count(&n).Error)
	return n
}

// Changes returns sqlite's running count of modified rows.
func (f *Fixture) Changes(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.DB.Raw("SELECT total_changes()").Scan(&n).Error)
	return n
}

// PK returns the primary key mapped to an entity.
func (f *Fixture) PK(t *testing.T, entityType, vpID string) int64 {
	t.Helper()
	info := f.Env.Schema.MustEntity(entityType)
	pk, ok, err := f.Env.IDs.ResolveToPrimaryKey(context.Background(), info.Table, vpID)
	require.NoError(t, err)
	require.True(t, ok, "%s %s has no primary key", entityType, vpID)
	return pk
}

// User builds a user entity.
func User(vpID, login string) storage.Entity {
	return storage.Entity{Type: "user", VpID: vpID, Fields: map[string]string{
		"user_login":   login,
		"user_email":   login + "@example.test",
		"display_name": login,
	}}
}

// Post builds a post entity.
func Post(vpID, title, authorVpID string) storage.Entity {
	return storage.Entity{Type: "post", VpID: vpID, Fields: map[string]string{
		"post_title":     title,
		"post_content":   "",
		"post_status":    "publish",
		"post_type":      "post",
		"vp_post_author": authorVpID,
		"vp_post_parent": "0",
	}}
}

// Comment builds a comment on a post.
func Comment(vpID, postVpID, content string) storage.Entity {
	return storage.Entity{Type: "comment", VpID: vpID, Fields: map[string]string{
		"comment_content":    content,
		"comment_approved":   "1",
		"vp_comment_post_ID": postVpID,
		"vp_comment_parent":  "0",
		"vp_user_id":         "0",
	}}
}

// PostMeta builds a post meta entity.
func PostMeta(vpID, postVpID, key, value string) storage.Entity {
	return storage.Entity{Type: "postmeta", VpID: vpID, ParentVpID: postVpID, Fields: map[string]string{
		"meta_key":   key,
		"meta_value": value,
	}}
}

// Option builds an option entity.
func Option(name, value string) storage.Entity {
	return storage.Entity{Type: "option", VpID: name, Fields: map[string]string{
		"option_name":  name,
		"option_value": value,
	}}
}
