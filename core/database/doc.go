// Package database connects to the site database and describes its tables.
//
// Connect opens MySQL (production) or SQLite (local runs and tests) through
// gorm and pings within the configured timeout. Table names are never
// prefixed here; callers prepend Config.TablePrefix.
//
// The synchronizer writes only columns the live table has. GetTableColumns
// lists them per dialect and SchemaCache keeps the answer per table, with
// concurrent lookups of one table sharing a single query:
//
//	cache := database.NewSchemaCache(db)
//	cols, err := cache.Columns(ctx, "wp_posts")
//	if err == nil && !cols.Has("post_title") {
//	    // drop the field
//	}
package database
