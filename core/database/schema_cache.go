package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// TableColumns is the column set of one table, looked up case-insensitively.
type TableColumns struct {
	Table   string
	Columns []ColumnInfo
	byName  map[string]ColumnInfo
}

func newTableColumns(table string, columns []ColumnInfo) *TableColumns {
	t := &TableColumns{Table: table, Columns: columns, byName: make(map[string]ColumnInfo, len(columns))}
	for _, c := range columns {
		t.byName[strings.ToLower(c.Field)] = c
	}
	return t
}

// Has reports whether the table has the column.
func (t *TableColumns) Has(column string) bool {
	_, ok := t.byName[strings.ToLower(column)]
	return ok
}

// Column returns the column definition.
func (t *TableColumns) Column(column string) (ColumnInfo, bool) {
	c, ok := t.byName[strings.ToLower(column)]
	return c, ok
}

// SchemaCache memoizes table columns. Concurrent lookups of the same table
// share one query.
type SchemaCache struct {
	db *gorm.DB

	mu     sync.RWMutex
	tables map[string]*TableColumns
	group  singleflight.Group
}

// NewSchemaCache creates an empty cache over db.
func NewSchemaCache(db *gorm.DB) *SchemaCache {
	return &SchemaCache{db: db, tables: make(map[string]*TableColumns)}
}

// Columns returns the columns of table. A table without columns is reported
// as missing and not cached.
func (c *SchemaCache) Columns(ctx context.Context, table string) (*TableColumns, error) {
	c.mu.RLock()
	t, ok := c.tables[table]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do(table, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.tables[table]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		columns, err := GetTableColumns(ctx, c.db, table)
		if err != nil {
			return nil, err
		}
		if len(columns) == 0 {
			return nil, fmt.Errorf("table %s does not exist", table)
		}
		t := newTableColumns(table, columns)
		c.mu.Lock()
		c.tables[table] = t
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TableColumns), nil
}

// Reset forgets every cached table.
func (c *SchemaCache) Reset() {
	c.mu.Lock()
	c.tables = make(map[string]*TableColumns)
	c.mu.Unlock()
}
