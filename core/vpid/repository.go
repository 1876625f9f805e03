package vpid

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TableName is the identifier table name without prefix.
const TableName = "vp_id"

// Identifier is one persisted mapping row.
type Identifier struct {
	VpID        string `gorm:"column:vp_id;primaryKey;size:64"`
	EntityTable string `gorm:"column:entity_table;size:64;not null;index:idx_vp_id_table_id,priority:1"`
	ID          int64  `gorm:"column:id;not null;index:idx_vp_id_table_id,priority:2"`
}

// New generates a fresh vpId.
func New() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

type tableCache struct {
	byVpID map[string]int64
	byPK   map[int64]string
}

// Repository resolves vpIds and primary keys in both directions.
type Repository struct {
	db    *gorm.DB
	table string

	mu    sync.Mutex
	cache map[string]*tableCache
}

// NewRepository creates a repository storing mappings in prefix+"vp_id".
func NewRepository(db *gorm.DB, tablePrefix string) *Repository {
	return &Repository{
		db:    db,
		table: tablePrefix + TableName,
		cache: make(map[string]*tableCache),
	}
}

// Table returns the full identifier table name.
func (r *Repository) Table() string {
	return r.table
}

// EnsureTable creates the identifier table if needed.
func (r *Repository) EnsureTable(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Table(r.table).AutoMigrate(&Identifier{}); err != nil {
		return fmt.Errorf("failed to migrate %s: %w", r.table, err)
	}
	return nil
}

// Reset drops the in-process cache.
func (r *Repository) Reset() {
	r.mu.Lock()
	r.cache = make(map[string]*tableCache)
	r.mu.Unlock()
}

// load fills the cache for an entity table. Callers hold r.mu.
func (r *Repository) load(ctx context.Context, entityTable string) (*tableCache, error) {
	if c, ok := r.cache[entityTable]; ok {
		return c, nil
	}

	var rows []Identifier
	err := r.db.WithContext(ctx).
		Table(r.table).
		Where("entity_table = ?", entityTable).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load identifiers for %s: %w", entityTable, err)
	}

	c := &tableCache{
		byVpID: make(map[string]int64, len(rows)),
		byPK:   make(map[int64]string, len(rows)),
	}
	for _, row := range rows {
		c.byVpID[row.VpID] = row.ID
		c.byPK[row.ID] = row.VpID
	}
	r.cache[entityTable] = c
	return c, nil
}

// ResolveToPrimaryKey returns the primary key mapped to vpID.
func (r *Repository) ResolveToPrimaryKey(ctx context.Context, entityTable, vpID string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load(ctx, entityTable)
	if err != nil {
		return 0, false, err
	}
	pk, ok := c.byVpID[vpID]
	return pk, ok, nil
}

// ResolveToVpID returns the vpId mapped to a primary key.
func (r *Repository) ResolveToVpID(ctx context.Context, entityTable string, pk int64) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load(ctx, entityTable)
	if err != nil {
		return "", false, err
	}
	id, ok := c.byPK[pk]
	return id, ok, nil
}

// All returns a copy of every vpId → primary key mapping of an entity table.
func (r *Repository) All(ctx context.Context, entityTable string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load(ctx, entityTable)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(c.byVpID))
	for k, v := range c.byVpID {
		out[k] = v
	}
	return out, nil
}

// Register stores a mapping for a freshly inserted row.
func (r *Repository) Register(ctx context.Context, entityTable, vpID string, pk int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load(ctx, entityTable)
	if err != nil {
		return err
	}

	row := Identifier{VpID: vpID, EntityTable: entityTable, ID: pk}
	err = r.db.WithContext(ctx).
		Table(r.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to register %s for %s: %w", vpID, entityTable, err)
	}

	if old, ok := c.byVpID[vpID]; ok {
		delete(c.byPK, old)
	}
	c.byVpID[vpID] = pk
	c.byPK[pk] = vpID
	return nil
}

// Forget removes the mapping of a destroyed entity.
func (r *Repository) Forget(ctx context.Context, entityTable, vpID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.load(ctx, entityTable)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).
		Table(r.table).
		Where("vp_id = ? AND entity_table = ?", vpID, entityTable).
		Delete(&Identifier{}).Error
	if err != nil {
		return fmt.Errorf("failed to forget %s for %s: %w", vpID, entityTable, err)
	}

	if pk, ok := c.byVpID[vpID]; ok {
		delete(c.byPK, pk)
		delete(c.byVpID, vpID)
	}
	return nil
}
