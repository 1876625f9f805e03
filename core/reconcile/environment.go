package reconcile

import (
	"context"
	"errors"
	"fmt"

	"content-history/core/database"
	"content-history/core/reference"
	"content-history/core/replacer"
	"content-history/core/schema"
	"content-history/core/storage"
	"content-history/core/vpid"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Environment bundles everything synchronizers share: the schema, storages,
// database and identifier mapping. It is built once per process and passed
// explicitly.
type Environment struct {
	Schema      *schema.Info
	Storages    *storage.Factory
	DB          *gorm.DB
	TablePrefix string
	IDs         *vpid.Repository
	Resolver    *reference.Resolver
	Replacers   replacer.Chain
	Columns     *database.SchemaCache
	Logger      *zap.Logger

	cache *ComparisonCache
}

// NewEnvironment wires the shared synchronization context. The replacers
// run in order towards the database.
func NewEnvironment(storages *storage.Factory, db *gorm.DB, tablePrefix string, replacers replacer.Chain, logger *zap.Logger) *Environment {
	if logger == nil {
		logger = zap.NewNop()
	}
	info := storages.Schema()
	ids := vpid.NewRepository(db, tablePrefix)
	return &Environment{
		Schema:      info,
		Storages:    storages,
		DB:          db,
		TablePrefix: tablePrefix,
		IDs:         ids,
		Resolver:    reference.NewResolver(info, ids),
		Replacers:   replacers,
		Columns:     database.NewSchemaCache(db),
		Logger:      logger,
		cache:       NewComparisonCache(),
	}
}

// TableName returns the prefixed database table of an entity type.
func (e *Environment) TableName(info *schema.EntityInfo) string {
	return e.TablePrefix + info.Table
}

// EnsureTables creates the identifier table.
func (e *Environment) EnsureTables(ctx context.Context) error {
	return e.IDs.EnsureTable(ctx)
}

// Synchronizer returns the synchronizer of one entity type.
func (e *Environment) Synchronizer(entityType string) (*Synchronizer, error) {
	info, ok := e.Schema.Entity(entityType)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
	s, ok := e.Storages.Storage(entityType)
	if !ok {
		return nil, fmt.Errorf("no storage for entity type %q", entityType)
	}
	return &Synchronizer{env: e, info: info, storage: s}, nil
}

// Reset clears every process-local cache: compared fingerprints, identifier
// mappings and table columns.
func (e *Environment) Reset() {
	e.cache.Reset()
	e.IDs.Reset()
	e.Columns.Reset()
}

// SynchronizeAll synchronizes the given types (all when empty) strictly in
// dependency order. With a change set, types it does not mention are
// skipped. The first failure stops the run and is returned as *SyncError;
// results of the types completed so far are returned with it.
func (e *Environment) SynchronizeAll(ctx context.Context, types []string, changeSet *ChangeSet) ([]*Result, error) {
	if len(types) == 0 {
		types = e.Schema.Names()
	}
	for _, t := range types {
		if _, ok := e.Schema.Entity(t); !ok {
			return nil, &SyncError{EntityType: t, Err: fmt.Errorf("unknown entity type %q", t)}
		}
	}

	var (
		results []*Result
		pending []PendingReference
	)
	for _, t := range e.Schema.Sort(types) {
		if changeSet != nil && len(changeSet.ForType(t)) == 0 {
			continue
		}
		s, err := e.Synchronizer(t)
		if err != nil {
			return results, &SyncError{EntityType: t, Err: err}
		}
		res, err := s.Synchronize(ctx, ModeEverything, changeSet)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		pending = append(pending, res.Deferred...)
	}

	// references to types synchronized later in the run
	if len(pending) > 0 {
		remaining, err := e.applyPending(ctx, pending)
		if err != nil {
			return results, err
		}
		if len(remaining) > 0 {
			e.Logger.Warn("References left unresolved", zap.Int("count", len(remaining)))
		}
	}
	return results, nil
}

// applyPending writes every pending reference whose target now has a
// primary key, repeating until no progress is made.
func (e *Environment) applyPending(ctx context.Context, pending []PendingReference) ([]PendingReference, error) {
	for len(pending) > 0 {
		var remaining []PendingReference
		for _, p := range pending {
			pk, ok, err := e.Resolver.ResolveDeferred(ctx, reference.Deferred{
				Column:     p.Column,
				TargetType: p.TargetType,
				TargetVpID: p.TargetVpID,
			})
			if err != nil {
				return nil, &SyncError{EntityType: p.Ref.Type, VpID: p.Ref.VpID, Err: err}
			}
			if !ok {
				remaining = append(remaining, p)
				continue
			}
			var value any = pk
			if p.Text {
				value = fmt.Sprint(pk)
			}
			err = e.DB.WithContext(ctx).
				Table(p.Table).
				Where(p.KeyColumn+" = ?", p.Key).
				Update(p.Column, value).Error
			if err != nil {
				return nil, &SyncError{EntityType: p.Ref.Type, VpID: p.Ref.VpID, Err: fmt.Errorf("failed to update reference %s: %w", p.Column, err)}
			}
			// re-verify on the next run
			e.cache.Forget(p.Ref.Type, p.Ref.VpID)
			e.Logger.Debug("Resolved deferred reference",
				zap.String("ref", p.Ref.String()),
				zap.String("column", p.Column),
				zap.Int64("target", pk))
		}
		if len(remaining) == len(pending) {
			return remaining, nil
		}
		pending = remaining
	}
	return nil, nil
}

// vpIDOf extracts the offending entity from an integrity error.
func vpIDOf(err error) string {
	var dangling *reference.DanglingReferenceError
	if errors.As(err, &dangling) {
		return dangling.VpID
	}
	return ""
}
