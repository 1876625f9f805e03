// Package reconcile makes database tables match the entity files in storage.
//
// Storage is the source of truth. For one entity type a Synchronizer loads
// the stored entities in scope, reads the matching rows, and plans the
// inserts, updates and deletes that make the two sides agree.
//
// # Architecture
//
// 1. Environment: shared context built once per process. It holds the
// schema, storage factory, database handle, identifier repository,
// reference resolver, replacer chain and table column cache.
//
// 2. Synchronizer: per-type planning and apply. Deletes run first, then
// updates, then inserts. References to rows inserted later in the same run
// are written as 0 and filled in afterwards.
//
// 3. ComparisonCache: fingerprints of entities known to match their row, so
// repeated runs skip the field comparison.
//
// # Scope
//
// Without a ChangeSet every stored entity of the type is considered and rows
// that have no stored entity are deleted. With a ChangeSet only the named
// entities are read, compared or deleted. Rows matching the schema's ignore
// rules are never written or deleted.
//
// # Usage Example
//
//	env := reconcile.NewEnvironment(storages, db, "wp_", replacers, logger)
//	if err := env.EnsureTables(ctx); err != nil {
//	    return err
//	}
//
//	// Full synchronization in dependency order
//	results, err := env.SynchronizeAll(ctx, nil, nil)
//
//	// Only the entities touched by a commit
//	cs := reconcile.NewChangeSet(refs...)
//	results, err = env.SynchronizeAll(ctx, nil, cs)
package reconcile
