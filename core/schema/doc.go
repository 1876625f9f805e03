// Package schema describes every versioned entity type: the table it lives in,
// its primary key, the columns that hold references to other entities and the
// rules selecting rows that are never versioned.
//
// A schema is immutable once built. It is loaded once per process (either the
// built-in WordPress schema or a YAML file) and shared by every storage and
// synchronizer.
//
// # References
//
// A reference column stores the database primary key of another entity. In
// storage the same value is kept under "vp_<column>" and holds the target's
// vpId instead. Value references cover columns whose meaning depends on a
// sibling column, e.g. a postmeta row with meta_key "_thumbnail_id" whose
// meta_value points at a post.
//
// # Order
//
// SynchronizationOrder returns the entity names sorted so that every entity
// comes after the entities it references:
//
//	user → post, term → comment, postmeta, termmeta → option
package schema
