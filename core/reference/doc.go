// Package reference translates entity references between their storage form
// (vpIds under "vp_<column>" fields) and their database form (primary keys).
//
// Writes that point at an entity which is in storage but not yet in the
// database are reported as deferred so the caller can retry them once the
// target has been inserted. Writes that point at an entity missing from
// storage altogether fail with a DanglingReferenceError.
//
// Finder answers the reverse question used by the integrity check of undo:
// which stored entities still reference a given entity.
package reference
