// Package vpid maps git-stable entity identifiers (vpIds) to the database's
// auto-increment primary keys.
//
// The Repository is the only place this mapping lives. Mappings are persisted
// in the "<prefix>vp_id" table and cached per process; call Reset whenever
// another process may have changed the database underneath.
package vpid
