// Package replacer rewrites environment-independent placeholders in stored
// values into their environment-specific database form and back.
//
// Replacers are pure value transforms over an entity's field map. The
// synchronizer applies them after reference resolution when writing to the
// database (ToDatabase) and before comparing database rows with storage
// (ToStorage).
package replacer
