// Package middleware groups the fiber middleware mounted in front of the
// history API.
//
// Subpackages:
//   - rayid tags each request with an X-Ray-ID, reused when the caller sends
//     one, so log lines of one undo or rollback can be correlated.
//   - auth rejects requests without the configured X-API-Key.
//
// rayid must run first so that auth failures are logged with their ray ID.
package middleware
