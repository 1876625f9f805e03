// Package history moves the database through the git history of the entity
// storage.
//
// An Orchestrator runs one operation at a time, guarded by a file lock:
//
//   - Undo reverts one or more commits, newest first, and records the
//     result as a single commit tagged with an undo action per commit.
//   - Rollback restores the tree of an earlier commit as a new commit.
//   - Synchronize reconciles the database with the current tree.
//
// Every run walks Idle, GitMutating, Synchronizing and ends in Committed,
// FailedGit or FailedIntegrity. FailedGit means nothing changed. An undo
// that would leave a reference dangling is discarded before it is committed
// and ends in FailedIntegrity with git untouched. A failure while
// synchronizing also ends in FailedIntegrity, but the commit stays and
// Outcome names the type and entity where the database stopped.
//
// The Service and Handler expose the orchestrator over HTTP:
//
//	GET  /history/commits?range=<rev-range>
//	GET  /history/commits/:hash
//	GET  /history/plan?type=<entity type>
//	POST /history/undo         {"commits": ["<hash>", ...]}
//	POST /history/rollback     {"commit": "<hash>"}
//	POST /history/synchronize  {"types": ["post", ...]}
package history
