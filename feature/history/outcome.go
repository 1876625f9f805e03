package history

import (
	"errors"

	"content-history/core/reconcile"
	"content-history/core/reference"
)

// State is a step of an undo, rollback or synchronize run.
type State string

const (
	StateIdle            State = "idle"
	StateGitMutating     State = "git_mutating"
	StateSynchronizing   State = "synchronizing"
	StateCommitted       State = "committed"
	StateFailedIntegrity State = "failed_integrity"
	StateFailedGit       State = "failed_git"
)

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailedIntegrity || s == StateFailedGit
}

var (
	// ErrFailedGit marks runs that stopped before the database was touched.
	ErrFailedGit = errors.New("git mutation failed")
	// ErrFailedIntegrity marks runs stopped by a referential integrity violation.
	ErrFailedIntegrity = errors.New("referential integrity violated")
	// ErrLocked is returned when another history operation holds the lock.
	ErrLocked = errors.New("another history operation is running")
)

// Operation names the kind of run.
type Operation string

const (
	OperationUndo        Operation = "undo"
	OperationRollback    Operation = "rollback"
	OperationSynchronize Operation = "synchronize"
)

// Violation is a stored entity left referencing a missing one.
type Violation struct {
	EntityType string `json:"entity_type"`
	VpID       string `json:"vp_id"`
	Field      string `json:"field"`
	TargetType string `json:"target_type"`
	TargetVpID string `json:"target_vp_id"`
}

func violationOf(d *reference.DanglingReferenceError) Violation {
	return Violation{
		EntityType: d.EntityType,
		VpID:       d.VpID,
		Field:      d.Field,
		TargetType: d.TargetType,
		TargetVpID: d.TargetVpID,
	}
}

// Outcome reports a finished run.
//
// StateFailedIntegrity does not by itself mean git changed. An undo whose
// reverted tree would leave a dangling reference is discarded before it is
// committed: State is StateFailedIntegrity, GitChanged is false and neither
// the repository nor the database was touched. Only a failure during
// synchronization has GitChanged set. Callers mapping the state to an exit
// code or HTTP status must read GitChanged to tell the two apart.
type Outcome struct {
	Operation Operation `json:"operation"`
	State     State     `json:"state"`

	// Commits are the requested commits as full hashes, newest first.
	Commits []string `json:"commits,omitempty"`
	// NewCommit is the commit recording the change, if one was created.
	NewCommit string `json:"new_commit,omitempty"`
	// NoChanges is set when the git mutation left the tree as it was.
	NoChanges bool `json:"no_changes,omitempty"`
	// GitChanged is set once a commit was created. A failure with GitChanged
	// leaves the database partially reconciled; a failure without it left
	// both git and the database untouched.
	GitChanged bool `json:"git_changed"`

	ChangeSet         *reconcile.ChangeSet `json:"change_set,omitempty"`
	SynchronizedTypes []string             `json:"synchronized_types,omitempty"`
	Results           []*reconcile.Result  `json:"results,omitempty"`

	// FailedType and FailedEntity name where a failed run stopped.
	FailedType   string      `json:"failed_type,omitempty"`
	FailedEntity string      `json:"failed_entity,omitempty"`
	Violations   []Violation `json:"violations,omitempty"`

	Message string `json:"error,omitempty"`
	err     error
}

func newOutcome(op Operation) *Outcome {
	return &Outcome{Operation: op, State: StateIdle}
}

// Err returns the failure of the run, wrapping ErrFailedGit or
// ErrFailedIntegrity, or nil when it committed.
func (o *Outcome) Err() error {
	return o.err
}

// Succeeded reports whether the run committed.
func (o *Outcome) Succeeded() bool {
	return o.State == StateCommitted
}
