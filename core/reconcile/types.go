package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"

	"content-history/core/reference"
	"content-history/core/storage"
)

// Mode selects how the storage side of a synchronization is scanned.
type Mode string

const (
	// ModeEverything scans every stored entity of the type, unless a
	// ChangeSet restricts the scope.
	ModeEverything Mode = "everything"
)

// ChangeSet is an ordered, de-duplicated set of entities a synchronization
// must consider.
type ChangeSet struct {
	refs []storage.Ref
	seen map[string]int
}

// NewChangeSet creates a change set from refs.
func NewChangeSet(refs ...storage.Ref) *ChangeSet {
	cs := &ChangeSet{seen: make(map[string]int)}
	for _, r := range refs {
		cs.Add(r)
	}
	return cs
}

func changeKey(r storage.Ref) string {
	return r.Type + "/" + r.VpID
}

// Add appends ref unless it is already present. A later ref with a known
// parent fills in a missing ParentVpID.
func (c *ChangeSet) Add(ref storage.Ref) {
	if c.seen == nil {
		c.seen = make(map[string]int)
	}
	k := changeKey(ref)
	if i, ok := c.seen[k]; ok {
		if c.refs[i].ParentVpID == "" {
			c.refs[i].ParentVpID = ref.ParentVpID
		}
		return
	}
	c.seen[k] = len(c.refs)
	c.refs = append(c.refs, ref)
}

// Contains reports whether the entity is in the set.
func (c *ChangeSet) Contains(entityType, vpID string) bool {
	if c == nil {
		return false
	}
	_, ok := c.seen[entityType+"/"+vpID]
	return ok
}

// Refs returns all refs in insertion order.
func (c *ChangeSet) Refs() []storage.Ref {
	if c == nil {
		return nil
	}
	return append([]storage.Ref(nil), c.refs...)
}

// ForType returns the refs of one entity type in insertion order.
func (c *ChangeSet) ForType(entityType string) []storage.Ref {
	if c == nil {
		return nil
	}
	var out []storage.Ref
	for _, r := range c.refs {
		if r.Type == entityType {
			out = append(out, r)
		}
	}
	return out
}

// Types returns the entity types present, in first-seen order.
func (c *ChangeSet) Types() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, r := range c.refs {
		if !seen[r.Type] {
			seen[r.Type] = true
			out = append(out, r.Type)
		}
	}
	return out
}

// Len returns the number of refs.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.refs)
}

// MarshalJSON encodes the set as a list of refs.
func (c *ChangeSet) MarshalJSON() ([]byte, error) {
	refs := c.Refs()
	if refs == nil {
		refs = []storage.Ref{}
	}
	return json.Marshal(refs)
}

// ActionType represents the type of mutation action.
type ActionType string

const (
	// ActionInsert creates a database row for a stored entity.
	ActionInsert ActionType = "insert"
	// ActionUpdate rewrites a database row that differs from storage.
	ActionUpdate ActionType = "update"
	// ActionDelete removes a database row without a stored entity.
	ActionDelete ActionType = "delete"
)

// Action represents a planned mutation of one database row.
type Action struct {
	// Type specifies the action to perform.
	Type ActionType `json:"type"`

	// Ref identifies the entity. VpID is empty for database rows that were
	// never mapped.
	Ref storage.Ref `json:"ref"`

	// Key is the value of the row's key column; nil for inserts.
	Key any `json:"key,omitempty"`

	// Reason explains why this action is needed.
	Reason string `json:"reason"`

	entity storage.Entity
}

// Plan contains the planned actions of one synchronization.
type Plan struct {
	// EntityType is the synchronized type.
	EntityType string `json:"entity_type"`

	// Actions are ordered deletes, then updates, then inserts.
	Actions []Action `json:"actions"`

	// Summary provides aggregate counts.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides aggregate statistics for a plan.
type PlanSummary struct {
	// Scope counts the stored entities considered.
	Scope int `json:"scope"`
	// Inserts counts planned insert actions.
	Inserts int `json:"inserts"`
	// Updates counts planned update actions.
	Updates int `json:"updates"`
	// Deletes counts planned delete actions.
	Deletes int `json:"deletes"`
	// Unchanged counts stored entities that already match the database.
	Unchanged int `json:"unchanged"`
	// Ignored counts entities skipped by the schema's ignore rules.
	Ignored int `json:"ignored"`
}

// PendingReference is a reference column left at 0 because its target has no
// primary key yet.
type PendingReference struct {
	Ref        storage.Ref `json:"ref"`
	Table      string      `json:"table"`
	KeyColumn  string      `json:"key_column"`
	Key        any         `json:"key"`
	Column     string      `json:"column"`
	TargetType string      `json:"target_type"`
	TargetVpID string      `json:"target_vp_id"`
	// Text marks value references stored in text columns.
	Text bool `json:"-"`
}

// Result is the outcome of one synchronize call.
type Result struct {
	Plan     *Plan              `json:"plan"`
	Inserted int                `json:"inserted"`
	Updated  int                `json:"updated"`
	Deleted  int                `json:"deleted"`
	Deferred []PendingReference `json:"deferred,omitempty"`
}

// Mutations returns the number of rows written.
func (r *Result) Mutations() int {
	return r.Inserted + r.Updated + r.Deleted
}

// SyncError reports the entity at which a synchronization stopped.
type SyncError struct {
	EntityType string
	VpID       string
	Err        error
}

func (e *SyncError) Error() string {
	if e.VpID != "" {
		return fmt.Sprintf("synchronize %s %s: %v", e.EntityType, e.VpID, e.Err)
	}
	return fmt.Sprintf("synchronize %s: %v", e.EntityType, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsIntegrityError reports whether err is a referential integrity violation.
func IsIntegrityError(err error) bool {
	return errors.Is(err, reference.ErrReferentialIntegrity)
}
