package storage

import (
	"errors"
	"fmt"
	"iter"
	"maps"

	"content-history/core/schema"
)

var (
	// ErrNotFound is returned by Load when the entity is not in storage.
	ErrNotFound = errors.New("entity not found in storage")

	// ErrOwnerNotFound is returned when a meta entity is saved before its owner.
	ErrOwnerNotFound = errors.New("owner entity not found in storage")
)

// StorageError reports a failed file operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Entity is one semantic row in storage form.
// Reference fields hold vpIds under "vp_<column>"; an absent key means NULL.
type Entity struct {
	Type       string
	VpID       string
	ParentVpID string
	Fields     map[string]string
}

// Clone returns a deep copy.
func (e Entity) Clone() Entity {
	c := e
	c.Fields = maps.Clone(e.Fields)
	if c.Fields == nil {
		c.Fields = map[string]string{}
	}
	return c
}

// Ref returns the identity of the entity.
func (e Entity) Ref() Ref {
	return Ref{Type: e.Type, VpID: e.VpID, ParentVpID: e.ParentVpID}
}

// Ref identifies an entity without its content. ParentVpID is the owner's
// vpId for meta entities and empty otherwise.
type Ref struct {
	Type       string `json:"type"`
	VpID       string `json:"vp_id"`
	ParentVpID string `json:"parent,omitempty"`
}

func (r Ref) String() string {
	if r.ParentVpID != "" {
		return r.Type + "/" + r.ParentVpID + "/" + r.VpID
	}
	return r.Type + "/" + r.VpID
}

// EntityStorage is the file-backed representation of one entity type.
type EntityStorage interface {
	// EntityInfo returns the schema of the stored type.
	EntityInfo() *schema.EntityInfo
	// Save creates or overwrites the entity.
	Save(entity Entity) error
	// Delete removes the entity. Deleting an absent entity is not an error.
	Delete(entity Entity) error
	// Load returns the entity or ErrNotFound. parentVpID is only used by
	// meta storages and may be empty if unknown.
	Load(vpID, parentVpID string) (Entity, error)
	// Exists checks for the entity without decoding it.
	Exists(vpID, parentVpID string) (bool, error)
	// All yields every entity currently stored. Each call takes a fresh
	// snapshot of the file listing.
	All() iter.Seq2[Entity, error]
}
