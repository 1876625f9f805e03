package reference

import (
	"errors"
	"fmt"
)

// ErrReferentialIntegrity marks writes that would leave a dangling reference.
var ErrReferentialIntegrity = errors.New("referential integrity violation")

// DanglingReferenceError names the entity field whose target is missing.
type DanglingReferenceError struct {
	EntityType string
	VpID       string
	Field      string
	TargetType string
	TargetVpID string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %s: field %s references missing %s %s",
		e.EntityType, e.VpID, e.Field, e.TargetType, e.TargetVpID)
}

func (e *DanglingReferenceError) Unwrap() error {
	return ErrReferentialIntegrity
}
