package reference

import (
	"context"
	"fmt"

	"content-history/core/schema"
	"content-history/core/storage"
)

// Finder searches storage for entities referencing a given entity.
type Finder struct {
	factory *storage.Factory
}

// NewFinder creates a finder over the storages of factory.
func NewFinder(factory *storage.Factory) *Finder {
	return &Finder{factory: factory}
}

// Referrer is a stored entity field pointing at the searched entity.
type Referrer struct {
	Ref   storage.Ref
	Field string
}

// ReferencesTo returns every stored entity that references targetType/vpID.
// Meta entities owned by the target are included.
func (f *Finder) ReferencesTo(ctx context.Context, targetType, vpID string) ([]Referrer, error) {
	var out []Referrer
	for _, info := range f.factory.Schema().ReferrersOf(targetType) {
		s, ok := f.factory.Storage(info.Name)
		if !ok {
			continue
		}
		for entity, err := range s.All() {
			if err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if field, ok := referencing(info, entity, targetType, vpID); ok {
				out = append(out, Referrer{Ref: entity.Ref(), Field: field})
			}
		}
	}
	return out, nil
}

// referencing returns the first field of entity pointing at targetType/vpID.
func referencing(info *schema.EntityInfo, entity storage.Entity, targetType, vpID string) (string, bool) {
	for _, ref := range info.AllReferences() {
		if ref.Target != targetType {
			continue
		}
		if entity.Fields[ref.StorageField()] == vpID {
			return ref.StorageField(), true
		}
		if info.Parent != nil && ref.Column == info.Parent.Column && entity.ParentVpID == vpID {
			return ref.StorageField(), true
		}
	}
	for _, vr := range info.ValueReferences {
		target, ok := vr.TargetFor(entity.Fields[vr.SourceColumn])
		if ok && target == targetType && entity.Fields[vr.ValueColumn] == vpID {
			return vr.ValueColumn, true
		}
	}
	return "", false
}

// MissingTargets returns the references of entity whose targets are not in
// storage. Empty references and natural-key targets are not checked.
func (f *Finder) MissingTargets(ctx context.Context, entity storage.Entity) ([]*DanglingReferenceError, error) {
	info, ok := f.factory.Schema().Entity(entity.Type)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q", entity.Type)
	}
	lookup := StorageLookup{Factory: f.factory}

	var missing []*DanglingReferenceError
	check := func(field, targetType, vpID string) error {
		if isEmptyRef(vpID) {
			return nil
		}
		target, ok := f.factory.Schema().Entity(targetType)
		if !ok || !target.UsesGeneratedVpIDs {
			return nil
		}
		exists, err := lookup.Exists(targetType, vpID)
		if err != nil {
			return err
		}
		if !exists {
			missing = append(missing, &DanglingReferenceError{
				EntityType: entity.Type,
				VpID:       entity.VpID,
				Field:      field,
				TargetType: targetType,
				TargetVpID: vpID,
			})
		}
		return nil
	}

	for _, ref := range info.AllReferences() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value := entity.Fields[ref.StorageField()]
		if info.Parent != nil && ref.Column == info.Parent.Column && isEmptyRef(value) {
			value = entity.ParentVpID
		}
		if err := check(ref.StorageField(), ref.Target, value); err != nil {
			return nil, err
		}
	}
	for _, vr := range info.ValueReferences {
		target, ok := vr.TargetFor(entity.Fields[vr.SourceColumn])
		if !ok {
			continue
		}
		if err := check(vr.ValueColumn, target, entity.Fields[vr.ValueColumn]); err != nil {
			return nil, err
		}
	}
	return missing, nil
}
