package reference

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"content-history/core/schema"
	"content-history/core/storage"
	"content-history/core/utils"
)

// Identifiers translates between vpIds and primary keys.
type Identifiers interface {
	ResolveToPrimaryKey(ctx context.Context, entityTable, vpID string) (int64, bool, error)
	ResolveToVpID(ctx context.Context, entityTable string, pk int64) (string, bool, error)
}

// Lookup reports whether an entity exists in storage.
type Lookup interface {
	Exists(entityType, vpID string) (bool, error)
}

// StorageLookup answers Lookup from a storage factory.
type StorageLookup struct {
	Factory *storage.Factory
}

// Exists checks the storage of entityType.
func (l StorageLookup) Exists(entityType, vpID string) (bool, error) {
	s, ok := l.Factory.Storage(entityType)
	if !ok {
		return false, fmt.Errorf("no storage for entity type %q", entityType)
	}
	return s.Exists(vpID, "")
}

// Deferred is a reference that could not be resolved yet because its target
// has no primary key.
type Deferred struct {
	// Column is the database column left at 0.
	Column     string
	TargetType string
	TargetVpID string
}

// Resolved is an entity in database form.
type Resolved struct {
	// Values maps columns to values. A nil value means NULL.
	Values   map[string]any
	Deferred []Deferred
}

// Resolver converts entities between storage and database form.
type Resolver struct {
	schema *schema.Info
	ids    Identifiers
}

// NewResolver creates a resolver over the schema and identifier mapping.
func NewResolver(info *schema.Info, ids Identifiers) *Resolver {
	return &Resolver{schema: info, ids: ids}
}

// isEmptyRef reports whether a stored reference value means "no reference".
func isEmptyRef(v string) bool {
	return v == "" || v == "0"
}

// ResolveForWrite converts a storage entity into database column values.
// The id column and vp_id are never part of the result.
func (r *Resolver) ResolveForWrite(ctx context.Context, info *schema.EntityInfo, entity storage.Entity, lookup Lookup) (*Resolved, error) {
	out := &Resolved{Values: make(map[string]any, len(entity.Fields))}

	refs := make(map[string]schema.Reference)
	for _, ref := range info.AllReferences() {
		refs[ref.StorageField()] = ref
	}

	for field, value := range entity.Fields {
		if field == schema.VpIDField || field == info.IDColumn {
			continue
		}
		ref, isRef := refs[field]
		if !isRef {
			if !strings.HasPrefix(field, schema.ReferencePrefix) {
				out.Values[field] = value
			}
			continue
		}
		if info.Parent != nil && ref.Column == info.Parent.Column && isEmptyRef(value) {
			value = entity.ParentVpID
		}
		resolved, deferred, err := r.resolveTarget(ctx, info, entity, field, ref.Target, value, lookup)
		if err != nil {
			return nil, err
		}
		out.Values[ref.Column] = resolved
		if deferred {
			out.Deferred = append(out.Deferred, Deferred{Column: ref.Column, TargetType: ref.Target, TargetVpID: value})
		}
	}

	// a parent reference may only be known from the entity itself
	if info.Parent != nil {
		if _, ok := out.Values[info.Parent.Column]; !ok && entity.ParentVpID != "" {
			resolved, deferred, err := r.resolveTarget(ctx, info, entity, info.Parent.StorageField(), info.Parent.Target, entity.ParentVpID, lookup)
			if err != nil {
				return nil, err
			}
			out.Values[info.Parent.Column] = resolved
			if deferred {
				out.Deferred = append(out.Deferred, Deferred{Column: info.Parent.Column, TargetType: info.Parent.Target, TargetVpID: entity.ParentVpID})
			}
		}
	}

	for _, vr := range info.ValueReferences {
		target, ok := vr.TargetFor(entity.Fields[vr.SourceColumn])
		if !ok {
			continue
		}
		value, ok := entity.Fields[vr.ValueColumn]
		if !ok {
			continue
		}
		resolved, deferred, err := r.resolveTarget(ctx, info, entity, vr.ValueColumn, target, value, lookup)
		if err != nil {
			return nil, err
		}
		out.Values[vr.ValueColumn] = utils.ToString(resolved)
		if deferred {
			out.Deferred = append(out.Deferred, Deferred{Column: vr.ValueColumn, TargetType: target, TargetVpID: value})
		}
	}

	return out, nil
}

// resolveTarget maps a referenced vpId to its database value.
func (r *Resolver) resolveTarget(ctx context.Context, info *schema.EntityInfo, entity storage.Entity, field, targetType, vpID string, lookup Lookup) (any, bool, error) {
	if isEmptyRef(vpID) {
		return int64(0), false, nil
	}
	target, ok := r.schema.Entity(targetType)
	if !ok {
		return nil, false, fmt.Errorf("unknown reference target %q", targetType)
	}
	if !target.UsesGeneratedVpIDs {
		return vpID, false, nil
	}

	pk, ok, err := r.ids.ResolveToPrimaryKey(ctx, target.Table, vpID)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return pk, false, nil
	}

	exists := false
	if lookup != nil {
		exists, err = lookup.Exists(targetType, vpID)
		if err != nil {
			return nil, false, err
		}
	}
	if !exists {
		return nil, false, &DanglingReferenceError{
			EntityType: info.Name,
			VpID:       entity.VpID,
			Field:      field,
			TargetType: targetType,
			TargetVpID: vpID,
		}
	}
	return int64(0), true, nil
}

// ResolveDeferred resolves a single deferred reference. ok is false while
// the target still has no primary key.
func (r *Resolver) ResolveDeferred(ctx context.Context, d Deferred) (int64, bool, error) {
	target, ok := r.schema.Entity(d.TargetType)
	if !ok {
		return 0, false, fmt.Errorf("unknown reference target %q", d.TargetType)
	}
	return r.ids.ResolveToPrimaryKey(ctx, target.Table, d.TargetVpID)
}

// ResolveForRead converts a database row into storage form. The returned
// entity has an empty VpID when the row has no identifier yet.
func (r *Resolver) ResolveForRead(ctx context.Context, info *schema.EntityInfo, row map[string]any) (storage.Entity, error) {
	entity := storage.Entity{Type: info.Name, Fields: make(map[string]string, len(row))}

	if info.UsesGeneratedVpIDs {
		pk := utils.ToInt64(row[info.IDColumn])
		vpID, ok, err := r.ids.ResolveToVpID(ctx, info.Table, pk)
		if err != nil {
			return storage.Entity{}, err
		}
		if ok {
			entity.VpID = vpID
			entity.Fields[schema.VpIDField] = vpID
		}
	} else if v := row[info.VpIDColumn]; v != nil {
		entity.VpID = utils.ToString(v)
	}

	refs := make(map[string]schema.Reference)
	for _, ref := range info.AllReferences() {
		refs[ref.Column] = ref
	}

	for column, value := range row {
		if column == info.IDColumn || value == nil || info.IsIgnoredColumn(column) {
			continue
		}
		ref, isRef := refs[column]
		if !isRef {
			entity.Fields[column] = utils.ToString(value)
			continue
		}
		vpID, ok, err := r.targetVpID(ctx, ref.Target, utils.ToString(value))
		if err != nil {
			return storage.Entity{}, err
		}
		if ok {
			entity.Fields[ref.StorageField()] = vpID
		}
	}

	for _, vr := range info.ValueReferences {
		target, ok := vr.TargetFor(entity.Fields[vr.SourceColumn])
		if !ok {
			continue
		}
		raw, ok := entity.Fields[vr.ValueColumn]
		if !ok {
			continue
		}
		vpID, ok, err := r.targetVpID(ctx, target, raw)
		if err != nil {
			return storage.Entity{}, err
		}
		if ok {
			entity.Fields[vr.ValueColumn] = vpID
		}
	}

	if info.Parent != nil {
		entity.ParentVpID = entity.Fields[info.Parent.StorageField()]
	}
	return entity, nil
}

// targetVpID maps a stored primary key to the target's vpId. Zero maps to "0";
// values that are not numeric or have no mapping report ok=false.
func (r *Resolver) targetVpID(ctx context.Context, targetType, raw string) (string, bool, error) {
	target, ok := r.schema.Entity(targetType)
	if !ok {
		return "", false, fmt.Errorf("unknown reference target %q", targetType)
	}
	if !target.UsesGeneratedVpIDs {
		return raw, raw != "", nil
	}
	pk, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return "", false, nil
	}
	if pk == 0 {
		return "0", true, nil
	}
	return r.ids.ResolveToVpID(ctx, target.Table, pk)
}
