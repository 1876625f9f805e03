package storage

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"path/filepath"
	"sort"

	"content-history/core/schema"

	"github.com/spf13/afero"
)

// MetaEntityStorage stores meta entities nested in their owner's file.
type MetaEntityStorage struct {
	fs    afero.Fs
	dir   string
	info  *schema.EntityInfo
	owner *schema.EntityInfo
}

// NewMetaEntityStorage creates a storage for a meta entity type whose owners
// live under root/owner.Directory.
func NewMetaEntityStorage(fsys afero.Fs, root string, info, owner *schema.EntityInfo) *MetaEntityStorage {
	return &MetaEntityStorage{
		fs:    fsys,
		dir:   filepath.Join(root, owner.Directory),
		info:  info,
		owner: owner,
	}
}

// EntityInfo returns the schema of the stored type.
func (s *MetaEntityStorage) EntityInfo() *schema.EntityInfo {
	return s.info
}

func (s *MetaEntityStorage) ownerPath(ownerVpID string) string {
	return filepath.Join(s.dir, fileName(ownerVpID))
}

// parentOf returns the owner's vpId from the entity or its parent field.
func (s *MetaEntityStorage) parentOf(entity Entity) string {
	if entity.ParentVpID != "" {
		return entity.ParentVpID
	}
	return entity.Fields[s.info.Parent.StorageField()]
}

// Save nests the entity in its owner's file. The owner must already exist.
func (s *MetaEntityStorage) Save(entity Entity) error {
	parent := s.parentOf(entity)
	if entity.VpID == "" || parent == "" {
		return fmt.Errorf("cannot save %s without vpId and owner", s.info.Name)
	}
	p := s.ownerPath(parent)

	doc, err := readDocument(s.fs, p)
	if errors.Is(err, ErrNotFound) {
		return &StorageError{Op: "save", Path: p, Err: ErrOwnerNotFound}
	}
	if err != nil {
		return err
	}

	fields := maps.Clone(entity.Fields)
	if fields == nil {
		fields = map[string]string{}
	}
	fields[schema.VpIDField] = entity.VpID
	fields[s.info.Parent.StorageField()] = parent
	delete(fields, s.info.IDColumn)

	if doc.Meta == nil {
		doc.Meta = map[string]map[string]map[string]string{}
	}
	bucket := doc.Meta[s.info.Name]
	if bucket == nil {
		bucket = map[string]map[string]string{}
		doc.Meta[s.info.Name] = bucket
	}
	// the meta key may have changed since the last save
	for k := range bucket {
		if vpIDFromMetaKey(k) == entity.VpID {
			delete(bucket, k)
		}
	}
	bucket[metaKey(fields[s.info.MetaKeyColumn], entity.VpID)] = fields

	return writeDocument(s.fs, p, doc)
}

// Delete removes the entity from its owner's file. A missing owner or
// missing entity is a no-op.
func (s *MetaEntityStorage) Delete(entity Entity) error {
	parent := s.parentOf(entity)
	if parent == "" {
		found, err := s.findOwner(entity.VpID)
		if err != nil || found == "" {
			return err
		}
		parent = found
	}
	p := s.ownerPath(parent)

	doc, err := readDocument(s.fs, p)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	bucket := doc.Meta[s.info.Name]
	removed := false
	for k := range bucket {
		if vpIDFromMetaKey(k) == entity.VpID {
			delete(bucket, k)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	if len(bucket) == 0 {
		delete(doc.Meta, s.info.Name)
	}
	return writeDocument(s.fs, p, doc)
}

// Load returns the meta entity. When parentVpID is empty every owner file is
// searched.
func (s *MetaEntityStorage) Load(vpID, parentVpID string) (Entity, error) {
	if parentVpID == "" {
		found, err := s.findOwner(vpID)
		if err != nil {
			return Entity{}, err
		}
		if found == "" {
			return Entity{}, ErrNotFound
		}
		parentVpID = found
	}

	doc, err := readDocument(s.fs, s.ownerPath(parentVpID))
	if err != nil {
		return Entity{}, err
	}
	for k, fields := range doc.Meta[s.info.Name] {
		if vpIDFromMetaKey(k) == vpID {
			return s.toEntity(vpID, parentVpID, fields), nil
		}
	}
	return Entity{}, ErrNotFound
}

// Exists checks the owner's meta index without decoding field values.
func (s *MetaEntityStorage) Exists(vpID, parentVpID string) (bool, error) {
	if parentVpID == "" {
		found, err := s.findOwner(vpID)
		return found != "", err
	}
	idx, err := readMetaIndex(s.fs, s.ownerPath(parentVpID))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for k := range idx.Meta[s.info.Name] {
		if vpIDFromMetaKey(k) == vpID {
			return true, nil
		}
	}
	return false, nil
}

// All yields meta entities grouped by owner, owners in vpId order.
func (s *MetaEntityStorage) All() iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		owners, err := listVpIDs(s.fs, s.dir)
		if err != nil {
			yield(Entity{}, err)
			return
		}
		for _, owner := range owners {
			entities, err := s.ForOwner(owner)
			if err != nil {
				if !yield(Entity{}, err) {
					return
				}
				continue
			}
			for _, e := range entities {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// ForOwner returns every meta entity of this type stored in the owner's file,
// sorted by key.
func (s *MetaEntityStorage) ForOwner(ownerVpID string) ([]Entity, error) {
	doc, err := readDocument(s.fs, s.ownerPath(ownerVpID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bucket := doc.Meta[s.info.Name]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Entity, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.toEntity(vpIDFromMetaKey(k), ownerVpID, bucket[k]))
	}
	return out, nil
}

func (s *MetaEntityStorage) findOwner(vpID string) (string, error) {
	owners, err := listVpIDs(s.fs, s.dir)
	if err != nil {
		return "", err
	}
	for _, owner := range owners {
		idx, err := readMetaIndex(s.fs, s.ownerPath(owner))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		for k := range idx.Meta[s.info.Name] {
			if vpIDFromMetaKey(k) == vpID {
				return owner, nil
			}
		}
	}
	return "", nil
}

func (s *MetaEntityStorage) toEntity(vpID, parentVpID string, fields map[string]string) Entity {
	f := maps.Clone(fields)
	if f == nil {
		f = map[string]string{}
	}
	return Entity{
		Type:       s.info.Name,
		VpID:       vpID,
		ParentVpID: parentVpID,
		Fields:     f,
	}
}
