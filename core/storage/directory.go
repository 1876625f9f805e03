package storage

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"path/filepath"

	"content-history/core/schema"

	"github.com/spf13/afero"
)

// DirectoryStorage stores one file per entity.
type DirectoryStorage struct {
	fs   afero.Fs
	dir  string
	info *schema.EntityInfo
}

// NewDirectoryStorage creates a storage for a flat entity type under root.
func NewDirectoryStorage(fsys afero.Fs, root string, info *schema.EntityInfo) *DirectoryStorage {
	return &DirectoryStorage{
		fs:   fsys,
		dir:  filepath.Join(root, info.Directory),
		info: info,
	}
}

// EntityInfo returns the schema of the stored type.
func (s *DirectoryStorage) EntityInfo() *schema.EntityInfo {
	return s.info
}

func (s *DirectoryStorage) path(vpID string) string {
	return filepath.Join(s.dir, fileName(vpID))
}

// Save writes the entity's fields, keeping any nested meta already in the file.
func (s *DirectoryStorage) Save(entity Entity) error {
	if entity.VpID == "" {
		return fmt.Errorf("cannot save %s without vpId", s.info.Name)
	}
	p := s.path(entity.VpID)

	doc, err := readDocument(s.fs, p)
	if errors.Is(err, ErrNotFound) {
		doc = &document{}
	} else if err != nil {
		return err
	}

	doc.Fields = maps.Clone(entity.Fields)
	if doc.Fields == nil {
		doc.Fields = map[string]string{}
	}
	if s.info.UsesGeneratedVpIDs {
		doc.Fields[schema.VpIDField] = entity.VpID
	} else {
		doc.Fields[s.info.VpIDColumn] = entity.VpID
	}
	delete(doc.Fields, s.info.IDColumn)

	return writeDocument(s.fs, p, doc)
}

// Delete removes the entity file together with its nested meta.
func (s *DirectoryStorage) Delete(entity Entity) error {
	return removeFile(s.fs, s.path(entity.VpID))
}

// Load reads the entity file.
func (s *DirectoryStorage) Load(vpID, _ string) (Entity, error) {
	doc, err := readDocument(s.fs, s.path(vpID))
	if err != nil {
		return Entity{}, err
	}
	return s.toEntity(vpID, doc), nil
}

// Exists stats the entity file.
func (s *DirectoryStorage) Exists(vpID, _ string) (bool, error) {
	ok, err := afero.Exists(s.fs, s.path(vpID))
	if err != nil {
		return false, &StorageError{Op: "stat", Path: s.path(vpID), Err: err}
	}
	return ok, nil
}

// All yields entities in vpId order.
func (s *DirectoryStorage) All() iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		ids, err := listVpIDs(s.fs, s.dir)
		if err != nil {
			yield(Entity{}, err)
			return
		}
		for _, id := range ids {
			doc, err := readDocument(s.fs, s.path(id))
			if errors.Is(err, ErrNotFound) {
				// removed after the listing was taken
				continue
			}
			if err != nil {
				if !yield(Entity{}, err) {
					return
				}
				continue
			}
			if !yield(s.toEntity(id, doc), nil) {
				return
			}
		}
	}
}

func (s *DirectoryStorage) toEntity(vpID string, doc *document) Entity {
	return Entity{
		Type:   s.info.Name,
		VpID:   vpID,
		Fields: maps.Clone(doc.Fields),
	}
}
