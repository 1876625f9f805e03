package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"content-history/core/schema"

	"github.com/spf13/afero"
)

// Factory builds and caches one storage per entity type.
type Factory struct {
	fs       afero.Fs
	root     string
	schema   *schema.Info
	storages map[string]EntityStorage
}

// NewFactory creates storages for every entity in the schema, rooted at root.
func NewFactory(fsys afero.Fs, root string, info *schema.Info) *Factory {
	f := &Factory{
		fs:       fsys,
		root:     root,
		schema:   info,
		storages: make(map[string]EntityStorage, len(info.Entities)),
	}
	for _, e := range info.Entities {
		if e.IsMeta() {
			owner := info.MustEntity(e.Parent.Target)
			f.storages[e.Name] = NewMetaEntityStorage(fsys, root, e, owner)
			continue
		}
		f.storages[e.Name] = NewDirectoryStorage(fsys, root, e)
	}
	return f
}

// Root returns the storage root directory.
func (f *Factory) Root() string {
	return f.root
}

// Schema returns the schema the storages were built from.
func (f *Factory) Schema() *schema.Info {
	return f.schema
}

// Storage returns the storage for an entity type.
func (f *Factory) Storage(entityName string) (EntityStorage, bool) {
	s, ok := f.storages[entityName]
	return s, ok
}

// MustStorage returns the storage for an entity type or panics.
func (f *Factory) MustStorage(entityName string) EntityStorage {
	s, ok := f.storages[entityName]
	if !ok {
		panic("storage: unknown entity " + entityName)
	}
	return s
}

// PathFor returns the file holding the entity, relative to the storage root.
// Meta entities live in their owner's file.
func (f *Factory) PathFor(ref Ref) (string, error) {
	info, ok := f.schema.Entity(ref.Type)
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", ref.Type)
	}
	if info.IsMeta() {
		if ref.ParentVpID == "" {
			return "", fmt.Errorf("%s %s has no owner", ref.Type, ref.VpID)
		}
		owner := f.schema.MustEntity(info.Parent.Target)
		return filepath.Join(owner.Directory, fileName(ref.ParentVpID)), nil
	}
	return filepath.Join(info.Directory, fileName(ref.VpID)), nil
}

// RefsForPath returns the entities the file at relPath currently holds: the
// owner itself followed by its nested meta entities. A missing file yields
// just the owner ref so callers can still observe a deletion. Paths outside
// any entity directory yield nothing.
func (f *Factory) RefsForPath(relPath string) ([]Ref, error) {
	relPath = filepath.Clean(relPath)
	dir, name := filepath.Split(relPath)
	dir = strings.TrimSuffix(dir, string(filepath.Separator))

	vpID, ok := vpIDFromFileName(name)
	if !ok {
		return nil, nil
	}

	var owner *schema.EntityInfo
	for _, e := range f.schema.Entities {
		if !e.IsMeta() && e.Directory == dir {
			owner = e
			break
		}
	}
	if owner == nil {
		return nil, nil
	}

	refs := []Ref{{Type: owner.Name, VpID: vpID}}
	doc, err := readDocument(f.fs, filepath.Join(f.root, relPath))
	if errors.Is(err, ErrNotFound) {
		return refs, nil
	}
	if err != nil {
		return nil, err
	}
	for _, meta := range f.schema.MetaOf(owner.Name) {
		keys := make([]string, 0, len(doc.Meta[meta.Name]))
		for k := range doc.Meta[meta.Name] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			refs = append(refs, Ref{Type: meta.Name, VpID: vpIDFromMetaKey(k), ParentVpID: vpID})
		}
	}
	return refs, nil
}
