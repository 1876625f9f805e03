package storage

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const fileExtension = ".yml"

// document is the on-disk layout of one entity file.
type document struct {
	Fields map[string]string `yaml:"fields"`
	// Meta holds nested meta entities: meta type -> "<key>#<vpId>" -> fields.
	Meta map[string]map[string]map[string]string `yaml:"meta,omitempty"`
}

// metaIndex decodes only the nested meta keys of a document.
type metaIndex struct {
	Meta map[string]map[string]yaml.Node `yaml:"meta"`
}

func fileName(vpID string) string {
	return url.PathEscape(vpID) + fileExtension
}

func vpIDFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileExtension) {
		return "", false
	}
	id, err := url.PathUnescape(strings.TrimSuffix(name, fileExtension))
	if err != nil {
		return "", false
	}
	return id, true
}

func readDocument(fsys afero.Fs, p string) (*document, error) {
	data, err := afero.ReadFile(fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "read", Path: p, Err: err}
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &StorageError{Op: "decode", Path: p, Err: err}
	}
	if doc.Fields == nil {
		doc.Fields = map[string]string{}
	}
	return &doc, nil
}

func readMetaIndex(fsys afero.Fs, p string) (*metaIndex, error) {
	data, err := afero.ReadFile(fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "read", Path: p, Err: err}
	}
	var idx metaIndex
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, &StorageError{Op: "decode", Path: p, Err: err}
	}
	return &idx, nil
}

func writeDocument(fsys afero.Fs, p string, doc *document) error {
	if err := fsys.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: filepath.Dir(p), Err: err}
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return &StorageError{Op: "encode", Path: p, Err: err}
	}
	if err := afero.WriteFile(fsys, p, data, 0o644); err != nil {
		return &StorageError{Op: "write", Path: p, Err: err}
	}
	return nil
}

func removeFile(fsys afero.Fs, p string) error {
	if err := fsys.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &StorageError{Op: "remove", Path: p, Err: err}
	}
	return nil
}

// listVpIDs returns the sorted vpIds of every entity file in dir.
func listVpIDs(fsys afero.Fs, dir string) ([]string, error) {
	infos, err := afero.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Path: dir, Err: err}
	}
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if id, ok := vpIDFromFileName(info.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func metaKey(key, vpID string) string {
	return key + "#" + vpID
}

func vpIDFromMetaKey(k string) string {
	if i := strings.LastIndex(k, "#"); i >= 0 {
		return k[i+1:]
	}
	return k
}
