package schema

import (
	"fmt"
	"strings"
)

// ReferencePrefix is prepended to a reference column to form its storage field.
const ReferencePrefix = "vp_"

// VpIDField is the storage field holding an entity's vpId.
const VpIDField = "vp_id"

// Reference declares that Column holds the primary key of a Target entity.
type Reference struct {
	Column string `yaml:"column"`
	Target string `yaml:"target"`
}

// StorageField returns the field name under which the reference is stored.
func (r Reference) StorageField() string {
	return ReferencePrefix + r.Column
}

// ValueReference declares that ValueColumn references an entity whenever
// SourceColumn holds one of the keys of Targets.
type ValueReference struct {
	SourceColumn string            `yaml:"source_column"`
	ValueColumn  string            `yaml:"value_column"`
	Targets      map[string]string `yaml:"targets"`
}

// TargetFor returns the referenced entity type for the given source value.
func (v ValueReference) TargetFor(source string) (string, bool) {
	t, ok := v.Targets[source]
	return t, ok
}

// IgnoreRule matches rows whose Column equals one of Values.
// A value ending in "%" matches by prefix.
type IgnoreRule struct {
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

// Matches reports whether the fields satisfy the rule.
func (r IgnoreRule) Matches(fields map[string]string) bool {
	v, ok := fields[r.Column]
	if !ok {
		return false
	}
	for _, candidate := range r.Values {
		if strings.HasSuffix(candidate, "%") {
			if strings.HasPrefix(v, strings.TrimSuffix(candidate, "%")) {
				return true
			}
			continue
		}
		if v == candidate {
			return true
		}
	}
	return false
}

// EntityInfo describes a single entity type.
type EntityInfo struct {
	// Name is the entity type name, e.g. "post".
	Name string `yaml:"name"`
	// Table is the table name without the database prefix.
	Table string `yaml:"table"`
	// IDColumn is the auto-increment primary key column.
	IDColumn string `yaml:"id_column"`
	// VpIDColumn is the natural key column for entities that do not use
	// generated vpIds (options). Empty otherwise.
	VpIDColumn string `yaml:"vpid_column"`
	// UsesGeneratedVpIDs is false for entities identified by a natural key.
	UsesGeneratedVpIDs bool `yaml:"generated_vpids"`
	// Directory is the storage directory for the type, relative to the storage root.
	Directory string `yaml:"directory"`
	// Parent marks a meta entity and names the column referencing its owner.
	Parent *Reference `yaml:"parent"`
	// MetaKeyColumn names the column a meta entity is keyed by inside its
	// owner's file (meta_key, taxonomy).
	MetaKeyColumn string `yaml:"meta_key_column"`
	// References lists plain reference columns.
	References []Reference `yaml:"references"`
	// ValueReferences lists conditional references.
	ValueReferences []ValueReference `yaml:"value_references"`
	// IgnoredEntities selects rows that are never synchronized.
	IgnoredEntities []IgnoreRule `yaml:"ignored_entities"`
	// IgnoredColumns are never written to storage or compared.
	IgnoredColumns []string `yaml:"ignored_columns"`
	// ShortcodeFields are text columns that may contain shortcodes.
	ShortcodeFields []string `yaml:"shortcode_fields"`
}

// IsMeta reports whether the entity is stored nested inside its owner.
func (e *EntityInfo) IsMeta() bool {
	return e.Parent != nil
}

// KeyColumn is the column that identifies the row in the database.
func (e *EntityInfo) KeyColumn() string {
	if e.UsesGeneratedVpIDs {
		return e.IDColumn
	}
	return e.VpIDColumn
}

// AllReferences returns Parent (if any) followed by References.
func (e *EntityInfo) AllReferences() []Reference {
	refs := make([]Reference, 0, len(e.References)+1)
	if e.Parent != nil {
		refs = append(refs, *e.Parent)
	}
	return append(refs, e.References...)
}

// IsIgnored reports whether any ignore rule matches.
func (e *EntityInfo) IsIgnored(fields map[string]string) bool {
	for _, rule := range e.IgnoredEntities {
		if rule.Matches(fields) {
			return true
		}
	}
	return false
}

// IsIgnoredColumn reports whether the column is excluded from versioning.
func (e *EntityInfo) IsIgnoredColumn(column string) bool {
	for _, c := range e.IgnoredColumns {
		if c == column {
			return true
		}
	}
	return false
}

// ReferencedTypes returns every entity type this entity may reference.
func (e *EntityInfo) ReferencedTypes() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, r := range e.AllReferences() {
		add(r.Target)
	}
	for _, vr := range e.ValueReferences {
		for _, t := range vr.Targets {
			add(t)
		}
	}
	return out
}

// Shortcode maps attributes of a shortcode to the entity type their
// comma-separated values reference, e.g. gallery: {ids: post}.
type Shortcode struct {
	Name       string            `yaml:"name"`
	Attributes map[string]string `yaml:"attributes"`
}

// Info is the complete schema.
type Info struct {
	Entities   []*EntityInfo `yaml:"entities"`
	Shortcodes []Shortcode   `yaml:"shortcodes"`

	byName map[string]*EntityInfo
}

// New indexes the entities and validates cross references.
func New(entities []*EntityInfo, shortcodes []Shortcode) (*Info, error) {
	info := &Info{Entities: entities, Shortcodes: shortcodes}
	if err := info.index(); err != nil {
		return nil, err
	}
	return info, nil
}

func (i *Info) index() error {
	i.byName = make(map[string]*EntityInfo, len(i.Entities))
	for _, e := range i.Entities {
		if e.Name == "" || e.Table == "" {
			return fmt.Errorf("entity definition requires name and table")
		}
		if _, dup := i.byName[e.Name]; dup {
			return fmt.Errorf("duplicate entity %q", e.Name)
		}
		if !e.UsesGeneratedVpIDs && e.VpIDColumn == "" {
			return fmt.Errorf("entity %q needs vpid_column when generated vpIds are disabled", e.Name)
		}
		if e.Parent != nil && e.MetaKeyColumn == "" {
			return fmt.Errorf("meta entity %q needs meta_key_column", e.Name)
		}
		if e.Directory == "" {
			e.Directory = e.Table
		}
		i.byName[e.Name] = e
	}
	for _, e := range i.Entities {
		for _, t := range e.ReferencedTypes() {
			if _, ok := i.byName[t]; !ok {
				return fmt.Errorf("entity %q references unknown entity %q", e.Name, t)
			}
		}
	}
	for _, sc := range i.Shortcodes {
		for attr, t := range sc.Attributes {
			if _, ok := i.byName[t]; !ok {
				return fmt.Errorf("shortcode %s attribute %s references unknown entity %q", sc.Name, attr, t)
			}
		}
	}
	return nil
}

// Entity returns the entity definition by name.
func (i *Info) Entity(name string) (*EntityInfo, bool) {
	e, ok := i.byName[name]
	return e, ok
}

// MustEntity returns the entity definition or panics. Intended for tests and
// built-in names.
func (i *Info) MustEntity(name string) *EntityInfo {
	e, ok := i.byName[name]
	if !ok {
		panic("schema: unknown entity " + name)
	}
	return e
}

// Names returns entity names in declaration order.
func (i *Info) Names() []string {
	names := make([]string, len(i.Entities))
	for idx, e := range i.Entities {
		names[idx] = e.Name
	}
	return names
}

// MetaOf returns the meta entities owned by the given entity type.
func (i *Info) MetaOf(owner string) []*EntityInfo {
	var out []*EntityInfo
	for _, e := range i.Entities {
		if e.Parent != nil && e.Parent.Target == owner {
			out = append(out, e)
		}
	}
	return out
}

// ReferrersOf returns the entity types that may reference target.
func (i *Info) ReferrersOf(target string) []*EntityInfo {
	var out []*EntityInfo
	for _, e := range i.Entities {
		for _, t := range e.ReferencedTypes() {
			if t == target {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
