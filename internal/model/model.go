// Package model describes the object-relational models the resolver layer reads:
// tables, their own fields and their declared relations.
package model

import (
	"fmt"
	"sort"

	"github.com/jinzhu/inflection"
)

// Row is a single record as returned by a store and handed to graphql-go.
type Row = map[string]interface{}

// FullCountField is the row key carrying the total size of the result set a row
// belongs to when a count was requested.
const FullCountField = "__fullCount"

// DefaultPrimaryKey is used when a model does not name its primary key.
const DefaultPrimaryKey = "id"

// FieldKind classifies a model field.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindObject
	KindArray
	// KindVirtual fields are computed and never projected from storage.
	KindVirtual
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// ScalarType is the storage type of a scalar field.
type ScalarType string

const (
	TypeString  ScalarType = "string"
	TypeInt     ScalarType = "int"
	TypeFloat   ScalarType = "float"
	TypeBoolean ScalarType = "boolean"
	TypeDate    ScalarType = "date"
	TypeID      ScalarType = "id"
)

// Field is one declared attribute of a model.
type Field struct {
	Name        string
	Kind        FieldKind
	Type        ScalarType
	Required    bool
	Description string
	// Enum restricts a scalar to a fixed value set.
	Enum []string
	// Fields describes the members of an object field, or the element of an
	// array field (a single entry).
	Fields []Field
}

// Model is a table-backed entity with fields and relations.
type Model struct {
	Name       string
	Table      string
	PrimaryKey string
	Fields     []Field
	Relations  []Relation

	fieldIndex    map[string]int
	relationIndex map[string]int
}

// ModelOption customizes a model at construction.
type ModelOption func(*Model)

// WithTable overrides the default pluralized table name.
func WithTable(table string) ModelOption {
	return func(m *Model) {
		m.Table = table
	}
}

// WithPrimaryKey overrides the default "id" primary key.
func WithPrimaryKey(pk string) ModelOption {
	return func(m *Model) {
		m.PrimaryKey = pk
	}
}

// New creates a model. The table name defaults to the plural of the model name.
func New(name string, fields []Field, opts ...ModelOption) *Model {
	m := &Model{
		Name:       name,
		Table:      inflection.Plural(name),
		PrimaryKey: DefaultPrimaryKey,
		Fields:     append([]Field(nil), fields...),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reindex()
	return m
}

func (m *Model) reindex() {
	m.fieldIndex = make(map[string]int, len(m.Fields))
	for i, f := range m.Fields {
		m.fieldIndex[f.Name] = i
	}
	m.relationIndex = make(map[string]int, len(m.Relations))
	for i, r := range m.Relations {
		m.relationIndex[r.Name] = i
	}
}

// Field looks up a declared field by name.
func (m *Model) Field(name string) (Field, bool) {
	i, ok := m.fieldIndex[name]
	if !ok {
		return Field{}, false
	}
	return m.Fields[i], true
}

// Relation looks up a declared relation by name.
func (m *Model) Relation(name string) (*Relation, bool) {
	i, ok := m.relationIndex[name]
	if !ok {
		return nil, false
	}
	return &m.Relations[i], true
}

// IsRelation reports whether name is a declared relation.
func (m *Model) IsRelation(name string) bool {
	_, ok := m.relationIndex[name]
	return ok
}

// HasAttribute reports whether name can be projected from storage: the primary
// key or an own, non-virtual field that is not shadowed by a relation.
func (m *Model) HasAttribute(name string) bool {
	if name == m.PrimaryKey {
		return true
	}
	if m.IsRelation(name) {
		return false
	}
	f, ok := m.Field(name)
	return ok && f.Kind != KindVirtual
}

// IsField reports whether name is the primary key or any declared field.
func (m *Model) IsField(name string) bool {
	if name == m.PrimaryKey {
		return true
	}
	_, ok := m.fieldIndex[name]
	return ok
}

// Attributes returns every projectable attribute, primary key first.
func (m *Model) Attributes() []string {
	attrs := []string{m.PrimaryKey}
	for _, f := range m.Fields {
		if f.Name == m.PrimaryKey || f.Kind == KindVirtual || m.IsRelation(f.Name) {
			continue
		}
		attrs = append(attrs, f.Name)
	}
	return attrs
}

// RelationNames returns the declared relation names in sorted order.
func (m *Model) RelationNames() []string {
	names := make([]string, 0, len(m.Relations))
	for _, r := range m.Relations {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}
