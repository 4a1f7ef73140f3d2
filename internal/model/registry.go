package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrModelNotFound is returned when a model name is not registered.
var ErrModelNotFound = errors.New("model not found")

// Registry holds every model known to a schema. Relations are declared on the
// registry during setup; afterwards it is read-only.
type Registry struct {
	models map[string]*Model
	names  []string
}

// NewRegistry registers the given models. Model names must be unique.
func NewRegistry(models ...*Model) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model, len(models))}
	for _, m := range models {
		if m == nil {
			return nil, fmt.Errorf("nil model")
		}
		if m.Name == "" {
			return nil, fmt.Errorf("model name is required")
		}
		if _, exists := r.models[m.Name]; exists {
			return nil, fmt.Errorf("duplicate model %q", m.Name)
		}
		if m.fieldIndex == nil {
			m.reindex()
		}
		r.models[m.Name] = m
		r.names = append(r.names, m.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Model looks up a model by name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// MustModel is Model for setup code that cannot proceed without it.
func (r *Registry) MustModel(name string) *Model {
	m, ok := r.models[name]
	if !ok {
		panic(fmt.Sprintf("%v: %s", ErrModelNotFound, name))
	}
	return m
}

// Names returns the registered model names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// HasMany declares parent.name as the target rows whose foreignKey equals the
// parent's localKey.
func (r *Registry) HasMany(parent, name, target, localKey, foreignKey string) error {
	return r.declare(Relation{
		Name:       name,
		Kind:       HasMany,
		Parent:     parent,
		Target:     target,
		LocalKey:   localKey,
		ForeignKey: foreignKey,
	})
}

// BelongsTo declares parent.name as the single target row whose foreignKey
// equals the parent's localKey.
func (r *Registry) BelongsTo(parent, name, target, localKey, foreignKey string) error {
	return r.declare(Relation{
		Name:       name,
		Kind:       BelongsTo,
		Parent:     parent,
		Target:     target,
		LocalKey:   localKey,
		ForeignKey: foreignKey,
	})
}

// JoinSpec overrides the join table layout of a many-to-many relation.
type JoinSpec struct {
	Table      string
	LocalKey   string
	ForeignKey string
}

// HasAndBelongsToMany declares a many-to-many relation through a join table.
// Unset JoinSpec members default to "<tableA>_<tableB>" (sorted) and
// "<model>_<key>" columns.
func (r *Registry) HasAndBelongsToMany(parent, name, target, localKey, foreignKey string, join JoinSpec) error {
	pm, ok := r.models[parent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, parent)
	}
	tm, ok := r.models[target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, target)
	}
	if join.Table == "" {
		tables := []string{pm.Table, tm.Table}
		sort.Strings(tables)
		join.Table = strings.Join(tables, "_")
	}
	if join.LocalKey == "" {
		join.LocalKey = pm.Name + "_" + localKey
	}
	if join.ForeignKey == "" {
		join.ForeignKey = tm.Name + "_" + foreignKey
	}
	return r.declare(Relation{
		Name:           name,
		Kind:           HasAndBelongsToMany,
		Parent:         parent,
		Target:         target,
		LocalKey:       localKey,
		ForeignKey:     foreignKey,
		JoinTable:      join.Table,
		JoinLocalKey:   join.LocalKey,
		JoinForeignKey: join.ForeignKey,
	})
}

func (r *Registry) declare(rel Relation) error {
	pm, ok := r.models[rel.Parent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, rel.Parent)
	}
	tm, ok := r.models[rel.Target]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, rel.Target)
	}
	if rel.Name == "" {
		return fmt.Errorf("relation on %s requires a name", rel.Parent)
	}
	if pm.IsRelation(rel.Name) {
		return fmt.Errorf("relation %s already declared on %s", rel.Name, rel.Parent)
	}
	if !pm.IsField(rel.LocalKey) {
		return fmt.Errorf("relation %s: local key %q is not a field of %s", rel.Name, rel.LocalKey, rel.Parent)
	}
	if !tm.IsField(rel.ForeignKey) {
		return fmt.Errorf("relation %s: foreign key %q is not a field of %s", rel.Name, rel.ForeignKey, rel.Target)
	}
	pm.Relations = append(pm.Relations, rel)
	pm.reindex()
	return nil
}
