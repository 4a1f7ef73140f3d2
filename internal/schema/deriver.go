package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"relayloader/internal/model"
	"relayloader/internal/naming"
	"relayloader/internal/nodeid"
	"relayloader/internal/scalars"

	"github.com/graphql-go/graphql"
)

// TypeOptions shapes the type derived from one model.
type TypeOptions struct {
	// Name overrides the PascalCase model name.
	Name        string
	Description string
	// Exclude drops fields; Only keeps just the listed ones. Both use model
	// field names.
	Exclude []string
	Only    []string
	// Rename maps model field names to GraphQL field names.
	Rename map[string]string
	// AllowNull keeps required fields nullable.
	AllowNull bool
	// GlobalID exposes the relay global id as id and the raw key as
	// <model>ID.
	GlobalID bool
	// Fields adds fields, typically relations, once the schema is assembled.
	Fields graphql.FieldsThunk
	// Interfaces are implemented by the derived object.
	Interfaces []*graphql.Interface
}

// Deriver builds GraphQL types from models. It is safe for concurrent use.
type Deriver struct {
	mapper TypeMapper
	namer  *naming.Namer

	mu      sync.Mutex
	types   map[string]graphql.Output // source -> derived enum or nested object
	objects map[string]*graphql.Object
}

// NewDeriver creates a Deriver. A non-nil mapper runs before DefaultMapper.
func NewDeriver(mapper TypeMapper, namer *naming.Namer) *Deriver {
	if namer == nil {
		namer = naming.Default()
	}
	m := DefaultMapper
	if mapper != nil {
		m = Chain(mapper, DefaultMapper)
	}
	return &Deriver{
		mapper:  m,
		namer:   namer,
		types:   make(map[string]graphql.Output),
		objects: make(map[string]*graphql.Object),
	}
}

// Namer returns the namer used for type and field names.
func (d *Deriver) Namer() *naming.Namer { return d.namer }

// TypeName returns the GraphQL type name of m under opts.
func (d *Deriver) TypeName(m *model.Model, opts TypeOptions) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typeName(m, opts)
}

func (d *Deriver) typeName(m *model.Model, opts TypeOptions) string {
	name := opts.Name
	if name == "" {
		name = d.namer.ToGraphQLTypeName(m.Name)
	}
	return d.namer.RegisterType(name, "model:"+m.Name)
}

// Definition returns the GraphQL fields of m. Relations are not included;
// they are added through TypeOptions.Fields or bound by the caller.
func (d *Deriver) Definition(m *model.Model, opts TypeOptions) (graphql.Fields, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.definition(m, d.typeName(m, opts), opts)
}

// ObjectType derives the object type of m. Each type name is derived once;
// later calls for the same name return the first object.
func (d *Deriver) ObjectType(m *model.Model, opts TypeOptions) (*graphql.Object, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	typeName := d.typeName(m, opts)
	if obj, ok := d.objects[typeName]; ok {
		return obj, nil
	}
	fields, err := d.definition(m, typeName, opts)
	if err != nil {
		return nil, err
	}
	extra := opts.Fields
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        typeName,
		Description: opts.Description,
		Interfaces:  opts.Interfaces,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			out := make(graphql.Fields, len(fields))
			for name, f := range fields {
				out[name] = f
			}
			if extra != nil {
				for name, f := range extra() {
					out[name] = f
				}
			}
			return out
		}),
	})
	d.objects[typeName] = obj
	return obj, nil
}

func (d *Deriver) definition(m *model.Model, typeName string, opts TypeOptions) (graphql.Fields, error) {
	include := fieldFilter(opts)
	fields := graphql.Fields{}

	if opts.GlobalID {
		idName := d.namer.RegisterField(typeName, "id", "global:"+m.Name)
		fields[idName] = &graphql.Field{
			Type:        graphql.NewNonNull(graphql.ID),
			Description: "The global identifier of the object.",
			Resolve:     globalIDResolver(typeName, m.PrimaryKey),
		}
		if include(m.PrimaryKey) {
			keyName := d.namer.RegisterField(typeName, d.namer.GlobalIDFieldName(m.Name), "field:"+m.PrimaryKey)
			fields[keyName] = &graphql.Field{
				Type:    graphql.ID,
				Resolve: valueFrom(m.PrimaryKey),
			}
		}
	} else if _, declared := m.Field(m.PrimaryKey); !declared && include(m.PrimaryKey) {
		var t graphql.Output = graphql.ID
		if !opts.AllowNull {
			t = graphql.NewNonNull(t)
		}
		pkName := d.namer.RegisterField(typeName, m.PrimaryKey, "field:"+m.PrimaryKey)
		fields[pkName] = &graphql.Field{Type: t, Resolve: valueFrom(m.PrimaryKey)}
	}

	for _, f := range m.Fields {
		if m.IsRelation(f.Name) || !include(f.Name) {
			continue
		}
		if opts.GlobalID && f.Name == m.PrimaryKey {
			continue
		}
		gf, err := d.field(typeName, m.Name+"."+f.Name, f, opts.AllowNull)
		if err != nil {
			return nil, err
		}
		name := f.Name
		if renamed, ok := opts.Rename[f.Name]; ok && renamed != "" {
			name = renamed
		}
		name = d.namer.RegisterField(typeName, name, "field:"+f.Name)
		if name != f.Name && gf.Resolve == nil {
			gf.Resolve = valueFrom(f.Name)
		}
		fields[name] = gf
	}
	return fields, nil
}

func (d *Deriver) field(parentType, path string, f model.Field, allowNull bool) (*graphql.Field, error) {
	t, err := d.outputType(parentType, path, f, allowNull)
	if err != nil {
		return nil, err
	}
	if f.Required && !allowNull {
		t = graphql.NewNonNull(t)
	}
	gf := &graphql.Field{Type: t, Description: f.Description}
	if f.Kind == model.KindObject || f.Kind == model.KindArray {
		gf.Resolve = structuredFrom(f.Name)
	}
	return gf, nil
}

func (d *Deriver) outputType(parentType, path string, f model.Field, allowNull bool) (graphql.Output, error) {
	if t, ok := d.mapper.MapType(f); ok {
		return t, nil
	}
	if len(f.Enum) > 0 {
		return d.enumType(parentType, path, f), nil
	}
	switch f.Kind {
	case model.KindObject:
		if len(f.Fields) == 0 {
			return scalars.JSON, nil
		}
		return d.objectType(parentType, path, f, allowNull)
	case model.KindArray:
		elem := model.Field{Name: f.Name, Kind: model.KindScalar, Type: f.Type}
		if len(f.Fields) > 0 {
			elem = f.Fields[0]
			if elem.Name == "" {
				elem.Name = f.Name
			}
		}
		t, err := d.outputType(parentType, path+"[]", elem, allowNull)
		if err != nil {
			return nil, err
		}
		if elem.Required && !allowNull {
			t = graphql.NewNonNull(t)
		}
		return graphql.NewList(t), nil
	}
	return nil, fmt.Errorf("no GraphQL type for field %s of type %q", path, f.Type)
}

func (d *Deriver) enumType(parentType, path string, f model.Field) graphql.Output {
	source := "enum:" + path
	if t, ok := d.types[source]; ok {
		return t
	}
	values := make(graphql.EnumValueConfigMap, len(f.Enum))
	for _, v := range f.Enum {
		name := naming.EnumValueName(v)
		if _, dup := values[name]; dup {
			continue
		}
		values[name] = &graphql.EnumValueConfig{Value: v}
	}
	t := graphql.NewEnum(graphql.EnumConfig{
		Name:        d.namer.RegisterType(d.namer.EnumTypeName(parentType, f.Name), source),
		Description: f.Description,
		Values:      values,
	})
	d.types[source] = t
	return t
}

func (d *Deriver) objectType(parentType, path string, f model.Field, allowNull bool) (graphql.Output, error) {
	source := "object:" + path
	if t, ok := d.types[source]; ok {
		return t, nil
	}
	name := d.namer.RegisterType(d.namer.NestedTypeName(parentType, f.Name), source)
	fields := make(graphql.Fields, len(f.Fields))
	for _, sub := range f.Fields {
		gf, err := d.field(name, path+"."+sub.Name, sub, allowNull)
		if err != nil {
			return nil, err
		}
		fields[sub.Name] = gf
	}
	t := graphql.NewObject(graphql.ObjectConfig{
		Name:        name,
		Description: f.Description,
		Fields:      fields,
	})
	d.types[source] = t
	return t, nil
}

func fieldFilter(opts TypeOptions) func(string) bool {
	exclude := make(map[string]bool, len(opts.Exclude))
	for _, name := range opts.Exclude {
		exclude[name] = true
	}
	var only map[string]bool
	if len(opts.Only) > 0 {
		only = make(map[string]bool, len(opts.Only))
		for _, name := range opts.Only {
			only[name] = true
		}
	}
	return func(name string) bool {
		if exclude[name] {
			return false
		}
		return only == nil || only[name]
	}
}

func valueFrom(key string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(model.Row)
		if !ok {
			return nil, nil
		}
		return row[key], nil
	}
}

// structuredFrom reads an object or array field, decoding it when the store
// returned the document as JSON text.
func structuredFrom(key string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(model.Row)
		if !ok {
			return nil, nil
		}
		var raw []byte
		switch v := row[key].(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		default:
			return v, nil
		}
		var out interface{}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("field %s is not valid JSON: %w", key, err)
		}
		return out, nil
	}
}

func globalIDResolver(typeName, pk string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		row, ok := p.Source.(model.Row)
		if !ok || row[pk] == nil {
			return nil, fmt.Errorf("%s has no %s to build a global id from", typeName, pk)
		}
		return nodeid.Encode(typeName, row[pk]), nil
	}
}
