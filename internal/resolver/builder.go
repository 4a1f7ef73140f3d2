package resolver

import (
	"fmt"
	"sync"

	"relayloader/internal/loader"
	"relayloader/internal/model"
	"relayloader/internal/naming"
	"relayloader/internal/nodeid"
	"relayloader/internal/schema"

	"github.com/graphql-go/graphql"
)

// nodeTypeField carries the resolved type name on rows fetched through the
// node field so the Node interface can pick the object type.
const nodeTypeField = "__nodeType"

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	Models *model.Registry
	// Store runs root queries for every node the builder creates.
	Store Store
	// Mapper runs before schema.DefaultMapper when deriving field types.
	Mapper schema.TypeMapper
	Namer  *naming.Namer
	// LoadersKey is the context namespace of the request loader registry.
	LoadersKey string
	// Defaults fill MaxLimit and NestingLimit when a resolver leaves them
	// zero.
	Defaults Options
}

// Builder creates nodes, resolvers, connections and object types over one
// model registry and keeps the field bindings they share.
type Builder struct {
	models     *model.Registry
	store      Store
	loadersKey string
	defaults   Options
	bindings   *Bindings
	deriver    *schema.Deriver

	nodeOnce  sync.Once
	nodeIface *graphql.Interface

	mu         sync.RWMutex
	nodeTypes  map[string]*graphql.Object
	typeModels map[string]*model.Model
}

// NewBuilder validates cfg and creates a Builder.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Models == nil {
		return nil, configErrorf("builder", "model registry is required")
	}
	key := cfg.LoadersKey
	if key == "" {
		key = loader.DefaultNamespace
	}
	return &Builder{
		models:     cfg.Models,
		store:      cfg.Store,
		loadersKey: key,
		defaults:   cfg.Defaults,
		bindings:   NewBindings(),
		deriver:    schema.NewDeriver(cfg.Mapper, cfg.Namer),
		nodeTypes:  make(map[string]*graphql.Object),
		typeModels: make(map[string]*model.Model),
	}, nil
}

// Bindings returns the field bindings recorded by Bind and Field.
func (b *Builder) Bindings() *Bindings { return b.bindings }

// Deriver returns the schema deriver behind ObjectType and Definition.
func (b *Builder) Deriver() *schema.Deriver { return b.deriver }

// Node creates the node of modelName, or of the target of its relation when
// relationName is set.
func (b *Builder) Node(modelName, relationName string) (*Node, error) {
	m, ok := b.models.Model(modelName)
	if !ok {
		return nil, configErrorf("node", "model %s not found", modelName)
	}
	cfg := NodeConfig{
		Model:      m,
		LoadersKey: b.loadersKey,
		Store:      b.store,
	}
	if relationName != "" {
		rel, ok := m.Relation(relationName)
		if !ok {
			return nil, configErrorf("node", "relation %s not found on model %s", relationName, modelName)
		}
		target, ok := b.models.Model(rel.Target)
		if !ok {
			return nil, configErrorf("node", "model %s not found", rel.Target)
		}
		cfg.Model = target
		cfg.Relation = rel
	}
	return NewNode(cfg)
}

// Resolve creates a resolver for modelName or one of its relations.
func (b *Builder) Resolve(modelName, relationName string, opts Options) (*Resolver, error) {
	n, err := b.Node(modelName, relationName)
	if err != nil {
		return nil, err
	}
	return New(n, b.withDefaults(opts)), nil
}

// Connect creates a relay connection for modelName or one of its relations.
func (b *Builder) Connect(modelName, relationName string, opts ConnectionOptions) (*Connection, error) {
	n, err := b.Node(modelName, relationName)
	if err != nil {
		return nil, err
	}
	opts.Options = b.withDefaults(opts.Options)
	return n.Connect(opts)
}

func (b *Builder) withDefaults(opts Options) Options {
	if opts.MaxLimit == 0 {
		opts.MaxLimit = b.defaults.MaxLimit
	}
	if opts.NestingLimit == 0 {
		opts.NestingLimit = b.defaults.NestingLimit
	}
	if opts.Bindings == nil {
		opts.Bindings = b.bindings
	}
	return opts
}

// ObjectType derives the object type of modelName. Types derived with
// GlobalID implement the Node interface and become reachable from the node
// field.
func (b *Builder) ObjectType(modelName string, opts schema.TypeOptions) (*graphql.Object, error) {
	m, ok := b.models.Model(modelName)
	if !ok {
		return nil, configErrorf("object type", "model %s not found", modelName)
	}
	if opts.GlobalID {
		opts.Interfaces = append(opts.Interfaces, b.NodeInterface())
	}
	obj, err := b.deriver.ObjectType(m, opts)
	if err != nil {
		return nil, err
	}
	if opts.GlobalID {
		b.mu.Lock()
		b.nodeTypes[obj.Name()] = obj
		b.typeModels[obj.Name()] = m
		b.mu.Unlock()
	}
	return obj, nil
}

// Definition returns the derived fields of modelName.
func (b *Builder) Definition(modelName string, opts schema.TypeOptions) (graphql.Fields, error) {
	m, ok := b.models.Model(modelName)
	if !ok {
		return nil, configErrorf("definition", "model %s not found", modelName)
	}
	return b.deriver.Definition(m, opts)
}

// Bind records r as the resolver of typeName.fieldName.
func (b *Builder) Bind(typeName, fieldName string, r *Resolver) {
	b.bindings.Bind(typeName, fieldName, r)
}

// Field binds r to typeName.fieldName and returns the field serving it.
func (b *Builder) Field(typeName, fieldName string, typ graphql.Output, args graphql.FieldConfigArgument, r *Resolver) *graphql.Field {
	b.Bind(typeName, fieldName, r)
	return &graphql.Field{
		Type:    typ,
		Args:    args,
		Resolve: r.Resolve,
	}
}

// ConnectionField binds c to typeName.fieldName and returns its field.
func (b *Builder) ConnectionField(typeName, fieldName string, c *Connection) *graphql.Field {
	b.Bind(typeName, fieldName, c.Resolver())
	return c.Field()
}

// NodeInterface returns the relay Node interface.
func (b *Builder) NodeInterface() *graphql.Interface {
	b.nodeOnce.Do(func() {
		b.nodeIface = graphql.NewInterface(graphql.InterfaceConfig{
			Name:        "Node",
			Description: "An object with a global id.",
			Fields: graphql.Fields{
				"id": &graphql.Field{
					Type:        graphql.NewNonNull(graphql.ID),
					Description: "The global identifier of the object.",
				},
			},
			ResolveType: b.resolveNodeType,
		})
	})
	return b.nodeIface
}

// NodeDefinitions returns the Node interface and the node(id: ID!) field.
func (b *Builder) NodeDefinitions() (*graphql.Interface, *graphql.Field) {
	iface := b.NodeInterface()
	return iface, &graphql.Field{
		Type:        iface,
		Description: "Fetches an object given its global id.",
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.ID),
			},
		},
		Resolve: b.resolveNode,
	}
}

func (b *Builder) resolveNodeType(p graphql.ResolveTypeParams) *graphql.Object {
	row, ok := p.Value.(model.Row)
	if !ok {
		return nil
	}
	name, _ := row[nodeTypeField].(string)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodeTypes[name]
}

// resolveNode loads the object behind a global id through the request's
// loader, so node lookups in one request share a batch.
func (b *Builder) resolveNode(p graphql.ResolveParams) (interface{}, error) {
	id, _ := p.Args["id"].(string)
	typeName, raw, err := nodeid.Decode(id)
	if err != nil {
		return nil, err
	}
	b.mu.RLock()
	m, ok := b.typeModels[typeName]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node type %q", typeName)
	}
	key, err := nodeid.ParseKey(m, raw)
	if err != nil {
		return nil, err
	}

	reg, ok := loader.FromContext(p.Context, b.loadersKey)
	if !ok {
		return nil, &MissingLoaderError{Namespace: b.loadersKey, Model: m.Name}
	}
	l, ok := reg.For(m.Name)
	if !ok {
		return nil, &MissingLoaderError{Namespace: b.loadersKey, Model: m.Name}
	}

	thunk := l.LoadByID(p.Context, key, nil)
	return loader.Thunk(func() (interface{}, error) {
		v, err := thunk()
		if err != nil {
			return nil, err
		}
		row, _ := v.(model.Row)
		if row == nil {
			return nil, nil
		}
		out := make(model.Row, len(row)+1)
		for k, val := range row {
			out[k] = val
		}
		out[nodeTypeField] = typeName
		return out, nil
	}), nil
}
