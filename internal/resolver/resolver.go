// Package resolver turns model descriptors into graphql-go field resolvers.
//
// A Resolver runs once per field resolution: it simplifies the selection,
// compiles arguments into planner.QueryOptions, applies hooks, and hands a
// per-call Resolution to an immutable Node. Root nodes query the Store
// directly; related nodes defer to the request's loader registry and return
// thunks so that sibling lookups are fetched in one batch.
package resolver

import (
	"context"

	"relayloader/internal/planner"
	"relayloader/internal/selection"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"
)

// HookContext is what hooks see of the field being resolved.
type HookContext struct {
	Source interface{}
	Args   map[string]interface{}
	// Selection is the effective selection: edges.node for connections.
	Selection *selection.Tree
	// Type is the effective return type: the node type for connections.
	Type graphql.Output
	Info graphql.ResolveInfo
	// Total reports the full count fetched for the call. After hooks see it
	// once the node has resolved.
	Total func() (int, bool)
}

// BeforeFunc may rewrite the options before the node runs, for example to add
// permission filters.
type BeforeFunc func(ctx context.Context, opts planner.QueryOptions, hc HookContext) (planner.QueryOptions, error)

// AfterFunc may replace the resolved value.
type AfterFunc func(ctx context.Context, result interface{}, hc HookContext) (interface{}, error)

// Options are the static settings of one Resolver.
type Options struct {
	// MaxLimit caps page sizes. Zero means planner.DefaultListLimit.
	MaxLimit int
	// NestingLimit caps how deep root selections may nest relations. Zero
	// disables the check.
	NestingLimit int
	// DefaultAttributes are always projected.
	DefaultAttributes []string
	// List forces list shape. List return types are always lists.
	List   bool
	Before BeforeFunc
	After  AfterFunc
	// Bindings resolves child fields to their resolvers when building the
	// eager relation tree. Nil skips discovery.
	Bindings *Bindings
}

// Resolver is a graphql-go resolve function bound to a Node.
type Resolver struct {
	node *Node
	opts Options
}

// New binds node to opts.
func New(node *Node, opts Options) *Resolver {
	return &Resolver{node: node, opts: opts}
}

// Node returns the node the resolver runs.
func (r *Resolver) Node() *Node { return r.node }

// Options returns the resolver's static options.
func (r *Resolver) Options() Options { return r.opts }

// Resolve implements graphql.FieldResolveFn.
func (r *Resolver) Resolve(p graphql.ResolveParams) (interface{}, error) {
	ctx := p.Context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := startResolverSpan(ctx, "graphql.resolve",
		attribute.String("graphql.field", p.Info.FieldName),
		attribute.String("model", r.node.model.Name),
		attribute.Bool("graphql.related", r.node.IsRelated()),
	)
	defer span.End()

	tree := selection.FromResolveInfo(p.Info)
	typ := p.Info.ReturnType
	if nodeType, ok := connectionNodeType(typ); ok {
		tree = tree.Lookup("edges", "node")
		if tree == nil {
			tree = selection.Empty()
		}
		typ = nodeType
	}
	hc := HookContext{
		Source:    p.Source,
		Args:      p.Args,
		Selection: tree,
		Type:      typ,
		Info:      p.Info,
	}

	res, err := r.prepare(ctx, hc)
	if err != nil {
		finishResolverSpan(span, err, false)
		return nil, err
	}
	hc.Total = res.Total
	result, err := r.node.Resolve(ctx, p.Source, res)
	if err != nil {
		finishResolverSpan(span, err, false)
		return nil, err
	}

	thunk, deferred := result.(func() (interface{}, error))
	finishResolverSpan(span, nil, deferred)
	if r.opts.After == nil {
		return result, nil
	}
	if deferred {
		return func() (interface{}, error) {
			v, err := thunk()
			if err != nil {
				return nil, err
			}
			return r.opts.After(ctx, v, hc)
		}, nil
	}
	return r.opts.After(ctx, result, hc)
}

// prepare compiles the Resolution for one call and enforces the nesting
// limit at root.
func (r *Resolver) prepare(ctx context.Context, hc HookContext) (*Resolution, error) {
	res, err := r.compile(ctx, hc, true)
	if err != nil {
		return nil, err
	}
	if !r.node.IsRelated() && r.opts.NestingLimit > 0 {
		if depth := res.Depth(); depth > r.opts.NestingLimit {
			return nil, &TooDeepError{Limit: r.opts.NestingLimit, Depth: depth}
		}
	}
	return res, nil
}

// compile builds the options for hc, runs the before hook and discovers the
// bound relations selected below it. Each discovered relation's local key
// joins the projection so that child lookups find it on the row. Discovered
// children compile with runHooks false: their options only size the parent's
// fetch, and their hooks run when the child field itself resolves.
func (r *Resolver) compile(ctx context.Context, hc HookContext, runHooks bool) (*Resolution, error) {
	m := r.node.model
	requested := hc.Selection.FieldNames()
	cfg := planner.CompileConfig{MaxLimit: r.opts.MaxLimit}

	compiled, err := planner.Compile(hc.Args, requested, m, cfg)
	if err != nil {
		return nil, err
	}
	if compiled == nil {
		compiled = planner.Defaults(requested, m, cfg)
	}
	opts := *compiled
	opts.Attributes = planner.AddAttributes(opts.Attributes, r.opts.DefaultAttributes...)
	if rel := r.node.relation; rel != nil && m.HasAttribute(rel.ForeignKey) {
		opts.Attributes = planner.AddAttributes(opts.Attributes, rel.ForeignKey)
	}
	opts.List = r.opts.List || isListType(hc.Type)

	if runHooks && r.opts.Before != nil {
		opts, err = r.opts.Before(ctx, opts, hc)
		if err != nil {
			return nil, err
		}
	}

	children, err := r.opts.Bindings.discover(ctx, hc.Selection, hc.Type)
	if err != nil {
		return nil, err
	}
	for _, key := range sortedChildKeys(children) {
		opts.Attributes = planner.AddAttributes(opts.Attributes, children[key].Relation.LocalKey)
	}
	opts.Window()
	return &Resolution{
		Options:   opts,
		Selection: hc.Selection,
		Relation:  r.node.relation,
		Children:  children,
	}, nil
}
