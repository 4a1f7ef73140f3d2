package resolver

import (
	"context"

	"relayloader/internal/loader"
	"relayloader/internal/logging"
	"relayloader/internal/model"
	"relayloader/internal/planner"
	"relayloader/internal/selection"

	"golang.org/x/sync/errgroup"
)

// Store runs root-level queries.
type Store interface {
	Find(ctx context.Context, m *model.Model, opts planner.QueryOptions) ([]model.Row, error)
	Count(ctx context.Context, m *model.Model, opts planner.QueryOptions) (int, error)
}

// NodeConfig describes a Node.
type NodeConfig struct {
	Model *model.Model
	// Relation marks the node as resolved from a parent row. Nil means root.
	Relation *model.Relation
	// Name is the key read from the parent row before falling back to
	// loaders. It defaults to the relation name.
	Name string
	// LoadersKey is the context namespace of the loader registry.
	LoadersKey string
	// Store runs root queries. Related nodes only use loaders.
	Store Store
}

// Node is one point of the result graph. It is immutable after NewNode and
// safe to share across requests; per-call state travels in a Resolution.
type Node struct {
	model      *model.Model
	relation   *model.Relation
	name       string
	loadersKey string
	store      Store
}

// NewNode validates cfg and builds a Node.
func NewNode(cfg NodeConfig) (*Node, error) {
	if cfg.Model == nil {
		return nil, configErrorf("node", "model is required")
	}
	n := &Node{
		model:      cfg.Model,
		name:       cfg.Name,
		loadersKey: cfg.LoadersKey,
		store:      cfg.Store,
	}
	if cfg.Relation != nil {
		rel := *cfg.Relation
		if rel.Parent != "" && rel.Target != cfg.Model.Name {
			return nil, configErrorf("node", "relation %s targets %s, not %s", rel.Name, rel.Target, cfg.Model.Name)
		}
		n.relation = &rel
		if n.name == "" {
			n.name = rel.Name
		}
	}
	if n.loadersKey == "" {
		n.loadersKey = loader.DefaultNamespace
	}
	return n, nil
}

// Model returns the model the node resolves.
func (n *Node) Model() *model.Model { return n.model }

// Relation returns the relation to the parent, or nil at root.
func (n *Node) Relation() *model.Relation { return n.relation }

// Name returns the parent row key the node reads first.
func (n *Node) Name() string { return n.name }

// LoadersKey returns the context namespace of the loader registry.
func (n *Node) LoadersKey() string { return n.loadersKey }

// IsRelated reports whether the node resolves from a parent row.
func (n *Node) IsRelated() bool { return n.relation != nil }

// Resolution is the state of one resolve call: the compiled options, the
// effective selection and the eager relations discovered under it.
type Resolution struct {
	Options   planner.QueryOptions
	Selection *selection.Tree
	// Relation links the resolution to its parent; nil at root.
	Relation *model.Relation
	Children map[string]*Resolution

	total   int
	counted bool
}

// Total returns the full count fetched for the call, once the node has
// resolved, and whether one was fetched.
func (r *Resolution) Total() (int, bool) {
	if r == nil {
		return 0, false
	}
	return r.total, r.counted
}

func (r *Resolution) setTotal(total int) {
	r.total = total
	r.counted = true
}

// AppendArgs merges options into the resolution; later options win.
func (r *Resolution) AppendArgs(opts ...planner.Option) {
	r.Options = r.Options.Apply(opts...)
}

// Depth returns how many relation levels hang below r.
func (r *Resolution) Depth() int {
	if r == nil {
		return 0
	}
	depth := 0
	for _, child := range r.Children {
		if d := child.Depth() + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// Resolve produces the node's value for source. Root nodes query the store;
// related nodes return a loader thunk unless source already carries the value.
func (n *Node) Resolve(ctx context.Context, source interface{}, res *Resolution) (interface{}, error) {
	if res == nil {
		res = &Resolution{}
	}
	if n.relation == nil {
		return n.resolveRoot(ctx, res)
	}
	return n.resolveRelated(ctx, source, res)
}

func (n *Node) resolveRoot(ctx context.Context, res *Resolution) (interface{}, error) {
	opts := res.Options
	if n.store == nil {
		return nil, configErrorf("resolve", "root node for %s has no store", n.model.Name)
	}
	if !opts.List {
		single := opts.Apply(planner.WithLimit(1), planner.WithIndex(0), planner.WithCount(false))
		rows, err := n.store.Find(ctx, n.model, single)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	}

	var (
		rows  []model.Row
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = n.store.Find(gctx, n.model, opts)
		return err
	})
	if opts.Count {
		g.Go(func() error {
			var err error
			total, err = n.store.Count(gctx, n.model, opts)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if opts.Count {
		res.setTotal(total)
	}

	if reg, ok := loader.FromContext(ctx, n.loadersKey); ok {
		if l, ok := reg.For(n.model.Name); ok {
			attrs := opts.Projection()
			for _, row := range rows {
				l.Prime(row, attrs)
			}
		}
	}

	out := make([]model.Row, len(rows))
	for i, row := range rows {
		if !opts.Count {
			out[i] = row
			continue
		}
		c := make(model.Row, len(row)+1)
		for k, v := range row {
			c[k] = v
		}
		c[model.FullCountField] = total
		out[i] = c
	}
	return out, nil
}

func (n *Node) resolveRelated(ctx context.Context, source interface{}, res *Resolution) (interface{}, error) {
	opts := res.Options
	parent, _ := source.(model.Row)
	if parent == nil {
		return nil, nil
	}
	if v, ok := parent[n.name]; ok && v != nil {
		return v, nil
	}

	rel := n.relation
	loaderModel := rel.Parent
	if rel.Kind == model.BelongsTo {
		loaderModel = rel.Target
	}
	reg, ok := loader.FromContext(ctx, n.loadersKey)
	if !ok {
		return nil, &MissingLoaderError{Namespace: n.loadersKey, Model: loaderModel}
	}
	l, ok := reg.For(loaderModel)
	if !ok {
		return nil, &MissingLoaderError{Namespace: n.loadersKey, Model: loaderModel}
	}

	key, ok := parent[rel.LocalKey]
	if !ok {
		logging.FromContext(ctx).Warn("parent row is missing relation key; resolving empty",
			"relation", rel.String(),
			"key", rel.LocalKey,
		)
		if opts.List {
			return []model.Row{}, nil
		}
		return model.Row{}, nil
	}
	if key == nil {
		if opts.List {
			return []model.Row{}, nil
		}
		return nil, nil
	}

	if rel.Kind == model.BelongsTo {
		thunk := l.LoadByField(ctx, rel.ForeignKey, key, opts.Projection())
		return loader.Thunk(func() (interface{}, error) {
			v, err := thunk()
			if err != nil {
				return nil, err
			}
			row, _ := v.(model.Row)
			switch {
			case opts.List && row == nil:
				return []model.Row{}, nil
			case opts.List:
				return []model.Row{row}, nil
			case row == nil:
				return nil, nil
			default:
				return row, nil
			}
		}), nil
	}

	thunk := l.Related(ctx, rel.Name, key, opts)
	return loader.Thunk(func() (interface{}, error) {
		v, err := thunk()
		if err != nil {
			return nil, err
		}
		rs, ok := v.(*loader.ResultSet)
		if !ok || rs == nil {
			if opts.List {
				return []model.Row{}, nil
			}
			return nil, nil
		}
		if total, ok := rs.Total(); ok {
			res.setTotal(total)
		}
		if opts.List {
			return rs.ToList(), nil
		}
		if row := rs.ToObject(); row != nil {
			return row, nil
		}
		return nil, nil
	}), nil
}
