package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"relayloader/internal/model"
	"relayloader/internal/planner"
)

const (
	kindLoadBy  = "loadBy"
	kindRelated = "related"
)

// ModelLoader batches lookups against one model. It keeps one Collector per
// lookup kind and field or relation.
type ModelLoader struct {
	registry *Registry
	model    *model.Model

	mu         sync.Mutex
	collectors map[string]*Collector
}

func newModelLoader(r *Registry, m *model.Model) *ModelLoader {
	return &ModelLoader{
		registry:   r,
		model:      m,
		collectors: map[string]*Collector{},
	}
}

// Model returns the loader's model.
func (l *ModelLoader) Model() *model.Model {
	return l.model
}

// LoadByID loads one row by primary key. need lists the attributes the caller
// reads; nil asks for every attribute.
func (l *ModelLoader) LoadByID(ctx context.Context, id interface{}, need []string) Thunk {
	return l.LoadByField(ctx, l.model.PrimaryKey, id, need)
}

// LoadByField loads the first row whose field equals value. The thunk yields
// a model.Row, or nil when no row matches.
func (l *ModelLoader) LoadByField(ctx context.Context, field string, value interface{}, need []string) Thunk {
	if !l.model.HasAttribute(field) {
		return errThunk(fmt.Errorf("unknown field %q on %s", field, l.model.Name))
	}
	if value == nil {
		return valueThunk(nil)
	}
	c := l.collector(collectorName(l.model.Name, kindLoadBy, field), l.loadByBatch(field))
	return c.Load(ctx, Key{
		ID:    planner.KeyString(value),
		Value: value,
		Attrs: l.needAttrs(need, field),
	})
}

// Prime seeds the primary key cache with a row fetched with attrs. Nil attrs
// means the row holds every attribute.
func (l *ModelLoader) Prime(row model.Row, attrs []string) {
	id, ok := row[l.model.PrimaryKey]
	if !ok || id == nil {
		return
	}
	field := l.model.PrimaryKey
	c := l.collector(collectorName(l.model.Name, kindLoadBy, field), l.loadByBatch(field))
	c.Prime(Key{ID: planner.KeyString(id), Value: id, Attrs: l.needAttrs(attrs, field)}, row)
}

// Related loads the rows of a relation of this loader's model for one parent
// key. Requests with the same filter, order and relation share one store call.
// The thunk yields a *ResultSet.
func (l *ModelLoader) Related(ctx context.Context, relationName string, parentKey interface{}, opts planner.QueryOptions) Thunk {
	rel, ok := l.model.Relation(relationName)
	if !ok {
		return errThunk(fmt.Errorf("relation %s not found on model %s", relationName, l.model.Name))
	}
	target, ok := l.registry.models.Model(rel.Target)
	if !ok {
		return errThunk(fmt.Errorf("model %s not found", rel.Target))
	}
	if parentKey == nil {
		return valueThunk(NewResultSet(nil, opts, opts.Index))
	}

	shape, err := relatedShape(*rel, opts)
	if err != nil {
		return errThunk(err)
	}
	var need []string
	if attrs := opts.Projection(); len(attrs) > 0 {
		need = attrs
	}
	c := l.collector(collectorName(l.model.Name, kindRelated, rel.Name), l.relatedBatch(*rel, target))
	return c.Load(ctx, Key{
		ID:    fmt.Sprintf("%s|%s|%d:%d:%t", planner.KeyString(parentKey), shape, opts.Index, opts.Limit, opts.Count),
		Value: parentKey,
		Attrs: need,
		Extra: relatedRequest{shape: shape, opts: opts},
	})
}

func (l *ModelLoader) collector(name string, batch BatchFunc) *Collector {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.collectors[name]; ok {
		return c
	}
	c := NewCollector(name, batch, l.registry.metrics)
	l.collectors[name] = c
	return c
}

func (l *ModelLoader) flush(ctx context.Context) {
	l.mu.Lock()
	collectors := make([]*Collector, 0, len(l.collectors))
	for _, name := range sortedKeys(l.collectors) {
		collectors = append(collectors, l.collectors[name])
	}
	l.mu.Unlock()
	for _, c := range collectors {
		c.Flush(ctx)
	}
}

func (l *ModelLoader) needAttrs(need []string, field string) []string {
	if need == nil {
		return nil
	}
	return planner.AddAttributes([]string{l.model.PrimaryKey, field}, need...)
}

func (l *ModelLoader) loadByBatch(field string) BatchFunc {
	return func(ctx context.Context, keys []Key) (map[string]interface{}, error) {
		values := make([]interface{}, len(keys))
		attrs := []string{}
		for i, k := range keys {
			values[i] = k.Value
			if attrs != nil {
				attrs = unionAttrs(attrs, k.Attrs)
			}
		}
		rows, err := l.registry.store.FindAll(ctx, l.model, field, values, attrs)
		if err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(rows))
		for _, row := range rows {
			id := planner.KeyString(row[field])
			if _, seen := out[id]; !seen {
				out[id] = row
			}
		}
		return out, nil
	}
}

type relatedRequest struct {
	shape string
	opts  planner.QueryOptions
}

// relatedGroup is the merged fetch for every request sharing one shape.
type relatedGroup struct {
	opts      planner.QueryOptions
	values    []interface{}
	seen      map[string]struct{}
	attrs     []string
	start     int
	end       int
	unbounded bool
	count     bool
	members   []Key
}

func (l *ModelLoader) relatedBatch(rel model.Relation, target *model.Model) BatchFunc {
	return func(ctx context.Context, keys []Key) (map[string]interface{}, error) {
		groups := map[string]*relatedGroup{}
		for _, k := range keys {
			req := k.Extra.(relatedRequest)
			g, ok := groups[req.shape]
			if !ok {
				g = &relatedGroup{
					opts:  req.opts,
					seen:  map[string]struct{}{},
					attrs: []string{},
					start: req.opts.Index,
				}
				groups[req.shape] = g
			}
			if id := planner.KeyString(k.Value); !hasKey(g.seen, id) {
				g.seen[id] = struct{}{}
				g.values = append(g.values, k.Value)
			}
			if g.attrs != nil {
				g.attrs = unionAttrs(g.attrs, k.Attrs)
			}
			if req.opts.Index < g.start {
				g.start = req.opts.Index
			}
			if req.opts.Limit == 0 {
				g.unbounded = true
			} else if end := req.opts.Index + req.opts.Limit; end > g.end {
				g.end = end
			}
			g.count = g.count || req.opts.Count
			g.members = append(g.members, k)
		}

		out := make(map[string]interface{}, len(keys))
		for _, shape := range sortedKeys(groups) {
			g := groups[shape]
			fetch := planner.QueryOptions{
				Filter:  g.opts.Filter,
				OrderBy: g.opts.OrderBy,
				Index:   g.start,
			}
			if !g.unbounded {
				fetch.Limit = g.end - g.start
			}
			if g.attrs != nil {
				fetch.Attributes = fetchAttributes(target, g.attrs, g.opts)
			}
			fetch.Window()

			grouped, err := l.registry.store.FindRelated(ctx, target, rel, g.values, fetch)
			if err != nil {
				return nil, err
			}
			var counts map[string]int
			if g.count {
				counts, err = l.registry.store.CountRelated(ctx, target, rel, g.values, g.opts.Filter)
				if err != nil {
					return nil, err
				}
			}
			for _, member := range g.members {
				req := member.Extra.(relatedRequest)
				parent := planner.KeyString(member.Value)
				// members of a group share one filter, already applied by the store
				rs := NewResultSet(grouped[parent], req.opts, g.start).Filtered()
				if req.opts.Count {
					rs.WithTotal(counts[parent])
				}
				out[member.ID] = rs
			}
		}
		return out, nil
	}
}

// fetchAttributes widens a projection with what in-memory narrowing reads:
// the primary key, the order field and filtered fields.
func fetchAttributes(target *model.Model, attrs []string, opts planner.QueryOptions) []string {
	extra := []string{target.PrimaryKey}
	if opts.OrderBy != nil {
		extra = append(extra, opts.OrderBy.Field)
	}
	for _, field := range sortedKeys(opts.Filter) {
		extra = append(extra, field)
	}
	out := planner.AddAttributes(extra, attrs...)
	kept := out[:0]
	for _, a := range out {
		if target.HasAttribute(a) {
			kept = append(kept, a)
		}
	}
	return kept
}

// relatedShape is the canonical identity of the filter, order and index field
// of a related request.
func relatedShape(rel model.Relation, opts planner.QueryOptions) (string, error) {
	filter := make(map[string]string, len(opts.Filter))
	for k, v := range opts.Filter {
		filter[k] = fmt.Sprintf("%T:%v", v, v)
	}
	shape := struct {
		Filter map[string]string `json:"filter,omitempty"`
		Order  string            `json:"order,omitempty"`
		Index  string            `json:"index"`
	}{
		Filter: filter,
		Order:  opts.OrderBy.String(),
		Index:  rel.IndexField(),
	}
	b, err := json.Marshal(shape)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

func errThunk(err error) Thunk {
	return func() (interface{}, error) {
		return nil, err
	}
}

func valueThunk(v interface{}) Thunk {
	return func() (interface{}, error) {
		return v, nil
	}
}
