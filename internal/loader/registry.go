// Package loader batches and caches the per-request lookups made while
// resolving nested GraphQL fields. One Registry serves one request.
package loader

import (
	"context"
	"sync"

	"relayloader/internal/model"
	"relayloader/internal/observability"
	"relayloader/internal/planner"
)

// DefaultNamespace is the context namespace loaders are stored under.
const DefaultNamespace = "loaders"

// Store is the batch-capable query capability loaders fetch through.
type Store interface {
	// FindAll returns every row of m whose field matches one of keys.
	FindAll(ctx context.Context, m *model.Model, field string, keys []interface{}, attrs []string) ([]model.Row, error)
	// FindRelated returns related rows grouped by planner.KeyString(parent key).
	FindRelated(ctx context.Context, target *model.Model, rel model.Relation, keys []interface{}, opts planner.QueryOptions) (map[string][]model.Row, error)
	// CountRelated returns per-parent totals keyed like FindRelated.
	CountRelated(ctx context.Context, target *model.Model, rel model.Relation, keys []interface{}, filter map[string]interface{}) (map[string]int, error)
}

// Registry holds the model loaders of one request.
type Registry struct {
	models  *model.Registry
	store   Store
	metrics *observability.LoaderMetrics

	mu      sync.Mutex
	loaders map[string]*ModelLoader
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMetrics records cache and batch metrics.
func WithMetrics(metrics *observability.LoaderMetrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = metrics
	}
}

// NewRegistry creates an empty registry. Loaders are created on first use.
func NewRegistry(models *model.Registry, store Store, opts ...RegistryOption) *Registry {
	r := &Registry{
		models:  models,
		store:   store,
		loaders: map[string]*ModelLoader{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Models returns the model registry loaders resolve names against.
func (r *Registry) Models() *model.Registry {
	return r.models
}

// For returns the loader for a model, creating it on first use. Repeated calls
// return the same loader. ok is false for unknown models.
func (r *Registry) For(modelName string) (*ModelLoader, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.loaders[modelName]; ok {
		return l, true
	}
	m, ok := r.models.Model(modelName)
	if !ok {
		return nil, false
	}
	l := newModelLoader(r, m)
	r.loaders[modelName] = l
	return l, true
}

// Flush flushes every collector of every loader.
func (r *Registry) Flush(ctx context.Context) {
	r.mu.Lock()
	loaders := make([]*ModelLoader, 0, len(r.loaders))
	for _, name := range sortedKeys(r.loaders) {
		loaders = append(loaders, r.loaders[name])
	}
	r.mu.Unlock()
	for _, l := range loaders {
		l.flush(ctx)
	}
}

type contextKey string

// WithRegistry stores reg in ctx under namespace. An empty namespace means
// DefaultNamespace.
func WithRegistry(ctx context.Context, namespace string, reg *Registry) context.Context {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return context.WithValue(ctx, contextKey(namespace), reg)
}

// FromContext returns the registry stored under namespace.
func FromContext(ctx context.Context, namespace string) (*Registry, bool) {
	if ctx == nil {
		return nil, false
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg, ok := ctx.Value(contextKey(namespace)).(*Registry)
	return reg, ok && reg != nil
}
