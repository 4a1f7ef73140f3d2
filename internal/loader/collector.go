package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"relayloader/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Thunk is a deferred load result. It is an alias so graphql-go recognizes it
// as a resolver thunk.
type Thunk = func() (interface{}, error)

// Key is one load request.
type Key struct {
	// ID is the cache identity.
	ID string
	// Value is handed to the batch function.
	Value interface{}
	// Attrs lists the attributes the caller needs. Nil means every attribute.
	Attrs []string
	// Extra carries per-request data for the batch function.
	Extra interface{}
}

// BatchFunc fetches every key in one round trip and returns values by Key.ID.
// Keys without a value resolve to nil.
type BatchFunc func(ctx context.Context, keys []Key) (map[string]interface{}, error)

// BatchFetchError is returned to every key of a batch whose fetch failed.
type BatchFetchError struct {
	Loader string
	Keys   []string
	Err    error
}

func (e *BatchFetchError) Error() string {
	return fmt.Sprintf("loader %s: batch of %d keys failed: %v", e.Loader, len(e.Keys), e.Err)
}

func (e *BatchFetchError) Unwrap() error {
	return e.Err
}

type entry struct {
	key   Key
	value interface{}
	err   error
	done  chan struct{}
	// queued is true while the entry waits for a flush; guarded by Collector.mu.
	queued bool
}

func (e *entry) finished() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Collector accumulates keys and fetches them together on Flush. A thunk
// returned by Load flushes the collector the first time it is called, which
// with graphql-go happens once every sibling field has been resolved.
type Collector struct {
	name    string
	batch   BatchFunc
	metrics *observability.LoaderMetrics

	mu      sync.Mutex
	pending []*entry
	entries map[string]*entry
}

// NewCollector creates a collector named name over batch.
func NewCollector(name string, batch BatchFunc, metrics *observability.LoaderMetrics) *Collector {
	return &Collector{
		name:    name,
		batch:   batch,
		metrics: metrics,
		entries: map[string]*entry{},
	}
}

// Name returns the collector name.
func (c *Collector) Name() string {
	return c.name
}

// Load enqueues key unless a cached entry already covers it.
func (c *Collector) Load(ctx context.Context, key Key) Thunk {
	c.mu.Lock()
	e, ok := c.entries[key.ID]
	switch {
	case ok && e.queued:
		e.key.Attrs = unionAttrs(e.key.Attrs, key.Attrs)
		c.metrics.RecordCacheHit(ctx, c.name)
	case ok && covers(e.key.Attrs, key.Attrs):
		c.metrics.RecordCacheHit(ctx, c.name)
	default:
		if ok {
			key.Attrs = unionAttrs(e.key.Attrs, key.Attrs)
		}
		e = &entry{key: key, done: make(chan struct{}), queued: true}
		c.entries[key.ID] = e
		c.pending = append(c.pending, e)
		c.metrics.RecordCacheMiss(ctx, c.name)
	}
	c.mu.Unlock()

	return func() (interface{}, error) {
		if !e.finished() {
			c.Flush(ctx)
			<-e.done
		}
		return e.value, e.err
	}
}

// Prime stores value for key as if it had been fetched. An existing entry that
// already covers key is kept.
func (c *Collector) Prime(key Key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.ID]; ok {
		if e.queued || covers(e.key.Attrs, key.Attrs) {
			return
		}
	}
	e := &entry{key: key, value: value, done: make(chan struct{})}
	close(e.done)
	c.entries[key.ID] = e
}

// Pending returns the number of keys waiting for a flush.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flush fetches every pending key in one batch call.
func (c *Collector) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	keys := make([]Key, len(batch))
	for i, e := range batch {
		e.queued = false
		keys[i] = e.key
	}
	c.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ctx, span := otel.Tracer("relayloader/loader").Start(ctx, "loader.flush")
	span.SetAttributes(
		attribute.String("loader.name", c.name),
		attribute.Int("loader.batch_size", len(keys)),
	)
	defer span.End()
	c.metrics.RecordBatch(ctx, c.name, len(keys))

	values, err := c.batch(ctx, keys)
	if err != nil {
		ids := make([]string, len(keys))
		for i, k := range keys {
			ids[i] = k.ID
		}
		err = &BatchFetchError{Loader: c.name, Keys: ids, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	c.mu.Lock()
	for _, e := range batch {
		if err != nil {
			e.err = err
		} else {
			e.value = values[e.key.ID]
		}
		close(e.done)
	}
	c.mu.Unlock()
}

// covers reports whether an entry fetched with have satisfies need. Nil means
// every attribute.
func covers(have, need []string) bool {
	if have == nil {
		return true
	}
	if need == nil {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, a := range have {
		set[a] = struct{}{}
	}
	for _, a := range need {
		if _, ok := set[a]; !ok {
			return false
		}
	}
	return true
}

func unionAttrs(a, b []string) []string {
	if a == nil || b == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, attr := range list {
			if _, ok := seen[attr]; ok {
				continue
			}
			seen[attr] = struct{}{}
			out = append(out, attr)
		}
	}
	return out
}

func collectorName(model, kind, field string) string {
	return strings.Join([]string{model, kind, field}, ":")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
