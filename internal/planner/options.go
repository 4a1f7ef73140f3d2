package planner

import (
	"fmt"
	"strings"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Reverse flips the direction.
func (d Direction) Reverse() Direction {
	if d == Desc {
		return Asc
	}
	return Desc
}

// ParseDirection accepts ASC/DESC in any case. Empty means ASC.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	default:
		return "", fmt.Errorf("invalid order direction %q", s)
	}
}

// OrderBy is a single sort key.
type OrderBy struct {
	Field     string
	Direction Direction
}

// Reversed returns a copy sorting the other way.
func (o *OrderBy) Reversed() *OrderBy {
	if o == nil {
		return nil
	}
	return &OrderBy{Field: o.Field, Direction: o.Direction.Reverse()}
}

func (o *OrderBy) String() string {
	if o == nil {
		return ""
	}
	return o.Field + " " + string(o.Direction)
}

// QueryOptions is the compiled request for one resolution: what to project,
// how to filter and order, and which window of rows to return.
type QueryOptions struct {
	// Attributes is the deduplicated projection. It always holds the primary key.
	Attributes []string
	// Filter maps a field to a plain value (equality, or IN for slices) or a Predicate.
	Filter map[string]interface{}
	OrderBy *OrderBy
	// Limit is the page size. Zero means unbounded.
	Limit int
	// Index is the zero-based start row.
	Index int
	// Offset is the row-count bound: the exclusive end row Index+Limit. Zero
	// means unbounded. Kept in sync by Window.
	Offset int
	List   bool
	Count  bool
	// RequestedFields overrides Attributes as the projection when set.
	RequestedFields []string
}

// Window recomputes Offset from Index and Limit.
func (o *QueryOptions) Window() {
	if o.Limit > 0 {
		o.Offset = o.Index + o.Limit
	} else {
		o.Offset = 0
	}
}

// Projection returns the fields to fetch.
func (o QueryOptions) Projection() []string {
	if len(o.RequestedFields) > 0 {
		return o.RequestedFields
	}
	return o.Attributes
}

// Clone deep-copies the slices and the filter map. Predicates are shared.
func (o QueryOptions) Clone() QueryOptions {
	c := o
	c.Attributes = append([]string(nil), o.Attributes...)
	c.RequestedFields = append([]string(nil), o.RequestedFields...)
	if o.Filter != nil {
		c.Filter = make(map[string]interface{}, len(o.Filter))
		for k, v := range o.Filter {
			c.Filter[k] = v
		}
	}
	if o.OrderBy != nil {
		ob := *o.OrderBy
		c.OrderBy = &ob
	}
	return c
}

// Apply returns a copy with the options applied in order; later options win.
func (o QueryOptions) Apply(opts ...Option) QueryOptions {
	c := o.Clone()
	for _, opt := range opts {
		opt(&c)
	}
	c.Attributes = AddAttributes(nil, c.Attributes...)
	c.Window()
	return c
}

// Option mutates QueryOptions.
type Option func(*QueryOptions)

// WithFilter sets one filter entry.
func WithFilter(field string, value interface{}) Option {
	return func(o *QueryOptions) {
		if o.Filter == nil {
			o.Filter = map[string]interface{}{}
		}
		o.Filter[field] = value
	}
}

// WithFilters merges a filter map by key.
func WithFilters(filter map[string]interface{}) Option {
	return func(o *QueryOptions) {
		for k, v := range filter {
			WithFilter(k, v)(o)
		}
	}
}

// WithAttributes adds attributes to the projection.
func WithAttributes(attrs ...string) Option {
	return func(o *QueryOptions) {
		o.Attributes = AddAttributes(o.Attributes, attrs...)
	}
}

// WithOrder sets the sort key.
func WithOrder(field string, dir Direction) Option {
	return func(o *QueryOptions) {
		o.OrderBy = &OrderBy{Field: field, Direction: dir}
	}
}

// WithLimit sets the page size.
func WithLimit(n int) Option {
	return func(o *QueryOptions) {
		o.Limit = n
	}
}

// WithIndex sets the start row.
func WithIndex(n int) Option {
	return func(o *QueryOptions) {
		o.Index = n
	}
}

// WithCount toggles the total-count side query.
func WithCount(count bool) Option {
	return func(o *QueryOptions) {
		o.Count = count
	}
}

// WithList toggles list shape.
func WithList(list bool) Option {
	return func(o *QueryOptions) {
		o.List = list
	}
}

// WithRequestedFields pins the projection.
func WithRequestedFields(fields ...string) Option {
	return func(o *QueryOptions) {
		o.RequestedFields = AddAttributes(nil, fields...)
	}
}

// AddAttributes appends extra to attrs, skipping blanks and duplicates and
// keeping first-seen order.
func AddAttributes(attrs []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(attrs)+len(extra))
	out := make([]string, 0, len(attrs)+len(extra))
	for _, list := range [][]string{attrs, extra} {
		for _, a := range list {
			if a == "" {
				continue
			}
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}
