package resolver

import (
	"context"
	"fmt"

	"relayloader/internal/cursor"
	"relayloader/internal/model"
	"relayloader/internal/planner"
	"relayloader/internal/scalars"
	"relayloader/internal/selection"

	"github.com/graphql-go/graphql"
)

// PageInfo is the relay page info type shared by every connection.
var PageInfo = graphql.NewObject(graphql.ObjectConfig{
	Name:        "PageInfo",
	Description: "Information about pagination in a connection.",
	Fields: graphql.Fields{
		"hasNextPage": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Boolean),
		},
		"hasPreviousPage": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Boolean),
		},
		"startCursor": &graphql.Field{
			Type: graphql.String,
		},
		"endCursor": &graphql.Field{
			Type: graphql.String,
		},
	},
})

// ConnectionOptions configures a relay connection over a Node.
type ConnectionOptions struct {
	// Name prefixes the generated <Name>Connection, <Name>Edge and
	// <Name>ConnectionOrder types.
	Name string
	// Type is the node type of the edges.
	Type *graphql.Object
	// OrderBy replaces the default order enum. Its values must be
	// planner.OrderBy.
	OrderBy *graphql.Enum
	// DefaultOrder applies when no orderBy argument is given. It defaults to
	// the primary key ascending.
	DefaultOrder *planner.OrderBy
	// ConnectionFields and EdgeFields extend the generated types.
	ConnectionFields graphql.Fields
	EdgeFields       graphql.Fields

	// Options holds the limits and hooks. Before runs after the pagination
	// arguments are applied; After receives the raw []model.Row window and
	// must return one.
	Options
}

// Connection is a relay connection field: its types, its arguments and the
// resolver producing edges and page info.
type Connection struct {
	ConnectionType *graphql.Object
	EdgeType       *graphql.Object
	NodeType       *graphql.Object
	OrderBy        *graphql.Enum
	Args           graphql.FieldConfigArgument

	opts     ConnectionOptions
	order    planner.OrderBy
	resolver *Resolver
}

// Connect wraps the node in a relay connection. Name and Type are required.
func (n *Node) Connect(opts ConnectionOptions) (*Connection, error) {
	if opts.Name == "" {
		return nil, configErrorf("connect", "connection on %s requires a name", n.model.Name)
	}
	if opts.Type == nil {
		return nil, configErrorf("connect", "connection %s requires a node type", opts.Name)
	}

	c := &Connection{
		NodeType: opts.Type,
		opts:     opts,
		order:    planner.OrderBy{Field: n.model.PrimaryKey, Direction: planner.Asc},
	}
	if opts.DefaultOrder != nil {
		c.order = *opts.DefaultOrder
	}
	c.OrderBy = opts.OrderBy
	if c.OrderBy == nil {
		c.OrderBy = graphql.NewEnum(graphql.EnumConfig{
			Name: opts.Name + "ConnectionOrder",
			Values: graphql.EnumValueConfigMap{
				"ID": &graphql.EnumValueConfig{
					Value: planner.OrderBy{Field: n.model.PrimaryKey, Direction: planner.Asc},
				},
			},
		})
	}

	edgeFields := graphql.Fields{
		"node": &graphql.Field{
			Type: opts.Type,
		},
		"cursor": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
		},
	}
	for name, f := range opts.EdgeFields {
		edgeFields[name] = f
	}
	c.EdgeType = graphql.NewObject(graphql.ObjectConfig{
		Name:   opts.Name + "Edge",
		Fields: edgeFields,
	})

	connFields := graphql.Fields{
		"edges": &graphql.Field{
			Type: graphql.NewList(c.EdgeType),
		},
		"pageInfo": &graphql.Field{
			Type: graphql.NewNonNull(PageInfo),
		},
		"totalCount": &graphql.Field{
			Type: graphql.Int,
		},
	}
	for name, f := range opts.ConnectionFields {
		connFields[name] = f
	}
	c.ConnectionType = graphql.NewObject(graphql.ObjectConfig{
		Name:   opts.Name + "Connection",
		Fields: connFields,
	})

	c.Args = graphql.FieldConfigArgument{
		"first":   &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
		"last":    &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
		"after":   &graphql.ArgumentConfig{Type: graphql.String},
		"before":  &graphql.ArgumentConfig{Type: graphql.String},
		"orderBy": &graphql.ArgumentConfig{Type: graphql.NewList(c.OrderBy)},
	}

	inner := opts.Options
	inner.List = true
	inner.Before = c.before
	inner.After = c.after
	c.resolver = New(n, inner)
	return c, nil
}

// Resolver returns the resolver the connection runs when edges are selected.
func (c *Connection) Resolver() *Resolver { return c.resolver }

// Field returns a graphql field serving the connection.
func (c *Connection) Field() *graphql.Field {
	return &graphql.Field{
		Type:    c.ConnectionType,
		Args:    c.Args,
		Resolve: c.Resolve,
	}
}

// Resolve implements graphql.FieldResolveFn. When the selection reads neither
// edges, pageInfo nor totalCount the node is not run and only the source and
// arguments are returned.
func (c *Connection) Resolve(p graphql.ResolveParams) (interface{}, error) {
	tree := selection.FromResolveInfo(p.Info)
	if tree.Lookup("edges") == nil && tree.Lookup("pageInfo") == nil && tree.Lookup("totalCount") == nil {
		return map[string]interface{}{
			"source": p.Source,
			"args":   p.Args,
		}, nil
	}
	return c.resolver.Resolve(p)
}

// pageSize returns first or last, clamped to the resolver's limit. Zero means
// the request does not paginate.
func (c *Connection) pageSize(args map[string]interface{}) (int, error) {
	for _, key := range []string{"first", "last"} {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		n, ok := v.(int)
		if !ok {
			return 0, fmt.Errorf("%s must be an integer", key)
		}
		if n < 0 {
			return 0, fmt.Errorf("%s must be non-negative", key)
		}
		if n == 0 {
			continue
		}
		return planner.CompileConfig{MaxLimit: c.opts.MaxLimit}.ClampLimit(n), nil
	}
	return 0, nil
}

// pageCursor decodes after, or before when after is absent.
func pageCursor(args map[string]interface{}) (*cursor.Cursor, error) {
	for _, key := range []string{"after", "before"} {
		if s, ok := args[key].(string); ok && s != "" {
			return cursor.DecodeOptional(s, false)
		}
	}
	return nil, nil
}

func (c *Connection) orderFromArgs(args map[string]interface{}) (planner.OrderBy, error) {
	raw, ok := args["orderBy"]
	if !ok || raw == nil {
		return c.order, nil
	}
	if list, ok := raw.([]interface{}); ok {
		if len(list) == 0 || list[0] == nil {
			return c.order, nil
		}
		raw = list[0]
	}
	switch v := raw.(type) {
	case planner.OrderBy:
		return v, nil
	case *planner.OrderBy:
		return *v, nil
	case string:
		// Literal enum names reach here from selections compiled ahead of
		// their own resolution.
		if named, ok := c.OrderBy.ParseValue(v).(planner.OrderBy); ok {
			return named, nil
		}
		order, err := planner.ParseOrder(v)
		if err != nil {
			return planner.OrderBy{}, err
		}
		return *order, nil
	default:
		return planner.OrderBy{}, configErrorf("connect", "connection %s order value %T is not a planner.OrderBy", c.opts.Name, raw)
	}
}

func (c *Connection) before(ctx context.Context, opts planner.QueryOptions, hc HookContext) (planner.QueryOptions, error) {
	page, err := c.pageSize(hc.Args)
	if err != nil {
		return opts, err
	}
	if page > 0 {
		opts.Limit = page
		opts.Count = true
		cur, err := pageCursor(hc.Args)
		if err != nil {
			return opts, err
		}
		if cur != nil {
			opts.Index = cur.Index + 1
		}
	}
	if selection.FromResolveInfo(hc.Info).Lookup("totalCount") != nil {
		opts.Count = true
	}

	order, err := c.orderFromArgs(hc.Args)
	if err != nil {
		return opts, err
	}
	if last, ok := hc.Args["last"].(int); ok && last > 0 {
		order.Direction = order.Direction.Reverse()
	}
	opts.OrderBy = &order
	opts.Attributes = planner.AddAttributes(opts.Attributes, order.Field)
	opts.Window()

	if c.opts.Before != nil {
		return c.opts.Before(ctx, opts, hc)
	}
	return opts, nil
}

func (c *Connection) after(ctx context.Context, result interface{}, hc HookContext) (interface{}, error) {
	rows, _ := result.([]model.Row)
	if c.opts.After != nil {
		v, err := c.opts.After(ctx, rows, hc)
		if err != nil {
			return nil, err
		}
		var ok bool
		if rows, ok = v.([]model.Row); !ok && v != nil {
			return nil, configErrorf("connect", "connection %s after hook returned %T, want []model.Row", c.opts.Name, v)
		}
	}

	cur, err := pageCursor(hc.Args)
	if err != nil {
		return nil, err
	}
	base := 0
	if cur != nil {
		base = cur.Index + 1
	}

	pk := c.resolver.node.model.PrimaryKey
	edges := make([]interface{}, len(rows))
	for i, row := range rows {
		edges[i] = map[string]interface{}{
			"cursor": cursor.Encode(planner.KeyString(row[pk]), base+i),
			"node":   row,
			"source": hc.Source,
		}
	}

	total := 0
	if len(rows) > 0 {
		total, _ = rows[0][model.FullCountField].(int)
	} else if hc.Total != nil {
		// a page past the last row still carries the count
		total, _ = hc.Total()
	}
	page, err := c.pageSize(hc.Args)
	if err != nil {
		return nil, err
	}
	hasNext, hasPrev := pageBounds(base, page, total)

	pageInfo := map[string]interface{}{
		"hasNextPage":     hasNext,
		"hasPreviousPage": hasPrev,
		"startCursor":     nil,
		"endCursor":       nil,
	}
	if len(edges) > 0 {
		pageInfo["startCursor"] = edges[0].(map[string]interface{})["cursor"]
		pageInfo["endCursor"] = edges[len(edges)-1].(map[string]interface{})["cursor"]
	}

	return map[string]interface{}{
		"source":     hc.Source,
		"args":       hc.Args,
		"edges":      edges,
		"pageInfo":   pageInfo,
		"totalCount": total,
	}, nil
}

// pageBounds computes hasNextPage and hasPreviousPage for a page of size page
// starting at row base. The window ends at base+page; there is a next page
// when that end is short of total and a previous page when it lies past the
// first page. Unpaginated requests have neither.
func pageBounds(base, page, total int) (hasNext, hasPrev bool) {
	if page <= 0 {
		return false, false
	}
	end := base + page
	return end < total, end > page
}
