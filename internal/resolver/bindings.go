package resolver

import (
	"context"
	"sort"
	"strings"
	"sync"

	"relayloader/internal/selection"

	"github.com/graphql-go/graphql"
)

// FieldKey identifies a field of a GraphQL object type.
type FieldKey struct {
	TypeName  string
	FieldName string
}

// Bindings records which Resolver serves which object field, so a parent can
// find the relations selected below it without inspecting resolve functions.
type Bindings struct {
	mu        sync.RWMutex
	resolvers map[FieldKey]*Resolver
}

// NewBindings creates an empty side table.
func NewBindings() *Bindings {
	return &Bindings{resolvers: map[FieldKey]*Resolver{}}
}

// Bind records r as the resolver of typeName.fieldName. Rebinding replaces
// the previous entry.
func (b *Bindings) Bind(typeName, fieldName string, r *Resolver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolvers[FieldKey{TypeName: typeName, FieldName: fieldName}] = r
}

// Lookup returns the resolver bound to typeName.fieldName.
func (b *Bindings) Lookup(typeName, fieldName string) (*Resolver, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.resolvers[FieldKey{TypeName: typeName, FieldName: fieldName}]
	return r, ok
}

// Len returns the number of bound fields.
func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.resolvers)
}

// discover compiles a Resolution for every selected field of typ that is
// bound to a related resolver, keyed by response key.
func (b *Bindings) discover(ctx context.Context, tree *selection.Tree, typ graphql.Output) (map[string]*Resolution, error) {
	if b == nil || tree == nil {
		return nil, nil
	}
	obj, ok := unwrapType(typ).(*graphql.Object)
	if !ok {
		return nil, nil
	}
	fields := obj.Fields()

	var out map[string]*Resolution
	for _, key := range tree.Keys() {
		name := tree.Name(key)
		def, ok := fields[name]
		if !ok {
			continue
		}
		child, ok := b.Lookup(obj.Name(), name)
		if !ok || !child.node.IsRelated() {
			continue
		}
		sub := tree.Fields[key]
		args := sub.Args
		childType := def.Type
		if nodeType, ok := connectionNodeType(childType); ok {
			sub = sub.Lookup("edges", "node")
			childType = nodeType
		}
		if sub == nil {
			continue
		}
		res, err := child.compile(ctx, HookContext{Args: args, Selection: sub, Type: childType}, false)
		if err != nil {
			return nil, err
		}
		if out == nil {
			out = map[string]*Resolution{}
		}
		out[key] = res
	}
	return out, nil
}

func sortedChildKeys(children map[string]*Resolution) []string {
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unwrapType(t graphql.Type) graphql.Type {
	for {
		switch w := t.(type) {
		case *graphql.NonNull:
			t = w.OfType
		case *graphql.List:
			t = w.OfType
		default:
			return t
		}
	}
}

func isListType(t graphql.Type) bool {
	if nn, ok := t.(*graphql.NonNull); ok {
		t = nn.OfType
	}
	_, ok := t.(*graphql.List)
	return ok
}

// connectionNodeType returns the node type of a relay connection type.
func connectionNodeType(t graphql.Type) (graphql.Output, bool) {
	if nn, ok := t.(*graphql.NonNull); ok {
		t = nn.OfType
	}
	obj, ok := t.(*graphql.Object)
	if !ok || !strings.HasSuffix(obj.Name(), "Connection") {
		return nil, false
	}
	edges, ok := obj.Fields()["edges"]
	if !ok {
		return nil, false
	}
	edge, ok := unwrapType(edges.Type).(*graphql.Object)
	if !ok {
		return nil, false
	}
	node, ok := edge.Fields()["node"]
	if !ok {
		return nil, false
	}
	return node.Type, true
}
