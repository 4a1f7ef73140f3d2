// Package selection flattens a GraphQL field selection into a plain tree of
// response keys, literal arguments and aliases, with fragments merged in.
package selection

import (
	"sort"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// Tree is the simplified shape of one field selection.
type Tree struct {
	// Fields is keyed by response key (alias or field name).
	Fields map[string]*Tree
	// Args holds literal argument values. Variables are not resolved here.
	Args map[string]interface{}
	// AliasOf is the schema field name when the response key is an alias.
	AliasOf string

	parent *Tree
}

func newTree(parent *Tree) *Tree {
	return &Tree{
		Fields: map[string]*Tree{},
		Args:   map[string]interface{}{},
		parent: parent,
	}
}

// Empty returns a tree with no fields and no args.
func Empty() *Tree {
	return newTree(nil)
}

// FromResolveInfo simplifies the field currently being resolved.
func FromResolveInfo(info graphql.ResolveInfo) *Tree {
	if len(info.FieldASTs) == 0 || info.FieldASTs[0] == nil {
		return Empty()
	}
	return Simplify(info.FieldASTs[0], info.Fragments)
}

// Simplify walks a selection and its sub-selections. Fragment spreads and inline
// fragments are merged into the level they appear at. The result depends only
// on the inputs.
func Simplify(sel ast.Selection, fragments map[string]ast.Definition) *Tree {
	return simplify(sel, fragments, nil, map[string]bool{})
}

func simplify(sel ast.Selection, fragments map[string]ast.Definition, parent *Tree, visiting map[string]bool) *Tree {
	tree := newTree(parent)
	if sel == nil {
		return tree
	}
	set := selectionSetOf(sel, fragments)
	if set == nil {
		return tree
	}

	for _, child := range set.Selections {
		switch c := child.(type) {
		case *ast.Field:
			if c.Name == nil {
				continue
			}
			name := c.Name.Value
			key := name
			if c.Alias != nil && c.Alias.Value != "" {
				key = c.Alias.Value
			}
			sub := simplify(c, fragments, tree, visiting)
			if existing, ok := tree.Fields[key]; ok {
				merge(existing, sub)
				sub = existing
			}
			if key != name {
				sub.AliasOf = name
			}
			sub.Args = literalArgs(c.Arguments)
			tree.Fields[key] = sub
		case *ast.FragmentSpread:
			if c.Name == nil || visiting[c.Name.Value] {
				continue
			}
			visiting[c.Name.Value] = true
			merge(tree, simplify(c, fragments, parent, visiting))
			delete(visiting, c.Name.Value)
		case *ast.InlineFragment:
			merge(tree, simplify(c, fragments, parent, visiting))
		}
	}
	return tree
}

func selectionSetOf(sel ast.Selection, fragments map[string]ast.Definition) *ast.SelectionSet {
	spread, ok := sel.(*ast.FragmentSpread)
	if !ok {
		return sel.GetSelectionSet()
	}
	if spread.Name == nil || fragments == nil {
		return nil
	}
	def, ok := fragments[spread.Name.Value].(*ast.FragmentDefinition)
	if !ok {
		return nil
	}
	return def.SelectionSet
}

// merge folds src into dst. Nested trees merge recursively and args merge by key.
func merge(dst, src *Tree) {
	for key, sub := range src.Fields {
		if existing, ok := dst.Fields[key]; ok {
			merge(existing, sub)
			continue
		}
		sub.parent = dst
		dst.Fields[key] = sub
	}
	for k, v := range src.Args {
		dst.Args[k] = v
	}
	if src.AliasOf != "" {
		dst.AliasOf = src.AliasOf
	}
}

func literalArgs(args []*ast.Argument) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for _, arg := range args {
		if arg == nil || arg.Name == nil {
			continue
		}
		if v, ok := literalValue(arg.Value); ok {
			out[arg.Name.Value] = v
		}
	}
	return out
}

func literalValue(value ast.Value) (interface{}, bool) {
	switch v := value.(type) {
	case *ast.IntValue:
		n, err := strconv.Atoi(v.Value)
		if err != nil {
			return v.Value, true
		}
		return n, true
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return v.Value, true
		}
		return f, true
	case *ast.StringValue:
		return v.Value, true
	case *ast.BooleanValue:
		return v.Value, true
	case *ast.EnumValue:
		return v.Value, true
	case *ast.ListValue:
		list := make([]interface{}, 0, len(v.Values))
		for _, item := range v.Values {
			if lv, ok := literalValue(item); ok {
				list = append(list, lv)
			}
		}
		return list, true
	case *ast.ObjectValue:
		obj := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			if f == nil || f.Name == nil {
				continue
			}
			if fv, ok := literalValue(f.Value); ok {
				obj[f.Name.Value] = fv
			}
		}
		return obj, true
	default:
		return nil, false
	}
}

// Parent returns the enclosing tree, or nil at the top.
func (t *Tree) Parent() *Tree {
	if t == nil {
		return nil
	}
	return t.parent
}

// Has reports whether a response key was selected.
func (t *Tree) Has(key string) bool {
	if t == nil {
		return false
	}
	_, ok := t.Fields[key]
	return ok
}

// Name maps a response key to the schema field it selects.
func (t *Tree) Name(key string) string {
	if t != nil {
		if sub, ok := t.Fields[key]; ok && sub.AliasOf != "" {
			return sub.AliasOf
		}
	}
	return key
}

// Child follows a path of response keys and returns nil when any step is missing.
func (t *Tree) Child(path ...string) *Tree {
	cur := t
	for _, key := range path {
		if cur == nil {
			return nil
		}
		cur = cur.Fields[key]
	}
	return cur
}

// FieldNames returns the distinct schema field names selected at this level.
func (t *Tree) FieldNames() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(t.Fields))
	names := make([]string, 0, len(t.Fields))
	for key := range t.Fields {
		name := t.Name(key)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Keys returns the response keys at this level, sorted.
func (t *Tree) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.Fields))
	for key := range t.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Lookup follows a path of schema field names. A name selected under several
// response keys yields the merge of their subtrees, built on copies. It returns
// nil when any step is missing.
func (t *Tree) Lookup(path ...string) *Tree {
	cur := t
	for _, name := range path {
		if cur == nil {
			return nil
		}
		var matches []*Tree
		for _, key := range cur.Keys() {
			if cur.Name(key) == name {
				matches = append(matches, cur.Fields[key])
			}
		}
		switch len(matches) {
		case 0:
			return nil
		case 1:
			cur = matches[0]
		default:
			merged := newTree(cur)
			for _, m := range matches {
				merge(merged, m.clone(merged))
			}
			merged.AliasOf = ""
			cur = merged
		}
	}
	return cur
}

func (t *Tree) clone(parent *Tree) *Tree {
	c := newTree(parent)
	c.AliasOf = t.AliasOf
	for k, v := range t.Args {
		c.Args[k] = v
	}
	for key, sub := range t.Fields {
		c.Fields[key] = sub.clone(c)
	}
	return c
}
