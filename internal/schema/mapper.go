// Package schema derives graphql-go object types from model descriptors.
//
// Scalar fields are typed through a TypeMapper strategy; enums, nested
// objects and arrays are derived structurally. Derived named types are cached
// per Deriver so that a schema never holds two types with the same name.
package schema

import (
	"relayloader/internal/model"

	"github.com/graphql-go/graphql"
)

// TypeMapper picks the GraphQL type of a field. Returning false defers to the
// next mapper in a chain.
type TypeMapper interface {
	MapType(f model.Field) (graphql.Output, bool)
}

// MapperFunc adapts a function to TypeMapper.
type MapperFunc func(f model.Field) (graphql.Output, bool)

func (fn MapperFunc) MapType(f model.Field) (graphql.Output, bool) {
	return fn(f)
}

// Chain tries each mapper in order and returns the first match.
func Chain(mappers ...TypeMapper) TypeMapper {
	return MapperFunc(func(f model.Field) (graphql.Output, bool) {
		for _, m := range mappers {
			if m == nil {
				continue
			}
			if t, ok := m.MapType(f); ok {
				return t, true
			}
		}
		return nil, false
	})
}

// DefaultMapper maps scalar storage types to the built-in GraphQL scalars.
// Enums, objects and arrays are left to the Deriver.
var DefaultMapper TypeMapper = MapperFunc(mapScalar)

func mapScalar(f model.Field) (graphql.Output, bool) {
	if len(f.Enum) > 0 || f.Kind == model.KindObject || f.Kind == model.KindArray {
		return nil, false
	}
	switch f.Type {
	case model.TypeString, model.TypeDate, "":
		return graphql.String, true
	case model.TypeInt:
		return graphql.Int, true
	case model.TypeFloat:
		return graphql.Float, true
	case model.TypeBoolean:
		return graphql.Boolean, true
	case model.TypeID:
		return graphql.ID, true
	default:
		return nil, false
	}
}
