// Package scalars holds the custom GraphQL scalars shared by derived types
// and connection arguments. Each scalar is a single instance; a schema may
// not contain two types with the same name.
package scalars

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// NonNegativeInt types page sizes such as first and last.
var NonNegativeInt = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "NonNegativeInt",
	Description: "An integer greater than or equal to zero.",
	Serialize: func(value interface{}) interface{} {
		if parsed, ok := coerceNonNegativeInt(value); ok {
			return parsed
		}
		return nil
	},
	ParseValue: func(value interface{}) interface{} {
		if parsed, ok := coerceNonNegativeInt(value); ok {
			return parsed
		}
		return nil
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		intValue, ok := valueAST.(*ast.IntValue)
		if !ok {
			return nil
		}
		parsed, err := strconv.Atoi(intValue.Value)
		if err != nil || parsed < 0 {
			return nil
		}
		return parsed
	},
})

// JSON types object fields declared without a nested field list.
var JSON = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "JSON",
	Description: "Arbitrary JSON value serialized as a string.",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case []byte:
			return string(v)
		case string:
			return v
		case nil:
			return nil
		default:
			serialized, err := json.Marshal(v)
			if err != nil {
				slog.Default().Warn("failed to serialize JSON scalar", slog.String("error", err.Error()))
				return nil
			}
			return string(serialized)
		}
	},
	ParseValue: func(value interface{}) interface{} {
		if s, ok := value.(string); ok {
			return s
		}
		return nil
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		if sv, ok := valueAST.(*ast.StringValue); ok {
			return sv.Value
		}
		return nil
	},
})

func coerceNonNegativeInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v < 0 {
			return 0, false
		}
		return v, true
	case int32:
		if v < 0 {
			return 0, false
		}
		return int(v), true
	case int64:
		if v < 0 || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case float64:
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt {
			return 0, false
		}
		return int(v), true
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
