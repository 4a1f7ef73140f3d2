package naming

import "strings"

// reservedTypeNames are GraphQL keywords, built-in scalars and the types the
// resolver layer defines itself. Keys are lower case.
var reservedTypeNames = map[string]bool{
	"query": true, "mutation": true, "subscription": true,
	"schema": true, "type": true, "scalar": true, "enum": true,
	"input": true, "interface": true, "union": true, "fragment": true,
	"directive": true, "extend": true, "implements": true, "on": true,
	"true": true, "false": true, "null": true,

	"int": true, "float": true, "string": true, "boolean": true, "id": true,

	"node":           true,
	"pageinfo":       true,
	"json":           true,
	"nonnegativeint": true,
}

// generatedTypeSuffixes name the types Connect derives from a model type.
// They are matched case-sensitively so "Knowledge" stays usable.
var generatedTypeSuffixes = []string{"Connection", "Edge"}

func isReservedTypeName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "__") || reservedTypeNames[lower] {
		return true
	}
	for _, suffix := range generatedTypeSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Introspection owns every field name starting with "__".
func isReservedFieldName(name string) bool {
	return strings.HasPrefix(name, "__")
}
