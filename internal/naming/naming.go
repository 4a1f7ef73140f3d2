// Package naming converts model and field names to GraphQL names, including
// pluralization, collision detection, and reserved word handling.
package naming

import (
	"log/slog"
	"strings"
	"unicode"
)

// Namer provides the name transformations used when deriving GraphQL types
// from models. It handles pluralization, reserved words, and collisions.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// ToGraphQLTypeName converts a model name to a GraphQL type name (PascalCase).
// Example: "user_profile" -> "UserProfile"
func (n *Namer) ToGraphQLTypeName(name string) string {
	return n.validateTypeAndSuffix(toPascalCase(name))
}

// ToGraphQLFieldName converts a field name to a GraphQL field (camelCase).
// Example: "user_name" -> "userName"
func (n *Namer) ToGraphQLFieldName(name string) string {
	return toCamelCase(name)
}

// NestedTypeName names the object type of a nested field.
// Example: ("User", "home_address") -> "UserHomeAddress"
func (n *Namer) NestedTypeName(parentType, field string) string {
	return parentType + toPascalCase(field)
}

// EnumTypeName names the enum type of an enumerated field.
// Example: ("Post", "status") -> "PostStatusEnumType"
func (n *Namer) EnumTypeName(parentType, field string) string {
	return n.NestedTypeName(parentType, field) + "EnumType"
}

// GlobalIDFieldName names the field that exposes a model's raw key when id
// carries the global identifier.
// Example: "user_profile" -> "userProfileID"
func (n *Namer) GlobalIDFieldName(modelName string) string {
	return toCamelCase(modelName) + "ID"
}

// EnumValueName turns an arbitrary enum value into a valid GraphQL name by
// dropping every character outside [A-Za-z0-9_] and camel-casing the words
// between them. Names starting with a digit get a leading underscore.
// Example: "in-progress" -> "inProgress", "2fa" -> "_2fa"
func EnumValueName(value string) string {
	words := strings.FieldsFunc(value, func(r rune) bool {
		return r != '_' && (r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		b.WriteString(w)
	}
	name := b.String()
	if name == "" {
		return "_"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// RegisterType registers a GraphQL type name derived from source and returns
// the resolved name. If a collision occurs, returns a suffixed name and logs a
// warning.
func (n *Namer) RegisterType(typeName, source string) string {
	return n.resolver.RegisterType(n.validateTypeAndSuffix(typeName), source)
}

// RegisterField registers a field of typeName and returns the resolved field
// name.
func (n *Namer) RegisterField(typeName, fieldName, source string) string {
	fieldName = n.validateFieldAndSuffix(fieldName)
	return n.resolver.RegisterField(typeName, fieldName, source)
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
