package naming

import "github.com/jinzhu/inflection"

// Pluralize returns the plural of word, preferring PluralOverrides.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize returns the singular of word, preferring SingularOverrides.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}

// ListFieldName names the root field listing a model's records.
// Example: "task_tag" -> "taskTags"
func (n *Namer) ListFieldName(modelName string) string {
	return toCamelCase(n.Pluralize(modelName))
}

// ItemFieldName names the root field fetching one record by key.
// Example: "people" -> "person"
func (n *Namer) ItemFieldName(modelName string) string {
	return toCamelCase(n.Singularize(modelName))
}
