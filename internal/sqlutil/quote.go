// Package sqlutil quotes MySQL identifiers for the fragments squirrel takes
// verbatim.
package sqlutil

import "strings"

// QuoteIdentifier wraps name in backticks, doubling any backtick inside it.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, "`", "``")
	return "`" + escaped + "`"
}

// QuoteQualified quotes column and, when qualifier is set, prefixes it with
// the quoted table or alias.
func QuoteQualified(qualifier, column string) string {
	if qualifier == "" {
		return QuoteIdentifier(column)
	}
	return QuoteIdentifier(qualifier) + "." + QuoteIdentifier(column)
}
