package planner

import (
	"fmt"
	"sort"
	"strings"

	"relayloader/internal/model"
	"relayloader/internal/sqlutil"
)

// ReversePrefix marks a descending order argument, as in "reverse:createdAt".
const ReversePrefix = "reverse:"

// ParseOrder parses an order argument into an OrderBy.
func ParseOrder(value string) (*OrderBy, error) {
	value = strings.TrimSpace(value)
	dir := Asc
	if strings.HasPrefix(value, ReversePrefix) {
		dir = Desc
		value = strings.TrimPrefix(value, ReversePrefix)
	}
	if value == "" {
		return nil, fmt.Errorf("order requires a field name")
	}
	return &OrderBy{Field: value, Direction: dir}, nil
}

// orderClause renders ORDER BY terms for a model, always ending on the primary
// key so that equal sort values keep a stable order.
func orderClause(m *model.Model, qualifier string, order *OrderBy) string {
	pk := qualifiedColumn(qualifier, m.PrimaryKey)
	if order == nil || order.Field == "" {
		return pk
	}
	dir := order.Direction
	if dir == "" {
		dir = Asc
	}
	clause := fmt.Sprintf("%s %s", qualifiedColumn(qualifier, order.Field), dir)
	if order.Field != m.PrimaryKey {
		clause += ", " + pk
	}
	return clause
}

// SortRows sorts rows in place by order. Rows whose values cannot be compared
// keep their relative order.
func SortRows(rows []model.Row, order *OrderBy) {
	if order == nil || order.Field == "" || len(rows) < 2 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, ok := CompareValues(rows[i][order.Field], rows[j][order.Field])
		if !ok {
			return false
		}
		if order.Direction == Desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

func quoteColumns(qualifier string, columns []string) []string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = qualifiedColumn(qualifier, col)
	}
	return quoted
}

func quoteTable(m *model.Model) string {
	return sqlutil.QuoteIdentifier(m.Table)
}
