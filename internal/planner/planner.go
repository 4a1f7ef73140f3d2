// Package planner compiles GraphQL field arguments into QueryOptions and renders
// those options as parameterized SQL. It handles projection, filtering,
// ordering, windowing and the per-parent batch queries used by loaders.
package planner

import (
	"fmt"

	"relayloader/internal/model"

	sq "github.com/Masterminds/squirrel"
)

// SQLQuery is a rendered statement and its bound arguments.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// CountAlias is the column holding COUNT(*) results.
const CountAlias = "__count"

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

// columns returns the quoted projection for opts, falling back to every model
// attribute. Names that are not attributes of m are rejected.
func columns(m *model.Model, qualifier string, opts QueryOptions) ([]string, error) {
	attrs := opts.Projection()
	if len(attrs) == 0 {
		attrs = m.Attributes()
	}
	for _, a := range attrs {
		if !m.HasAttribute(a) {
			return nil, fmt.Errorf("unknown attribute %q on %s", a, m.Name)
		}
	}
	return quoteColumns(qualifier, attrs), nil
}

// PlanSelect renders a root query for m.
func PlanSelect(m *model.Model, opts QueryOptions) (SQLQuery, error) {
	if err := validateLimitOffset(opts.Limit, opts.Index); err != nil {
		return SQLQuery{}, err
	}
	cols, err := columns(m, "", opts)
	if err != nil {
		return SQLQuery{}, err
	}
	where, err := BuildWhere(m, "", opts.Filter)
	if err != nil {
		return SQLQuery{}, err
	}
	if opts.OrderBy != nil && !m.HasAttribute(opts.OrderBy.Field) {
		return SQLQuery{}, fmt.Errorf("unknown order field %q on %s", opts.OrderBy.Field, m.Name)
	}

	query := builder().Select(cols...).From(quoteTable(m))
	if where != nil {
		query = query.Where(where)
	}
	query = query.OrderBy(orderClause(m, "", opts.OrderBy))
	if opts.Limit > 0 {
		query = query.Limit(uint64(opts.Limit))
	}
	if opts.Index > 0 {
		query = query.Offset(uint64(opts.Index))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanCount renders the total-count query matching opts' filter.
func PlanCount(m *model.Model, opts QueryOptions) (SQLQuery, error) {
	where, err := BuildWhere(m, "", opts.Filter)
	if err != nil {
		return SQLQuery{}, err
	}
	query := builder().Select("COUNT(*) AS " + CountAlias).From(quoteTable(m))
	if where != nil {
		query = query.Where(where)
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}

// PlanByKeys renders a fetch of every row whose field matches one of keys.
// Empty attrs selects every attribute.
func PlanByKeys(m *model.Model, field string, keys []interface{}, attrs []string) (SQLQuery, error) {
	if len(keys) == 0 {
		return SQLQuery{}, nil
	}
	if !m.HasAttribute(field) {
		return SQLQuery{}, fmt.Errorf("unknown key field %q on %s", field, m.Name)
	}
	if len(attrs) == 0 {
		attrs = m.Attributes()
	}
	cols, err := columns(m, "", QueryOptions{Attributes: AddAttributes(attrs, field)})
	if err != nil {
		return SQLQuery{}, err
	}
	sql, args, err := builder().
		Select(cols...).
		From(quoteTable(m)).
		Where(sq.Eq{qualifiedColumn("", field): keys}).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}
