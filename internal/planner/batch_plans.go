package planner

import (
	"fmt"
	"strings"

	"relayloader/internal/model"
	"relayloader/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// BatchParentAlias is the column carrying the parent key in batch results.
const BatchParentAlias = "__batch_parent_id"

// relatedSource describes where related rows come from and which column
// identifies their parent.
type relatedSource struct {
	from      string
	qualifier string
	partition string
}

func relatedSourceFor(target *model.Model, rel model.Relation) (relatedSource, error) {
	if !target.HasAttribute(rel.ForeignKey) {
		return relatedSource{}, fmt.Errorf("relation %s: unknown foreign key %q on %s", rel.Name, rel.ForeignKey, target.Name)
	}
	switch rel.Kind {
	case model.HasAndBelongsToMany:
		from := fmt.Sprintf("%s JOIN %s ON %s = %s",
			quoteTable(target),
			sqlutil.QuoteIdentifier(rel.JoinTable),
			sqlutil.QuoteQualified(rel.JoinTable, rel.JoinForeignKey),
			qualifiedColumn(target.Table, rel.ForeignKey),
		)
		return relatedSource{
			from:      from,
			qualifier: target.Table,
			partition: sqlutil.QuoteQualified(rel.JoinTable, rel.JoinLocalKey),
		}, nil
	default:
		return relatedSource{
			from:      quoteTable(target),
			partition: qualifiedColumn("", rel.ForeignKey),
		}, nil
	}
}

// PlanRelatedBatch renders one query fetching the related rows of every parent
// in keys. When opts carries a window, rows are numbered per parent with
// ROW_NUMBER() and only rows in (Index, Index+Limit] are kept, so each parent
// gets its own page.
func PlanRelatedBatch(target *model.Model, rel model.Relation, keys []interface{}, opts QueryOptions) (SQLQuery, error) {
	if len(keys) == 0 {
		return SQLQuery{}, nil
	}
	if err := validateLimitOffset(opts.Limit, opts.Index); err != nil {
		return SQLQuery{}, err
	}
	src, err := relatedSourceFor(target, rel)
	if err != nil {
		return SQLQuery{}, err
	}
	attrs := opts.Projection()
	if len(attrs) == 0 {
		attrs = target.Attributes()
	}
	innerCols, err := columns(target, src.qualifier, QueryOptions{Attributes: attrs})
	if err != nil {
		return SQLQuery{}, err
	}
	if opts.OrderBy != nil && !target.HasAttribute(opts.OrderBy.Field) {
		return SQLQuery{}, fmt.Errorf("unknown order field %q on %s", opts.OrderBy.Field, target.Name)
	}

	filter, err := BuildWhere(target, src.qualifier, opts.Filter)
	if err != nil {
		return SQLQuery{}, err
	}
	cond := sq.And{sq.Eq{src.partition: keys}}
	if filter != nil {
		cond = append(cond, filter)
	}
	whereSQL, whereArgs, err := cond.ToSql()
	if err != nil {
		return SQLQuery{}, err
	}

	columnList := strings.Join(innerCols, ", ")
	order := orderClause(target, src.qualifier, opts.OrderBy)

	if opts.Limit == 0 && opts.Index == 0 {
		query := fmt.Sprintf(
			"SELECT %s, %s AS %s FROM %s WHERE %s ORDER BY %s, %s",
			columnList, src.partition, BatchParentAlias,
			src.from, whereSQL,
			BatchParentAlias, order,
		)
		return SQLQuery{SQL: query, Args: whereArgs}, nil
	}

	// The outer query reads the derived table, so its columns are unqualified.
	outerList := strings.Join(quoteColumns("", attrs), ", ")
	rnFilter := "__rn > ?"
	args := append([]interface{}{}, whereArgs...)
	args = append(args, opts.Index)
	if opts.Limit > 0 {
		rnFilter += " AND __rn <= ?"
		args = append(args, opts.Index+opts.Limit)
	}
	query := fmt.Sprintf(
		"SELECT %s, %s FROM (SELECT %s, %s AS %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS __rn FROM %s WHERE %s) AS __batch WHERE %s ORDER BY %s, __rn",
		outerList, BatchParentAlias,
		columnList, src.partition, BatchParentAlias,
		src.partition, order,
		src.from, whereSQL,
		rnFilter,
		BatchParentAlias,
	)
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanRelatedCount renders per-parent totals for a relation, grouped by the
// parent key.
func PlanRelatedCount(target *model.Model, rel model.Relation, keys []interface{}, filter map[string]interface{}) (SQLQuery, error) {
	if len(keys) == 0 {
		return SQLQuery{}, nil
	}
	src, err := relatedSourceFor(target, rel)
	if err != nil {
		return SQLQuery{}, err
	}
	where, err := BuildWhere(target, src.qualifier, filter)
	if err != nil {
		return SQLQuery{}, err
	}
	cond := sq.And{sq.Eq{src.partition: keys}}
	if where != nil {
		cond = append(cond, where)
	}
	sql, args, err := builder().
		Select(src.partition+" AS "+BatchParentAlias, "COUNT(*) AS "+CountAlias).
		From(src.from).
		Where(cond).
		GroupBy(src.partition).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: sql, Args: args}, nil
}
