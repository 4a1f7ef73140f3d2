package planner

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"relayloader/internal/model"
	"relayloader/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// Predicate is a filter condition other than plain equality. It renders to SQL
// for stores and evaluates in memory for loader result sets.
type Predicate interface {
	Condition(column string) sq.Sqlizer
	Match(value interface{}) bool
}

type predicate struct {
	op    string
	value interface{}
}

// In matches any of values.
func In(values ...interface{}) Predicate { return predicate{op: "in", value: values} }

// NotEq matches everything except value.
func NotEq(value interface{}) Predicate { return predicate{op: "neq", value: value} }

// Gt matches values greater than value.
func Gt(value interface{}) Predicate { return predicate{op: "gt", value: value} }

// Gte matches values greater than or equal to value.
func Gte(value interface{}) Predicate { return predicate{op: "gte", value: value} }

// Lt matches values less than value.
func Lt(value interface{}) Predicate { return predicate{op: "lt", value: value} }

// Lte matches values less than or equal to value.
func Lte(value interface{}) Predicate { return predicate{op: "lte", value: value} }

// IsNull matches NULL when null is true and non-NULL otherwise.
func IsNull(null bool) Predicate { return predicate{op: "null", value: null} }

// Like matches a SQL LIKE pattern (% and _ wildcards).
func Like(pattern string) Predicate { return predicate{op: "like", value: pattern} }

func (p predicate) Condition(column string) sq.Sqlizer {
	switch p.op {
	case "in":
		return sq.Eq{column: p.value}
	case "neq":
		return sq.NotEq{column: p.value}
	case "gt":
		return sq.Gt{column: p.value}
	case "gte":
		return sq.GtOrEq{column: p.value}
	case "lt":
		return sq.Lt{column: p.value}
	case "lte":
		return sq.LtOrEq{column: p.value}
	case "null":
		if p.value.(bool) {
			return sq.Eq{column: nil}
		}
		return sq.NotEq{column: nil}
	case "like":
		return sq.Like{column: p.value}
	default:
		return sq.Expr("1=0")
	}
}

func (p predicate) Match(value interface{}) bool {
	switch p.op {
	case "in":
		for _, candidate := range p.value.([]interface{}) {
			if ValuesEqual(value, candidate) {
				return true
			}
		}
		return false
	case "neq":
		return !ValuesEqual(value, p.value)
	case "gt", "gte", "lt", "lte":
		if value == nil {
			return false
		}
		cmp, ok := CompareValues(value, p.value)
		if !ok {
			return false
		}
		switch p.op {
		case "gt":
			return cmp > 0
		case "gte":
			return cmp >= 0
		case "lt":
			return cmp < 0
		default:
			return cmp <= 0
		}
	case "null":
		return (value == nil) == p.value.(bool)
	case "like":
		text, ok := toText(value)
		if !ok {
			return false
		}
		return likePattern(p.value.(string)).MatchString(text)
	default:
		return false
	}
}

func (p predicate) String() string {
	return fmt.Sprintf("%s(%v)", p.op, p.value)
}

func likePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile("(?is)" + b.String())
}

// MatchFilter evaluates a filter against an in-memory row.
func MatchFilter(row model.Row, filter map[string]interface{}) bool {
	for field, want := range filter {
		got := row[field]
		switch w := want.(type) {
		case Predicate:
			if !w.Match(got) {
				return false
			}
		case nil:
			if got != nil {
				return false
			}
		default:
			if values, ok := sliceValues(want); ok {
				if !In(values...).Match(got) {
					return false
				}
				continue
			}
			if !ValuesEqual(got, want) {
				return false
			}
		}
	}
	return true
}

// BuildWhere renders a filter as a conjunction in field order. qualifier, when
// set, prefixes each column with a table name. A nil result means no condition.
func BuildWhere(m *model.Model, qualifier string, filter map[string]interface{}) (sq.Sqlizer, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conds := make(sq.And, 0, len(fields))
	for _, field := range fields {
		if !m.HasAttribute(field) {
			return nil, fmt.Errorf("unknown filter field %q on %s", field, m.Name)
		}
		column := qualifiedColumn(qualifier, field)
		switch v := filter[field].(type) {
		case Predicate:
			conds = append(conds, v.Condition(column))
		default:
			conds = append(conds, sq.Eq{column: v})
		}
	}
	return conds, nil
}

func sliceValues(v interface{}) ([]interface{}, bool) {
	if vals, ok := v.([]interface{}); ok {
		return vals, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func qualifiedColumn(qualifier, column string) string {
	return sqlutil.QuoteQualified(qualifier, column)
}
