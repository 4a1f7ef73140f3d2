// Package datastore executes planned SQL against a MySQL-compatible database
// and returns rows keyed by column name.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"relayloader/internal/dbexec"
	"relayloader/internal/model"
	"relayloader/internal/observability"
	"relayloader/internal/planner"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxKeys bounds the number of keys bound into one IN list.
const DefaultMaxKeys = 1000

var (
	// ErrAccessDenied is returned when the database rejects the query for
	// lack of privileges.
	ErrAccessDenied = errors.New("access denied")
	// ErrUnknownTable is returned when a model's table does not exist.
	ErrUnknownTable = errors.New("unknown table")
)

// MySQL error codes mapped to sentinel errors.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	mysqlErrDBAccessDenied     = 1044
	mysqlErrTableAccessDenied  = 1142
	mysqlErrColumnAccessDenied = 1143
	mysqlErrNoSuchTable        = 1146
)

// SQLStore implements the root and loader store contracts over SQL.
type SQLStore struct {
	exec    dbexec.QueryExecutor
	metrics *observability.LoaderMetrics
	maxKeys int
}

// Option configures an SQLStore.
type Option func(*SQLStore)

// WithMetrics records query durations.
func WithMetrics(metrics *observability.LoaderMetrics) Option {
	return func(s *SQLStore) {
		s.metrics = metrics
	}
}

// WithMaxKeys overrides DefaultMaxKeys.
func WithMaxKeys(n int) Option {
	return func(s *SQLStore) {
		s.maxKeys = n
	}
}

// New creates a store over exec.
func New(exec dbexec.QueryExecutor, opts ...Option) *SQLStore {
	s := &SQLStore{exec: exec, maxKeys: DefaultMaxKeys}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Find returns the rows of m matching opts.
func (s *SQLStore) Find(ctx context.Context, m *model.Model, opts planner.QueryOptions) ([]model.Row, error) {
	planned, err := planner.PlanSelect(m, opts)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, "find", m.Table, planned)
}

// Count returns the number of rows of m matching opts' filter.
func (s *SQLStore) Count(ctx context.Context, m *model.Model, opts planner.QueryOptions) (int, error) {
	planned, err := planner.PlanCount(m, opts)
	if err != nil {
		return 0, err
	}
	rows, err := s.query(ctx, "count", m.Table, planned)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0][planner.CountAlias])
}

// FindAll returns every row of m whose field matches one of keys.
func (s *SQLStore) FindAll(ctx context.Context, m *model.Model, field string, keys []interface{}, attrs []string) ([]model.Row, error) {
	var results []model.Row
	for _, chunk := range chunkValues(keys, s.maxKeys) {
		planned, err := planner.PlanByKeys(m, field, chunk, attrs)
		if err != nil {
			return nil, err
		}
		rows, err := s.query(ctx, "find_all", m.Table, planned)
		if err != nil {
			return nil, err
		}
		results = append(results, rows...)
	}
	return results, nil
}

// FindRelated returns target rows of rel grouped by parent key. Keys are
// rendered with planner.KeyString.
func (s *SQLStore) FindRelated(ctx context.Context, target *model.Model, rel model.Relation, keys []interface{}, opts planner.QueryOptions) (map[string][]model.Row, error) {
	grouped := make(map[string][]model.Row, len(keys))
	for _, chunk := range chunkValues(keys, s.maxKeys) {
		planned, err := planner.PlanRelatedBatch(target, rel, chunk, opts)
		if err != nil {
			return nil, err
		}
		rows, err := s.query(ctx, "find_related", target.Table, planned)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			parent := planner.KeyString(row[planner.BatchParentAlias])
			delete(row, planner.BatchParentAlias)
			grouped[parent] = append(grouped[parent], row)
		}
	}
	return grouped, nil
}

// CountRelated returns per-parent totals for rel.
func (s *SQLStore) CountRelated(ctx context.Context, target *model.Model, rel model.Relation, keys []interface{}, filter map[string]interface{}) (map[string]int, error) {
	counts := make(map[string]int, len(keys))
	for _, chunk := range chunkValues(keys, s.maxKeys) {
		planned, err := planner.PlanRelatedCount(target, rel, chunk, filter)
		if err != nil {
			return nil, err
		}
		rows, err := s.query(ctx, "count_related", target.Table, planned)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			n, err := toInt(row[planner.CountAlias])
			if err != nil {
				return nil, err
			}
			counts[planner.KeyString(row[planner.BatchParentAlias])] = n
		}
	}
	return counts, nil
}

func (s *SQLStore) query(ctx context.Context, operation, table string, planned planner.SQLQuery) (rows []model.Row, err error) {
	if planned.SQL == "" {
		return nil, nil
	}
	ctx, span := startSpan(ctx, "datastore."+operation,
		attribute.String("db.sql.table", table),
		attribute.Int("db.args", len(planned.Args)),
	)
	start := time.Now()
	defer func() {
		s.metrics.RecordQuery(ctx, operation, time.Since(start), err)
		finishSpan(span, err, len(rows))
	}()

	result, err := s.exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	rows, err = dbexec.ScanMaps(result)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	return rows, nil
}

func normalizeQueryError(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
			return fmt.Errorf("%w: %s", ErrAccessDenied, mysqlErr.Message)
		case mysqlErrNoSuchTable:
			return fmt.Errorf("%w: %s", ErrUnknownTable, mysqlErr.Message)
		}
	}
	return err
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

func chunkValues(values []interface{}, max int) [][]interface{} {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]interface{}{values}
	}
	chunks := make([][]interface{}, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("relayloader/datastore").Start(ctx, name)
	span.SetAttributes(attrs...)
	return ctx, span
}

func finishSpan(span trace.Span, err error, rows int) {
	span.SetAttributes(attribute.Int("db.rows", rows))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
