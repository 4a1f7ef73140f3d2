package datastore

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayloader/internal/dbexec"
	"relayloader/internal/model"
	"relayloader/internal/planner"
)

func newTestStore(t *testing.T, opts ...Option) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(dbexec.NewStandardExecutor(db), opts...), mock
}

func testModels(t *testing.T) *model.Registry {
	t.Helper()
	user := model.New("user", []model.Field{
		{Name: "name", Type: model.TypeString},
	})
	task := model.New("task", []model.Field{
		{Name: "title", Type: model.TypeString},
		{Name: "assignee_id", Type: model.TypeInt},
	})
	reg, err := model.NewRegistry(user, task)
	require.NoError(t, err)
	require.NoError(t, reg.HasMany("user", "tasks", "task", "id", "assignee_id"))
	return reg
}

func expectQuery(t *testing.T, mock sqlmock.Sqlmock, planned planner.SQLQuery, rows *sqlmock.Rows) {
	t.Helper()
	expectation := mock.ExpectQuery(regexp.QuoteMeta(planned.SQL))
	if len(planned.Args) > 0 {
		expectation = expectation.WithArgs(toDriverValues(planned.Args)...)
	}
	expectation.WillReturnRows(rows)
}

func toDriverValues(args []interface{}) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg
	}
	return values
}

func TestFind(t *testing.T) {
	store, mock := newTestStore(t)
	users := testModels(t).MustModel("user")
	opts := planner.QueryOptions{
		Attributes: []string{"id", "name"},
		Filter:     map[string]interface{}{"name": "ann"},
		Limit:      10,
	}
	planned, err := planner.PlanSelect(users, opts)
	require.NoError(t, err)
	expectQuery(t, mock, planned, sqlmock.NewRows([]string{"id", "name"}).AddRow(1, []byte("ann")))

	rows, err := store.Find(context.Background(), users, opts)
	require.NoError(t, err)
	assert.Equal(t, []model.Row{{"id": 1, "name": "ann"}}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindEmpty(t *testing.T) {
	store, mock := newTestStore(t)
	users := testModels(t).MustModel("user")
	planned, err := planner.PlanSelect(users, planner.QueryOptions{})
	require.NoError(t, err)
	expectQuery(t, mock, planned, sqlmock.NewRows([]string{"id", "name"}))

	rows, err := store.Find(context.Background(), users, planner.QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCount(t *testing.T) {
	store, mock := newTestStore(t)
	users := testModels(t).MustModel("user")
	planned, err := planner.PlanCount(users, planner.QueryOptions{})
	require.NoError(t, err)
	expectQuery(t, mock, planned, sqlmock.NewRows([]string{planner.CountAlias}).AddRow(int64(42)))

	n, err := store.Count(context.Background(), users, planner.QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestFindAllChunksKeys(t *testing.T) {
	store, mock := newTestStore(t, WithMaxKeys(2))
	users := testModels(t).MustModel("user")
	attrs := []string{"id", "name"}

	first, err := planner.PlanByKeys(users, "id", []interface{}{1, 2}, attrs)
	require.NoError(t, err)
	second, err := planner.PlanByKeys(users, "id", []interface{}{3}, attrs)
	require.NoError(t, err)
	expectQuery(t, mock, first, sqlmock.NewRows(attrs).AddRow(1, "ann").AddRow(2, "bob"))
	expectQuery(t, mock, second, sqlmock.NewRows(attrs).AddRow(3, "cy"))

	rows, err := store.FindAll(context.Background(), users, "id", []interface{}{1, 2, 3}, attrs)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRelatedGroupsByParent(t *testing.T) {
	store, mock := newTestStore(t)
	reg := testModels(t)
	tasks := reg.MustModel("task")
	rel, ok := reg.MustModel("user").Relation("tasks")
	require.True(t, ok)

	opts := planner.QueryOptions{Attributes: []string{"id", "title"}, Limit: 2}
	planned, err := planner.PlanRelatedBatch(tasks, *rel, []interface{}{1, 2, 3}, opts)
	require.NoError(t, err)
	expectQuery(t, mock, planned, sqlmock.NewRows([]string{"id", "title", planner.BatchParentAlias}).
		AddRow(10, "a", int64(1)).
		AddRow(11, "b", int64(1)).
		AddRow(20, "c", int64(2)))

	grouped, err := store.FindRelated(context.Background(), tasks, *rel, []interface{}{1, 2, 3}, opts)
	require.NoError(t, err)
	assert.Equal(t, map[string][]model.Row{
		"1": {{"id": 10, "title": "a"}, {"id": 11, "title": "b"}},
		"2": {{"id": 20, "title": "c"}},
	}, grouped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRelated(t *testing.T) {
	store, mock := newTestStore(t)
	reg := testModels(t)
	tasks := reg.MustModel("task")
	rel, _ := reg.MustModel("user").Relation("tasks")

	planned, err := planner.PlanRelatedCount(tasks, *rel, []interface{}{1, 2}, nil)
	require.NoError(t, err)
	expectQuery(t, mock, planned, sqlmock.NewRows([]string{planner.BatchParentAlias, planner.CountAlias}).
		AddRow(int64(1), int64(4)).
		AddRow(int64(2), int64(1)))

	counts, err := store.CountRelated(context.Background(), tasks, *rel, []interface{}{1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"1": 4, "2": 1}, counts)
}

func TestQueryErrorsAreNormalized(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"table access denied", &mysql.MySQLError{Number: 1142, Message: "SELECT command denied"}, ErrAccessDenied},
		{"database access denied", &mysql.MySQLError{Number: 1044, Message: "Access denied"}, ErrAccessDenied},
		{"unknown table", &mysql.MySQLError{Number: 1146, Message: "Table 'blog.users' doesn't exist"}, ErrUnknownTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newTestStore(t)
			users := testModels(t).MustModel("user")
			mock.ExpectQuery("SELECT").WillReturnError(tt.err)

			_, err := store.Find(context.Background(), users, planner.QueryOptions{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("other errors pass through", func(t *testing.T) {
		store, mock := newTestStore(t)
		users := testModels(t).MustModel("user")
		boom := errors.New("boom")
		mock.ExpectQuery("SELECT").WillReturnError(boom)

		_, err := store.Find(context.Background(), users, planner.QueryOptions{})
		assert.ErrorIs(t, err, boom)
	})
}
