package resolver

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"relayloader/internal/loader"
	"relayloader/internal/model"
	"relayloader/internal/planner"
	"relayloader/internal/scalars"
	"relayloader/internal/schema"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"
)

// fakeStore serves rows from memory, satisfies both the root Store and the
// loader store, and records every call.
type fakeStore struct {
	mu          sync.Mutex
	rows        map[string][]model.Row
	err         error
	calls       []string
	findOpts    []planner.QueryOptions
	relatedKeys [][]interface{}
	relatedOpts []planner.QueryOptions
}

func (s *fakeStore) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeStore) callCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *fakeStore) matching(table string, filter map[string]interface{}) []model.Row {
	var out []model.Row
	for _, row := range s.rows[table] {
		if !planner.MatchFilter(row, filter) {
			continue
		}
		c := make(model.Row, len(row))
		for k, v := range row {
			c[k] = v
		}
		out = append(out, c)
	}
	return out
}

func window(rows []model.Row, index, limit int) []model.Row {
	start := index
	if start > len(rows) {
		start = len(rows)
	}
	end := len(rows)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return rows[start:end]
}

func (s *fakeStore) Find(_ context.Context, m *model.Model, opts planner.QueryOptions) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("find:" + m.Table)
	s.findOpts = append(s.findOpts, opts)
	if s.err != nil {
		return nil, s.err
	}
	rows := s.matching(m.Table, opts.Filter)
	planner.SortRows(rows, opts.OrderBy)
	return window(rows, opts.Index, opts.Limit), nil
}

func (s *fakeStore) Count(_ context.Context, m *model.Model, opts planner.QueryOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("count:" + m.Table)
	if s.err != nil {
		return 0, s.err
	}
	return len(s.matching(m.Table, opts.Filter)), nil
}

func (s *fakeStore) FindAll(_ context.Context, m *model.Model, field string, keys []interface{}, _ []string) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("findAll:" + m.Table)
	if s.err != nil {
		return nil, s.err
	}
	return s.matching(m.Table, map[string]interface{}{field: keys}), nil
}

func (s *fakeStore) FindRelated(_ context.Context, target *model.Model, rel model.Relation, keys []interface{}, opts planner.QueryOptions) (map[string][]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("related:" + rel.Name)
	s.relatedKeys = append(s.relatedKeys, keys)
	s.relatedOpts = append(s.relatedOpts, opts)
	if s.err != nil {
		return nil, s.err
	}
	grouped := map[string][]model.Row{}
	for _, key := range keys {
		rows := s.matching(target.Table, opts.Filter)
		var matched []model.Row
		for _, row := range rows {
			if planner.ValuesEqual(row[rel.ForeignKey], key) {
				matched = append(matched, row)
			}
		}
		planner.SortRows(matched, opts.OrderBy)
		grouped[planner.KeyString(key)] = window(matched, opts.Index, opts.Limit)
	}
	return grouped, nil
}

func (s *fakeStore) CountRelated(_ context.Context, target *model.Model, rel model.Relation, keys []interface{}, filter map[string]interface{}) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("countRelated:" + rel.Name)
	if s.err != nil {
		return nil, s.err
	}
	counts := map[string]int{}
	for _, key := range keys {
		for _, row := range s.matching(target.Table, filter) {
			if planner.ValuesEqual(row[rel.ForeignKey], key) {
				counts[planner.KeyString(key)]++
			}
		}
	}
	return counts, nil
}

func testModels(t *testing.T) *model.Registry {
	t.Helper()
	user := model.New("user", []model.Field{
		{Name: "name", Type: model.TypeString, Required: true},
		{Name: "email", Type: model.TypeString},
	})
	task := model.New("task", []model.Field{
		{Name: "title", Type: model.TypeString},
		{Name: "status", Type: model.TypeString, Enum: []string{"todo", "done"}},
		{Name: "assignee_id", Type: model.TypeInt},
	})
	reg, err := model.NewRegistry(user, task)
	require.NoError(t, err)
	require.NoError(t, reg.HasMany("user", "tasks", "task", "id", "assignee_id"))
	require.NoError(t, reg.BelongsTo("task", "assignee", "user", "assignee_id", "id"))
	return reg
}

// seedStore holds six users. User 1 has four tasks, users 2 to 5 one each,
// user 6 none.
func seedStore() *fakeStore {
	users := make([]model.Row, 0, 6)
	for i := 1; i <= 6; i++ {
		users = append(users, model.Row{"id": i, "name": fmt.Sprintf("u%d", i), "email": fmt.Sprintf("u%d@example.com", i)})
	}
	tasks := []model.Row{
		{"id": 1, "title": "t1", "status": "todo", "assignee_id": 1},
		{"id": 2, "title": "t2", "status": "done", "assignee_id": 1},
		{"id": 3, "title": "t3", "status": "todo", "assignee_id": 1},
		{"id": 4, "title": "t4", "status": "done", "assignee_id": 1},
		{"id": 5, "title": "t5", "status": "todo", "assignee_id": 2},
		{"id": 6, "title": "t6", "status": "todo", "assignee_id": 3},
		{"id": 7, "title": "t7", "status": "todo", "assignee_id": 4},
		{"id": 8, "title": "t8", "status": "todo", "assignee_id": 5},
	}
	return &fakeStore{rows: map[string][]model.Row{"users": users, "tasks": tasks}}
}

type fixtureConfig struct {
	defaults Options
	users    Options
	user     Options
	tasks    Options
}

type fixture struct {
	schema  graphql.Schema
	builder *Builder
	models  *model.Registry
	store   *fakeStore
}

// newFixture builds a User/Task schema with list, single, relation,
// connection and node fields.
func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()
	models := testModels(t)
	store := seedStore()
	b, err := NewBuilder(BuilderConfig{Models: models, Store: store, Defaults: cfg.defaults})
	require.NoError(t, err)

	usersRes, err := b.Resolve("user", "", cfg.users)
	require.NoError(t, err)
	userRes, err := b.Resolve("user", "", cfg.user)
	require.NoError(t, err)
	tasksRes, err := b.Resolve("user", "tasks", cfg.tasks)
	require.NoError(t, err)
	assigneeRes, err := b.Resolve("task", "assignee", Options{})
	require.NoError(t, err)

	var userType *graphql.Object
	taskType, err := b.ObjectType("task", schema.TypeOptions{
		Fields: func() graphql.Fields {
			return graphql.Fields{
				"assignee": b.Field("Task", "assignee", userType, nil, assigneeRes),
			}
		},
	})
	require.NoError(t, err)

	taskConn, err := b.Connect("user", "tasks", ConnectionOptions{Name: "UserTasks", Type: taskType})
	require.NoError(t, err)

	userType, err = b.ObjectType("user", schema.TypeOptions{
		GlobalID: true,
		Fields: func() graphql.Fields {
			return graphql.Fields{
				"tasks": b.Field("User", "tasks", graphql.NewList(taskType), graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
					"order": &graphql.ArgumentConfig{Type: graphql.String},
				}, tasksRes),
				"taskConnection": b.ConnectionField("User", "taskConnection", taskConn),
			}
		},
	})
	require.NoError(t, err)

	usersConn, err := b.Connect("user", "", ConnectionOptions{Name: "Users", Type: userType})
	require.NoError(t, err)
	_, nodeField := b.NodeDefinitions()

	s, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"users": b.Field("Query", "users", graphql.NewList(userType), graphql.FieldConfigArgument{
					"limit":  &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
					"offset": &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
					"order":  &graphql.ArgumentConfig{Type: graphql.String},
					"name":   &graphql.ArgumentConfig{Type: graphql.String},
				}, usersRes),
				"user": b.Field("Query", "user", userType, graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				}, userRes),
				"usersConnection": b.ConnectionField("Query", "usersConnection", usersConn),
				"node":            nodeField,
			},
		}),
	})
	require.NoError(t, err)

	return &fixture{schema: s, builder: b, models: models, store: store}
}

func (f *fixture) ctx() context.Context {
	reg := loader.NewRegistry(f.models, f.store)
	return loader.WithRegistry(context.Background(), loader.DefaultNamespace, reg)
}

func (f *fixture) do(t *testing.T, query string) map[string]interface{} {
	t.Helper()
	result := graphql.Do(graphql.Params{Schema: f.schema, RequestString: query, Context: f.ctx()})
	require.Empty(t, result.Errors)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	return data
}

func (f *fixture) exec(ctx context.Context, query string) *graphql.Result {
	return graphql.Do(graphql.Params{Schema: f.schema, RequestString: query, Context: ctx})
}

func object(t *testing.T, v interface{}, path ...string) map[string]interface{} {
	t.Helper()
	for _, key := range path {
		m, ok := v.(map[string]interface{})
		require.True(t, ok, "expected object at %s", key)
		v = m[key]
	}
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	return m
}

func list(t *testing.T, v interface{}, path ...string) []interface{} {
	t.Helper()
	for _, key := range path {
		m, ok := v.(map[string]interface{})
		require.True(t, ok, "expected object at %s", key)
		v = m[key]
	}
	l, ok := v.([]interface{})
	require.True(t, ok)
	return l
}

func fieldValues(t *testing.T, items []interface{}, field string) []interface{} {
	t.Helper()
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = object(t, item)[field]
	}
	return out
}
