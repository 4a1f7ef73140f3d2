package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blogRegistry(t *testing.T) *Registry {
	t.Helper()
	user := New("user", []Field{
		{Name: "name", Type: TypeString},
		{Name: "username", Type: TypeString},
		{Name: "virtualName", Kind: KindVirtual, Type: TypeString},
	})
	task := New("task", []Field{
		{Name: "title", Type: TypeString},
		{Name: "completed", Type: TypeBoolean},
		{Name: "assignee_id", Type: TypeString},
	})
	tag := New("tag", []Field{
		{Name: "name", Type: TypeString},
		{Name: "description", Type: TypeString},
	})
	reg, err := NewRegistry(user, task, tag)
	require.NoError(t, err)
	require.NoError(t, reg.HasMany("user", "tasks", "task", "id", "assignee_id"))
	require.NoError(t, reg.BelongsTo("task", "assignee", "user", "assignee_id", "id"))
	require.NoError(t, reg.HasAndBelongsToMany("task", "tags", "tag", "id", "id", JoinSpec{}))
	return reg
}

func TestNewDefaults(t *testing.T) {
	m := New("category", nil)
	assert.Equal(t, "categories", m.Table)
	assert.Equal(t, "id", m.PrimaryKey)

	m = New("person", nil, WithTable("people_v2"), WithPrimaryKey("person_id"))
	assert.Equal(t, "people_v2", m.Table)
	assert.Equal(t, "person_id", m.PrimaryKey)
}

func TestAttributes(t *testing.T) {
	reg := blogRegistry(t)
	user := reg.MustModel("user")

	assert.Equal(t, []string{"id", "name", "username"}, user.Attributes())

	tests := []struct {
		name string
		want bool
	}{
		{"id", true},
		{"name", true},
		{"virtualName", false},
		{"tasks", false},
		{"missing", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, user.HasAttribute(tt.name))
		})
	}
}

func TestRelations(t *testing.T) {
	reg := blogRegistry(t)

	tasks, ok := reg.MustModel("user").Relation("tasks")
	require.True(t, ok)
	assert.Equal(t, HasMany, tasks.Kind)
	assert.True(t, tasks.IsList())
	assert.Equal(t, "assignee_id", tasks.IndexField())

	assignee, ok := reg.MustModel("task").Relation("assignee")
	require.True(t, ok)
	assert.False(t, assignee.IsList())

	tags, ok := reg.MustModel("task").Relation("tags")
	require.True(t, ok)
	assert.Equal(t, "tags_tasks", tags.JoinTable)
	assert.Equal(t, "task_id", tags.JoinLocalKey)
	assert.Equal(t, "tag_id", tags.JoinForeignKey)
	assert.Equal(t, "task_id", tags.IndexField())

	assert.Equal(t, []string{"assignee", "tags"}, reg.MustModel("task").RelationNames())
}

func TestDeclareErrors(t *testing.T) {
	reg := blogRegistry(t)

	err := reg.HasMany("nope", "tasks", "task", "id", "assignee_id")
	assert.True(t, errors.Is(err, ErrModelNotFound))

	err = reg.HasMany("user", "tasks", "task", "id", "assignee_id")
	assert.ErrorContains(t, err, "already declared")

	err = reg.HasMany("user", "others", "task", "id", "missing_fk")
	assert.ErrorContains(t, err, "foreign key")

	_, err = NewRegistry(New("a", nil), New("a", nil))
	assert.ErrorContains(t, err, "duplicate model")
}
