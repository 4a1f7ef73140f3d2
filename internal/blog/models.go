// Package blog is the example schema served by cmd/server: users own tasks,
// tasks carry tags, and the viewer field resolves the authenticated user.
package blog

import (
	"relayloader/internal/model"
)

// Task status values.
const (
	StatusTodo  = "todo"
	StatusDoing = "doing"
	StatusDone  = "done"
)

// Models declares the user, task and tag models and their relations.
func Models() (*model.Registry, error) {
	user := model.New("user", []model.Field{
		{Name: "id", Type: model.TypeInt, Required: true},
		{Name: "name", Type: model.TypeString, Required: true},
		{Name: "email", Type: model.TypeString},
		{Name: "created_at", Type: model.TypeDate},
	})
	task := model.New("task", []model.Field{
		{Name: "id", Type: model.TypeInt, Required: true},
		{Name: "title", Type: model.TypeString, Required: true},
		{Name: "status", Type: model.TypeString, Enum: []string{StatusTodo, StatusDoing, StatusDone}},
		{Name: "assignee_id", Type: model.TypeInt},
		{Name: "flagged", Type: model.TypeBoolean},
		{Name: "due_on", Type: model.TypeDate},
	})
	tag := model.New("tag", []model.Field{
		{Name: "id", Type: model.TypeInt, Required: true},
		{Name: "label", Type: model.TypeString, Required: true},
	})

	reg, err := model.NewRegistry(user, task, tag)
	if err != nil {
		return nil, err
	}
	if err := reg.HasMany("user", "tasks", "task", "id", "assignee_id"); err != nil {
		return nil, err
	}
	if err := reg.BelongsTo("task", "assignee", "user", "assignee_id", "id"); err != nil {
		return nil, err
	}
	join := model.JoinSpec{Table: "task_tags", LocalKey: "task_id", ForeignKey: "tag_id"}
	if err := reg.HasAndBelongsToMany("task", "tags", "tag", "id", "id", join); err != nil {
		return nil, err
	}
	reverse := model.JoinSpec{Table: "task_tags", LocalKey: "tag_id", ForeignKey: "task_id"}
	if err := reg.HasAndBelongsToMany("tag", "tasks", "task", "id", "id", reverse); err != nil {
		return nil, err
	}
	return reg, nil
}
