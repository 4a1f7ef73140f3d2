package blog

import (
	"fmt"

	"relayloader/internal/model"
	"relayloader/internal/naming"
	"relayloader/internal/resolver"
	"relayloader/internal/scalars"
	"relayloader/internal/schema"

	"github.com/graphql-go/graphql"
)

// Config configures the blog schema.
type Config struct {
	Models *model.Registry
	Store  resolver.Store
	Namer  *naming.Namer
	// LoadersKey must match the namespace the loader middleware uses.
	LoadersKey   string
	MaxLimit     int
	NestingLimit int
}

// listArgs are the arguments of every plain list field.
func listArgs(extra graphql.FieldConfigArgument) graphql.FieldConfigArgument {
	args := graphql.FieldConfigArgument{
		"limit":  &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
		"offset": &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
		"skip":   &graphql.ArgumentConfig{Type: scalars.NonNegativeInt},
		"order":  &graphql.ArgumentConfig{Type: graphql.String, Description: `Sort field, prefixed with "reverse:" for descending.`},
	}
	for name, arg := range extra {
		args[name] = arg
	}
	return args
}

// NewSchema builds the blog schema and returns it with the builder whose
// bindings it uses.
func NewSchema(cfg Config) (graphql.Schema, *resolver.Builder, error) {
	namer := cfg.Namer
	if namer == nil {
		namer = naming.Default()
	}
	b, err := resolver.NewBuilder(resolver.BuilderConfig{
		Models:     cfg.Models,
		Store:      cfg.Store,
		Namer:      namer,
		LoadersKey: cfg.LoadersKey,
		Defaults:   resolver.Options{MaxLimit: cfg.MaxLimit, NestingLimit: cfg.NestingLimit},
	})
	if err != nil {
		return graphql.Schema{}, nil, err
	}

	userModel, ok := cfg.Models.Model("user")
	if !ok {
		return graphql.Schema{}, nil, fmt.Errorf("blog schema: %w: user", model.ErrModelNotFound)
	}

	resolvers := map[string]*resolver.Resolver{}
	for _, def := range []struct {
		key, model, relation string
		opts                 resolver.Options
	}{
		{key: "users", model: "user"},
		{key: "user", model: "user"},
		{key: "viewer", model: "user", opts: resolver.Options{Before: ViewerOnly(userModel)}},
		{key: "tasks", model: "task"},
		{key: "tags", model: "tag"},
		{key: "user.tasks", model: "user", relation: "tasks"},
		{key: "task.assignee", model: "task", relation: "assignee"},
		{key: "task.tags", model: "task", relation: "tags"},
		{key: "tag.tasks", model: "tag", relation: "tasks"},
	} {
		r, err := b.Resolve(def.model, def.relation, def.opts)
		if err != nil {
			return graphql.Schema{}, nil, fmt.Errorf("resolver %s: %w", def.key, err)
		}
		resolvers[def.key] = r
	}

	var userType, tagType *graphql.Object
	taskType, err := b.ObjectType("task", schema.TypeOptions{
		GlobalID:    true,
		Description: "A unit of work assigned to a user.",
		Fields: func() graphql.Fields {
			return graphql.Fields{
				"assignee": b.Field("Task", "assignee", userType, nil, resolvers["task.assignee"]),
				"tags":     b.Field("Task", "tags", graphql.NewList(tagType), listArgs(nil), resolvers["task.tags"]),
			}
		},
	})
	if err != nil {
		return graphql.Schema{}, nil, err
	}

	tagType, err = b.ObjectType("tag", schema.TypeOptions{
		GlobalID: true,
		Fields: func() graphql.Fields {
			return graphql.Fields{
				"tasks": b.Field("Tag", "tasks", graphql.NewList(taskType), listArgs(nil), resolvers["tag.tasks"]),
			}
		},
	})
	if err != nil {
		return graphql.Schema{}, nil, err
	}

	taskConn, err := b.Connect("user", "tasks", resolver.ConnectionOptions{Name: "UserTasks", Type: taskType})
	if err != nil {
		return graphql.Schema{}, nil, err
	}

	userType, err = b.ObjectType("user", schema.TypeOptions{
		GlobalID:    true,
		Description: "A registered user.",
		Fields: func() graphql.Fields {
			return graphql.Fields{
				"tasks": b.Field("User", "tasks", graphql.NewList(taskType), listArgs(graphql.FieldConfigArgument{
					"status":  &graphql.ArgumentConfig{Type: graphql.String},
					"flagged": &graphql.ArgumentConfig{Type: graphql.Boolean},
				}), resolvers["user.tasks"]),
				"taskConnection": b.ConnectionField("User", "taskConnection", taskConn),
			}
		},
	})
	if err != nil {
		return graphql.Schema{}, nil, err
	}

	usersConn, err := b.Connect("user", "", resolver.ConnectionOptions{Name: "Users", Type: userType})
	if err != nil {
		return graphql.Schema{}, nil, err
	}
	_, nodeField := b.NodeDefinitions()

	users := namer.ListFieldName("user")
	tasks := namer.ListFieldName("task")
	tags := namer.ListFieldName("tag")
	user := namer.ItemFieldName("user")
	usersConnection := users + "Connection"

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"viewer": b.Field("Query", "viewer", userType, nil, resolvers["viewer"]),
			users: b.Field("Query", users, graphql.NewList(userType), listArgs(graphql.FieldConfigArgument{
				"name":  &graphql.ArgumentConfig{Type: graphql.String},
				"email": &graphql.ArgumentConfig{Type: graphql.String},
			}), resolvers["users"]),
			user: b.Field("Query", user, userType, graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
			}, resolvers["user"]),
			usersConnection: b.ConnectionField("Query", usersConnection, usersConn),
			tasks: b.Field("Query", tasks, graphql.NewList(taskType), listArgs(graphql.FieldConfigArgument{
				"status":      &graphql.ArgumentConfig{Type: graphql.String},
				"assignee_id": &graphql.ArgumentConfig{Type: graphql.Int},
			}), resolvers["tasks"]),
			tags:   b.Field("Query", tags, graphql.NewList(tagType), listArgs(nil), resolvers["tags"]),
			"node": nodeField,
		},
	})

	s, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: query,
		Types: []graphql.Type{userType, taskType, tagType},
	})
	if err != nil {
		return graphql.Schema{}, nil, fmt.Errorf("build schema: %w", err)
	}
	return s, b, nil
}
