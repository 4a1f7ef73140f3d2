package schema

import (
	"testing"

	"relayloader/internal/model"
	"relayloader/internal/nodeid"
	"relayloader/internal/scalars"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postModel() *model.Model {
	return model.New("post", []model.Field{
		{Name: "id", Type: model.TypeInt, Required: true},
		{Name: "title", Type: model.TypeString, Required: true, Description: "Headline"},
		{Name: "status", Type: model.TypeString, Enum: []string{"draft", "in-review", "published"}},
		{Name: "published_at", Type: model.TypeDate},
		{Name: "meta", Kind: model.KindObject, Fields: []model.Field{
			{Name: "views", Type: model.TypeInt, Required: true},
			{Name: "source", Kind: model.KindObject, Fields: []model.Field{
				{Name: "host", Type: model.TypeString},
			}},
		}},
		{Name: "tags", Kind: model.KindArray, Type: model.TypeString},
		{Name: "payload", Kind: model.KindObject},
		{Name: "score", Type: model.TypeFloat},
		{Name: "pinned", Type: model.TypeBoolean},
		{Name: "summary", Kind: model.KindVirtual, Type: model.TypeString},
	})
}

func TestDefaultMapper(t *testing.T) {
	tests := []struct {
		name  string
		field model.Field
		want  graphql.Output
		ok    bool
	}{
		{"string", model.Field{Type: model.TypeString}, graphql.String, true},
		{"date", model.Field{Type: model.TypeDate}, graphql.String, true},
		{"int", model.Field{Type: model.TypeInt}, graphql.Int, true},
		{"float", model.Field{Type: model.TypeFloat}, graphql.Float, true},
		{"boolean", model.Field{Type: model.TypeBoolean}, graphql.Boolean, true},
		{"id", model.Field{Type: model.TypeID}, graphql.ID, true},
		{"enum", model.Field{Type: model.TypeString, Enum: []string{"a"}}, nil, false},
		{"object", model.Field{Kind: model.KindObject}, nil, false},
		{"array", model.Field{Kind: model.KindArray, Type: model.TypeInt}, nil, false},
		{"unknown", model.Field{Type: "geometry"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DefaultMapper.MapType(tt.field)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainPrefersEarlierMapper(t *testing.T) {
	dates := MapperFunc(func(f model.Field) (graphql.Output, bool) {
		if f.Type == model.TypeDate {
			return graphql.DateTime, true
		}
		return nil, false
	})
	mapper := Chain(nil, dates, DefaultMapper)

	got, ok := mapper.MapType(model.Field{Type: model.TypeDate})
	require.True(t, ok)
	assert.Equal(t, graphql.DateTime, got)

	got, ok = mapper.MapType(model.Field{Type: model.TypeInt})
	require.True(t, ok)
	assert.Equal(t, graphql.Int, got)

	_, ok = Chain().MapType(model.Field{Type: model.TypeInt})
	assert.False(t, ok)
}

func TestDefinition(t *testing.T) {
	d := NewDeriver(nil, nil)
	fields, err := d.Definition(postModel(), TypeOptions{})
	require.NoError(t, err)

	assert.Equal(t, graphql.NewNonNull(graphql.Int).String(), fields["id"].Type.String())
	assert.Equal(t, "String!", fields["title"].Type.String())
	assert.Equal(t, "Headline", fields["title"].Description)
	assert.Equal(t, graphql.String, fields["published_at"].Type)
	assert.Equal(t, graphql.Float, fields["score"].Type)
	assert.Equal(t, graphql.Boolean, fields["pinned"].Type)
	assert.Equal(t, graphql.String, fields["summary"].Type)
	assert.Equal(t, scalars.JSON, fields["payload"].Type)
	assert.Equal(t, "[String]", fields["tags"].Type.String())

	status, ok := fields["status"].Type.(*graphql.Enum)
	require.True(t, ok)
	assert.Equal(t, "PostStatusEnumType", status.Name())
	names := make([]string, 0, len(status.Values()))
	for _, v := range status.Values() {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"draft", "inReview", "published"}, names)

	meta, ok := fields["meta"].Type.(*graphql.Object)
	require.True(t, ok)
	assert.Equal(t, "PostMeta", meta.Name())
	assert.Equal(t, "Int!", meta.Fields()["views"].Type.String())
	assert.Equal(t, "PostMetaSource", meta.Fields()["source"].Type.Name())
}

func TestDefinitionOptions(t *testing.T) {
	tests := []struct {
		name   string
		opts   TypeOptions
		want   []string
		nonNul map[string]bool
	}{
		{
			name: "exclude",
			opts: TypeOptions{Exclude: []string{"payload", "meta", "tags", "summary"}},
			want: []string{"id", "title", "status", "published_at", "score", "pinned"},
		},
		{
			name: "only",
			opts: TypeOptions{Only: []string{"id", "title"}},
			want: []string{"id", "title"},
		},
		{
			name: "rename",
			opts: TypeOptions{Only: []string{"id", "published_at"}, Rename: map[string]string{"published_at": "publishedAt"}},
			want: []string{"id", "publishedAt"},
		},
		{
			name:   "allow null",
			opts:   TypeOptions{Only: []string{"id", "title"}, AllowNull: true},
			want:   []string{"id", "title"},
			nonNul: map[string]bool{},
		},
		{
			name: "global id",
			opts: TypeOptions{Only: []string{"id", "title"}, GlobalID: true},
			want: []string{"id", "postID", "title"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := NewDeriver(nil, nil).Definition(postModel(), tt.opts)
			require.NoError(t, err)

			got := make([]string, 0, len(fields))
			for name := range fields {
				got = append(got, name)
			}
			assert.ElementsMatch(t, tt.want, got)

			if tt.nonNul != nil {
				for name, f := range fields {
					_, isNonNull := f.Type.(*graphql.NonNull)
					assert.Equal(t, tt.nonNul[name], isNonNull, name)
				}
			}
		})
	}
}

func TestDefinitionAddsUndeclaredPrimaryKey(t *testing.T) {
	m := model.New("tag", []model.Field{{Name: "label", Type: model.TypeString}})
	fields, err := NewDeriver(nil, nil).Definition(m, TypeOptions{})
	require.NoError(t, err)
	require.Contains(t, fields, "id")
	assert.Equal(t, "ID!", fields["id"].Type.String())
}

func TestDefinitionUnknownType(t *testing.T) {
	m := model.New("shape", []model.Field{{Name: "outline", Type: "geometry"}})
	_, err := NewDeriver(nil, nil).Definition(m, TypeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape.outline")
}

func TestDefinitionReusesDerivedTypes(t *testing.T) {
	d := NewDeriver(nil, nil)
	first, err := d.Definition(postModel(), TypeOptions{})
	require.NoError(t, err)
	second, err := d.Definition(postModel(), TypeOptions{})
	require.NoError(t, err)

	assert.Same(t, first["status"].Type, second["status"].Type)
	assert.Same(t, first["meta"].Type, second["meta"].Type)
}

func TestObjectTypeCachedByName(t *testing.T) {
	d := NewDeriver(nil, nil)
	a, err := d.ObjectType(postModel(), TypeOptions{})
	require.NoError(t, err)
	b, err := d.ObjectType(postModel(), TypeOptions{})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "Post", a.Name())
	assert.Equal(t, "Post", d.TypeName(postModel(), TypeOptions{}))

	named, err := d.ObjectType(postModel(), TypeOptions{Name: "Article"})
	require.NoError(t, err)
	assert.Equal(t, "Article", named.Name())
}

func TestObjectTypeResolvesRows(t *testing.T) {
	d := NewDeriver(nil, nil)
	post, err := d.ObjectType(postModel(), TypeOptions{
		GlobalID: true,
		Rename:   map[string]string{"published_at": "publishedAt"},
		Fields: func() graphql.Fields {
			return graphql.Fields{
				"excerpt": &graphql.Field{
					Type: graphql.String,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source.(model.Row)["title"].(string)[:5], nil
					},
				},
			}
		},
	})
	require.NoError(t, err)

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"post": &graphql.Field{
					Type: post,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return model.Row{
							"id":           7,
							"title":        "Hello world",
							"status":       "in-review",
							"published_at": "2024-01-15",
							"meta":         `{"views": 12, "source": {"host": "example.com"}}`,
							"tags":         []interface{}{"go", "graphql"},
							"payload":      map[string]interface{}{"a": 1},
						}, nil
					},
				},
			},
		}),
	})
	require.NoError(t, err)

	result := graphql.Do(graphql.Params{
		Schema: schema,
		RequestString: `{ post { id postID title excerpt status publishedAt
			meta { views source { host } } tags payload } }`,
	})
	require.Empty(t, result.Errors)

	got := result.Data.(map[string]interface{})["post"].(map[string]interface{})
	assert.Equal(t, nodeid.Encode("Post", 7), got["id"])
	assert.Equal(t, "7", got["postID"])
	assert.Equal(t, "Hello world", got["title"])
	assert.Equal(t, "Hello", got["excerpt"])
	assert.Equal(t, "inReview", got["status"])
	assert.Equal(t, "2024-01-15", got["publishedAt"])
	assert.Equal(t, map[string]interface{}{
		"views":  12,
		"source": map[string]interface{}{"host": "example.com"},
	}, got["meta"])
	assert.Equal(t, []interface{}{"go", "graphql"}, got["tags"])
	assert.Equal(t, `{"a":1}`, got["payload"])
}
