package resolver

import (
	"errors"
	"testing"

	"relayloader/internal/schema"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuilderRequiresModels(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "model registry is required")
}

func TestBuilderNode(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{Models: testModels(t), LoadersKey: "dl"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		model    string
		relation string
		wantErr  string
		wantNode string
	}{
		{name: "root", model: "user", wantNode: "user"},
		{name: "relation target", model: "user", relation: "tasks", wantNode: "task"},
		{name: "unknown model", model: "nope", wantErr: "model nope not found"},
		{name: "unknown relation", model: "user", relation: "nope", wantErr: "relation nope not found on model user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := b.Node(tt.model, tt.relation)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrConfiguration))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNode, n.Model().Name)
			assert.Equal(t, "dl", n.LoadersKey())
			assert.Equal(t, tt.relation != "", n.IsRelated())
		})
	}
}

func TestBuilderDefaults(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{Models: testModels(t), Defaults: Options{MaxLimit: 10, NestingLimit: 3}})
	require.NoError(t, err)

	opts := b.withDefaults(Options{})
	assert.Equal(t, 10, opts.MaxLimit)
	assert.Equal(t, 3, opts.NestingLimit)
	assert.Same(t, b.Bindings(), opts.Bindings)

	opts = b.withDefaults(Options{MaxLimit: 4, Bindings: NewBindings()})
	assert.Equal(t, 4, opts.MaxLimit)
	assert.NotSame(t, b.Bindings(), opts.Bindings)
}

func TestBuilderConnectRequiresNameAndType(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{Models: testModels(t)})
	require.NoError(t, err)

	_, err = b.Connect("user", "", ConnectionOptions{})
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "connect", cfgErr.Op)
	assert.Contains(t, err.Error(), "connection on user requires a name")

	_, err = b.Connect("user", "", ConnectionOptions{Name: "User"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection User requires a node type")

	_, err = b.Connect("nope", "", ConnectionOptions{Name: "User"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model nope not found")
}

func TestBuilderFieldBinds(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{Models: testModels(t)})
	require.NoError(t, err)
	r, err := b.Resolve("user", "tasks", Options{})
	require.NoError(t, err)

	field := b.Field("User", "tasks", graphql.NewList(graphql.String), nil, r)
	require.NotNil(t, field.Resolve)

	bound, ok := b.Bindings().Lookup("User", "tasks")
	require.True(t, ok)
	assert.Same(t, r, bound)
	assert.Equal(t, 1, b.Bindings().Len())

	_, ok = b.Bindings().Lookup("User", "name")
	assert.False(t, ok)
}

func TestBuilderObjectTypeUnknownModel(t *testing.T) {
	b, err := NewBuilder(BuilderConfig{Models: testModels(t)})
	require.NoError(t, err)

	_, err = b.ObjectType("nope", schema.TypeOptions{})
	assert.True(t, errors.Is(err, ErrConfiguration))
	_, err = b.Definition("nope", schema.TypeOptions{})
	assert.True(t, errors.Is(err, ErrConfiguration))
}
