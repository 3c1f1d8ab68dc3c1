package provider

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

// fakeProvider is a minimal in-memory Provider for registry tests.
type fakeProvider struct {
	id     string
	models []types.Model
}

func (f *fakeProvider) ID() string           { return f.id }
func (f *fakeProvider) Name() string         { return f.id }
func (f *fakeProvider) Models() []types.Model { return f.models }

func (f *fakeProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	return &Response{Content: "ok"}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req *Request) (*Stream, error) {
	reader := schema.StreamReaderFromArray([]*schema.Message{{Role: schema.Assistant, Content: "ok"}})
	return NewStream(reader, f.id), nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeProvider{id: "anthropic"})

	p, err := r.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.ID())

	_, err = r.Get("missing")
	assert.Error(t, err)
}

func TestRegistry_GetModel(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeProvider{
		id:     "anthropic",
		models: []types.Model{{ID: "claude-sonnet-4-20250514", ProviderID: "anthropic"}},
	})

	m, err := r.GetModel("anthropic", "claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)

	_, err = r.GetModel("anthropic", "nope")
	assert.Error(t, err)
}

func TestRegistry_Default(t *testing.T) {
	cfg := &types.Config{Model: "anthropic/claude-sonnet-4-20250514"}
	r := NewRegistry(cfg)
	r.Register(&fakeProvider{
		id:     "anthropic",
		models: []types.Model{{ID: "claude-sonnet-4-20250514", ProviderID: "anthropic"}},
	})

	p, m, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.ID())
	assert.Equal(t, "claude-sonnet-4-20250514", m.ID)
}

func TestRegistry_DefaultFallsBackToFirstModel(t *testing.T) {
	r := NewRegistry(&types.Config{})
	r.Register(&fakeProvider{
		id:     "openai",
		models: []types.Model{{ID: "gpt-4o", ProviderID: "openai"}},
	})

	p, m, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "openai", p.ID())
	assert.Equal(t, "gpt-4o", m.ID)
}

func TestRegistry_DefaultNoProviders(t *testing.T) {
	r := NewRegistry(&types.Config{})
	_, _, err := r.Default()
	assert.Error(t, err)
}

func TestParseModelString(t *testing.T) {
	p, m := ParseModelString("anthropic/claude-sonnet-4-20250514")
	assert.Equal(t, "anthropic", p)
	assert.Equal(t, "claude-sonnet-4-20250514", m)

	p, m = ParseModelString("bare-model")
	assert.Empty(t, p)
	assert.Equal(t, "bare-model", m)
}
