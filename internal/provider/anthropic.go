package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

// AnthropicProvider implements Provider for Anthropic Claude models.
type AnthropicProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *AnthropicConfig
}

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // default model ID
	MaxTokens int
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(ctx context.Context, config *AnthropicConfig) (*AnthropicProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "claude-sonnet-4-20250514"
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = &config.BaseURL
	}

	chatModel, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}

	return &AnthropicProvider{
		chatModel: chatModel,
		models:    anthropicModels(),
		config:    config,
	}, nil
}

func (p *AnthropicProvider) ID() string   { return "anthropic" }
func (p *AnthropicProvider) Name() string { return "Anthropic" }

// Models returns the list of available models.
func (p *AnthropicProvider) Models() []types.Model { return p.models }

// Generate returns a complete response in one call.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	stream, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return drain(stream)
}

// Stream creates a streaming completion.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request) (*Stream, error) {
	opts := []model.Option{}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	stream, err := p.chatModel.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, Classify(p.ID(), err)
	}
	return NewStream(stream, p.ID()), nil
}

// anthropicModels returns the list of Anthropic models with pricing.
func anthropicModels() []types.Model {
	return []types.Model{
		{
			ID:             "claude-sonnet-4-20250514",
			Name:           "Claude Sonnet 4",
			ProviderID:     "anthropic",
			ContextWindow:  200000,
			CostPerMInput:  3.0,
			CostPerMOutput: 15.0,
		},
		{
			ID:             "claude-opus-4-20250514",
			Name:           "Claude Opus 4",
			ProviderID:     "anthropic",
			ContextWindow:  200000,
			CostPerMInput:  15.0,
			CostPerMOutput: 75.0,
		},
		{
			ID:             "claude-3-5-haiku-20241022",
			Name:           "Claude 3.5 Haiku",
			ProviderID:     "anthropic",
			ContextWindow:  200000,
			CostPerMInput:  0.8,
			CostPerMOutput: 4.0,
		},
	}
}
