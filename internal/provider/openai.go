package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/codesquad-ai/codesquad/pkg/types"
)

// OpenAIProvider implements Provider for OpenAI models.
type OpenAIProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *OpenAIConfig
}

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // default model ID
	MaxTokens int
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "gpt-4o"
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	cfg := &openai.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}

	return &OpenAIProvider{
		chatModel: chatModel,
		models:    openaiModels(),
		config:    config,
	}, nil
}

func (p *OpenAIProvider) ID() string   { return "openai" }
func (p *OpenAIProvider) Name() string { return "OpenAI" }

// Models returns the list of available models.
func (p *OpenAIProvider) Models() []types.Model { return p.models }

// Generate returns a complete response in one call.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	stream, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return drain(stream)
}

// Stream creates a streaming completion.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (*Stream, error) {
	// Newer models require max_completion_tokens instead of max_tokens.
	opts := []model.Option{}
	if req.MaxTokens > 0 {
		opts = append(opts, openai.WithMaxCompletionTokens(req.MaxTokens))
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

// openaiModels returns the list of OpenAI models with pricing.
func openaiModels() []types.Model {
	return []types.Model{
		{
			ID:             "gpt-4o",
			Name:           "GPT-4o",
			ProviderID:     "openai",
			ContextWindow:  128000,
			CostPerMInput:  2.5,
			CostPerMOutput: 10.0,
		},
		{
			ID:             "gpt-4o-mini",
			Name:           "GPT-4o mini",
			ProviderID:     "openai",
			ContextWindow:  128000,
			CostPerMInput:  0.15,
			CostPerMOutput: 0.6,
		},
	}
}
