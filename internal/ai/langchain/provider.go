// Package langchain implements the completion Provider on top of the
// langchaingo abstractions, talking to OpenAI or any OpenAI-compatible
// endpoint.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/tokka/internal/ai"
)

// LangchainProvider implements the ai.Provider interface using langchain abstractions
type LangchainProvider struct {
	llm         llms.Model
	modelName   string
	maxTokens   int
	temperature float64
}

// Config holds the provider settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewProvider creates a langchain-backed completion provider
func NewProvider(cfg Config) (*LangchainProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return &LangchainProvider{
		llm:         llm,
		modelName:   cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete generates a reply for the given conversation window
func (p *LangchainProvider) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	messages := make([]llms.MessageContent, 0, len(req.Turns)+1)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, req.SystemPrompt))

	for _, turn := range req.Turns {
		role := schema.ChatMessageTypeHuman
		if turn.Role == ai.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}

	resp, err := p.llm.GenerateContent(ctx, messages,
		llms.WithMaxTokens(p.maxTokens),
		llms.WithTemperature(p.temperature),
	)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Name returns the provider's name
func (p *LangchainProvider) Name() string {
	return "openai"
}
