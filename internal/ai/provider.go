package ai

import (
	"context"
	"fmt"
)

// Turn roles in a completion request. The persona responder maps the bot's
// own prior messages to RoleAssistant and every other sender to RoleUser.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single conversation turn handed to the completion provider
type Turn struct {
	Role    string
	Content string
}

// CompletionRequest carries a persona system prompt and the recent
// conversation window
type CompletionRequest struct {
	SystemPrompt string
	Turns        []Turn
}

// Provider represents an external completion service
type Provider interface {
	// Complete generates a reply for the given conversation window.
	// An empty string with a nil error means the provider declined to answer.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the provider's name
	Name() string
}

// Factory creates completion providers based on configuration
type Factory interface {
	// Create creates a new provider for the given name
	Create(name string, config map[string]interface{}) (Provider, error)
}

// DefaultFactory is the default implementation of Factory
type DefaultFactory struct {
	providers map[string]Provider
}

// NewDefaultFactory creates a new DefaultFactory
func NewDefaultFactory() *DefaultFactory {
	return &DefaultFactory{
		providers: make(map[string]Provider),
	}
}

// Register registers a provider with the factory
func (f *DefaultFactory) Register(name string, provider Provider) {
	f.providers[name] = provider
}

// Create creates a new provider for the given name
func (f *DefaultFactory) Create(name string, config map[string]interface{}) (Provider, error) {
	provider, ok := f.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return provider, nil
}
