package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/notemate/pkg/toolexecutor"
)

// Provider names.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Model is the generative-language collaborator. One call is one round-trip.
type Model interface {
	// Generate sends the conversation and returns the model's reply
	Generate(ctx context.Context, req ModelRequest) (*ModelReply, error)

	// Provider returns the provider name
	Provider() string
}

// ProviderConfig selects and authenticates a provider.
type ProviderConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	// BaseURL overrides the API endpoint.
	BaseURL string `json:"base_url,omitempty"`
	// Project and Location switch Gemini to the Vertex AI backend.
	Project  string `json:"project,omitempty"`
	Location string `json:"location,omitempty"`
}

// NewModel creates a Model for cfg.Provider.
func NewModel(ctx context.Context, cfg ProviderConfig) (Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini, "":
		return NewGeminiProvider(ctx, cfg)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// inputSchema renders an action's parameters as a JSON schema object for
// providers that take raw schemas.
func inputSchema(def toolexecutor.ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	for _, p := range def.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if required := def.RequiredParameters(); len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
