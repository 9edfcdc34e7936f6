package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes one completion request
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// ToolSpec describes one tool in the catalogue sent to the provider
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// LLMRequest contains the request parameters for one completion call
type LLMRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from the completion service
type LLMResponse struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        *TokenUsage
	FinishReason string
}

// ProviderSource resolves a model identifier to a provider
type ProviderSource interface {
	ProviderForModel(model string) (LLMProvider, error)
}

// ProviderFactory creates providers from configured auth profiles
type ProviderFactory struct {
	profiles []AuthProfile
}

// NewProviderFactory creates a factory over the configured profiles
func NewProviderFactory(profiles []AuthProfile) (*ProviderFactory, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	sorted := make([]AuthProfile, len(profiles))
	copy(sorted, profiles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})

	return &ProviderFactory{profiles: sorted}, nil
}

// ProviderForModel returns a provider able to serve the model, preferring
// lower-priority profiles. Claude models route to anthropic, everything
// else to openai.
func (f *ProviderFactory) ProviderForModel(model string) (LLMProvider, error) {
	want := "openai"
	if strings.HasPrefix(model, "claude") {
		want = "anthropic"
	}

	for _, profile := range f.profiles {
		if profile.Provider == want {
			return f.newProvider(profile)
		}
	}

	// Fall back to any configured profile rather than failing outright
	return f.newProvider(f.profiles[0])
}

func (f *ProviderFactory) newProvider(profile AuthProfile) (LLMProvider, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
