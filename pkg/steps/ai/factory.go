package ai

import (
	"strings"

	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/go-go-golems/parley/pkg/steps/ai/claude"
	"github.com/go-go-golems/parley/pkg/steps/ai/claude/api"
	"github.com/go-go-golems/parley/pkg/steps/ai/openai"
	"github.com/pkg/errors"
)

const (
	ProviderClaude = "claude"
	ProviderOpenAI = "openai"
)

type EngineSettings struct {
	// Provider is claude or openai. When empty it is guessed from Model.
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	URLOptions  security.OutboundURLOptions
}

func IsClaudeModel(model string) bool {
	return strings.HasPrefix(model, "claude")
}

func IsOpenAIModel(model string) bool {
	for _, p := range []string{"gpt-", "o1", "o3", "o4", "chatgpt-"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// NewEngine builds the model invocation adapter for s.
func NewEngine(s EngineSettings) (engine.StreamingEngine, error) {
	if s.Model == "" {
		return nil, errors.New("no model specified")
	}
	provider := s.Provider
	if provider == "" {
		switch {
		case IsClaudeModel(s.Model):
			provider = ProviderClaude
		case IsOpenAIModel(s.Model):
			provider = ProviderOpenAI
		default:
			return nil, errors.Errorf("cannot guess provider of model %q", s.Model)
		}
	}

	switch provider {
	case ProviderClaude:
		if s.BaseURL != "" {
			if err := security.ValidateOutboundURL(s.BaseURL, s.URLOptions); err != nil {
				return nil, errors.Wrap(err, "invalid claude base URL")
			}
		}
		client := api.NewClient(s.APIKey, s.BaseURL, api.WithURLOptions(s.URLOptions))
		return claude.NewClaudeEngine(client, claude.Settings{
			Model:       s.Model,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
			TopP:        s.TopP,
		}), nil

	case ProviderOpenAI:
		client, err := openai.MakeClient(s.APIKey, s.BaseURL, s.URLOptions)
		if err != nil {
			return nil, err
		}
		return openai.NewOpenAIEngine(client, openai.Settings{
			Model:       s.Model,
			MaxTokens:   s.MaxTokens,
			Temperature: s.Temperature,
			TopP:        s.TopP,
		}), nil
	}
	return nil, errors.Errorf("unsupported provider %q", provider)
}
