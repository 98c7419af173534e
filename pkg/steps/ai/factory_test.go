package ai

import (
	"testing"

	"github.com/go-go-golems/parley/pkg/security"
	"github.com/go-go-golems/parley/pkg/steps/ai/claude"
	"github.com/go-go-golems/parley/pkg/steps/ai/openai"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	tests := []struct {
		name     string
		settings EngineSettings
		check    func(t *testing.T, v interface{})
		wantErr  bool
	}{
		{
			name:     "explicit claude",
			settings: EngineSettings{Provider: ProviderClaude, Model: "my-proxy-model"},
			check:    func(t *testing.T, v interface{}) { assert.IsType(t, &claude.ClaudeEngine{}, v) },
		},
		{
			name:     "guessed claude",
			settings: EngineSettings{Model: "claude-3-5-haiku-latest"},
			check:    func(t *testing.T, v interface{}) { assert.IsType(t, &claude.ClaudeEngine{}, v) },
		},
		{
			name:     "guessed openai",
			settings: EngineSettings{Model: "gpt-4o-mini"},
			check:    func(t *testing.T, v interface{}) { assert.IsType(t, &openai.OpenAIEngine{}, v) },
		},
		{
			name:     "openai compatible local endpoint",
			settings: EngineSettings{Provider: ProviderOpenAI, Model: "llama3", BaseURL: "http://127.0.0.1:8080/v1", URLOptions: security.OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}},
			check:    func(t *testing.T, v interface{}) { assert.IsType(t, &openai.OpenAIEngine{}, v) },
		},
		{name: "local endpoint rejected", settings: EngineSettings{Provider: ProviderClaude, Model: "claude-3", BaseURL: "http://localhost:1234"}, wantErr: true},
		{name: "no model", settings: EngineSettings{Provider: ProviderClaude}, wantErr: true},
		{name: "unknown model", settings: EngineSettings{Model: "mystery"}, wantErr: true},
		{name: "unknown provider", settings: EngineSettings{Provider: "bedrock", Model: "x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := NewEngine(tt.settings)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, eng)
		})
	}
}

func TestLocalEndpointRejectedIsDisallowedURL(t *testing.T) {
	_, err := NewEngine(EngineSettings{Provider: ProviderOpenAI, Model: "gpt-4o", BaseURL: "http://10.0.0.1/v1"})
	assert.True(t, errors.Is(err, security.ErrDisallowedURL))
}
