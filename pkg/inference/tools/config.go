package tools

import (
	"math"
	"time"

	"github.com/mb0/glob"
	"github.com/rs/zerolog/log"
)

// ToolConfig controls how tool calls are dispatched.
type ToolConfig struct {
	ExecutionTimeout time.Duration `json:"execution_timeout" mapstructure:"execution-timeout"`
	MaxParallelTools int           `json:"max_parallel_tools" mapstructure:"max-parallel-tools"`
	// AllowedTools holds glob patterns; nil means all tools are allowed.
	AllowedTools []string    `json:"allowed_tools" mapstructure:"allowed-tools"`
	RetryConfig  RetryConfig `json:"retry_config" mapstructure:"retry"`
}

// RetryConfig defines retry behavior for tool execution
type RetryConfig struct {
	MaxRetries    int           `json:"max_retries" mapstructure:"max-retries"`
	BackoffBase   time.Duration `json:"backoff_base" mapstructure:"backoff-base"`
	BackoffFactor float64       `json:"backoff_factor" mapstructure:"backoff-factor"`
}

func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		ExecutionTimeout: 30 * time.Second,
		MaxParallelTools: 3,
		RetryConfig: RetryConfig{
			BackoffBase:   time.Second,
			BackoffFactor: 2.0,
		},
	}
}

func (tc ToolConfig) WithExecutionTimeout(timeout time.Duration) ToolConfig {
	tc.ExecutionTimeout = timeout
	return tc
}

func (tc ToolConfig) WithMaxParallelTools(maxParallel int) ToolConfig {
	tc.MaxParallelTools = maxParallel
	return tc
}

func (tc ToolConfig) WithAllowedTools(patterns []string) ToolConfig {
	tc.AllowedTools = patterns
	return tc
}

func (tc ToolConfig) WithRetryConfig(cfg RetryConfig) ToolConfig {
	tc.RetryConfig = cfg
	return tc
}

// IsToolAllowed matches name against the AllowedTools patterns.
func (tc ToolConfig) IsToolAllowed(name string) bool {
	if tc.AllowedTools == nil {
		return true
	}
	for _, pattern := range tc.AllowedTools {
		ok, err := glob.Match(pattern, name)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("invalid tool allow pattern")
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// backoff returns the delay before retry number attempt (0-based).
func (rc RetryConfig) backoff(attempt int) time.Duration {
	factor := rc.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(rc.BackoffBase) * math.Pow(factor, float64(attempt)))
}
