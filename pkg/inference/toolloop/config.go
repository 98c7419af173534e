package toolloop

import "time"

// EmptyResponsePlaceholder is persisted when the model ends its turn without text.
const EmptyResponsePlaceholder = "…"

// LoopConfig configures one orchestration cycle.
type LoopConfig struct {
	// MaxHistoryLength bounds the persisted log, in turns.
	MaxHistoryLength int `mapstructure:"max-history-length"`
	// TypingInterval is the period of the typing indicator.
	TypingInterval time.Duration `mapstructure:"typing-interval"`
	// Stream selects incremental invocation when the engine supports it.
	Stream bool `mapstructure:"stream"`
	// ToolDirectives are appended to the system prompt.
	ToolDirectives []string `mapstructure:"tool-directives"`
}

// DefaultLoopConfig returns default loop settings.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxHistoryLength: 10,
		TypingInterval:   4 * time.Second,
	}
}

func (c LoopConfig) WithMaxHistoryLength(n int) LoopConfig {
	c.MaxHistoryLength = n
	return c
}

func (c LoopConfig) WithTypingInterval(d time.Duration) LoopConfig {
	c.TypingInterval = d
	return c
}

func (c LoopConfig) WithStream(stream bool) LoopConfig {
	c.Stream = stream
	return c
}

func (c LoopConfig) withDefaults() LoopConfig {
	def := DefaultLoopConfig()
	if c.MaxHistoryLength <= 0 {
		c.MaxHistoryLength = def.MaxHistoryLength
	}
	if c.TypingInterval <= 0 {
		c.TypingInterval = def.TypingInterval
	}
	return c
}
