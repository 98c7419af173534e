// Package config loads the agent configuration from a YAML file and
// PARLEY_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/parley/pkg/channel/telegram"
	"github.com/go-go-golems/parley/pkg/inference/session"
	"github.com/go-go-golems/parley/pkg/inference/toolloop"
	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/normalize"
	"github.com/go-go-golems/parley/pkg/schedule"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	AppName   = "parley"
	EnvPrefix = "PARLEY"

	ProviderClaude = "claude"
	ProviderOpenAI = "openai"

	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Model    ModelConfig         `mapstructure:"model"`
	Prompt   PromptConfig        `mapstructure:"prompt"`
	History  HistoryConfig       `mapstructure:"history"`
	Loop     toolloop.LoopConfig `mapstructure:"loop"`
	Session  SessionConfig       `mapstructure:"session"`
	Tools    ToolsConfig         `mapstructure:"tools"`
	Schedule ScheduleConfig      `mapstructure:"schedule"`
	Memory   MemoryConfig        `mapstructure:"memory"`
	Telegram TelegramConfig      `mapstructure:"telegram"`
	Events   EventsConfig        `mapstructure:"events"`
	Log      LogConfig           `mapstructure:"log"`
	// Timezone is an IANA zone name used by the datetime tool and schedules.
	Timezone string `mapstructure:"timezone"`
}

type ModelConfig struct {
	// Provider is claude or openai; empty guesses it from Name.
	Provider    string   `mapstructure:"provider"`
	Name        string   `mapstructure:"name"`
	APIKey      string   `mapstructure:"api-key"`
	BaseURL     string   `mapstructure:"base-url"`
	MaxTokens   int      `mapstructure:"max-tokens"`
	Temperature *float64 `mapstructure:"temperature"`
	TopP        *float64 `mapstructure:"top-p"`
	// AllowLocal permits plain HTTP and local network base URLs, for proxies.
	AllowLocal bool `mapstructure:"allow-local"`
}

type PromptConfig struct {
	Instructions string `mapstructure:"instructions"`
	StartCommand string `mapstructure:"start-command"`
	Greeting     string `mapstructure:"greeting"`
}

type HistoryConfig struct {
	// Store is one of memory, file or sqlite.
	Store     string `mapstructure:"store"`
	Path      string `mapstructure:"path"`
	Compress  bool   `mapstructure:"compress"`
	KeyPrefix string `mapstructure:"key-prefix"`
}

type SessionConfig struct {
	MaxToolRounds    int    `mapstructure:"max-tool-rounds"`
	Language         string `mapstructure:"language"`
	UnsupportedReply string `mapstructure:"unsupported-reply"`
	FailureReply     string `mapstructure:"failure-reply"`
}

type ToolsConfig struct {
	// Catalogue is a YAML or JSON file of extra tool specs.
	Catalogue string `mapstructure:"catalogue"`
	// CatalogueKey reads the catalogue from the history blob store instead.
	CatalogueKey string           `mapstructure:"catalogue-key"`
	Execution    tools.ToolConfig `mapstructure:"execution"`
}

type ScheduleConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Path         string        `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

type MemoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type TelegramConfig struct {
	Token       string        `mapstructure:"token"`
	BaseURL     string        `mapstructure:"base-url"`
	PollTimeout time.Duration `mapstructure:"poll-timeout"`
	QueueSize   int           `mapstructure:"queue-size"`
	Retries     int           `mapstructure:"retries"`
	AllowLocal  bool          `mapstructure:"allow-local"`
}

type EventsConfig struct {
	// Log writes every conversation event to the debug log.
	Log     bool `mapstructure:"log"`
	Verbose bool `mapstructure:"verbose"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper, dataDir string) {
	loop := toolloop.DefaultLoopConfig()
	exec := tools.DefaultToolConfig()

	v.SetDefault("model.provider", "")
	v.SetDefault("model.name", "claude-3-5-sonnet-latest")
	v.SetDefault("model.api-key", "")
	v.SetDefault("model.base-url", "")
	v.SetDefault("model.max-tokens", 4096)
	v.SetDefault("model.allow-local", false)

	v.SetDefault("prompt.instructions", "You are a helpful assistant chatting through a messaging app. Keep answers short")
	v.SetDefault("prompt.start-command", normalize.DefaultStartCommand)
	v.SetDefault("prompt.greeting", normalize.DefaultGreeting)

	v.SetDefault("history.store", StoreFile)
	v.SetDefault("history.path", filepath.Join(dataDir, "history"))
	v.SetDefault("history.compress", false)
	v.SetDefault("history.key-prefix", "")

	v.SetDefault("loop.max-history-length", loop.MaxHistoryLength)
	v.SetDefault("loop.typing-interval", loop.TypingInterval)
	v.SetDefault("loop.stream", false)
	v.SetDefault("loop.tool-directives", []string{})

	v.SetDefault("session.max-tool-rounds", session.DefaultMaxToolRounds)
	v.SetDefault("session.language", "")
	v.SetDefault("session.unsupported-reply", session.DefaultUnsupportedReply)
	v.SetDefault("session.failure-reply", session.DefaultFailureReply)

	v.SetDefault("tools.catalogue", "")
	v.SetDefault("tools.catalogue-key", "")
	v.SetDefault("tools.execution.execution-timeout", exec.ExecutionTimeout)
	v.SetDefault("tools.execution.max-parallel-tools", exec.MaxParallelTools)
	v.SetDefault("tools.execution.allowed-tools", []string{})
	v.SetDefault("tools.execution.retry.max-retries", exec.RetryConfig.MaxRetries)
	v.SetDefault("tools.execution.retry.backoff-base", exec.RetryConfig.BackoffBase)
	v.SetDefault("tools.execution.retry.backoff-factor", exec.RetryConfig.BackoffFactor)

	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.path", filepath.Join(dataDir, "schedules.db"))
	v.SetDefault("schedule.poll-interval", schedule.DefaultPollInterval)

	v.SetDefault("memory.enabled", true)
	v.SetDefault("memory.path", filepath.Join(dataDir, "memory.db"))

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.base-url", telegram.DefaultBaseURL)
	v.SetDefault("telegram.poll-timeout", telegram.DefaultPollTimeout)
	v.SetDefault("telegram.queue-size", telegram.DefaultQueueSize)
	v.SetDefault("telegram.retries", 3)
	v.SetDefault("telegram.allow-local", false)

	v.SetDefault("events.log", false)
	v.SetDefault("events.verbose", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")

	v.SetDefault("timezone", "UTC")
}

// DataDir is where local stores live unless configured otherwise.
func DataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, AppName)
	}
	return "." + AppName
}

// NewViper returns a viper instance with defaults and environment binding.
// path selects the config file; when empty ./parley.yaml and
// $XDG_CONFIG_HOME/parley/parley.yaml are searched.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, DataDir())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DataDir())
	}
	return v
}

// Load reads the configuration. A missing default config file is not an
// error; a missing explicit one is.
func Load(path string) (*Config, error) {
	return LoadViper(NewViper(path), path != "")
}

func LoadViper(v *viper.Viper, explicit bool) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config")
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "", ProviderClaude, ProviderOpenAI:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown model provider %q", c.Model.Provider)
	}
	switch c.History.Store {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if c.History.Path == "" {
			return errors.Wrapf(ErrInvalidConfig, "history.path is required for the %s store", c.History.Store)
		}
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown history store %q", c.History.Store)
	}
	if c.Loop.MaxHistoryLength < 0 {
		return errors.Wrap(ErrInvalidConfig, "loop.max-history-length must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown timezone %q", c.Timezone)
	}
	return loc, nil
}
