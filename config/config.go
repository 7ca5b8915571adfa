// Package config loads runtime configuration from environment variables and
// an optional YAML file. Every key can be set via the CONVOFLOW_ prefix, e.g.
// CONVOFLOW_MODEL_PROVIDER=anthropic.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Model     ModelConfig     `mapstructure:"model"`
	Store     StoreConfig     `mapstructure:"store"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Log       LogConfig       `mapstructure:"log"`
}

// ModelConfig selects and parameterizes the LLM provider.
type ModelConfig struct {
	Provider        string  `mapstructure:"provider"` // "openai" or "anthropic"
	Name            string  `mapstructure:"name"`
	APIKey          string  `mapstructure:"api_key"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "memory" or "sqlite"
	Path   string `mapstructure:"path"`   // sqlite database file
}

// KnowledgeConfig configures the embedded vector store.
type KnowledgeConfig struct {
	Dir string `mapstructure:"dir"` // persistence directory, empty for in-memory
}

// ChatConfig tunes the chat loop.
type ChatConfig struct {
	MaxToolIterations   int    `mapstructure:"max_tool_iterations"`
	DefaultSystemPrompt string `mapstructure:"default_system_prompt"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or text
}

// Load reads configuration from the environment and, when path is non-empty,
// the given YAML file. Environment variables win over file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("convoflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a registered default so AutomaticEnv feeds Unmarshal.
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.temperature", 1.0)
	v.SetDefault("model.max_output_tokens", 0)
	v.SetDefault("knowledge.dir", "")
	v.SetDefault("chat.default_system_prompt", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "convoflow.db")
	v.SetDefault("chat.max_tool_iterations", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported model provider %q", c.Model.Provider)
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Chat.MaxToolIterations <= 0 {
		return fmt.Errorf("chat.max_tool_iterations must be positive")
	}
	return nil
}
