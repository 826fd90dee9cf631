package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/username/deskchat/internal/pkg/configutil"
	"github.com/username/deskchat/internal/pkg/constants"
)

// Config represents the process configuration. User-facing settings live in
// the configuration store, not here.
type Config struct {
	DataDir string          `mapstructure:"data_dir"`
	Server  ServerConfig    `mapstructure:"server"`
	NATS    NATSConfig      `mapstructure:"nats"`
	Journal JournalConfig   `mapstructure:"journal"`
	LLM     LLMConfig       `mapstructure:"llm"`
	Cleanup CleanupConfig   `mapstructure:"cleanup"`
	Logging LoggingConfig   `mapstructure:"logging"`
	Tokens  TokenizerConfig `mapstructure:"tokens"`
}

// ServerConfig holds the loopback HTTP server configuration
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	CORSEnabled bool   `mapstructure:"cors_enabled"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	JetStream     bool   `mapstructure:"jetstream"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// JournalConfig holds the SQLite event journal configuration
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LLMConfig holds language model configuration
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`

	SystemInstruction string `mapstructure:"system_instruction"`
}

// CleanupConfig controls how often the scheduler checks whether cleanup is due
type CleanupConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// TokenizerConfig controls the optional token estimate in storage info
type TokenizerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Encoding string `mapstructure:"encoding"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir: constants.DefaultDataDir,
		Server: ServerConfig{
			Port:        8765,
			Host:        "127.0.0.1",
			CORSEnabled: true,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			JetStream:     false,
			RetentionDays: 7,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    constants.DefaultJournalPath,
		},
		LLM: LLMConfig{
			Provider: constants.DefaultLLMProvider,
			BaseURL:  constants.DefaultLLMBaseURL,
			Model:    constants.DefaultModel,
			Timeout:  constants.GenerationTimeout,

			SystemInstruction: constants.DefaultSystemInstruction,
		},
		Cleanup: CleanupConfig{
			CheckInterval: constants.DefaultCleanupInterval,
		},
		Tokens: TokenizerConfig{
			Enabled:  false,
			Encoding: "cl100k_base",
		},
		Logging: LoggingConfig{
			Level:  constants.LogLevelInfo,
			Format: constants.LogFormatText,
		},
	}
}

// Load loads configuration from files and environment variables
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Environment variable support; keys must be known to viper for
	// AutomaticEnv to reach them during Unmarshal
	v.SetEnvPrefix("DESKCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, we'll use defaults + env vars
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.cors_enabled", cfg.Server.CORSEnabled)
	v.SetDefault("nats.enabled", cfg.NATS.Enabled)
	v.SetDefault("nats.url", cfg.NATS.URL)
	v.SetDefault("nats.jetstream", cfg.NATS.JetStream)
	v.SetDefault("nats.retention_days", cfg.NATS.RetentionDays)
	v.SetDefault("journal.enabled", cfg.Journal.Enabled)
	v.SetDefault("journal.path", cfg.Journal.Path)
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.system_instruction", cfg.LLM.SystemInstruction)
	v.SetDefault("cleanup.check_interval", cfg.Cleanup.CheckInterval)
	v.SetDefault("tokens.enabled", cfg.Tokens.Enabled)
	v.SetDefault("tokens.encoding", cfg.Tokens.Encoding)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := configutil.NewValidator().
		RequiredString("data_dir", c.DataDir).
		IntRange("server.port", c.Server.Port, 1, 65535).
		RequiredString("server.host", c.Server.Host).
		RequiredString("llm.base_url", c.LLM.BaseURL).
		ValidateURL("llm.base_url", c.LLM.BaseURL).
		RequiredString("llm.model", c.LLM.Model).
		RequiredDuration("llm.timeout", c.LLM.Timeout).
		RequiredDuration("cleanup.check_interval", c.Cleanup.CheckInterval).
		OneOf("logging.level", c.Logging.Level, []string{
			constants.LogLevelDebug, constants.LogLevelInfo, constants.LogLevelWarn,
			constants.LogLevelError, constants.LogLevelFatal,
		}).
		OneOf("logging.format", c.Logging.Format, []string{constants.LogFormatText, constants.LogFormatJSON})

	if c.NATS.Enabled {
		v.RequiredString("nats.url", c.NATS.URL).
			ValidateURL("nats.url", c.NATS.URL, "nats", "tls", "ws", "wss")
		if c.NATS.JetStream {
			v.MinInt("nats.retention_days", c.NATS.RetentionDays, 1)
		}
	}
	if c.Journal.Enabled {
		v.ValidateFilePath("journal.path", c.Journal.Path)
	}
	if c.Tokens.Enabled {
		v.RequiredString("tokens.encoding", c.Tokens.Encoding)
	}

	return v.Result()
}

// Address returns the host:port the HTTP server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
