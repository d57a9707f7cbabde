// Package config manages application configuration from files and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/prompt"
	"github.com/klytics/creditkit/internal/statements"
)

// EnvPrefix prefixes every environment override, e.g. CREDITKIT_MODEL.
const EnvPrefix = "CREDITKIT"

// Config holds the application configuration.
type Config struct {
	Provider string `mapstructure:"provider" yaml:"provider" validate:"oneof=gemini vertex anthropic openai ollama"`
	Model    string `mapstructure:"model" yaml:"model"`
	APIKeys  struct {
		Gemini    string `mapstructure:"gemini" yaml:"gemini"`
		Anthropic string `mapstructure:"anthropic" yaml:"anthropic"`
		OpenAI    string `mapstructure:"openai" yaml:"openai"`
	} `mapstructure:"api_keys" yaml:"api_keys"`
	Gemini struct {
		BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	} `mapstructure:"gemini" yaml:"gemini"`
	Vertex struct {
		Project  string `mapstructure:"project" yaml:"project"`
		Location string `mapstructure:"location" yaml:"location"`
	} `mapstructure:"vertex" yaml:"vertex"`
	Ollama struct {
		Host string `mapstructure:"host" yaml:"host" validate:"omitempty,url"`
	} `mapstructure:"ollama" yaml:"ollama"`
	Retry struct {
		MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1,max=20"`
		Base        time.Duration `mapstructure:"base" yaml:"base" validate:"gt=0"`
		Cap         time.Duration `mapstructure:"cap" yaml:"cap" validate:"gtefield=Base"`
		Jitter      float64       `mapstructure:"jitter" yaml:"jitter" validate:"gte=0,lte=1"`
	} `mapstructure:"retry" yaml:"retry"`
	Format struct {
		MaxRows          int  `mapstructure:"max_rows" yaml:"max_rows" validate:"min=1"`
		TruncationNotice bool `mapstructure:"truncation_notice" yaml:"truncation_notice"`
	} `mapstructure:"format" yaml:"format"`
	Prompt struct {
		Language string `mapstructure:"language" yaml:"language" validate:"required"`
	} `mapstructure:"prompt" yaml:"prompt"`
	Server struct {
		Addr          string  `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
		SessionSecret string  `mapstructure:"session_secret" yaml:"session_secret" validate:"omitempty,min=32"`
		MaxUploadMB   int     `mapstructure:"max_upload_mb" yaml:"max_upload_mb" validate:"min=1,max=100"`
		AnalyzeRPS    float64 `mapstructure:"analyze_rps" yaml:"analyze_rps" validate:"gt=0"`
	} `mapstructure:"server" yaml:"server"`
	Log struct {
		Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
		Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	} `mapstructure:"log" yaml:"log"`
}

var defaults = map[string]any{
	"provider":                 "gemini",
	"model":                    "",
	"api_keys.gemini":          "",
	"api_keys.anthropic":       "",
	"api_keys.openai":          "",
	"gemini.base_url":          "",
	"vertex.project":           "",
	"vertex.location":          "us-central1",
	"ollama.host":              "",
	"retry.max_attempts":       5,
	"retry.base":               "1s",
	"retry.cap":                "30s",
	"retry.jitter":             0.0,
	"format.max_rows":          statements.DefaultMaxRows,
	"format.truncation_notice": false,
	"prompt.language":          prompt.DefaultLanguage,
	"server.addr":              "127.0.0.1:8080",
	"server.session_secret":    "",
	"server.max_upload_mb":     10,
	"server.analyze_rps":       0.5,
	"log.level":                "info",
	"log.format":               "text",
}

// Load reads the configuration from ~/.creditkit/config.yaml and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file; an empty path means the default location.
func LoadFile(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
	}

	setDefaults()

	// Environment variable overrides
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing default file is fine; an explicit or broken one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

// APIKey returns the configured key for the active provider, or "" so the
// provider falls back to its usual environment variable.
func (c *Config) APIKey() string {
	switch strings.ToLower(c.Provider) {
	case "anthropic":
		return c.APIKeys.Anthropic
	case "openai":
		return c.APIKeys.OpenAI
	case "ollama", "vertex":
		return ""
	default:
		return c.APIKeys.Gemini
	}
}

// ProviderConfig selects the backend described by c.
func (c *Config) ProviderConfig() ai.ProviderConfig {
	pc := ai.ProviderConfig{Name: c.Provider, Model: c.Model, APIKey: c.APIKey()}
	switch strings.ToLower(c.Provider) {
	case "", "gemini":
		pc.BaseURL = c.Gemini.BaseURL
	case "vertex":
		pc.Project = c.Vertex.Project
		pc.Location = c.Vertex.Location
	case "ollama":
		pc.BaseURL = c.Ollama.Host
	}
	return pc
}

// RetryPolicy returns the model client's retry policy.
func (c *Config) RetryPolicy() ai.Policy {
	return ai.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Base:        c.Retry.Base,
		Cap:         c.Retry.Cap,
		Jitter:      c.Retry.Jitter,
	}
}

// FormatOptions returns the table formatter options.
func (c *Config) FormatOptions() statements.FormatOptions {
	return statements.FormatOptions{MaxRows: c.Format.MaxRows, TruncationNotice: c.Format.TruncationNotice}
}

// PromptOptions returns the prompt assembler options.
func (c *Config) PromptOptions() prompt.Options {
	return prompt.Options{Language: c.Prompt.Language}
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".creditkit"
	}
	return filepath.Join(home, ".creditkit")
}
