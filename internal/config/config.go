package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Chat    ChatConfig    `mapstructure:"chat"`
	News    NewsConfig    `mapstructure:"news"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// BackendConfig points at the retrieval backend that answers chat queries.
// When BaseURL is empty the app falls back to talking to an LLM directly.
type BackendConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LLMConfig holds the LLM configuration for the direct-LLM fallback source
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// ChatConfig tunes the conversation pipeline
type ChatConfig struct {
	Streaming       bool `mapstructure:"streaming"`
	StageDelayMS    int  `mapstructure:"stage_delay_ms"`
	CompleteDelayMS int  `mapstructure:"complete_delay_ms"`
	HistoryLimit    int  `mapstructure:"history_limit"`
}

// NewsConfig holds the news relay configuration
type NewsConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// StoreConfig holds the local SQLite configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from the file named by CONFIG_PATH, or from
// config.yaml in the working directory. SENTIMOCHI_* environment variables
// override file values (e.g. SENTIMOCHI_BACKEND_API_KEY). A missing config
// file is not an error; defaults and environment variables still apply.
func Load() (*Config, error) {
	v := viper.New()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SENTIMOCHI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default registered, or environment-only values are
	// invisible to Unmarshal.
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout_seconds", 30)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.system_prompt", "")
	v.SetDefault("chat.streaming", true)
	v.SetDefault("chat.stage_delay_ms", 400)
	v.SetDefault("chat.complete_delay_ms", 1200)
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("news.base_url", "https://newsapi.org/v2")
	v.SetDefault("news.api_key", "")
	v.SetDefault("store.path", "sentimochi.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
