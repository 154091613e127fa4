package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// v is the viper instance backing the last successful Load.
var v = viper.New()

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	v = viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/doc-sentinel/")
	v.AddConfigPath("$HOME/.doc-sentinel/")

	// Environment variable overrides, e.g. DOCSENTINEL_LLM_API_KEY
	v.SetEnvPrefix("DOCSENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers the keys that are commonly provided only through
// the environment, so Unmarshal sees them without a config file entry.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"llm.api_key",
		"llm.base_url",
		"llm.model",
		"redis.url",
		"history.database_url",
		"history.enabled",
		"suppliers.backend",
		"suppliers.path",
		"server.port",
		"logging.level",
		"websocket.username",
		"websocket.password",
	} {
		_ = v.BindEnv(key)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("invalid max upload size: %d", config.Server.MaxUploadSize)
	}

	if len(config.Anonymization.Detectors) == 0 {
		return fmt.Errorf("anonymization.detectors must not be empty")
	}

	if config.Suppliers.Backend != "file" && config.Suppliers.Backend != "redis" {
		return fmt.Errorf("invalid suppliers backend: %s (must be file or redis)", config.Suppliers.Backend)
	}

	if config.Suppliers.Backend == "file" && strings.TrimSpace(config.Suppliers.Path) == "" {
		return fmt.Errorf("suppliers.path is required for the file backend")
	}

	if config.LLM.MaxOutputTokens <= 0 || config.LLM.MaxTotalTokens <= config.LLM.MaxOutputTokens+config.LLM.TokenSafetyMargin {
		return fmt.Errorf("invalid llm token budget: total=%d output=%d margin=%d",
			config.LLM.MaxTotalTokens, config.LLM.MaxOutputTokens, config.LLM.TokenSafetyMargin)
	}

	if config.History.Enabled && config.History.DatabaseURL == "" {
		return fmt.Errorf("history.database_url is required when history is enabled")
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Invalid
// revisions are passed to onError and otherwise ignored.
func Watch(callback func(*Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		if err := validateConfig(newConfig); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()
}
