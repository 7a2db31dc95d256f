// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the assistant configuration from a YAML file,
// a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/your-org/portfolio-assistant/internal/content"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Supported language model providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config represents the complete application configuration
type Config struct {
	Owner    OwnerConfig    `mapstructure:"owner"`
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Store    StoreConfig    `mapstructure:"store"`
	Content  ContentConfig  `mapstructure:"content"`
	Prompt   PromptConfig   `mapstructure:"prompt"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`

	// Environment is the deployment environment the config was loaded for
	Environment string `mapstructure:"-"`
}

// OwnerConfig identifies whose portfolio is being served
type OwnerConfig struct {
	Name string `mapstructure:"name"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LLMConfig contains language model settings
type LLMConfig struct {
	Provider         string        `mapstructure:"provider"`
	APIKey           string        `mapstructure:"api_key"`
	Endpoint         string        `mapstructure:"endpoint"`
	APIVersion       string        `mapstructure:"api_version"`
	Model            string        `mapstructure:"model"`
	ModelPriority    []string      `mapstructure:"model_priority"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
}

// Enabled reports whether a model client can be built. Without an API key
// the assistant answers from the fallback synthesizer only.
func (c LLMConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// StoreConfig selects and configures the structured content store
type StoreConfig struct {
	Driver       string        `mapstructure:"driver"`
	SQLitePath   string        `mapstructure:"sqlite_path"`
	PostgresDSN  string        `mapstructure:"postgres_dsn"`
	PostgRESTURL string        `mapstructure:"postgrest_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FixturesPath string        `mapstructure:"fixtures_path"`
}

// ContentConfig controls how much content is read and kept per category
type ContentConfig struct {
	FetchLimit     int              `mapstructure:"fetch_limit"`
	MaxPerCategory int              `mapstructure:"max_per_category"`
	Categories     []CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig overrides the source aliases of a content category
type CategoryConfig struct {
	Name    string   `mapstructure:"name"`
	Sources []string `mapstructure:"sources"`
	MaxRows int      `mapstructure:"max_rows"`
}

// CategoryList returns the configured categories, or the built-in alias map
// when none are configured.
func (c ContentConfig) CategoryList() []content.Category {
	if len(c.Categories) == 0 {
		return content.DefaultCategories()
	}

	categories := make([]content.Category, len(c.Categories))
	for i, cc := range c.Categories {
		categories[i] = content.Category{
			Name:    cc.Name,
			Sources: append([]string(nil), cc.Sources...),
			MaxRows: cc.MaxRows,
		}
	}
	return categories
}

// PromptConfig contains the persona instruction template
type PromptConfig struct {
	PersonaTemplate string `mapstructure:"persona_template"`
}

// FallbackConfig contains per-category line caps for fallback answers
type FallbackConfig struct {
	MaxLines map[string]int `mapstructure:"max_lines"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig controls OpenTelemetry trace export. An empty endpoint
// keeps spans in process and exports nothing.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Enabled reports whether spans should be exported
func (c TracingConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	EnvFile          string
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables
// Environment variables take precedence over config file values
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		Environment:      CurrentEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return nil, err
	}

	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set configuration file path
	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	// Enable environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("PORTFOLIO")

	environment := opts.Environment
	if environment == "" {
		environment = CurrentEnvironment()
	}

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error if env vars are set
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := mergeEnvironmentFile(v, environment); err != nil {
		return nil, err
	}

	// Set explicit environment variable mappings
	setEnvironmentMappings(v)

	// Unmarshal configuration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Environment = environment

	// Validate configuration
	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// loadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. An explicit file must exist;
// the default ./.env is optional.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("owner.name", "Vidya")

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", 30*time.Second)

	// Language model defaults
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.api_version", "v1beta")
	v.SetDefault("llm.model", "gemini-1.5-flash-latest")
	v.SetDefault("llm.model_priority", []string{
		"gemini-1.5-flash-002",
		"gemini-1.5-flash-latest",
		"gemini-1.5-flash",
		"gemini-1.5-pro-latest",
		"gemini-1.5-pro",
	})
	v.SetDefault("llm.rate_limit_backoff", 1500*time.Millisecond)
	v.SetDefault("llm.max_attempts", 2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.3)

	// Store defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./portfolio.db")
	v.SetDefault("store.timeout", 10*time.Second)

	// Content defaults
	v.SetDefault("content.fetch_limit", content.DefaultFetchLimit)
	v.SetDefault("content.max_per_category", content.DefaultMaxPerCategory)

	// Fallback defaults
	v.SetDefault("fallback.max_lines", map[string]any{
		content.Projects:       5,
		content.Experiences:    4,
		content.Certifications: 6,
		content.Publications:   6,
		content.Skills:         10,
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Tracing defaults
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// mergeEnvironmentFile layers config.<environment>.yaml over the config
// file that was read, when such a file sits next to it.
func mergeEnvironmentFile(v *viper.Viper, environment string) error {
	base := v.ConfigFileUsed()
	if base == "" || environment == "" {
		return nil
	}

	ext := filepath.Ext(base)
	overlay := strings.TrimSuffix(base, ext) + "." + environment + ext
	if _, err := os.Stat(overlay); err != nil {
		return nil
	}

	v.SetConfigFile(overlay)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to merge %s config: %w", environment, err)
	}
	return nil
}

// setConfigFile sets the configuration file path with fallback logic.
// Without an explicit path a missing default file is allowed, so the
// service can be configured from the environment alone.
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	// Use provided config path
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// envMapping binds a conventional environment variable to a config key.
// Later entries win when several are set.
type envMapping struct {
	envVar    string
	configKey string
}

var envMappings = []envMapping{
	{"OPENAI_API_KEY", "llm.api_key"},
	{"GEMINI_API_KEY", "llm.api_key"},
	{"LLM_PROVIDER", "llm.provider"},
	{"LLM_ENDPOINT", "llm.endpoint"},
	{"GEMINI_MODEL", "llm.model"},
	{"OWNER_NAME", "owner.name"},
	{"PORT", "server.port"},
	{"STORE_DRIVER", "store.driver"},
	{"SQLITE_PATH", "store.sqlite_path"},
	{"DATABASE_URL", "store.postgres_dsn"},
	{"SUPABASE_URL", "store.postgrest_url"},
	{"SUPABASE_ANON_KEY", "store.api_key"},
	{"LOG_LEVEL", "logging.level"},
	{"LOG_FORMAT", "logging.format"},
	{"LOG_OUTPUT", "logging.output"},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", "tracing.endpoint"},
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	for _, m := range envMappings {
		if value := os.Getenv(m.envVar); value != "" {
			v.Set(m.configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errors []ValidationError

	if strings.TrimSpace(config.Owner.Name) == "" {
		errors = append(errors, ValidationError{
			Field:   "owner.name",
			Message: "owner name is required. Set via config file or OWNER_NAME environment variable",
		})
	}

	// Server
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	validModes := []string{"debug", "release", "test"}
	if !contains(validModes, config.Server.Mode) {
		errors = append(errors, ValidationError{
			Field:   "server.mode",
			Message: fmt.Sprintf("server mode must be one of: %s", strings.Join(validModes, ", ")),
		})
	}

	if config.Server.RequestTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.request_timeout",
			Message: "request_timeout must be greater than 0",
		})
	}

	// Language model
	validProviders := []string{ProviderGemini, ProviderOpenAI}
	if !contains(validProviders, config.LLM.Provider) {
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("provider must be one of: %s", strings.Join(validProviders, ", ")),
		})
	}

	if config.LLM.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.model",
			Message: "model is required",
		})
	}

	if config.LLM.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_attempts",
			Message: "max_attempts must be at least 1",
		})
	}

	if config.LLM.RateLimitBackoff <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit_backoff",
			Message: "rate_limit_backoff must be greater than 0",
		})
	}

	if config.LLM.MaxTokens <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Store
	errors = append(errors, validateStore(config.Store)...)

	// Content
	if config.Content.FetchLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "content.fetch_limit",
			Message: "fetch_limit must be greater than 0",
		})
	}

	if config.Content.MaxPerCategory <= 0 {
		errors = append(errors, ValidationError{
			Field:   "content.max_per_category",
			Message: "max_per_category must be greater than 0",
		})
	}

	seen := make(map[string]bool)
	for i, c := range config.Content.Categories {
		field := fmt.Sprintf("content.categories[%d]", i)
		if c.Name == "" {
			errors = append(errors, ValidationError{Field: field, Message: "category name is required"})
			continue
		}
		if seen[c.Name] {
			errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf("duplicate category %q", c.Name)})
		}
		seen[c.Name] = true
		if len(c.Sources) == 0 {
			errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf("category %q needs at least one source", c.Name)})
		}
	}

	for name, lines := range config.Fallback.MaxLines {
		if lines < 0 {
			errors = append(errors, ValidationError{
				Field:   "fallback.max_lines." + name,
				Message: "max_lines must not be negative",
			})
		}
	}

	// Validate enum values
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if config.Tracing.SampleRatio < 0 || config.Tracing.SampleRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "tracing.sample_ratio",
			Message: "sample_ratio must be between 0 and 1",
		})
	}

	// Return all validation errors
	if len(errors) > 0 {
		var errorMessages []string
		for _, err := range errors {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

func validateStore(store StoreConfig) []ValidationError {
	var errors []ValidationError

	switch store.Driver {
	case "sqlite":
		if store.SQLitePath == "" {
			errors = append(errors, ValidationError{
				Field:   "store.sqlite_path",
				Message: "sqlite_path is required for the sqlite driver",
			})
		} else if store.SQLitePath != ":memory:" {
			if err := validateDirectoryExists(filepath.Dir(store.SQLitePath)); err != nil {
				errors = append(errors, ValidationError{
					Field:   "store.sqlite_path",
					Message: fmt.Sprintf("sqlite database directory does not exist: %s", filepath.Dir(store.SQLitePath)),
				})
			}
		}
	case "postgres":
		if store.PostgresDSN == "" {
			errors = append(errors, ValidationError{
				Field:   "store.postgres_dsn",
				Message: "postgres_dsn is required for the postgres driver. Set via config file or DATABASE_URL environment variable",
			})
		}
	case "postgrest":
		if store.PostgRESTURL == "" {
			errors = append(errors, ValidationError{
				Field:   "store.postgrest_url",
				Message: "postgrest_url is required for the postgrest driver. Set via config file or SUPABASE_URL environment variable",
			})
		}
	case "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: "store driver must be one of: sqlite, postgres, postgrest, memory",
		})
	}

	if store.Timeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "store.timeout",
			Message: "timeout must not be negative",
		})
	}

	return errors
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = maskValue(masked.LLM.APIKey)
	}
	if masked.Store.APIKey != "" {
		masked.Store.APIKey = maskValue(masked.Store.APIKey)
	}
	if masked.Store.PostgresDSN != "" {
		masked.Store.PostgresDSN = maskValue(masked.Store.PostgresDSN)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateDirectoryExists checks if a directory exists
func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// CurrentEnvironment returns the current environment (development, production, etc.)
func CurrentEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig reloads the configuration whenever the config file changes
// and hands each valid result to callback. Invalid edits are logged and
// ignored.
func WatchConfig(opts LoadOptions, logger *zap.Logger, callback func(*Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot watch config: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := LoadWithOptions(opts)
		if err != nil {
			logger.Warn("Failed to reload config", zap.Error(err))
			return
		}

		callback(config)
	})
	v.WatchConfig()

	return nil
}
