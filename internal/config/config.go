package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"goamcc/internal/errors"
)

var configValidate = validator.New()

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Search   SearchConfig
	LogLevel string
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory run store.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int `validate:"gte=0"`
	MaxIdleConns int `validate:"gte=0"`
}

// Enabled reports whether a database was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port              string        `validate:"required,numeric"`
	MaxProcessingTime time.Duration `validate:"gt=0"`
	ShutdownTimeout   time.Duration `validate:"gt=0"`
	// RunsPerMinute caps how often runs may be started; zero disables the cap
	RunsPerMinute int `validate:"gte=0"`
	RunBurst      int `validate:"gte=1"`
}

// SearchConfig locates the default run configuration
type SearchConfig struct {
	RunConfigPath string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Database: *loadDatabaseConfig(),
		Server:   *loadServerConfig(),
		Search: SearchConfig{
			RunConfigPath: getEnvOrDefault("AMCC_CONFIG", "config.yaml"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:          os.Getenv("DATABASE_URL"),
		MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns: getEnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:              getEnvOrDefault("PORT", "8080"),
		MaxProcessingTime: time.Duration(getEnvIntOrDefault("MAX_PROCESSING_TIME", 240)) * time.Second,
		ShutdownTimeout:   getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
		RunsPerMinute:     getEnvIntOrDefault("RUNS_PER_MINUTE", 30),
		RunBurst:          getEnvIntOrDefault("RUN_BURST", 5),
	}
}

func validateConfig(config *Config) error {
	err := configValidate.Struct(config)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.ConfigInvalid(err.Error())
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.ActualTag(), fe.Value())
	}
	return errors.ConfigInvalid(strings.Join(msgs, "; "))
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
