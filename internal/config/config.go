package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Environment
	GoEnv string `yaml:"go_env" env:"GO_ENV" default:"development"`

	// TCP server
	TCPHost        string        `yaml:"tcp_host" env:"TCP_HOST"`
	TCPPort        int           `yaml:"tcp_port" env:"TCP_PORT" default:"0"`
	MaxMessageSize int           `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE" default:"256"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT" default:"5m"`
	MaxConnections int           `yaml:"max_connections" env:"MAX_CONNECTIONS" default:"0"`
	RateLimit      float64       `yaml:"rate_limit" env:"RATE_LIMIT" default:"0"`
	RateBurst      int           `yaml:"rate_burst" env:"RATE_BURST" default:"20"`

	// UDP frontend
	UDPEnabled bool `yaml:"udp_enabled" env:"UDP_ENABLED" default:"false"`
	UDPPort    int  `yaml:"udp_port" env:"UDP_PORT" default:"0"` // 0 shares the TCP port number

	// Ops HTTP API
	HTTPEnabled bool `yaml:"http_enabled" env:"HTTP_ENABLED" default:"false"`
	HTTPPort    int  `yaml:"http_port" env:"HTTP_PORT" default:"8080"`

	// Monitoring
	PrometheusEnabled bool `yaml:"prometheus_enabled" env:"PROMETHEUS_ENABLED" default:"false"`

	// Logging
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" default:"text"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		GoEnv:          "development",
		TCPPort:        0,
		MaxMessageSize: 256,
		IdleTimeout:    5 * time.Minute,
		RateBurst:      20,
		HTTPPort:       8080,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// LoadConfig layers defaults, the YAML file named by CONFIG_FILE, a .env file
// and finally the process environment, then validates the result
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	// .env is optional, system env vars still apply without it
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := config.loadEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	loadEnvString(&c.GoEnv, "GO_ENV")

	// TCP server
	loadEnvString(&c.TCPHost, "TCP_HOST")
	if err := loadEnvInt(&c.TCPPort, "TCP_PORT"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.MaxMessageSize, "MAX_MESSAGE_SIZE"); err != nil {
		return err
	}
	if err := loadEnvDuration(&c.IdleTimeout, "IDLE_TIMEOUT"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.MaxConnections, "MAX_CONNECTIONS"); err != nil {
		return err
	}
	if err := loadEnvFloat(&c.RateLimit, "RATE_LIMIT"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.RateBurst, "RATE_BURST"); err != nil {
		return err
	}

	// UDP frontend
	if err := loadEnvBool(&c.UDPEnabled, "UDP_ENABLED"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.UDPPort, "UDP_PORT"); err != nil {
		return err
	}

	// Ops HTTP API
	if err := loadEnvBool(&c.HTTPEnabled, "HTTP_ENABLED"); err != nil {
		return err
	}
	if err := loadEnvInt(&c.HTTPPort, "HTTP_PORT"); err != nil {
		return err
	}

	// Monitoring
	if err := loadEnvBool(&c.PrometheusEnabled, "PROMETHEUS_ENABLED"); err != nil {
		return err
	}

	// Logging
	loadEnvString(&c.LogLevel, "LOG_LEVEL")
	loadEnvString(&c.LogFormat, "LOG_FORMAT")
	return nil
}

// Helper functions for type conversion, unset variables leave target alone
func loadEnvString(target *string, key string) {
	if value, ok := os.LookupEnv(key); ok {
		*target = value
	}
}

func loadEnvInt(target *int, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvFloat(target *float64, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvBool(target *bool, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	// port 0 asks the OS for an ephemeral port
	if c.TCPPort < 0 || c.TCPPort > 65535 {
		errors = append(errors, "TCP_PORT must be between 0 and 65535")
	}
	if c.UDPPort < 0 || c.UDPPort > 65535 {
		errors = append(errors, "UDP_PORT must be between 0 and 65535")
	}
	if c.HTTPEnabled && (c.HTTPPort < 1 || c.HTTPPort > 65535) {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}
	if c.MaxMessageSize < 16 || c.MaxMessageSize > 64*1024 {
		errors = append(errors, "MAX_MESSAGE_SIZE must be between 16 and 65536")
	}
	if c.IdleTimeout < 0 {
		errors = append(errors, "IDLE_TIMEOUT must not be negative")
	}
	if c.MaxConnections < 0 {
		errors = append(errors, "MAX_CONNECTIONS must not be negative")
	}
	if c.RateLimit < 0 {
		errors = append(errors, "RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errors = append(errors, "RATE_BURST must be at least 1 when RATE_LIMIT is set")
	}

	// Validate log level
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	// Validate log format
	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// ServerIdleTimeout maps the config value onto the server's convention,
// where 0 in config means no timeout
func (c *Config) ServerIdleTimeout() time.Duration {
	if c.IdleTimeout == 0 {
		return -1
	}
	return c.IdleTimeout
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
