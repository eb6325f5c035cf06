package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bots     BotsConfig     `yaml:"bots"`
	Calendar CalendarConfig `yaml:"calendar"`
	Join     JoinConfig     `yaml:"join"`
}

// ServerConfig configures the public control API
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AdminConfig configures the ops listener serving /health and /metrics
type AdminConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // "sqlite" or "postgres"
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BotsConfig tunes the workspace bot polling loop
type BotsConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
	JoinTimeout    time.Duration `yaml:"join_timeout"`
	RestoreOnStart bool          `yaml:"restore_on_start"`
}

// CalendarConfig points at the calendar integration service
type CalendarConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// JoinConfig points at the meeting automation runner
type JoinConfig struct {
	RunnerURL string        `yaml:"runner_url"`
	APIToken  string        `yaml:"api_token"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

// LoadFile loads configuration from path (skipped if missing), then applies
// environment overrides and validates
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a configuration with default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Admin: AdminConfig{
			Port: 9090,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "meetingbot.db",
			MaxOpenConns: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Bots: BotsConfig{
			PollInterval:   60 * time.Second,
			ShutdownGrace:  30 * time.Second,
			JoinTimeout:    90 * time.Second,
			RestoreOnStart: true,
		},
		Calendar: CalendarConfig{
			BaseURL: "http://localhost:8091",
			Timeout: 10 * time.Second,
		},
		Join: JoinConfig{
			RunnerURL: "http://localhost:8092",
			Timeout:   90 * time.Second,
		},
	}
}

// getConfigPath returns the configuration file path
func getConfigPath() string {
	if path := os.Getenv("MEETBOT_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

// applyEnv overrides configuration with environment variables
func (c *Config) applyEnv() {
	setString(&c.Server.Host, "MEETBOT_SERVER_HOST")
	setInt(&c.Server.Port, "MEETBOT_SERVER_PORT")
	setDuration(&c.Server.ReadTimeout, "MEETBOT_SERVER_READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "MEETBOT_SERVER_WRITE_TIMEOUT")

	setInt(&c.Admin.Port, "MEETBOT_ADMIN_PORT")

	setString(&c.Database.Driver, "MEETBOT_DATABASE_DRIVER")
	setString(&c.Database.DSN, "MEETBOT_DATABASE_DSN")
	setInt(&c.Database.MaxOpenConns, "MEETBOT_DATABASE_MAX_OPEN_CONNS")

	setString(&c.Logging.Level, "MEETBOT_LOGGING_LEVEL")
	setString(&c.Logging.Format, "MEETBOT_LOGGING_FORMAT")

	setDuration(&c.Bots.PollInterval, "MEETBOT_BOTS_POLL_INTERVAL")
	setDuration(&c.Bots.ShutdownGrace, "MEETBOT_BOTS_SHUTDOWN_GRACE")
	setDuration(&c.Bots.JoinTimeout, "MEETBOT_BOTS_JOIN_TIMEOUT")
	setBool(&c.Bots.RestoreOnStart, "MEETBOT_BOTS_RESTORE_ON_START")

	setString(&c.Calendar.BaseURL, "MEETBOT_CALENDAR_BASE_URL")
	setString(&c.Calendar.APIToken, "MEETBOT_CALENDAR_API_TOKEN")
	setDuration(&c.Calendar.Timeout, "MEETBOT_CALENDAR_TIMEOUT")

	setString(&c.Join.RunnerURL, "MEETBOT_JOIN_RUNNER_URL")
	setString(&c.Join.APIToken, "MEETBOT_JOIN_API_TOKEN")
	setDuration(&c.Join.Timeout, "MEETBOT_JOIN_TIMEOUT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin port must be between 1 and 65535, got %d", c.Admin.Port)
	}
	if c.Admin.Port == c.Server.Port {
		return fmt.Errorf("admin port must differ from server port (%d)", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database max_open_conns must be non-negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}

	if c.Bots.PollInterval <= 0 {
		return fmt.Errorf("bots poll_interval must be positive")
	}
	if c.Bots.ShutdownGrace <= 0 {
		return fmt.Errorf("bots shutdown_grace must be positive")
	}
	if c.Bots.JoinTimeout <= 0 {
		return fmt.Errorf("bots join_timeout must be positive")
	}

	if c.Calendar.BaseURL == "" {
		return fmt.Errorf("calendar base_url is required")
	}
	if c.Join.RunnerURL == "" {
		return fmt.Errorf("join runner_url is required")
	}

	return nil
}
