// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type BookingConfig struct {
	// ClaimMode is one of atomic, locked or legacy.
	ClaimMode          string `yaml:"claim_mode"`
	AllowAnyTransition bool   `yaml:"allow_any_transition"`
	LockTTLSeconds     int    `yaml:"lock_ttl_seconds"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // Loaded from environment
}

type EmailConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"-"` // Loaded from environment
	SecretAccessKey string `yaml:"-"` // Loaded from environment
}

// Enabled reports whether SES delivery has everything it needs.
func (e EmailConfig) Enabled() bool {
	return e.Region != "" && e.Sender != "" && e.AccessKeyID != "" && e.SecretAccessKey != ""
}

type SchedulerConfig struct {
	Enabled                 bool   `yaml:"enabled"`
	BookingCompletionCron   string `yaml:"booking_completion_cron"`
	PlayerRequestExpiryCron string `yaml:"player_request_expiry_cron"`
}

type RateLimitConfig struct {
	LoginMaxAttempts    int `yaml:"login_max_attempts"`
	LoginLockoutSeconds int `yaml:"login_lockout_seconds"`
	LoginMaxIPPerHour   int `yaml:"login_max_ip_per_hour"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
		LogLevel    string `yaml:"log_level"`
		SeedDemo    bool   `yaml:"seed_demo"`
		SecretKey   string `yaml:"-"` // Loaded from environment
	} `yaml:"app"`

	Auth struct {
		TokenTTLHours      int    `yaml:"token_ttl_hours"`
		PhoneDefaultRegion string `yaml:"phone_default_region"`
	} `yaml:"auth"`

	Database  DatabaseConfig  `yaml:"database"`
	Booking   BookingConfig   `yaml:"booking"`
	Redis     RedisConfig     `yaml:"redis"`
	Email     EmailConfig     `yaml:"email"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.App.SecretKey = os.Getenv("APP_SECRET_KEY")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Email.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.Email.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes yaml bytes and fills defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24
	}
	if c.Auth.PhoneDefaultRegion == "" {
		c.Auth.PhoneDefaultRegion = "VN"
	}
	if c.Booking.ClaimMode == "" {
		c.Booking.ClaimMode = "atomic"
	}
	if c.Booking.LockTTLSeconds == 0 {
		c.Booking.LockTTLSeconds = 10
	}
	if c.Scheduler.BookingCompletionCron == "" {
		c.Scheduler.BookingCompletionCron = "*/15 * * * *"
	}
	if c.Scheduler.PlayerRequestExpiryCron == "" {
		c.Scheduler.PlayerRequestExpiryCron = "0 * * * *"
	}
	if c.RateLimit.LoginMaxAttempts == 0 {
		c.RateLimit.LoginMaxAttempts = 5
	}
	if c.RateLimit.LoginLockoutSeconds == 0 {
		c.RateLimit.LoginLockoutSeconds = 300
	}
	if c.RateLimit.LoginMaxIPPerHour == 0 {
		c.RateLimit.LoginMaxIPPerHour = 30
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.App.SecretKey == "" && c.App.Environment != "development" {
		return fmt.Errorf("APP_SECRET_KEY is required outside development")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch strings.ToLower(c.Booking.ClaimMode) {
	case "atomic", "locked", "legacy":
	default:
		return fmt.Errorf("unsupported booking claim mode: %s", c.Booking.ClaimMode)
	}
	if c.Booking.LockTTLSeconds < 0 {
		return fmt.Errorf("booking lock ttl must not be negative")
	}

	if c.Scheduler.Enabled {
		for name, expr := range map[string]string{
			"booking_completion_cron":    c.Scheduler.BookingCompletionCron,
			"player_request_expiry_cron": c.Scheduler.PlayerRequestExpiryCron,
		} {
			if _, err := cron.ParseStandard(expr); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, expr, err)
			}
		}
	}

	return nil
}
