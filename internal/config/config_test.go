package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const baseYAML = `
app:
  name: courtbook
  port: 8080
database:
  driver: sqlite
  filename: data/courtbook.db
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(baseYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.App.Environment != "development" {
		t.Fatalf("environment: %s", cfg.App.Environment)
	}
	if cfg.Booking.ClaimMode != "atomic" {
		t.Fatalf("claim mode: %s", cfg.Booking.ClaimMode)
	}
	if cfg.Auth.TokenTTLHours != 24 {
		t.Fatalf("token ttl: %d", cfg.Auth.TokenTTLHours)
	}
	if cfg.Scheduler.BookingCompletionCron != "*/15 * * * *" {
		t.Fatalf("completion cron: %s", cfg.Scheduler.BookingCompletionCron)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(c *Config) { c.App.Name = "" },
			wantErr: "app name is required",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "sqlite without filename",
			mutate:  func(c *Config) { c.Database.Filename = "" },
			wantErr: "filename is required",
		},
		{
			name:    "memory driver",
			mutate:  func(c *Config) { c.Database.Driver = DriverMemory; c.Database.Filename = "" },
			wantErr: "",
		},
		{
			name:    "unknown claim mode",
			mutate:  func(c *Config) { c.Booking.ClaimMode = "optimistic" },
			wantErr: "unsupported booking claim mode",
		},
		{
			name: "bad cron",
			mutate: func(c *Config) {
				c.Scheduler.Enabled = true
				c.Scheduler.BookingCompletionCron = "every minute"
			},
			wantErr: "invalid booking_completion_cron",
		},
		{
			name:    "production without secret",
			mutate:  func(c *Config) { c.App.Environment = "production" },
			wantErr: "APP_SECRET_KEY",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(baseYAML))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tc.mutate(cfg)

			err = cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected nil, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadReadsSecretsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte(baseYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APP_SECRET_KEY", "s3cret")
	t.Setenv("REDIS_PASSWORD", "redis-pass")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.SecretKey != "s3cret" {
		t.Fatalf("secret key: %q", cfg.App.SecretKey)
	}
	if cfg.Redis.Password != "redis-pass" {
		t.Fatalf("redis password: %q", cfg.Redis.Password)
	}
	if cfg.Email.Enabled() {
		t.Fatal("expected email to be disabled without region and sender")
	}
}
