package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries all runtime settings. Values come from the environment
// under the PORTHEALTH prefix, with defaults suitable for local development.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Reminder ReminderConfig
	SMTP     SMTPConfig
	Log      LogConfig
}

type HTTPConfig struct {
	Host         string        `default:"0.0.0.0"`
	Port         int           `default:"4000"`
	ReadTimeout  time.Duration `split_words:"true" default:"30s"`
	WriteTimeout time.Duration `split_words:"true" default:"30s"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	// Driver is sqlite3 (embedded, default) or postgres.
	Driver string `default:"sqlite3"`
	DSN    string `default:"./porthealth.db"`
}

type AuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET" default:"porthealth-secret"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"8h"`
}

type ReminderConfig struct {
	// Interval is how often the dispatcher scans; Window is how far ahead.
	Interval time.Duration `default:"1m"`
	Window   time.Duration `default:"60m"`
}

// SMTPConfig is optional; an empty Host disables the email side-channel.
type SMTPConfig struct {
	Host     string
	Port     int `default:"587"`
	Username string
	Password string
	From     string
}

type LogConfig struct {
	Level  string `default:"info"`
	Format string `default:"json"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("porthealth", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http write timeout must be positive")
	}
	if c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		return fmt.Errorf("database driver must be sqlite3 or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if c.Reminder.Interval <= 0 {
		return fmt.Errorf("reminder interval must be positive")
	}
	if c.Reminder.Window <= 0 {
		return fmt.Errorf("reminder window must be positive")
	}
	if c.SMTP.Host != "" && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535) {
		return fmt.Errorf("smtp port must be between 1 and 65535, got %d", c.SMTP.Port)
	}
	return nil
}
