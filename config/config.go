package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type Server struct {
	Addr       string `mapstructure:"addr"`
	SigningKey string `mapstructure:"signing_key"`
}

type Monitor struct {
	Interval    time.Duration `mapstructure:"interval"`
	Once        bool          `mapstructure:"once"`
	Persist     bool          `mapstructure:"persist"`
	Sync        bool          `mapstructure:"sync"`
	SyncURL     string        `mapstructure:"sync_url"`
	SyncAppID   string        `mapstructure:"sync_app_id"`
	SyncTimeout time.Duration `mapstructure:"sync_timeout"`
	SigningKey  string        `mapstructure:"signing_key"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
}

type Cache struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Storage struct {
	Dir string `mapstructure:"dir"`
}

type Migrations struct {
	Dir     string `mapstructure:"dir"`
	Dialect string `mapstructure:"dialect"`
}

type Broker struct {
	Brokers []string `mapstructure:"brokers"`
}

type Checks struct {
	Database     bool       `mapstructure:"database"`
	Cache        Cache      `mapstructure:"cache"`
	Storage      Storage    `mapstructure:"storage"`
	Migrations   Migrations `mapstructure:"migrations"`
	Broker       Broker     `mapstructure:"broker"`
	Certificates []string   `mapstructure:"certificates"`
}

type OTEL struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type Config struct {
	Log      Log      `mapstructure:"log"`
	Database Database `mapstructure:"database"`
	Server   Server   `mapstructure:"server"`
	Monitor  Monitor  `mapstructure:"monitor"`
	Checks   Checks   `mapstructure:"checks"`
	OTEL     OTEL     `mapstructure:"otel"`
}

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return &ConfigurationError{Key: "database.driver", Reason: fmt.Sprintf("unsupported driver %q", c.Database.Driver)}
	}

	return nil
}

// ValidateMonitor checks the settings only the monitor depends on. Remote sync
// settings are only required when sync is enabled.
func (c *Config) ValidateMonitor() error {
	if c.Monitor.Interval <= 0 {
		return &ConfigurationError{Key: "monitor.interval", Reason: "must be positive"}
	}

	if c.Monitor.Sync {
		if c.Monitor.SyncURL == "" {
			return &ConfigurationError{Key: "monitor.sync_url", Reason: "is not set"}
		}
		if c.Monitor.SyncAppID == "" {
			return &ConfigurationError{Key: "monitor.sync_app_id", Reason: "is not set"}
		}
		if _, err := uuid.Parse(c.Monitor.SyncAppID); err != nil {
			return &ConfigurationError{Key: "monitor.sync_app_id", Reason: "is not a valid UUID"}
		}
		if c.Monitor.SyncTimeout <= 0 {
			return &ConfigurationError{Key: "monitor.sync_timeout", Reason: "must be positive"}
		}
	}

	return nil
}
