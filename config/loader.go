package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "HEALTHGUARD"

// Load assembles the configuration from defaults, an optional YAML file, an
// optional .env file and the environment, in increasing priority.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "healthguard.db")

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.signing_key", "")

	v.SetDefault("monitor.interval", "5s")
	v.SetDefault("monitor.once", false)
	v.SetDefault("monitor.persist", false)
	v.SetDefault("monitor.sync", false)
	v.SetDefault("monitor.sync_url", "")
	v.SetDefault("monitor.sync_app_id", "")
	v.SetDefault("monitor.sync_timeout", "5s")
	v.SetDefault("monitor.signing_key", "")
	v.SetDefault("monitor.metrics_addr", "")

	v.SetDefault("checks.database", true)
	v.SetDefault("checks.cache.addr", "")
	v.SetDefault("checks.cache.password", "")
	v.SetDefault("checks.cache.db", 0)
	v.SetDefault("checks.storage.dir", os.TempDir())
	v.SetDefault("checks.migrations.dir", "")
	v.SetDefault("checks.migrations.dialect", "")
	v.SetDefault("checks.broker.brokers", []string{})
	v.SetDefault("checks.certificates", []string{})

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "healthguard")
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	logrus.Debugf("Configuration loaded from %q", v.ConfigFileUsed())

	return &cfg, nil
}
