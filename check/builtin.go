package check

import (
	"fmt"
	"time"

	"github.com/lagren/healthguard/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	DatabaseName   = "DatabaseHealthCheck"
	CacheName      = "CacheBackend"
	StorageName    = "DefaultFileStorageHealthCheck"
	MigrationsName = "MigrationsHealthCheck"
	BrokerName     = "BrokerHealthCheck"
)

// Builtin registers every check enabled in cfg. The returned function releases
// the clients opened for them.
func Builtin(cfg *config.Config, db *gorm.DB) (*Registry, func(), error) {
	r := NewRegistry()
	var closers []func() error

	if cfg.Checks.Database {
		if db == nil {
			return nil, nil, fmt.Errorf("database check enabled without a database")
		}
		r.Register(DatabaseName, Database(db))
	}

	if cfg.Checks.Cache.Addr != "" {
		client := NewRedisClient(cfg.Checks.Cache.Addr, cfg.Checks.Cache.Password, cfg.Checks.Cache.DB)
		closers = append(closers, client.Close)
		r.Register(CacheName, Cache(client))
	}

	if cfg.Checks.Storage.Dir != "" {
		r.Register(StorageName, Storage(cfg.Checks.Storage.Dir))
	}

	if cfg.Checks.Migrations.Dir != "" {
		if db == nil {
			return nil, nil, fmt.Errorf("migrations check enabled without a database")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}

		dialect := cfg.Checks.Migrations.Dialect
		if dialect == "" {
			dialect = GooseDialect(cfg.Database.Driver)
		}
		r.Register(MigrationsName, Migrations(sqlDB, cfg.Checks.Migrations.Dir, dialect))
	}

	if len(cfg.Checks.Broker.Brokers) > 0 {
		r.Register(BrokerName, Broker(cfg.Checks.Broker.Brokers, 5*time.Second))
	}

	for _, hostname := range cfg.Checks.Certificates {
		r.Register(fmt.Sprintf("CertificateHealthCheck(%s)", hostname), NewCertificateCheck(hostname))
	}

	logrus.Infof("Registered %d check(s): %v", r.Len(), r.Names())

	return r, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logrus.Warnf("Could not close check client: %s", err)
			}
		}
	}, nil
}
