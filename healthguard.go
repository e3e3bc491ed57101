package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lagren/healthguard/check"
	"github.com/lagren/healthguard/config"
	"github.com/lagren/healthguard/obs"
	"github.com/lagren/healthguard/persistence"
	"github.com/lagren/healthguard/report"
	"github.com/lagren/healthguard/scheduler"
	"github.com/lagren/healthguard/server"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type app struct {
	cfg   *config.Config
	db    *gorm.DB
	store *persistence.Store
}

func newApp(cfg *config.Config) (*app, error) {
	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	if err := persistence.Migrate(db); err != nil {
		return nil, fmt.Errorf("could not migrate database: %w", err)
	}

	return &app{
		cfg:   cfg,
		db:    db,
		store: persistence.NewStore(db),
	}, nil
}

func (a *app) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (a *app) serve(ctx context.Context) error {
	srv := server.New(a.store, a.cfg.Server.SigningKey)

	return srv.ListenAndServe(ctx, a.cfg.Server.Addr)
}

// monitor runs the checks on the configured interval until ctx is done, or once
// when run-once mode is enabled.
func (a *app) monitor(ctx context.Context) error {
	registry, closeChecks, err := check.Builtin(a.cfg, a.db)
	if err != nil {
		return err
	}
	defer closeChecks()

	reporter, err := a.reporter()
	if err != nil {
		return err
	}

	if addr := a.cfg.Monitor.MetricsAddr; addr != "" {
		ms := obs.BootstrapMetricsServer(addr, func(ctx context.Context) error {
			sqlDB, err := a.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	logrus.Infof("Running %d check(s) every %s, reporting to [%s]",
		registry.Len(), a.cfg.Monitor.Interval, strings.Join(reporter.Sinks(), ", "))

	err = scheduler.New(registry, reporter, a.cfg.Monitor.Interval, a.cfg.Monitor.Once).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (a *app) reporter() (*report.Reporter, error) {
	var sinks []report.Sink

	if a.cfg.Monitor.Persist {
		sinks = append(sinks, report.NewLocalSink(a.store))
	}

	if a.cfg.Monitor.Sync {
		m := a.cfg.Monitor

		remote, err := report.NewRemoteSink(m.SyncURL, m.SyncAppID, m.SyncTimeout, m.SigningKey)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, remote)
	}

	return report.NewReporter(sinks...), nil
}

func (a *app) addClient(ctx context.Context, name string, w io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("missing client name")
	}
	if len([]rune(name)) > 50 {
		return fmt.Errorf("client name must be at most 50 characters")
	}

	c, err := a.store.CreateClient(ctx, name)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "Client %s registered with sync_app_id %s\n", c.Name, c.Identifier)

	return err
}

func (a *app) listClients(ctx context.Context, w io.Writer) error {
	clients, err := a.store.ListClients(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSYNC_APP_ID\tCREATED")
	for _, c := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Identifier, humanize.Time(c.CreatedAt))
	}

	return tw.Flush()
}
