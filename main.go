package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lagren/healthguard/config"
	"github.com/lagren/healthguard/obs"
	"github.com/lagren/healthguard/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const usage = `Usage: healthguard [flags] <command>

Commands:
  serve               run the ingestion and aggregation service
  monitor             run the health checks and report the results
  client add <name>   register a reporting client
  client list         list registered clients

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, scheduler.ErrChecksFailing) {
			logrus.Warn(err)
		} else {
			logrus.Errorf("healthguard: %s", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("healthguard", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	configPath := flags.StringP("config", "c", "", "path to a YAML configuration file")
	once := flags.Bool("once", false, "run the checks once and exit (monitor only)")
	flags.Usage = func() {
		fmt.Fprint(stdout, usage)
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if *once {
		cfg.Monitor.Once = true
	}

	obs.SetupLogging(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return err
	}

	cmd := flags.Args()
	if len(cmd) == 0 {
		flags.Usage()
		return fmt.Errorf("missing command")
	}

	switch cmd[0] {
	case "serve", "monitor", "client":
	default:
		flags.Usage()
		return fmt.Errorf("unknown command %q", cmd[0])
	}

	if cmd[0] == "monitor" {
		if err := cfg.ValidateMonitor(); err != nil {
			return err
		}
	}

	tel, err := obs.SetupOTel(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("could not set up tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("Could not flush traces: %s", err)
		}
	}()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd[0] {
	case "serve":
		return a.serve(ctx)
	case "monitor":
		return a.monitor(ctx)
	}

	if len(cmd) < 2 {
		return fmt.Errorf("missing client action, expected add or list")
	}

	switch cmd[1] {
	case "add":
		if len(cmd) < 3 {
			return fmt.Errorf("missing client name")
		}
		return a.addClient(ctx, cmd[2], stdout)
	case "list":
		return a.listClients(ctx, stdout)
	default:
		return fmt.Errorf("unknown client action %q", cmd[1])
	}
}
