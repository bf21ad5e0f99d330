// Package cli wires together configuration loading, the scrape
// engine, its scheduler, the cleanup job, and the optional admin HTTP
// surface into one long-running process, as a cobra root command
// backed by viper configuration.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eve.evalgo.org/otelscrape/adminapi"
	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/engine"
	"eve.evalgo.org/otelscrape/errs"
	otelpkg "eve.evalgo.org/otelscrape/otel"
	"eve.evalgo.org/otelscrape/selftelemetry"
	"eve.evalgo.org/otelscrape/store"
	"eve.evalgo.org/otelscrape/store/redisstore"
	"eve.evalgo.org/otelscrape/store/sqlite"
	"eve.evalgo.org/otelscrape/version"
)

var cfgFile string

// RootCmd is the otelscrape entry point: load configuration, start
// the engine, and run until interrupted.
var RootCmd = &cobra.Command{
	Use:   "otelscrape",
	Short: "Turn configured HTTP/JSON APIs into OTLP metrics and logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	RootCmd.Flags().StringVar(&cfgFile, "config", "", "path to the scraper configuration file (or set SCRAPER_CONFIG)")
}

// Execute runs the root command with a context cancelled on
// SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RootCmd.ExecuteContext(ctx)
}

// ExitCodeFor maps an error to the process exit code spec.md §6
// defines: 0 success, 1 runtime failure, 2 configuration failure.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if kind, ok := errs.KindOf(err); ok && kind == errs.Config {
		return 2
	}
	return 1
}

func run(ctx context.Context) error {
	path, err := config.ResolvePath(cfgFile)
	if err != nil {
		return errs.Wrap(errs.Config, "resolve_path", "resolve configuration path", err)
	}
	root, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := common.NewLogger(common.LoggerConfig{
		Level:   common.LogLevel(root.Scraper.LogLevel),
		Format:  "json",
		Service: root.Scraper.ServiceName,
	})
	log := common.NewContextLogger(logger, map[string]interface{}{"service": root.Scraper.ServiceName})
	log.WithField("build_version", version.GetModuleVersion()).Info("starting otelscrape")

	st, backend, err := openStore(root.Scraper.FingerprintStore)
	if err != nil {
		return errs.Wrap(errs.Store, "open_store", "open fingerprint store", err)
	}
	defer st.Close()

	selfProvider, err := otelpkg.New(ctx, otelpkg.Config{
		CollectorEndpoint: root.Scraper.OtelCollectorEndpoint,
		Transport:         root.Scraper.OtelTransport,
		DryRun:            root.Scraper.DryRun,
		ServiceName:       root.Scraper.ServiceName,
	})
	if err != nil {
		return errs.Wrap(errs.Config, "self_otel_provider", "build self-telemetry provider", err)
	}
	defer selfProvider.Shutdown(context.Background())

	var selfTel *selftelemetry.Registry
	if root.Scraper.EnableSelfTelemetry {
		selfTel, err = selftelemetry.New(selfProvider.Meter.Meter(root.Scraper.ServiceName))
		if err != nil {
			return errs.Wrap(errs.Config, "self_telemetry", "register self-telemetry instruments", err)
		}
	}

	eng, err := engine.New(ctx, *root, st, logger, selfTel)
	if err != nil {
		return err
	}
	defer eng.Shutdown(context.Background())

	scheduler := engine.NewScheduler(eng, log)
	if err := scheduler.Start(ctx); err != nil {
		return errs.Wrap(errs.Config, "start_scheduler", "start per-source tickers", err)
	}

	cleanupInterval := time.Duration(root.Scraper.FingerprintStore.CleanupIntervalSeconds) * time.Second
	cleanup := engine.NewCleanupJob(st, backend, cleanupInterval, eng.Sources, selfTel, log)
	cleanup.Start(ctx)

	var adminSrv *adminServer
	if root.Scraper.EnableAdminAPI {
		adminSrv = startAdminServer(eng, root.Scraper, log)
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	cleanup.Stop()
	scheduler.Stop()
	if adminSrv != nil {
		adminSrv.stop(root.Scraper.TerminateGracefully)
	}

	return nil
}

func openStore(cfg config.FingerprintStoreConfig) (store.Store, string, error) {
	switch cfg.Backend {
	case "", "sqlite":
		scfg := sqlite.DefaultConfig(cfg.Sqlite.Path)
		if cfg.LockRetries > 0 {
			scfg.MaxRetries = cfg.LockRetries
		}
		if cfg.LockBackoffSeconds > 0 {
			scfg.BaseBackoff = time.Duration(cfg.LockBackoffSeconds * float64(time.Second))
		}
		st, err := sqlite.Open(scfg)
		return st, "sqlite", err
	case "redis", "valkey":
		st, err := redisstore.Open(context.Background(), redisstore.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Valkey.Host, cfg.Valkey.Port),
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
			TLS:      cfg.Valkey.SSL,
		})
		return st, cfg.Backend, err
	default:
		return nil, "", fmt.Errorf("cli: unknown fingerprintStore backend %q", cfg.Backend)
	}
}
