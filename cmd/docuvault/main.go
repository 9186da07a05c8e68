package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/docuvault/docuvault/pkg/api"
	"github.com/docuvault/docuvault/pkg/authz"
	"github.com/docuvault/docuvault/pkg/config"
	"github.com/docuvault/docuvault/pkg/history"
	"github.com/docuvault/docuvault/pkg/observability"
	"github.com/docuvault/docuvault/pkg/storage"
)

func main() {
	migrate := flag.Bool("migrate", true, "Run pending schema migrations on startup")
	seed := flag.Bool("seed", false, "Apply default roles, vocabularies, and workflow edges")
	flag.Parse()

	if err := run(*migrate, *seed); err != nil {
		fmt.Fprintf(os.Stderr, "docuvault: %v\n", err)
		os.Exit(1)
	}
}

func run(migrate, seed bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Log.Level), os.Stdout)
	metrics := observability.NewMetrics(nil)

	db, err := storage.OpenPostgres(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := storage.OpenRedis(cfg.Storage)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	ctx := context.Background()

	if migrate {
		if err := storage.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	}
	if seed {
		if err := storage.Seed(ctx, db, logger); err != nil {
			return err
		}
	}

	// Surface vocabulary drift at startup rather than as scattered denials.
	findings, err := authz.CheckConsistency(ctx, authz.NewStore(db), logger)
	if err != nil {
		return err
	}
	if len(findings) > 0 {
		logger.WithField("findings", len(findings)).Warn("authorization vocabulary has inconsistencies")
	}

	server, err := api.NewServer(cfg, db, redisClient, logger, metrics)
	if err != nil {
		return err
	}

	cronLog := logrus.New()
	cronLog.SetFormatter(&logrus.JSONFormatter{})
	scheduler := cron.New(cron.WithLogger(cron.PrintfLogger(cronLog)))
	trail, err := history.NewDBLogger(db)
	if err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(cfg.History.CleanupSchedule, func() {
		removed, err := trail.Cleanup(context.Background(), cfg.History.RetentionDays)
		if err != nil {
			logger.WithError(err).Error("history cleanup failed")
			return
		}
		logger.WithField("removed", removed).Info("history cleanup completed")
	}); err != nil {
		return fmt.Errorf("invalid history cleanup schedule: %w", err)
	}
	if _, err := scheduler.AddFunc("@every 30s", func() {
		metrics.CollectDBStats(db)
	}); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
