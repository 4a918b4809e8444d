package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/costeo/internal/config"
	"github.com/Simplici0/costeo/internal/costing"
	"github.com/Simplici0/costeo/internal/db"
	"github.com/Simplici0/costeo/internal/importer"
	"github.com/Simplici0/costeo/internal/logger"
	"github.com/Simplici0/costeo/internal/metrics"
	"github.com/Simplici0/costeo/internal/migrations"
	"github.com/Simplici0/costeo/internal/seed"
	"github.com/Simplici0/costeo/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "costeo: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if cfg.RunMigrations {
		if err := migrations.Up(database); err != nil {
			return err
		}
		version, err := migrations.Version(database)
		if err != nil {
			return err
		}
		log.Info("database migrated", zap.Int64("version", version))
	}

	stats, err := seed.Run(ctx, database, seed.Config{
		BenefitsRate:         cfg.Seed.BenefitsRate,
		HoursPerHead:         cfg.Seed.HoursPerHead,
		AverageMonthlyVolume: cfg.Seed.AverageMonthlyVolume,
	})
	if err != nil {
		return fmt.Errorf("seed database: %w", err)
	}
	log.Info("seed completed", zap.Int("inserts", stats.Inserts))

	repo := store.New(database)
	m := metrics.New()
	engine := costing.NewEngine(repo, costing.Options{
		TaxRate:     cfg.TaxRate(),
		SplitPolicy: cfg.Policy(),
		Logger:      logger.Named(log, "costing"),
		Observer:    m,
	})

	srv := &server{
		engine:   engine,
		importer: importer.New(repo, logger.Named(log, "importer")),
		store:    repo,
		db:       database,
		metrics:  m,
		logger:   log,
		debug:    cfg.IsDev(),
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", httpServer.Addr),
			zap.Float64("tax_rate", cfg.TaxRate()),
			zap.String("split_policy", string(cfg.Policy())),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
