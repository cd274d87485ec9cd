package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"affrollup/internal/delivery"
	"affrollup/internal/domain"
	"affrollup/internal/infrastructure"
	"affrollup/internal/rollup"
	"affrollup/internal/usecase"
	"affrollup/pkg/config"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

const (
	seedUserID      = "default"
	shutdownTimeout = 15 * time.Second
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("Server stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	txRepo, closeTx, err := openTransactionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeTx()

	arsenalRepo, closeArsenals, err := openArsenalStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeArsenals()

	client := infrastructure.NewHTTPClient(infrastructure.HTTPClientConfig{
		TransactionsURL:    cfg.External.TransactionsAPIURL,
		SinkURL:            cfg.External.SinkURL,
		SinkSecret:         cfg.External.SinkSecret,
		Timeout:            cfg.Sync.RequestTimeout,
		RateLimitPerSecond: cfg.Sync.RateLimitPerSecond,
	}, log, m)

	ungrouped := rollup.NormalizedNameStrategy{}
	reportService := usecase.NewReportService(txRepo, arsenalRepo, client, log, m, usecase.ReportOptions{
		Policy: rollup.Policy{
			AllowanceRate:      cfg.Report.AllowanceRate,
			RefundRateGood:     cfg.Report.RefundRateGood,
			RefundRateCritical: cfg.Report.RefundRateCritical,
		},
		Workers:         cfg.Sync.WorkerPoolSize,
		ShardThreshold:  cfg.Sync.ShardThreshold,
		DefaultPageSize: cfg.Report.DefaultPageSize,
		MaxPageSize:     cfg.Report.MaxPageSize,
		Ungrouped:       ungrouped,
	})
	arsenalService := usecase.NewArsenalService(arsenalRepo, ungrouped, log, m)

	var feed domain.TransactionFeed
	if cfg.External.TransactionsAPIURL != "" {
		feed = client
	}
	syncService := usecase.NewSyncService(txRepo, feed, log, m, cfg.Sync.WorkerPoolSize)

	if path := cfg.Storage.ArsenalSeedFile; path != "" {
		arsenals, err := infrastructure.LoadArsenalFile(path)
		if err != nil {
			return fmt.Errorf("failed to load arsenal seed file: %w", err)
		}
		if err := arsenalService.Seed(ctx, seedUserID, arsenals); err != nil {
			return fmt.Errorf("failed to seed arsenals: %w", err)
		}
		log.WithFields(map[string]any{
			"file":     path,
			"arsenals": len(arsenals),
			"user_id":  seedUserID,
		}).Info("Arsenals seeded")
	}

	handlers := delivery.NewHTTPHandlers(reportService, arsenalService, syncService, log)
	router := delivery.NewHTTPRouter(handlers, log, m, cfg.Sync.RequestTimeout).SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]any{
			"port":            cfg.Server.Port,
			"storage_backend": cfg.Storage.Backend,
			"arsenal_store":   cfg.Storage.ArsenalStore,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

func openTransactionStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (domain.TransactionRepository, func(), error) {
	if cfg.Storage.Backend != config.BackendPostgres {
		return infrastructure.NewTransactionRepository(log), func() {}, nil
	}

	db, err := infrastructure.OpenPostgres(ctx, cfg.Storage.DatabaseURL, cfg.Storage.DBMaxConns, log)
	if err != nil {
		return nil, nil, err
	}
	return infrastructure.NewPostgresTransactionRepository(db, log), func() { infrastructure.ClosePostgres(db) }, nil
}

func openArsenalStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (domain.ArsenalRepository, func(), error) {
	if cfg.Storage.ArsenalStore != config.BackendRedis {
		return infrastructure.NewArsenalRepository(log), func() {}, nil
	}

	client, err := infrastructure.ConnectRedis(ctx, cfg.Storage.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return infrastructure.NewRedisArsenalRepository(client, log), func() { client.Close() }, nil
}
