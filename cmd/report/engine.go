package main

import (
	"context"
	"fmt"

	"affrollup/internal/domain"
	"affrollup/internal/infrastructure"
	"affrollup/internal/rollup"
	"affrollup/internal/usecase"
	"affrollup/pkg/config"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

const cliUserID = "cli"

// engine wires the services over in-memory stores for one CLI invocation
type engine struct {
	reports  *usecase.ReportService
	arsenals *usecase.ArsenalService
	sync     *usecase.SyncService
}

func newEngine(cfg *config.Config, log *logger.Logger) *engine {
	m := metrics.New()
	txRepo := infrastructure.NewTransactionRepository(log)
	arsenalRepo := infrastructure.NewArsenalRepository(log)
	ungrouped := rollup.NormalizedNameStrategy{}

	return &engine{
		reports: usecase.NewReportService(txRepo, arsenalRepo, nil, log, m, usecase.ReportOptions{
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
		}),
		arsenals: usecase.NewArsenalService(arsenalRepo, ungrouped, log, m),
		sync:     usecase.NewSyncService(txRepo, nil, log, m, cfg.Sync.WorkerPoolSize),
	}
}

// loadArsenals seeds the definitions of path. When none is marked active the first one is activated.
func (e *engine) loadArsenals(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	defs, err := infrastructure.LoadArsenalFile(path)
	if err != nil {
		return err
	}
	if err := e.arsenals.Seed(ctx, cliUserID, defs); err != nil {
		return err
	}

	active, err := e.arsenals.Active(ctx, cliUserID)
	if err != nil || active != nil {
		return err
	}
	list, err := e.arsenals.List(ctx, cliUserID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("%w: %s defines no arsenal", domain.ErrInvalidArsenal, path)
	}
	_, err = e.arsenals.Activate(ctx, cliUserID, list[0].ID)
	return err
}

func (e *engine) loadTransactions(ctx context.Context, path string) (*usecase.SyncResult, error) {
	records, err := infrastructure.LoadTransactionFile(path)
	if err != nil {
		return nil, err
	}
	return e.sync.Ingest(ctx, records)
}
