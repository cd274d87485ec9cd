package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affrollup/internal/domain"
	"affrollup/internal/rollup"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

// ReportQuery is one report request. An empty ArsenalID uses the user's active arsenal.
type ReportQuery struct {
	UserID    string
	Dimension domain.Dimension
	Filter    domain.TransactionFilter
	SortBy    string
	Direction string
	Page      int
	PageSize  int
	ArsenalID string
}

type ReportOptions struct {
	Policy          rollup.Policy
	Workers         int
	ShardThreshold  int
	DefaultPageSize int
	MaxPageSize     int
	// strategy for products no group matched when autoGroupUngrouped is on
	Ungrouped rollup.UngroupedStrategy
}

func DefaultReportOptions() ReportOptions {
	return ReportOptions{
		Policy:          rollup.DefaultPolicy(),
		Workers:         1,
		DefaultPageSize: rollup.DefaultPageSize,
		MaxPageSize:     500,
	}
}

// ReportService builds financial rollups over stored transactions
type ReportService struct {
	txRepo      domain.TransactionRepository
	arsenalRepo domain.ArsenalRepository
	exporter    domain.ReportExporter
	logger      *logger.Logger
	metrics     *metrics.Metrics
	opts        ReportOptions
}

// NewReportService creates a new report service
func NewReportService(
	txRepo domain.TransactionRepository,
	arsenalRepo domain.ArsenalRepository,
	exporter domain.ReportExporter,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	opts ReportOptions,
) *ReportService {
	if opts.DefaultPageSize < 1 {
		opts.DefaultPageSize = rollup.DefaultPageSize
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &ReportService{
		txRepo:      txRepo,
		arsenalRepo: arsenalRepo,
		exporter:    exporter,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// BuildReport recomputes one page of a report from the raw records
func (s *ReportService) BuildReport(ctx context.Context, q ReportQuery) (*domain.ReportResponse, error) {
	start := time.Now()
	log := s.logger.WithContext(ctx)
	log.WithFields(map[string]any{
		"user_id":   q.UserID,
		"dimension": q.Dimension,
		"sort_by":   q.SortBy,
		"page":      q.Page,
	}).Info("Building report")

	if !q.Dimension.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDimension, q.Dimension)
	}
	column, err := rollup.ParseColumn(q.SortBy)
	if err != nil {
		return nil, err
	}
	direction := rollup.ParseDirection(q.Direction)

	records, arsenal, err := s.load(ctx, q.UserID, q.ArsenalID, q.Filter)
	if err != nil {
		s.metrics.RecordReport(string(q.Dimension), "failed", 0, time.Since(start))
		return nil, err
	}

	keyFn, err := rollup.KeyFuncFor(q.Dimension, rollup.NewResolver(arsenal, s.opts.Ungrouped))
	if err != nil {
		return nil, err
	}

	page, err := rollup.Run(records, rollup.Query{
		KeyFn:     keyFn,
		Column:    column,
		Direction: direction,
		Page:      q.Page,
		PageSize:  s.pageSize(q.PageSize),
		Workers:   s.workersFor(len(records)),
	}, s.opts.Policy)
	if err != nil {
		return nil, err
	}

	resp := &domain.ReportResponse{
		Dimension:  q.Dimension,
		SortBy:     string(column),
		Direction:  string(direction),
		Rows:       page.Rows,
		PageTotal:  page.PageTotal,
		GrandTotal: page.GrandTotal,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalRows:  page.TotalRows,
		TotalPages: page.TotalPages,
		HasMore:    page.HasMore,
	}
	if arsenal != nil {
		resp.ArsenalID = arsenal.ID
	}

	duration := time.Since(start)
	s.metrics.RecordReport(string(q.Dimension), "success", len(records), duration)
	s.metrics.ObserveRefundCost(page.GrandTotal.RefundsAndChargebacksCost.InexactFloat64())

	log.WithFields(map[string]any{
		"records":  len(records),
		"rows":     page.TotalRows,
		"duration": duration,
	}).Info("Report built")
	return resp, nil
}

// Summary returns the grand totals of the filtered records with distinct counts
func (s *ReportService) Summary(ctx context.Context, userID string, filter domain.TransactionFilter) (*domain.ReportSummary, error) {
	start := time.Now()
	log := s.logger.WithContext(ctx)
	log.WithField("user_id", userID).Info("Building report summary")

	records, err := s.txRepo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	active, err := s.arsenalRepo.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active arsenal: %w", err)
	}

	byAffiliate := rollup.Aggregate(records, rollup.ByAffiliate())
	byItem := rollup.Aggregate(records, rollup.ByItem())

	summary := &domain.ReportSummary{
		Totals:     rollup.Total(rollup.Rows(byAffiliate.Metrics(), s.opts.Policy), s.opts.Policy),
		Records:    len(records),
		Affiliates: byAffiliate.Len(),
		Products:   byItem.Len(),
	}
	if active != nil {
		summary.ActiveArsenalID = active.ID
	}

	s.metrics.RecordReport("summary", "success", len(records), time.Since(start))
	log.WithField("records", len(records)).Info("Report summary built")
	return summary, nil
}

// Export builds the full report without pagination and pushes it to the sink. It returns
// the number of exported rows.
func (s *ReportService) Export(ctx context.Context, q ReportQuery) (int, error) {
	log := s.logger.WithContext(ctx)
	log.WithFields(map[string]any{
		"user_id":   q.UserID,
		"dimension": q.Dimension,
	}).Info("Starting report export")

	if s.exporter == nil {
		return 0, errors.New("no report exporter configured")
	}
	if !q.Dimension.IsValid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidDimension, q.Dimension)
	}
	column, err := rollup.ParseColumn(q.SortBy)
	if err != nil {
		return 0, err
	}

	records, arsenal, err := s.load(ctx, q.UserID, q.ArsenalID, q.Filter)
	if err != nil {
		return 0, err
	}
	keyFn, err := rollup.KeyFuncFor(q.Dimension, rollup.NewResolver(arsenal, s.opts.Ungrouped))
	if err != nil {
		return 0, err
	}

	var agg *rollup.Rollup
	if w := s.workersFor(len(records)); w > 1 {
		agg = rollup.AggregateSharded(records, keyFn, w)
	} else {
		agg = rollup.Aggregate(records, keyFn)
	}
	rows, err := rollup.Sort(rollup.Rows(agg.Metrics(), s.opts.Policy), column, rollup.ParseDirection(q.Direction))
	if err != nil {
		return 0, err
	}

	payload := domain.ExportPayload{
		Meta:       domain.ExportMeta{UserID: q.UserID, Dimension: q.Dimension},
		Rows:       rows,
		GrandTotal: rollup.Total(rows, s.opts.Policy),
	}
	if arsenal != nil {
		payload.Meta.ArsenalID = arsenal.ID
	}

	if err := s.exporter.Export(ctx, payload); err != nil {
		log.WithError(err).Error("Failed to export report")
		return 0, fmt.Errorf("failed to export report: %w", err)
	}

	log.WithField("rows", len(rows)).Info("Report export completed successfully")
	return len(rows), nil
}

// load reads the records and the arsenal snapshot of one computation pass
func (s *ReportService) load(ctx context.Context, userID, arsenalID string, filter domain.TransactionFilter) ([]domain.TransactionRecord, *domain.Arsenal, error) {
	var arsenal *domain.Arsenal
	var err error
	if arsenalID != "" {
		arsenal, err = s.arsenalRepo.Get(ctx, userID, arsenalID)
	} else {
		arsenal, err = s.arsenalRepo.Active(ctx, userID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load arsenal: %w", err)
	}

	records, err := s.txRepo.Find(ctx, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return records, arsenal, nil
}

func (s *ReportService) pageSize(requested int) int {
	switch {
	case requested < 1:
		return s.opts.DefaultPageSize
	case requested > s.opts.MaxPageSize:
		return s.opts.MaxPageSize
	default:
		return requested
	}
}

func (s *ReportService) workersFor(records int) int {
	if s.opts.Workers > 1 && s.opts.ShardThreshold > 0 && records >= s.opts.ShardThreshold {
		return s.opts.Workers
	}
	return 1
}
