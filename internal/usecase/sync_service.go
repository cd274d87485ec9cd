package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

var (
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrFeedNotConfigured = errors.New("no transaction feed configured")
)

const unknownProduct = "unknown"

// SyncResult summarises one sync or ingest run
type SyncResult struct {
	Fetched  int           `json:"fetched"`
	Stored   int           `json:"stored"`
	Rejected int           `json:"rejected"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// SyncService pulls transactions from the upstream feed into the repository
type SyncService struct {
	txRepo     domain.TransactionRepository
	feed       domain.TransactionFeed
	logger     *logger.Logger
	metrics    *metrics.Metrics
	workerPool int
	running    atomic.Bool
}

func NewSyncService(
	txRepo domain.TransactionRepository,
	feed domain.TransactionFeed,
	logger *logger.Logger,
	metrics *metrics.Metrics,
	workerPool int,
) *SyncService {
	if workerPool < 1 {
		workerPool = 1
	}
	return &SyncService{
		txRepo:     txRepo,
		feed:       feed,
		logger:     logger,
		metrics:    metrics,
		workerPool: workerPool,
	}
}

// Run fetches, normalises and stores the feed. Rows before since are skipped.
func (s *SyncService) Run(ctx context.Context, since *time.Time) (*SyncResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	s.metrics.IncSyncJobsInProgress()
	defer s.metrics.DecSyncJobsInProgress()

	log := s.logger.WithContext(ctx)
	log.WithField("since", since).Info("Starting transaction sync")

	if s.feed == nil {
		s.metrics.RecordSyncJob("failed", "extract", time.Since(start))
		return nil, ErrFeedNotConfigured
	}

	raw, err := s.feed.FetchTransactions(ctx, since)
	if err != nil {
		s.metrics.RecordSyncJob("failed", "extract", time.Since(start))
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	result, err := s.store(ctx, "feed", raw, since)
	if err != nil {
		s.metrics.RecordSyncJob("failed", "load", time.Since(start))
		return nil, err
	}
	result.Duration = time.Since(start)
	s.metrics.RecordSyncJob("success", "complete", result.Duration)

	log.WithFields(map[string]any{
		"fetched":  result.Fetched,
		"stored":   result.Stored,
		"rejected": result.Rejected,
		"skipped":  result.Skipped,
		"duration": result.Duration,
	}).Info("Transaction sync completed successfully")
	return result, nil
}

// Ingest stores a pushed batch with the same normalisation as Run
func (s *SyncService) Ingest(ctx context.Context, records []domain.TransactionRecord) (*SyncResult, error) {
	start := time.Now()
	result, err := s.store(ctx, "push", records, nil)
	if err != nil {
		s.metrics.RecordSyncJob("failed", "push", time.Since(start))
		return nil, err
	}
	result.Duration = time.Since(start)
	s.metrics.RecordSyncJob("success", "push", result.Duration)

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"stored":   result.Stored,
		"rejected": result.Rejected,
	}).Info("Transactions ingested")
	return result, nil
}

func (s *SyncService) store(ctx context.Context, source string, raw []domain.TransactionRecord, since *time.Time) (*SyncResult, error) {
	result := &SyncResult{Fetched: len(raw)}

	normalized := s.normalizeAll(raw)
	clean := make([]domain.TransactionRecord, 0, len(raw))
	for _, n := range normalized {
		switch {
		case n.reason != "":
			result.Rejected++
			s.metrics.RecordSyncRejected(source, n.reason)
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"id":     n.rec.ID,
				"reason": n.reason,
			}).Warn("Rejected transaction")
		case since != nil && n.rec.OccurredAt.Before(*since):
			result.Skipped++
		default:
			clean = append(clean, n.rec)
		}
	}

	if len(clean) > 0 {
		if err := s.txRepo.Store(ctx, clean); err != nil {
			return nil, fmt.Errorf("failed to store transactions: %w", err)
		}
	}
	result.Stored = len(clean)
	s.metrics.RecordSyncRecords(source, "stored", result.Stored)
	return result, nil
}

type normalized struct {
	rec    domain.TransactionRecord
	reason string
}

// normalizeAll fans the batch out over the worker pool. Output keeps input order.
func (s *SyncService) normalizeAll(raw []domain.TransactionRecord) []normalized {
	out := make([]normalized, len(raw))
	workers := min(s.workerPool, len(raw))
	if workers <= 1 {
		for i, rec := range raw {
			out[i] = normalizeRecord(rec)
		}
		return out
	}

	chunk := (len(raw) + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < len(raw); lo += chunk {
		hi := min(lo+chunk, len(raw))
		wg.Go(func() {
			for i := lo; i < hi; i++ {
				out[i] = normalizeRecord(raw[i])
			}
		})
	}
	wg.Wait()
	return out
}

// normalizeRecord upper-cases enums, trims identifiers and fills defaults. A non-empty
// reason means the record is rejected.
func normalizeRecord(rec domain.TransactionRecord) normalized {
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		return normalized{rec: rec, reason: "missing_id"}
	}
	if rec.OccurredAt.IsZero() {
		return normalized{rec: rec, reason: "missing_timestamp"}
	}
	rec.OccurredAt = rec.OccurredAt.UTC()

	rec.Type = domain.TransactionType(strings.ToUpper(strings.TrimSpace(string(rec.Type))))
	if !rec.Type.IsValid() {
		return normalized{rec: rec, reason: "invalid_type"}
	}
	rec.Platform = domain.ParsePlatform(string(rec.Platform))
	rec.Status = strings.ToUpper(strings.TrimSpace(rec.Status))

	rec.ProductName = strings.TrimSpace(rec.ProductName)
	if rec.ProductName == "" {
		rec.ProductName = unknownProduct
	}
	rec.ProductID = strings.TrimSpace(rec.ProductID)
	rec.AffiliateID = trimmedOrNil(rec.AffiliateID)
	rec.CustomerID = trimmedOrNil(rec.CustomerID)

	if rec.Quantity < 1 {
		rec.Quantity = 1
	}
	return normalized{rec: rec}
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
