package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"affrollup/internal/domain"
	"affrollup/internal/infrastructure"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

var (
	testLogger = logger.Discard()
	day        = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func sale(id, product, affiliate, customer, gross string) domain.TransactionRecord {
	rec := domain.TransactionRecord{
		ID:                  id,
		OccurredAt:          day,
		Type:                domain.TypeSale,
		Status:              domain.StatusCompleted,
		Platform:            domain.PlatformClickBank,
		ProductID:           "p-" + product,
		ProductName:         product,
		GrossAmount:         dec(gross),
		AffiliateCommission: nd("0"),
		Quantity:            1,
	}
	if affiliate != "" {
		rec.AffiliateID = &affiliate
	}
	if customer != "" {
		rec.CustomerID = &customer
	}
	return rec
}

func testArsenal(id string) domain.Arsenal {
	return domain.Arsenal{
		ID:   id,
		Name: "Main",
		CustomGroups: []domain.CustomProductGroup{{
			ID:         "men",
			Name:       "Men Balance",
			MatchRules: []domain.MatchRule{{Type: domain.MatchContains, Value: "men balance"}},
			IsActive:   true,
			Offers: []domain.OfferRule{{
				ID:         "up",
				Name:       "Upsell",
				OfferType:  domain.OfferUpsell,
				MatchRules: []domain.MatchRule{{Type: domain.MatchContains, Value: "upsell"}},
			}},
		}},
	}
}

type fixture struct {
	txRepo      *infrastructure.TransactionRepository
	arsenalRepo *infrastructure.ArsenalRepository
	exporter    *captureExporter
	metrics     *metrics.Metrics
}

func newFixture() *fixture {
	return &fixture{
		txRepo:      infrastructure.NewTransactionRepository(testLogger),
		arsenalRepo: infrastructure.NewArsenalRepository(testLogger),
		exporter:    &captureExporter{},
		metrics:     metrics.New(),
	}
}

func (f *fixture) reports(opts ReportOptions) *ReportService {
	return NewReportService(f.txRepo, f.arsenalRepo, f.exporter, testLogger, f.metrics, opts)
}

func (f *fixture) arsenals() *ArsenalService {
	return NewArsenalService(f.arsenalRepo, nil, testLogger, f.metrics)
}

type captureExporter struct {
	mu       sync.Mutex
	payloads []domain.ExportPayload
	err      error
}

func (e *captureExporter) Export(ctx context.Context, payload domain.ExportPayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.payloads = append(e.payloads, payload)
	return nil
}

type stubFeed struct {
	records []domain.TransactionRecord
	err     error
	since   *time.Time
	block   chan struct{}
}

func (f *stubFeed) FetchTransactions(ctx context.Context, since *time.Time) ([]domain.TransactionRecord, error) {
	f.since = since
	if f.block != nil {
		<-f.block
	}
	return f.records, f.err
}
