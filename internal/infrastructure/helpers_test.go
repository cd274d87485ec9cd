package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

var testLogger = logger.Discard()

func newTestMetrics() *metrics.Metrics {
	return metrics.New()
}

func txn(id string, at time.Time, product, affiliate string) domain.TransactionRecord {
	rec := domain.TransactionRecord{
		ID:          id,
		OccurredAt:  at,
		Type:        domain.TypeSale,
		Status:      domain.StatusCompleted,
		Platform:    domain.PlatformClickBank,
		ProductID:   "p-" + product,
		ProductName: product,
		GrossAmount: decimal.NewFromInt(10),
		Quantity:    1,
	}
	if affiliate != "" {
		rec.AffiliateID = &affiliate
	}
	return rec
}

func ids(recs []domain.TransactionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
