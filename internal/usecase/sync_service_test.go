package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affrollup/internal/domain"
)

func TestSyncService_RunNormalizesAndStores(t *testing.T) {
	f := newFixture()
	aff := "  aff-1 "
	blank := " "

	messy := sale(" s1 ", "", "", "", "10")
	messy.Type = "sale"
	messy.Platform = " buygoods"
	messy.Status = "completed"
	messy.AffiliateID = &aff
	messy.CustomerID = &blank
	messy.Quantity = 0

	noID := sale("", "X", "", "", "1")
	badType := sale("s3", "X", "", "", "1")
	badType.Type = "UPGRADE"
	old := sale("s4", "X", "", "", "1")
	old.OccurredAt = day.AddDate(0, 0, -10)

	feed := &stubFeed{records: []domain.TransactionRecord{messy, noID, badType, old, sale("s5", "Y", "", "", "2")}}
	svc := NewSyncService(f.txRepo, feed, testLogger, f.metrics, 3)

	since := day.AddDate(0, 0, -1)
	res, err := svc.Run(context.Background(), &since)
	require.NoError(t, err)

	assert.Equal(t, &since, feed.since)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 2, res.Rejected)
	assert.Equal(t, 1, res.Skipped)

	stored, err := f.txRepo.Find(context.Background(), domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	got := stored[0]
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, domain.TypeSale, got.Type)
	assert.Equal(t, domain.PlatformBuyGoods, got.Platform)
	assert.Equal(t, "COMPLETED", got.Status)
	assert.Equal(t, "unknown", got.ProductName)
	assert.Equal(t, "aff-1", got.Affiliate())
	assert.Nil(t, got.CustomerID)
	assert.Equal(t, 1, got.Quantity)
	assert.True(t, got.IsCompletedSale())
}

func TestSyncService_RunFeedError(t *testing.T) {
	f := newFixture()
	svc := NewSyncService(f.txRepo, &stubFeed{err: errors.New("upstream 503")}, testLogger, f.metrics, 2)

	_, err := svc.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "upstream 503")

	// the guard is released after a failure
	_, err = svc.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "upstream 503")
}

func TestSyncService_RejectsOverlappingRuns(t *testing.T) {
	f := newFixture()
	feed := &stubFeed{block: make(chan struct{})}
	svc := NewSyncService(f.txRepo, feed, testLogger, f.metrics, 1)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.running.Load() }, time.Second, time.Millisecond)
	_, err := svc.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(feed.block)
	assert.NoError(t, <-done)
}

func TestSyncService_IngestUpserts(t *testing.T) {
	f := newFixture()
	svc := NewSyncService(f.txRepo, nil, testLogger, f.metrics, 4)
	ctx := context.Background()

	res, err := svc.Ingest(ctx, []domain.TransactionRecord{sale("s1", "A", "", "", "10"), sale("s2", "B", "", "", "5")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)

	res, err = svc.Ingest(ctx, []domain.TransactionRecord{sale("s1", "A", "", "", "12")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 2, f.txRepo.Count())

	_, err = svc.Run(ctx, nil)
	assert.ErrorIs(t, err, ErrFeedNotConfigured)
	assert.False(t, svc.running.Load())
}
