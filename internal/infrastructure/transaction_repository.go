package infrastructure

import (
	"context"
	"sort"
	"sync"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
)

const dateKeyLayout = "2006-01-02"

// implements domain.TransactionRepository in memory, bucketed by UTC day
type TransactionRepository struct {
	data   map[string][]domain.TransactionRecord
	dates  []string
	byID   map[string]string
	mutex  sync.RWMutex
	logger *logger.Logger
}

// creates a new in-memory transaction repository
func NewTransactionRepository(logger *logger.Logger) *TransactionRepository {
	return &TransactionRepository{
		data:   make(map[string][]domain.TransactionRecord),
		byID:   make(map[string]string),
		logger: logger,
	}
}

func dateKey(rec domain.TransactionRecord) string {
	return rec.OccurredAt.UTC().Format(dateKeyLayout)
}

// Store upserts records by id. A record seen again replaces the stored one in place.
func (r *TransactionRepository) Store(ctx context.Context, records []domain.TransactionRecord) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	inserted, replaced := 0, 0
	for _, rec := range records {
		key := dateKey(rec)
		if prev, ok := r.byID[rec.ID]; ok {
			if prev == key {
				r.replace(key, rec)
				replaced++
				continue
			}
			r.remove(prev, rec.ID)
			replaced++
		} else {
			inserted++
		}

		if _, exists := r.data[key]; !exists {
			r.addDate(key)
		}
		r.data[key] = append(r.data[key], rec)
		r.byID[rec.ID] = key
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"inserted": inserted,
		"replaced": replaced,
	}).Info("Stored transactions in memory")
	return nil
}

func (r *TransactionRepository) replace(key string, rec domain.TransactionRecord) {
	bucket := r.data[key]
	for i := range bucket {
		if bucket[i].ID == rec.ID {
			bucket[i] = rec
			return
		}
	}
}

func (r *TransactionRepository) remove(key, id string) {
	bucket := r.data[key]
	for i := range bucket {
		if bucket[i].ID == id {
			r.data[key] = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	delete(r.byID, id)
}

func (r *TransactionRepository) addDate(key string) {
	i := sort.SearchStrings(r.dates, key)
	r.dates = append(r.dates, "")
	copy(r.dates[i+1:], r.dates[i:])
	r.dates[i] = key
}

// Find returns matching records ordered by day, then by arrival within the day.
func (r *TransactionRepository) Find(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	lo, hi := 0, len(r.dates)
	if filter.From != nil {
		lo = sort.SearchStrings(r.dates, filter.From.UTC().Format(dateKeyLayout))
	}
	if filter.To != nil {
		hi = sort.Search(len(r.dates), func(i int) bool {
			return r.dates[i] > filter.To.UTC().Format(dateKeyLayout)
		})
	}

	var result []domain.TransactionRecord
	for _, key := range r.dates[lo:max(lo, hi)] {
		for _, rec := range r.data[key] {
			if filter.Matches(rec) {
				result = append(result, rec)
			}
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"days":    max(0, hi-lo),
		"matched": len(result),
	}).Debug("Transactions read from memory")

	return result, nil
}

// Count returns the number of stored records
func (r *TransactionRepository) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.byID)
}
