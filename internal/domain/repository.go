package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrArsenalNotFound  = errors.New("arsenal not found")
	ErrInvalidArsenal   = errors.New("invalid arsenal")
	ErrInvalidDimension = errors.New("invalid dimension")
	ErrInvalidColumn    = errors.New("invalid sort column")
)

// interface for transaction data operations
type TransactionRepository interface {
	Store(ctx context.Context, records []TransactionRecord) error
	Find(ctx context.Context, filter TransactionFilter) ([]TransactionRecord, error)
}

// the interface for arsenal persistence, scoped per user
type ArsenalRepository interface {
	Save(ctx context.Context, arsenal Arsenal) error
	Get(ctx context.Context, userID, id string) (*Arsenal, error)
	List(ctx context.Context, userID string) ([]Arsenal, error)
	Delete(ctx context.Context, userID, id string) error
	Activate(ctx context.Context, userID, id string) error
	Active(ctx context.Context, userID string) (*Arsenal, error)
}

// interface for the upstream transaction feed
type TransactionFeed interface {
	FetchTransactions(ctx context.Context, since *time.Time) ([]TransactionRecord, error)
}

// interface for report export
type ReportExporter interface {
	Export(ctx context.Context, payload ExportPayload) error
}
