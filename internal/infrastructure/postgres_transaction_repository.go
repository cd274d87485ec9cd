package infrastructure

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const insertBatchSize = 500

// ConnectPostgres opens a GORM pool and pings it
func ConnectPostgres(ctx context.Context, databaseURL string, maxConns int, log *logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(max(1, maxConns/2))
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.WithContext(ctx).WithField("max_conns", maxConns).Info("Connected to postgres")
	return db, nil
}

// RunMigrations applies the embedded SQL files in lexical order
func RunMigrations(ctx context.Context, db *gorm.DB, log *logger.Logger) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if err := db.WithContext(ctx).Exec(string(raw)).Error; err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		log.WithContext(ctx).WithField("migration", name).Info("Migration applied")
	}
	return nil
}

// OpenPostgres connects and applies migrations; the pool is closed if migrating fails
func OpenPostgres(ctx context.Context, databaseURL string, maxConns int, log *logger.Logger) (*gorm.DB, error) {
	return openPostgres(ctx, databaseURL, maxConns, log, RunMigrations)
}

type migrateFunc func(ctx context.Context, db *gorm.DB, log *logger.Logger) error

func openPostgres(ctx context.Context, databaseURL string, maxConns int, log *logger.Logger, migrate migrateFunc) (*gorm.DB, error) {
	db, err := ConnectPostgres(ctx, databaseURL, maxConns, log)
	if err != nil {
		return nil, err
	}
	if err := migrate(ctx, db, log); err != nil {
		ClosePostgres(db)
		return nil, err
	}
	return db, nil
}

// ClosePostgres releases the pool behind db
func ClosePostgres(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

type transactionModel struct {
	ID                  string              `gorm:"column:id;primaryKey"`
	OccurredAt          time.Time           `gorm:"column:occurred_at"`
	Type                string              `gorm:"column:type"`
	Status              string              `gorm:"column:status"`
	Platform            string              `gorm:"column:platform"`
	ProductID           string              `gorm:"column:product_id"`
	ProductName         string              `gorm:"column:product_name"`
	AffiliateID         *string             `gorm:"column:affiliate_id"`
	CustomerID          *string             `gorm:"column:customer_id"`
	GrossAmount         decimal.Decimal     `gorm:"column:gross_amount;type:numeric"`
	NetAmount           decimal.Decimal     `gorm:"column:net_amount;type:numeric"`
	TaxAmount           decimal.NullDecimal `gorm:"column:tax_amount;type:numeric"`
	PlatformFeePercent  decimal.NullDecimal `gorm:"column:platform_fee_percent;type:numeric"`
	PlatformFeeFixed    decimal.NullDecimal `gorm:"column:platform_fee_fixed;type:numeric"`
	AffiliateCommission decimal.NullDecimal `gorm:"column:affiliate_commission;type:numeric"`
	MerchantCommission  decimal.NullDecimal `gorm:"column:merchant_commission;type:numeric"`
	RefundAmount        decimal.NullDecimal `gorm:"column:refund_amount;type:numeric"`
	Quantity            int                 `gorm:"column:quantity"`
	ProductCogsPerUnit  decimal.NullDecimal `gorm:"column:product_cogs_per_unit;type:numeric"`
}

func (transactionModel) TableName() string { return "transactions" }

func toTransactionModel(rec domain.TransactionRecord) transactionModel {
	return transactionModel{
		ID:                  rec.ID,
		OccurredAt:          rec.OccurredAt.UTC(),
		Type:                string(rec.Type),
		Status:              rec.Status,
		Platform:            string(rec.Platform),
		ProductID:           rec.ProductID,
		ProductName:         rec.ProductName,
		AffiliateID:         rec.AffiliateID,
		CustomerID:          rec.CustomerID,
		GrossAmount:         rec.GrossAmount,
		NetAmount:           rec.NetAmount,
		TaxAmount:           rec.TaxAmount,
		PlatformFeePercent:  rec.PlatformFeePercent,
		PlatformFeeFixed:    rec.PlatformFeeFixed,
		AffiliateCommission: rec.AffiliateCommission,
		MerchantCommission:  rec.MerchantCommission,
		RefundAmount:        rec.RefundAmount,
		Quantity:            rec.Quantity,
		ProductCogsPerUnit:  rec.ProductCogsPerUnit,
	}
}

func toDomainTransaction(row transactionModel) domain.TransactionRecord {
	return domain.TransactionRecord{
		ID:                  row.ID,
		OccurredAt:          row.OccurredAt.UTC(),
		Type:                domain.TransactionType(row.Type),
		Status:              row.Status,
		Platform:            domain.Platform(row.Platform),
		ProductID:           row.ProductID,
		ProductName:         row.ProductName,
		AffiliateID:         row.AffiliateID,
		CustomerID:          row.CustomerID,
		GrossAmount:         row.GrossAmount,
		NetAmount:           row.NetAmount,
		TaxAmount:           row.TaxAmount,
		PlatformFeePercent:  row.PlatformFeePercent,
		PlatformFeeFixed:    row.PlatformFeeFixed,
		AffiliateCommission: row.AffiliateCommission,
		MerchantCommission:  row.MerchantCommission,
		RefundAmount:        row.RefundAmount,
		Quantity:            row.Quantity,
		ProductCogsPerUnit:  row.ProductCogsPerUnit,
	}
}

// implements domain.TransactionRepository on Postgres via GORM
type PostgresTransactionRepository struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewPostgresTransactionRepository(db *gorm.DB, logger *logger.Logger) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db, logger: logger}
}

// Store upserts by id
func (r *PostgresTransactionRepository) Store(ctx context.Context, records []domain.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	records = lastWriteWins(records)
	rows := make([]transactionModel, len(records))
	for i, rec := range records {
		rows[i] = toTransactionModel(rec)
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		CreateInBatches(&rows, insertBatchSize).Error
	if err != nil {
		return fmt.Errorf("store transactions: %w", err)
	}

	r.logger.WithContext(ctx).WithField("count", len(rows)).Info("Stored transactions in postgres")
	return nil
}

// lastWriteWins collapses repeated ids to their last occurrence, kept at the first one's
// position. A single ON CONFLICT statement cannot touch the same row twice.
func lastWriteWins(records []domain.TransactionRecord) []domain.TransactionRecord {
	pos := make(map[string]int, len(records))
	out := make([]domain.TransactionRecord, 0, len(records))
	for _, rec := range records {
		if i, ok := pos[rec.ID]; ok {
			out[i] = rec
			continue
		}
		pos[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}

// Find pushes the filter into SQL, ordered by time then id
func (r *PostgresTransactionRepository) Find(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionRecord, error) {
	query := r.db.WithContext(ctx).Model(&transactionModel{})

	if filter.From != nil {
		query = query.Where("occurred_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("occurred_at <= ?", filter.To.UTC())
	}
	if len(filter.Platforms) > 0 {
		platforms := make([]string, len(filter.Platforms))
		for i, p := range filter.Platforms {
			platforms[i] = strings.ToUpper(string(p))
		}
		query = query.Where("UPPER(platform) IN ?", platforms)
	}
	if filter.ProductID != "" {
		query = query.Where("product_id = ?", filter.ProductID)
	}
	if filter.ProductName != "" {
		query = query.Where("product_name ILIKE ?", "%"+filter.ProductName+"%")
	}
	if filter.AffiliateID != "" {
		query = query.Where("affiliate_id = ?", filter.AffiliateID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		query = query.Where("type IN ?", types)
	}

	var rows []transactionModel
	if err := query.Order("occurred_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find transactions: %w", err)
	}

	result := make([]domain.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDomainTransaction(row))
	}
	return result, nil
}
