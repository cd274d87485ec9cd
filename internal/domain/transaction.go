package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeSale       TransactionType = "SALE"
	TypeRefund     TransactionType = "REFUND"
	TypeChargeback TransactionType = "CHARGEBACK"
	TypeRebill     TransactionType = "REBILL"
)

// IsValid checks if the transaction type is known
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeSale, TypeRefund, TypeChargeback, TypeRebill:
		return true
	default:
		return false
	}
}

// true for rows that carry a refund cost
func (t TransactionType) IsRefundLike() bool {
	return t == TypeRefund || t == TypeChargeback
}

// Platform is an open set; unknown values are valid and use the generic refund formula.
type Platform string

const (
	PlatformBuyGoods  Platform = "BUYGOODS"
	PlatformClickBank Platform = "CLICKBANK"
	PlatformCartPanda Platform = "CARTPANDA"
	PlatformDigistore Platform = "DIGISTORE"
)

// normalizes platform names coming from upstream feeds
func ParsePlatform(s string) Platform {
	return Platform(strings.ToUpper(strings.TrimSpace(s)))
}

func (p Platform) IsBuyGoods() bool {
	return ParsePlatform(string(p)) == PlatformBuyGoods
}

const StatusCompleted = "COMPLETED"

// TransactionRecord is a single row supplied by the data layer. It is never mutated by the engine.
type TransactionRecord struct {
	ID          string          `json:"id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Type        TransactionType `json:"type"`
	Status      string          `json:"status"`
	Platform    Platform        `json:"platform"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	AffiliateID *string         `json:"affiliate_id,omitempty"`
	CustomerID  *string         `json:"customer_id,omitempty"`

	GrossAmount         decimal.Decimal     `json:"gross_amount"`
	NetAmount           decimal.Decimal     `json:"net_amount"`
	TaxAmount           decimal.NullDecimal `json:"tax_amount"`
	PlatformFeePercent  decimal.NullDecimal `json:"platform_fee_percent"`
	PlatformFeeFixed    decimal.NullDecimal `json:"platform_fee_fixed"`
	AffiliateCommission decimal.NullDecimal `json:"affiliate_commission"`
	MerchantCommission  decimal.NullDecimal `json:"merchant_commission"`
	RefundAmount        decimal.NullDecimal `json:"refund_amount"`
	Quantity            int                 `json:"quantity"`
	ProductCogsPerUnit  decimal.NullDecimal `json:"product_cogs_per_unit"`
}

// returns true if the row is a sale with COMPLETED status
func (t TransactionRecord) IsCompletedSale() bool {
	return t.Type == TypeSale && strings.EqualFold(t.Status, StatusCompleted)
}

func (t TransactionRecord) Affiliate() string {
	if t.AffiliateID == nil {
		return ""
	}
	return *t.AffiliateID
}

func (t TransactionRecord) Customer() string {
	if t.CustomerID == nil {
		return ""
	}
	return *t.CustomerID
}

// Amount returns the value of a nullable amount, treating null as zero.
func Amount(n decimal.NullDecimal) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	return n.Decimal
}

// represents row filters the data layer applies before the engine sees the records
type TransactionFilter struct {
	From        *time.Time        `json:"from,omitempty"`
	To          *time.Time        `json:"to,omitempty"`
	Platforms   []Platform        `json:"platforms,omitempty"`
	ProductID   string            `json:"product_id,omitempty"`
	ProductName string            `json:"product_name,omitempty"`
	AffiliateID string            `json:"affiliate_id,omitempty"`
	Types       []TransactionType `json:"types,omitempty"`
}

// Matches reports whether a record passes the filter. Date bounds are inclusive.
func (f TransactionFilter) Matches(t TransactionRecord) bool {
	if f.From != nil && t.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && t.OccurredAt.After(*f.To) {
		return false
	}
	if len(f.Platforms) > 0 && !containsPlatform(f.Platforms, t.Platform) {
		return false
	}
	if f.ProductID != "" && t.ProductID != f.ProductID {
		return false
	}
	if f.ProductName != "" && !strings.Contains(strings.ToLower(t.ProductName), strings.ToLower(f.ProductName)) {
		return false
	}
	if f.AffiliateID != "" && t.Affiliate() != f.AffiliateID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, t.Type) {
		return false
	}
	return true
}

func containsPlatform(list []Platform, p Platform) bool {
	for _, v := range list {
		if strings.EqualFold(string(v), string(p)) {
			return true
		}
	}
	return false
}

func containsType(list []TransactionType, t TransactionType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

const DateLayout = "2006-01-02"

// ParseTimeBound accepts RFC3339 or a bare date. A bare end date covers the whole day.
func ParseTimeBound(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD or RFC3339", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
