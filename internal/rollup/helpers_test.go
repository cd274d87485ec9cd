package rollup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"affrollup/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func strp(s string) *string {
	return &s
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got.String())
}

var day = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

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
		NetAmount:           dec(gross),
		TaxAmount:           nd("0"),
		PlatformFeePercent:  nd("0"),
		PlatformFeeFixed:    nd("0"),
		AffiliateCommission: nd("0"),
		Quantity:            1,
	}
	if affiliate != "" {
		rec.AffiliateID = strp(affiliate)
	}
	if customer != "" {
		rec.CustomerID = strp(customer)
	}
	return rec
}

func refund(id, product, affiliate string, merchantCommission string) domain.TransactionRecord {
	rec := domain.TransactionRecord{
		ID:                 id,
		OccurredAt:         day,
		Type:               domain.TypeRefund,
		Status:             domain.StatusCompleted,
		Platform:           domain.PlatformClickBank,
		ProductID:          "p-" + product,
		ProductName:        product,
		MerchantCommission: nd(merchantCommission),
	}
	if affiliate != "" {
		rec.AffiliateID = strp(affiliate)
	}
	return rec
}
