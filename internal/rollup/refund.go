package rollup

import (
	"github.com/shopspring/decimal"

	"affrollup/internal/domain"
)

// RefundCost returns the loss booked for a refund or chargeback row; zero for any other type.
//
// A refund whose amount equals its tax is tax-neutral and costs nothing on every platform.
// BuyGoods itemizes commission, tax and fees on refund rows, so the cost is the gross minus
// those parts. Every other platform reports a single signed merchant commission.
func RefundCost(rec domain.TransactionRecord) decimal.Decimal {
	if !rec.Type.IsRefundLike() {
		return decimal.Zero
	}

	if rec.RefundAmount.Valid && rec.TaxAmount.Valid && rec.RefundAmount.Decimal.Equal(rec.TaxAmount.Decimal) {
		return decimal.Zero
	}

	if rec.Platform.IsBuyGoods() {
		gross := rec.GrossAmount.Abs()
		cost := gross.
			Sub(domain.Amount(rec.AffiliateCommission)).
			Sub(domain.Amount(rec.TaxAmount)).
			Sub(gross.Mul(domain.Amount(rec.PlatformFeePercent))).
			Sub(domain.Amount(rec.PlatformFeeFixed))
		if cost.IsNegative() {
			return decimal.Zero
		}
		return cost
	}

	return domain.Amount(rec.MerchantCommission).Abs()
}
