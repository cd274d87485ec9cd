package rollup

import (
	"github.com/shopspring/decimal"

	"affrollup/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the named constants of the derived-metric formulas.
type Policy struct {
	// share of gross sales held back as operational allowance
	AllowanceRate decimal.Decimal
	// refund rate (%) below which a row is good
	RefundRateGood decimal.Decimal
	// refund rate (%) above which a row is critical
	RefundRateCritical decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		AllowanceRate:      decimal.RequireFromString("0.10"),
		RefundRateGood:     decimal.NewFromInt(1),
		RefundRateCritical: decimal.NewFromInt(3),
	}
}

// Derive computes the non-additive metrics of one bucket. Zero denominators yield zero.
func Derive(m domain.AggregateMetrics, p Policy) domain.DerivedMetrics {
	var d domain.DerivedMetrics

	d.GrossSales = m.TotalRevenue.Sub(m.Taxes).Sub(m.PlatformFeePercentAmount).Sub(m.PlatformFeeFixedAmount)
	d.NetSales = d.GrossSales.Sub(m.CommissionPaid)
	d.Net = d.NetSales.Sub(m.RefundsAndChargebacksCost)
	d.Profit = d.Net.Sub(m.Cogs)
	d.Allowance = d.GrossSales.Mul(p.AllowanceRate)
	d.CashFlow = d.Profit.Sub(d.Allowance)

	if m.UniqueCustomerCount > 0 {
		d.AOV = m.TotalRevenue.Div(decimal.NewFromInt(int64(m.UniqueCustomerCount)))
	}
	if m.SalesCount > 0 {
		d.RefundRate = decimal.NewFromInt(int64(m.RefundCount)).Div(decimal.NewFromInt(int64(m.SalesCount))).Mul(hundred)
	}
	if m.TotalRevenue.IsPositive() {
		d.CommissionRate = m.CommissionPaid.Div(m.TotalRevenue).Mul(hundred)
		d.PlatformFeePercent = m.PlatformFeePercentAmount.Add(m.PlatformFeeFixedAmount).Div(m.TotalRevenue).Mul(hundred)
	}

	return d
}

// ClassifyRefundRate maps a refund rate (%) to its severity. Both thresholds fall in warning.
func ClassifyRefundRate(rate decimal.Decimal, p Policy) domain.RefundSeverity {
	switch {
	case rate.LessThan(p.RefundRateGood):
		return domain.SeverityGood
	case rate.GreaterThan(p.RefundRateCritical):
		return domain.SeverityCritical
	default:
		return domain.SeverityWarning
	}
}

// Row renders a bucket with its derived metrics.
func Row(m domain.AggregateMetrics, p Policy) domain.ReportRow {
	d := Derive(m, p)
	return domain.ReportRow{
		AggregateMetrics: m,
		DerivedMetrics:   d,
		RefundSeverity:   ClassifyRefundRate(d.RefundRate, p),
	}
}

func Rows(ms []domain.AggregateMetrics, p Policy) []domain.ReportRow {
	rows := make([]domain.ReportRow, len(ms))
	for i, m := range ms {
		rows[i] = Row(m, p)
	}
	return rows
}
