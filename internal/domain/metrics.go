package domain

import (
	"github.com/shopspring/decimal"
)

// Dimension selects the grouping key of a report
type Dimension string

const (
	DimensionAffiliate Dimension = "affiliate"
	DimensionProduct   Dimension = "product"
	DimensionOffer     Dimension = "offer"
	DimensionItem      Dimension = "item"
)

func (d Dimension) IsValid() bool {
	switch d {
	case DimensionAffiliate, DimensionProduct, DimensionOffer, DimensionItem:
		return true
	default:
		return false
	}
}

// AggregateMetrics holds the additive sums of one bucket. Derived values are never stored here.
type AggregateMetrics struct {
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	GroupKey  string    `json:"group_key,omitempty"`
	GroupName string    `json:"group_name,omitempty"`
	OfferKey  string    `json:"offer_key,omitempty"`
	OfferName string    `json:"offer_name,omitempty"`
	OfferType OfferType `json:"offer_type,omitempty"`

	SalesCount          int `json:"sales_count"`
	RefundCount         int `json:"refund_count"`
	ChargebackCount     int `json:"chargeback_count"`
	RebillCount         int `json:"rebill_count"`
	UnitsSold           int `json:"units_sold"`
	UniqueCustomerCount int `json:"unique_customer_count"`

	TotalRevenue              decimal.Decimal `json:"total_revenue"`
	CommissionPaid            decimal.Decimal `json:"commission_paid"`
	Taxes                     decimal.Decimal `json:"taxes"`
	PlatformFeePercentAmount  decimal.Decimal `json:"platform_fee_percent_amount"`
	PlatformFeeFixedAmount    decimal.Decimal `json:"platform_fee_fixed_amount"`
	RefundsAndChargebacksCost decimal.Decimal `json:"refunds_and_chargebacks_cost"`
	Cogs                      decimal.Decimal `json:"cogs"`
}

// Add accumulates the sums of o into m. Labels are left untouched.
func (m *AggregateMetrics) Add(o AggregateMetrics) {
	m.SalesCount += o.SalesCount
	m.RefundCount += o.RefundCount
	m.ChargebackCount += o.ChargebackCount
	m.RebillCount += o.RebillCount
	m.UnitsSold += o.UnitsSold
	m.UniqueCustomerCount += o.UniqueCustomerCount
	m.TotalRevenue = m.TotalRevenue.Add(o.TotalRevenue)
	m.CommissionPaid = m.CommissionPaid.Add(o.CommissionPaid)
	m.Taxes = m.Taxes.Add(o.Taxes)
	m.PlatformFeePercentAmount = m.PlatformFeePercentAmount.Add(o.PlatformFeePercentAmount)
	m.PlatformFeeFixedAmount = m.PlatformFeeFixedAmount.Add(o.PlatformFeeFixedAmount)
	m.RefundsAndChargebacksCost = m.RefundsAndChargebacksCost.Add(o.RefundsAndChargebacksCost)
	m.Cogs = m.Cogs.Add(o.Cogs)
}

// DerivedMetrics are recomputed from AggregateMetrics on every read
type DerivedMetrics struct {
	GrossSales         decimal.Decimal `json:"gross_sales"`
	NetSales           decimal.Decimal `json:"net_sales"`
	Net                decimal.Decimal `json:"net"`
	Profit             decimal.Decimal `json:"profit"`
	Allowance          decimal.Decimal `json:"allowance"`
	CashFlow           decimal.Decimal `json:"cash_flow"`
	AOV                decimal.Decimal `json:"aov"`
	RefundRate         decimal.Decimal `json:"refund_rate"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	PlatformFeePercent decimal.Decimal `json:"platform_fee_percent"`
}

type RefundSeverity string

const (
	SeverityGood     RefundSeverity = "good"
	SeverityWarning  RefundSeverity = "warning"
	SeverityCritical RefundSeverity = "critical"
)

// represents one rendered row: sums plus the derived values computed for the response
type ReportRow struct {
	AggregateMetrics
	DerivedMetrics
	RefundSeverity RefundSeverity `json:"refund_severity"`
}

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// represents the API response for report queries
type ReportResponse struct {
	Dimension  Dimension   `json:"dimension"`
	ArsenalID  string      `json:"arsenal_id,omitempty"`
	SortBy     string      `json:"sort_by"`
	Direction  string      `json:"direction"`
	Rows       []ReportRow `json:"rows"`
	PageTotal  ReportRow   `json:"page_total"`
	GrandTotal ReportRow   `json:"grand_total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalRows  int         `json:"total_rows"`
	TotalPages int         `json:"total_pages"`
	HasMore    bool        `json:"has_more"`
}

// represents the response of the summary endpoint
type ReportSummary struct {
	Totals          ReportRow `json:"totals"`
	Records         int       `json:"records"`
	Affiliates      int       `json:"affiliates"`
	Products        int       `json:"products"`
	ActiveArsenalID string    `json:"active_arsenal_id,omitempty"`
}

// represents data structure for export functionality
type ExportMeta struct {
	UserID    string    `json:"user_id"`
	Dimension Dimension `json:"dimension"`
	ArsenalID string    `json:"arsenal_id,omitempty"`
}

type ExportPayload struct {
	Meta       ExportMeta  `json:"meta"`
	Rows       []ReportRow `json:"rows"`
	GrandTotal ReportRow   `json:"grand_total"`
}
