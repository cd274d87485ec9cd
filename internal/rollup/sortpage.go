package rollup

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"affrollup/internal/domain"
)

type Column string

type columnSpec struct {
	text func(r domain.ReportRow) string
	num  func(r domain.ReportRow) decimal.Decimal
}

func intCol(f func(r domain.ReportRow) int) columnSpec {
	return columnSpec{num: func(r domain.ReportRow) decimal.Decimal { return decimal.NewFromInt(int64(f(r))) }}
}

func decCol(f func(r domain.ReportRow) decimal.Decimal) columnSpec {
	return columnSpec{num: f}
}

func textCol(f func(r domain.ReportRow) string) columnSpec {
	return columnSpec{text: f}
}

var columns = map[Column]columnSpec{
	"key":   textCol(func(r domain.ReportRow) string { return r.Key }),
	"label": textCol(func(r domain.ReportRow) string { return r.Label }),
	"group": textCol(func(r domain.ReportRow) string { return r.GroupName }),
	"offer": textCol(func(r domain.ReportRow) string { return r.OfferName }),

	"sales_count":           intCol(func(r domain.ReportRow) int { return r.SalesCount }),
	"refund_count":          intCol(func(r domain.ReportRow) int { return r.RefundCount }),
	"chargeback_count":      intCol(func(r domain.ReportRow) int { return r.ChargebackCount }),
	"rebill_count":          intCol(func(r domain.ReportRow) int { return r.RebillCount }),
	"units_sold":            intCol(func(r domain.ReportRow) int { return r.UnitsSold }),
	"unique_customer_count": intCol(func(r domain.ReportRow) int { return r.UniqueCustomerCount }),

	"total_revenue":                decCol(func(r domain.ReportRow) decimal.Decimal { return r.TotalRevenue }),
	"commission_paid":              decCol(func(r domain.ReportRow) decimal.Decimal { return r.CommissionPaid }),
	"taxes":                        decCol(func(r domain.ReportRow) decimal.Decimal { return r.Taxes }),
	"platform_fee_percent_amount":  decCol(func(r domain.ReportRow) decimal.Decimal { return r.PlatformFeePercentAmount }),
	"platform_fee_fixed_amount":    decCol(func(r domain.ReportRow) decimal.Decimal { return r.PlatformFeeFixedAmount }),
	"refunds_and_chargebacks_cost": decCol(func(r domain.ReportRow) decimal.Decimal { return r.RefundsAndChargebacksCost }),
	"cogs":                         decCol(func(r domain.ReportRow) decimal.Decimal { return r.Cogs }),

	"gross_sales":          decCol(func(r domain.ReportRow) decimal.Decimal { return r.GrossSales }),
	"net_sales":            decCol(func(r domain.ReportRow) decimal.Decimal { return r.NetSales }),
	"net":                  decCol(func(r domain.ReportRow) decimal.Decimal { return r.Net }),
	"profit":               decCol(func(r domain.ReportRow) decimal.Decimal { return r.Profit }),
	"allowance":            decCol(func(r domain.ReportRow) decimal.Decimal { return r.Allowance }),
	"cash_flow":            decCol(func(r domain.ReportRow) decimal.Decimal { return r.CashFlow }),
	"aov":                  decCol(func(r domain.ReportRow) decimal.Decimal { return r.AOV }),
	"refund_rate":          decCol(func(r domain.ReportRow) decimal.Decimal { return r.RefundRate }),
	"commission_rate":      decCol(func(r domain.ReportRow) decimal.Decimal { return r.CommissionRate }),
	"platform_fee_percent": decCol(func(r domain.ReportRow) decimal.Decimal { return r.PlatformFeePercent }),
}

// ParseColumn validates a column name. An empty name sorts by revenue.
func ParseColumn(s string) (Column, error) {
	if s == "" {
		return "total_revenue", nil
	}
	c := Column(strings.ToLower(s))
	if _, ok := columns[c]; !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidColumn, s)
	}
	return c, nil
}

// ParseDirection accepts asc/desc; anything else is descending.
func ParseDirection(s string) domain.SortDirection {
	if strings.EqualFold(s, string(domain.SortAsc)) {
		return domain.SortAsc
	}
	return domain.SortDesc
}

// Sort returns a stably ordered copy of rows. Ties keep their incoming order in both directions.
func Sort(rows []domain.ReportRow, column Column, dir domain.SortDirection) ([]domain.ReportRow, error) {
	spec, ok := columns[column]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidColumn, column)
	}

	out := append([]domain.ReportRow(nil), rows...)
	cmp := func(a, b domain.ReportRow) int {
		if spec.text != nil {
			return strings.Compare(spec.text(a), spec.text(b))
		}
		return spec.num(a).Cmp(spec.num(b))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if dir == domain.SortAsc {
			return cmp(out[i], out[j]) < 0
		}
		return cmp(out[i], out[j]) > 0
	})
	return out, nil
}

const DefaultPageSize = 50

type Page struct {
	Rows       []domain.ReportRow
	PageTotal  domain.ReportRow
	GrandTotal domain.ReportRow
	Page       int
	PageSize   int
	TotalRows  int
	TotalPages int
	HasMore    bool
}

// Paginate slices one page out of ordered rows. Both totals are sums of the same rows'
// sums, with derived metrics recomputed from those sums.
func Paginate(ordered []domain.ReportRow, page, pageSize int, p Policy) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	total := len(ordered)
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}

	// page is compared before multiplying so huge page numbers cannot overflow
	start, end := total, total
	if page <= totalPages {
		start = (page - 1) * pageSize
		end = min(start+pageSize, total)
	}

	slice := make([]domain.ReportRow, end-start)
	copy(slice, ordered[start:end])

	return Page{
		Rows:       slice,
		PageTotal:  Total(slice, p),
		GrandTotal: Total(ordered, p),
		Page:       page,
		PageSize:   pageSize,
		TotalRows:  total,
		TotalPages: totalPages,
		HasMore:    end < total,
	}
}

// Total sums the additive fields of rows into a single footer row.
func Total(rows []domain.ReportRow, p Policy) domain.ReportRow {
	sum := domain.AggregateMetrics{Key: "total", Label: "Total"}
	for _, r := range rows {
		sum.Add(r.AggregateMetrics)
	}
	return Row(sum, p)
}
