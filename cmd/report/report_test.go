package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affrollup/internal/domain"
	"affrollup/internal/rollup"
	"affrollup/pkg/config"
	"affrollup/pkg/logger"
)

const transactionsJSON = `[
	{"id":"t1","occurred_at":"2025-03-01T10:00:00Z","type":"SALE","status":"COMPLETED","platform":"CLICKBANK",
	 "product_id":"p1","product_name":"Men Balance Pro","affiliate_id":"aff-1","customer_id":"c1","gross_amount":"100"},
	{"id":"t2","occurred_at":"2025-03-02T10:00:00Z","type":"SALE","status":"COMPLETED","platform":"CLICKBANK",
	 "product_id":"p2","product_name":"Men Balance Upsell","affiliate_id":"aff-2","customer_id":"c2","gross_amount":"250"},
	{"id":"t3","occurred_at":"2025-03-03T10:00:00Z","type":"REFUND","status":"COMPLETED","platform":"CLICKBANK",
	 "product_id":"p1","product_name":"Men Balance Pro","affiliate_id":"aff-1","customer_id":"c1","gross_amount":"100","refund_amount":"100"}
]`

const arsenalYAML = `
id: main
name: Main
customGroups:
  - id: men
    name: Men Balance
    isActive: true
    matchRules:
      - value: men balance
    offers:
      - id: up
        name: Upsell
        offerType: UPSELL
        matchRules:
          - value: upsell
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testEngine() *engine {
	cfg := &config.Config{
		Sync: config.SyncConfig{WorkerPoolSize: 2},
		Report: config.ReportConfig{
			AllowanceRate:      rollup.DefaultPolicy().AllowanceRate,
			RefundRateGood:     rollup.DefaultPolicy().RefundRateGood,
			RefundRateCritical: rollup.DefaultPolicy().RefundRateCritical,
			DefaultPageSize:    50,
			MaxPageSize:        500,
		},
	}
	return newEngine(cfg, logger.Discard())
}

func defaultFlags(txPath string) reportFlags {
	return reportFlags{
		transactions: txPath,
		sortBy:       "total_revenue",
		direction:    "desc",
		page:         1,
	}
}

func TestRunReport_JSON(t *testing.T) {
	txPath := writeFile(t, "tx.json", transactionsJSON)
	var out bytes.Buffer

	err := runReport(context.Background(), testEngine(), &out, globalFlags{output: outputJSON}, domain.DimensionAffiliate, defaultFlags(txPath))
	require.NoError(t, err)

	var resp domain.ReportResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "aff-2", resp.Rows[0].Key)
	assert.Equal(t, "aff-1", resp.Rows[1].Key)
	assert.Equal(t, 1, resp.Rows[1].RefundCount)
	assert.Equal(t, "350", resp.GrandTotal.TotalRevenue.String())
}

func TestRunReport_ProductWithArsenal(t *testing.T) {
	txPath := writeFile(t, "tx.json", transactionsJSON)
	g := globalFlags{arsenal: writeFile(t, "arsenal.yaml", arsenalYAML), output: outputJSON}
	var out bytes.Buffer

	err := runReport(context.Background(), testEngine(), &out, g, domain.DimensionOffer, defaultFlags(txPath))
	require.NoError(t, err)

	var resp domain.ReportResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "main", resp.ArsenalID)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "men/up", resp.Rows[0].Key)
	assert.Equal(t, domain.OfferUpsell, resp.Rows[0].OfferType)
	assert.Equal(t, "men", resp.Rows[1].Key)
}

func TestRunReport_Table(t *testing.T) {
	txPath := writeFile(t, "tx.json", transactionsJSON)
	var out bytes.Buffer

	err := runReport(context.Background(), testEngine(), &out, globalFlags{output: outputTable}, domain.DimensionItem, defaultFlags(txPath))
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "REVENUE")
	assert.Contains(t, text, "Men Balance Upsell")
	assert.Contains(t, text, "Grand total")
	assert.Contains(t, text, "350.00")
	assert.Contains(t, text, "page 1/1, 2 rows, sorted by total_revenue desc")
}

func TestRunReport_Errors(t *testing.T) {
	txPath := writeFile(t, "tx.json", transactionsJSON)
	g := globalFlags{output: outputJSON}

	err := runReport(context.Background(), testEngine(), &bytes.Buffer{}, g, "region", defaultFlags(txPath))
	assert.ErrorIs(t, err, domain.ErrInvalidDimension)

	f := defaultFlags(txPath)
	f.sortBy = "nope"
	err = runReport(context.Background(), testEngine(), &bytes.Buffer{}, g, domain.DimensionAffiliate, f)
	assert.ErrorIs(t, err, domain.ErrInvalidColumn)

	f = defaultFlags(txPath)
	f.types = []string{"GIFT"}
	err = runReport(context.Background(), testEngine(), &bytes.Buffer{}, g, domain.DimensionAffiliate, f)
	assert.Error(t, err)

	err = runReport(context.Background(), testEngine(), &bytes.Buffer{}, g, domain.DimensionAffiliate, defaultFlags(filepath.Join(t.TempDir(), "missing.json")))
	assert.Error(t, err)
}

func TestReportFlagsFilter(t *testing.T) {
	f := reportFlags{
		from:      "2025-03-01",
		to:        "2025-03-02",
		platforms: []string{"buygoods", "ClickBank"},
		types:     []string{"sale", "REFUND"},
		affiliate: "aff-1",
	}

	filter, err := f.filter()
	require.NoError(t, err)
	require.NotNil(t, filter.From)
	require.NotNil(t, filter.To)
	assert.Equal(t, 23, filter.To.Hour())
	assert.Equal(t, []domain.Platform{domain.PlatformBuyGoods, domain.PlatformClickBank}, filter.Platforms)
	assert.Equal(t, []domain.TransactionType{domain.TypeSale, domain.TypeRefund}, filter.Types)
	assert.Equal(t, "aff-1", filter.AffiliateID)
}

func TestRunClassify(t *testing.T) {
	g := globalFlags{arsenal: writeFile(t, "arsenal.yaml", arsenalYAML), output: outputJSON}
	var out bytes.Buffer

	err := runClassify(context.Background(), testEngine(), &out, g, []string{"MEN BALANCE upsell", "Other Thing"})
	require.NoError(t, err)

	var results []classifyResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 2)
	assert.True(t, results[0].IsGrouped)
	assert.Equal(t, "men", results[0].GroupKey)
	require.NotNil(t, results[0].OfferKey)
	assert.Equal(t, "up", *results[0].OfferKey)
	assert.False(t, results[1].IsGrouped)
}

func TestRunClassify_RequiresArsenal(t *testing.T) {
	err := runClassify(context.Background(), testEngine(), &bytes.Buffer{}, globalFlags{}, []string{"x"})
	assert.Error(t, err)
}
