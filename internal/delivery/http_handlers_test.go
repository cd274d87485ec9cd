package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"affrollup/internal/domain"
	"affrollup/internal/infrastructure"
	"affrollup/internal/usecase"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

type captureExporter struct {
	payloads []domain.ExportPayload
}

func (e *captureExporter) Export(ctx context.Context, payload domain.ExportPayload) error {
	e.payloads = append(e.payloads, payload)
	return nil
}

type stubFeed struct {
	records []domain.TransactionRecord
}

func (f *stubFeed) FetchTransactions(ctx context.Context, since *time.Time) ([]domain.TransactionRecord, error) {
	return f.records, nil
}

type testServer struct {
	router   *gin.Engine
	exporter *captureExporter
	feed     *stubFeed
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithFeed(t, &stubFeed{})
}

func newTestServerWithFeed(t *testing.T, feed *stubFeed) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	m := metrics.New()
	txRepo := infrastructure.NewTransactionRepository(log)
	arsenalRepo := infrastructure.NewArsenalRepository(log)
	exporter := &captureExporter{}
	var source domain.TransactionFeed
	if feed != nil {
		source = feed
	}

	handlers := NewHTTPHandlers(
		usecase.NewReportService(txRepo, arsenalRepo, exporter, log, m, usecase.DefaultReportOptions()),
		usecase.NewArsenalService(arsenalRepo, nil, log, m),
		usecase.NewSyncService(txRepo, source, log, m, 2),
		log,
	)
	router := NewHTTPRouter(handlers, log, m, 5*time.Second).SetupRoutes()
	return &testServer{router: router, exporter: exporter, feed: feed}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type reportEnvelope struct {
	Data      domain.ReportResponse `json:"data"`
	RequestID string                `json:"request_id"`
}

type arsenalEnvelope struct {
	Data domain.Arsenal `json:"data"`
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

const salesBody = `[
	{"id":"t1","occurred_at":"2025-03-01T10:00:00Z","type":"SALE","status":"COMPLETED","platform":"CLICKBANK",
	 "product_id":"p1","product_name":"Men Balance Pro","affiliate_id":"aff-1","customer_id":"c1","gross_amount":"100","quantity":1},
	{"id":"t2","occurred_at":"2025-03-02T10:00:00Z","type":"SALE","status":"COMPLETED","platform":"CLICKBANK",
	 "product_id":"p2","product_name":"Men Balance Upsell","affiliate_id":"aff-2","customer_id":"c2","gross_amount":"250","quantity":1},
	{"id":"t3","occurred_at":"2025-03-03T10:00:00Z","type":"SALE","status":"COMPLETED","platform":"BUYGOODS",
	 "product_id":"p3","product_name":"Prostate Guard","affiliate_id":"aff-1","customer_id":"c3","gross_amount":"50","quantity":2}
]`

func seedSales(t *testing.T, s *testServer) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/transactions", "", salesBody)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
}

func menArsenal() domain.Arsenal {
	return domain.Arsenal{
		ID:   "main",
		Name: "Main",
		CustomGroups: []domain.CustomProductGroup{{
			ID:         "men",
			Name:       "Men Balance",
			MatchRules: []domain.MatchRule{{Type: domain.MatchContains, Value: "men balance"}},
			IsActive:   true,
			Offers: []domain.OfferRule{{
				ID:         "up",
				Name:       "Upsell",
				OfferType:  domain.OfferUpsell,
				MatchRules: []domain.MatchRule{{Type: domain.MatchContains, Value: "upsell"}},
			}},
		}},
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "req-123", body["request_id"])
}

func TestGetAPIInfo(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "v1", body["api_version"])
	assert.Contains(t, body, "endpoints")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestIngestAndAffiliateReport(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	w := s.do(t, http.MethodGet, "/api/v1/reports/affiliate?sort=total_revenue&direction=desc", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[reportEnvelope](t, w)
	require.Len(t, resp.Data.Rows, 2)
	assert.Equal(t, "aff-2", resp.Data.Rows[0].Key)
	assert.Equal(t, "250", resp.Data.Rows[0].TotalRevenue.String())
	assert.Equal(t, "aff-1", resp.Data.Rows[1].Key)
	assert.Equal(t, "150", resp.Data.Rows[1].TotalRevenue.String())
	assert.Equal(t, "400", resp.Data.GrandTotal.TotalRevenue.String())
	assert.Equal(t, 2, resp.Data.TotalRows)
	assert.NotEmpty(t, resp.RequestID)
}

func TestIngestEnvelopeBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/transactions", "", `{"transactions":[
		{"id":"e1","occurred_at":"2025-03-01T10:00:00Z","type":"SALE","status":"COMPLETED","product_name":"X","gross_amount":"10"},
		{"id":"","occurred_at":"2025-03-01T10:00:00Z","type":"SALE","status":"COMPLETED","product_name":"Y","gross_amount":"10"}
	]}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	body := decode[struct {
		Result usecase.SyncResult `json:"result"`
	}](t, w)
	assert.Equal(t, 1, body.Result.Stored)
	assert.Equal(t, 1, body.Result.Rejected)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/transactions", "", `{"transactions":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportFilters(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	tests := []struct {
		name  string
		query string
		keys  []string
	}{
		{"platform", "platform=buygoods", []string{"p3"}},
		{"date range inclusive of end day", "from=2025-03-02&to=2025-03-03&sort=key&direction=asc", []string{"p2", "p3"}},
		{"product name substring", "product=balance&sort=key&direction=asc", []string{"p1", "p2"}},
		{"affiliate", "affiliate=aff-2", []string{"p2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/api/v1/reports/item?"+tt.query, "", nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			resp := decode[reportEnvelope](t, w)
			var keys []string
			for _, r := range resp.Data.Rows {
				keys = append(keys, r.Key)
			}
			assert.Equal(t, tt.keys, keys)
		})
	}
}

func TestReportValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"unknown dimension", "/api/v1/reports/region"},
		{"unknown sort column", "/api/v1/reports/affiliate?sort=bogus"},
		{"bad date", "/api/v1/reports/affiliate?from=03/01/2025"},
		{"inverted range", "/api/v1/reports/affiliate?from=2025-03-05&to=2025-03-01"},
		{"bad page", "/api/v1/reports/affiliate?page=two"},
		{"unknown type", "/api/v1/reports/affiliate?type=GIFT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			body := decode[errorBody](t, w)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestReportPagination(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	w := s.do(t, http.MethodGet, "/api/v1/reports/item?sort=total_revenue&page=2&page_size=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[reportEnvelope](t, w)
	require.Len(t, resp.Data.Rows, 1)
	assert.Equal(t, "p3", resp.Data.Rows[0].Key)
	assert.Equal(t, "50", resp.Data.PageTotal.TotalRevenue.String())
	assert.Equal(t, "400", resp.Data.GrandTotal.TotalRevenue.String())
	assert.Equal(t, 2, resp.Data.TotalPages)
	assert.False(t, resp.Data.HasMore)
}

func TestArsenalLifecycle(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	w := s.do(t, http.MethodPost, "/api/v1/arsenals", "alice", menArsenal())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "main", decode[arsenalEnvelope](t, w).Data.ID)

	w = s.do(t, http.MethodGet, "/api/v1/arsenals/active", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/arsenals/main/activate", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[arsenalEnvelope](t, w).Data.IsActive)

	w = s.do(t, http.MethodGet, "/api/v1/arsenals/active", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "main", decode[arsenalEnvelope](t, w).Data.ID)

	w = s.do(t, http.MethodPost, "/api/v1/classify", "alice", map[string]string{"product_name": "MEN BALANCE UPSELL"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cls := decode[struct {
		Data domain.Classification `json:"data"`
	}](t, w).Data
	assert.True(t, cls.IsGrouped)
	assert.Equal(t, "men", cls.GroupKey)
	require.NotNil(t, cls.OfferKey)
	assert.Equal(t, "up", *cls.OfferKey)

	w = s.do(t, http.MethodGet, "/api/v1/reports/product?sort=total_revenue", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[reportEnvelope](t, w)
	assert.Equal(t, "main", resp.Data.ArsenalID)
	require.Len(t, resp.Data.Rows, 2)
	assert.Equal(t, "men", resp.Data.Rows[0].Key)
	assert.Equal(t, "350", resp.Data.Rows[0].TotalRevenue.String())

	w = s.do(t, http.MethodDelete, "/api/v1/arsenals/main", "alice", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/arsenals/main", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestArsenalsAreScopedByUser(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/arsenals", "alice", menArsenal())
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/arsenals/main", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/arsenals", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["total"])
}

func TestUpdateArsenal(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/arsenals", "", menArsenal())
	require.Equal(t, http.StatusCreated, w.Code)

	updated := menArsenal()
	updated.Name = "Renamed"
	w = s.do(t, http.MethodPut, "/api/v1/arsenals/main", "", updated)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Renamed", decode[arsenalEnvelope](t, w).Data.Name)

	invalid := menArsenal()
	invalid.Name = ""
	w = s.do(t, http.MethodPut, "/api/v1/arsenals/main", "", invalid)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/arsenals/missing", "", updated)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassifyRequiresProductName(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/classify", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSummary(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	w := s.do(t, http.MethodGet, "/api/v1/reports/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[struct {
		Data domain.ReportSummary `json:"data"`
	}](t, w)
	assert.Equal(t, 3, body.Data.Records)
	assert.Equal(t, 2, body.Data.Affiliates)
	assert.Equal(t, 3, body.Data.Products)
	assert.Equal(t, "400", body.Data.Totals.TotalRevenue.String())
}

func TestExportRun(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	w := s.do(t, http.MethodPost, "/api/v1/export/run?dimension=item&sort=key&direction=asc", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 3, decode[map[string]any](t, w)["rows"])

	require.Len(t, s.exporter.payloads, 1)
	p := s.exporter.payloads[0]
	assert.Equal(t, domain.DimensionItem, p.Meta.Dimension)
	assert.Equal(t, "default", p.Meta.UserID)
	require.Len(t, p.Rows, 3)
	assert.Equal(t, "p1", p.Rows[0].Key)
}

func TestSyncRun(t *testing.T) {
	s := newTestServer(t)
	s.feed.records = []domain.TransactionRecord{{
		ID:          "f1",
		OccurredAt:  time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
		Type:        domain.TypeSale,
		Status:      domain.StatusCompleted,
		ProductName: "Feed Product",
		Quantity:    1,
	}}

	w := s.do(t, http.MethodPost, "/api/v1/sync/run?since=2025-03-01", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[map[string]any](t, w)
	assert.Equal(t, "2025-03-01T00:00:00Z", body["since"])

	w = s.do(t, http.MethodPost, "/api/v1/sync/run?since=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncRun_WithoutFeed(t *testing.T) {
	s := newTestServerWithFeed(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/sync/run", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "no transaction feed configured", decode[errorBody](t, w).Message)
}

func TestReport_HugePageReturnsEmptyPage(t *testing.T) {
	s := newTestServer(t)
	seedSales(t, s)

	w := s.do(t, http.MethodGet, "/api/v1/reports/item?page=9223372036854775807&page_size=50", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[reportEnvelope](t, w)
	assert.Empty(t, resp.Data.Rows)
	assert.Equal(t, "0", resp.Data.PageTotal.TotalRevenue.String())
	assert.Equal(t, "400", resp.Data.GrandTotal.TotalRevenue.String())
}

func TestPrometheusEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", "", nil)

	w := s.do(t, http.MethodGet, "/metrics", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
