package delivery

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"affrollup/internal/domain"
	"affrollup/internal/infrastructure"
	"affrollup/internal/usecase"
	"affrollup/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader  = "X-User-ID"
	defaultUserID = "default"
)

var Version = "1.0.0"

// handles HTTP requests
type HTTPHandlers struct {
	reportService  *usecase.ReportService
	arsenalService *usecase.ArsenalService
	syncService    *usecase.SyncService
	logger         *logger.Logger
}

// creates new HTTP handlers
func NewHTTPHandlers(
	reportService *usecase.ReportService,
	arsenalService *usecase.ArsenalService,
	syncService *usecase.SyncService,
	logger *logger.Logger,
) *HTTPHandlers {
	return &HTTPHandlers{
		reportService:  reportService,
		arsenalService: arsenalService,
		syncService:    syncService,
		logger:         logger,
	}
}

func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(UserIDHeader)); id != "" {
		return id
	}
	return defaultUserID
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

func (h *HTTPHandlers) badRequest(c *gin.Context, title string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      title,
		"message":    err.Error(),
		"request_id": requestID(c),
	})
}

// fail maps domain errors to a status and writes the error body
func (h *HTTPHandlers) fail(c *gin.Context, title string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrArsenalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArsenal),
		errors.Is(err, domain.ErrInvalidDimension),
		errors.Is(err, domain.ErrInvalidColumn):
		status = http.StatusBadRequest
	case errors.Is(err, usecase.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, infrastructure.ErrSinkNotConfigured),
		errors.Is(err, usecase.ErrFeedNotConfigured):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.WithContext(c.Request.Context()).WithError(err).Error(title)
	}
	c.JSON(status, gin.H{
		"error":      title,
		"message":    err.Error(),
		"request_id": requestID(c),
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"service":    "affrollup",
		"version":    Version,
		"request_id": requestID(c),
	})
}

// GetAPIInfo returns API v1 information and available endpoints
func (h *HTTPHandlers) GetAPIInfo(c *gin.Context) {
	filterParams := gin.H{
		"from":       "Optional: start (YYYY-MM-DD or RFC3339, inclusive)",
		"to":         "Optional: end (YYYY-MM-DD or RFC3339, inclusive)",
		"platform":   "Optional: comma separated platforms (e.g. BUYGOODS,CLICKBANK)",
		"product_id": "Optional: exact product id",
		"product":    "Optional: case-insensitive product name substring",
		"affiliate":  "Optional: affiliate id",
		"type":       "Optional: comma separated types (SALE,REFUND,CHARGEBACK,REBILL)",
	}

	c.JSON(http.StatusOK, gin.H{
		"api_version": "v1",
		"service":     "Affiliate Rollup Service",
		"version":     Version,
		"description": "Per-affiliate and per-product financial rollups with rule-based product grouping",
		"user_scope":  "Send " + UserIDHeader + " to scope arsenals; defaults to \"" + defaultUserID + "\"",
		"endpoints": gin.H{
			"sync": gin.H{
				"run":          "POST /api/v1/sync/run?since=2025-01-01",
				"transactions": "POST /api/v1/transactions",
			},
			"reports": gin.H{
				"by_dimension": gin.H{
					"path":       "GET /api/v1/reports/:dimension",
					"dimensions": []domain.Dimension{domain.DimensionAffiliate, domain.DimensionProduct, domain.DimensionOffer, domain.DimensionItem},
					"parameters": mergeH(filterParams, gin.H{
						"sort":       "Optional: column (default total_revenue)",
						"direction":  "Optional: asc or desc (default desc)",
						"page":       "Optional: page number (default 1)",
						"page_size":  "Optional: rows per page",
						"arsenal_id": "Optional: arsenal to group by instead of the active one",
					}),
					"example": "/api/v1/reports/product?sort=profit&direction=desc&page=1&page_size=50",
				},
				"summary": gin.H{
					"path":       "GET /api/v1/reports/summary",
					"parameters": filterParams,
				},
			},
			"export": gin.H{
				"run": "POST /api/v1/export/run?dimension=affiliate",
			},
			"arsenals": gin.H{
				"list":     "GET /api/v1/arsenals",
				"create":   "POST /api/v1/arsenals",
				"get":      "GET /api/v1/arsenals/:id",
				"update":   "PUT /api/v1/arsenals/:id",
				"delete":   "DELETE /api/v1/arsenals/:id",
				"activate": "POST /api/v1/arsenals/:id/activate",
				"active":   "GET /api/v1/arsenals/active",
				"classify": "POST /api/v1/classify",
			},
		},
		"derived_metrics": gin.H{
			"gross_sales": "total_revenue - taxes - platform fees",
			"net_sales":   "gross_sales - commission_paid",
			"net":         "net_sales - refunds_and_chargebacks_cost",
			"profit":      "net - cogs",
			"allowance":   "gross_sales * allowance rate",
			"cash_flow":   "profit - allowance",
			"aov":         "total_revenue / unique_customer_count",
			"refund_rate": "refund_count / sales_count * 100",
		},
		"request_id": requestID(c),
	})
}

func mergeH(a, b gin.H) gin.H {
	out := make(gin.H, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// SyncRun pulls the upstream transaction feed
func (h *HTTPHandlers) SyncRun(c *gin.Context) {
	ctx := c.Request.Context()

	var since *time.Time
	if s := c.Query("since"); s != "" {
		t, err := domain.ParseTimeBound(s, false)
		if err != nil {
			h.badRequest(c, "Invalid date format", err)
			return
		}
		since = &t
	}

	result, err := h.syncService.Run(ctx, since)
	if err != nil {
		h.fail(c, "Transaction sync failed", err)
		return
	}

	response := gin.H{
		"message":    "Transaction sync completed successfully",
		"result":     result,
		"request_id": requestID(c),
	}
	if since != nil {
		response["since"] = since.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, response)
}

// IngestTransactions stores a pushed batch. The body is a JSON array or {"transactions": [...]}.
func (h *HTTPHandlers) IngestTransactions(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		h.badRequest(c, "Invalid body", err)
		return
	}

	records, err := infrastructure.DecodeTransactions(raw)
	if err != nil {
		h.badRequest(c, "Invalid body", err)
		return
	}

	result, err := h.syncService.Ingest(c.Request.Context(), records)
	if err != nil {
		h.fail(c, "Ingestion failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"result":     result,
		"request_id": requestID(c),
	})
}

// GetReport returns one page of a rollup
func (h *HTTPHandlers) GetReport(c *gin.Context) {
	q, err := reportQuery(c, domain.Dimension(strings.ToLower(c.Param("dimension"))))
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	resp, err := h.reportService.BuildReport(c.Request.Context(), q)
	if err != nil {
		h.fail(c, "Failed to build report", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       resp,
		"request_id": requestID(c),
	})
}

// GetSummary returns grand totals for the filter
func (h *HTTPHandlers) GetSummary(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	summary, err := h.reportService.Summary(c.Request.Context(), userID(c), filter)
	if err != nil {
		h.fail(c, "Failed to retrieve summary", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       summary,
		"request_id": requestID(c),
	})
}

// ExportRun pushes the full report to the configured sink
func (h *HTTPHandlers) ExportRun(c *gin.Context) {
	dim := domain.Dimension(strings.ToLower(c.DefaultQuery("dimension", string(domain.DimensionAffiliate))))
	q, err := reportQuery(c, dim)
	if err != nil {
		h.badRequest(c, "Invalid parameters", err)
		return
	}

	n, err := h.reportService.Export(c.Request.Context(), q)
	if err != nil {
		h.fail(c, "Export failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Export completed successfully",
		"dimension":  dim,
		"rows":       n,
		"request_id": requestID(c),
	})
}

func (h *HTTPHandlers) ListArsenals(c *gin.Context) {
	list, err := h.arsenalService.List(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, "Failed to list arsenals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       list,
		"total":      len(list),
		"request_id": requestID(c),
	})
}

func (h *HTTPHandlers) CreateArsenal(c *gin.Context) {
	var in domain.Arsenal
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid body", err)
		return
	}
	a, err := h.arsenalService.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		h.fail(c, "Failed to create arsenal", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"data":       a,
		"request_id": requestID(c),
	})
}

func (h *HTTPHandlers) GetArsenal(c *gin.Context) {
	a, err := h.arsenalService.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get arsenal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       a,
		"request_id": requestID(c),
	})
}

func (h *HTTPHandlers) UpdateArsenal(c *gin.Context) {
	var in domain.Arsenal
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "Invalid body", err)
		return
	}
	a, err := h.arsenalService.Update(c.Request.Context(), userID(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, "Failed to update arsenal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       a,
		"request_id": requestID(c),
	})
}

func (h *HTTPHandlers) DeleteArsenal(c *gin.Context) {
	if err := h.arsenalService.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.fail(c, "Failed to delete arsenal", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandlers) ActivateArsenal(c *gin.Context) {
	a, err := h.arsenalService.Activate(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to activate arsenal", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       a,
		"request_id": requestID(c),
	})
}

func (h *HTTPHandlers) GetActiveArsenal(c *gin.Context) {
	a, err := h.arsenalService.Active(c.Request.Context(), userID(c))
	if err != nil {
		h.fail(c, "Failed to get active arsenal", err)
		return
	}
	if a == nil {
		h.fail(c, "No active arsenal", domain.ErrArsenalNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       a,
		"request_id": requestID(c),
	})
}

type classifyRequest struct {
	ProductName string `json:"product_name" binding:"required"`
}

// Classify previews how a product name resolves under the active arsenal
func (h *HTTPHandlers) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid body", err)
		return
	}
	cls, err := h.arsenalService.Classify(c.Request.Context(), userID(c), req.ProductName)
	if err != nil {
		h.fail(c, "Failed to classify product", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       cls,
		"request_id": requestID(c),
	})
}

func reportQuery(c *gin.Context, dim domain.Dimension) (usecase.ReportQuery, error) {
	filter, err := parseFilter(c)
	if err != nil {
		return usecase.ReportQuery{}, err
	}
	page, err := intQuery(c, "page")
	if err != nil {
		return usecase.ReportQuery{}, err
	}
	pageSize, err := intQuery(c, "page_size")
	if err != nil {
		return usecase.ReportQuery{}, err
	}

	return usecase.ReportQuery{
		UserID:    userID(c),
		Dimension: dim,
		Filter:    filter,
		SortBy:    c.Query("sort"),
		Direction: c.Query("direction"),
		Page:      page,
		PageSize:  pageSize,
		ArsenalID: c.Query("arsenal_id"),
	}, nil
}

// parseFilter reads the shared row filter parameters
func parseFilter(c *gin.Context) (domain.TransactionFilter, error) {
	var f domain.TransactionFilter

	if s := c.Query("from"); s != "" {
		t, err := domain.ParseTimeBound(s, false)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := domain.ParseTimeBound(s, true)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, fmt.Errorf("to must not be before from")
	}

	for _, p := range splitList(c.Query("platform")) {
		f.Platforms = append(f.Platforms, domain.ParsePlatform(p))
	}
	for _, t := range splitList(c.Query("type")) {
		typ := domain.TransactionType(strings.ToUpper(t))
		if !typ.IsValid() {
			return f, fmt.Errorf("unknown transaction type %q", t)
		}
		f.Types = append(f.Types, typ)
	}
	f.ProductID = c.Query("product_id")
	f.ProductName = c.Query("product")
	f.AffiliateID = c.Query("affiliate")
	return f, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
