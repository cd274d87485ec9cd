package infrastructure

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"

	"golang.org/x/time/rate"
)

// maximum pages followed in one fetch
const maxFeedPages = 1000

var (
	ErrSinkNotConfigured = errors.New("sink URL not configured")
	ErrFeedTruncated     = errors.New("transactions feed exceeded the page limit")
)

type HTTPClientConfig struct {
	TransactionsURL    string
	SinkURL            string
	SinkSecret         string
	Timeout            time.Duration
	RateLimitPerSecond int
}

// implements domain.TransactionFeed and domain.ReportExporter
type HTTPClient struct {
	client          *http.Client
	transactionsURL string
	sinkURL         string
	sinkSecret      string
	logger          *logger.Logger
	metrics         *metrics.Metrics
	rateLimiter     *rate.Limiter
	maxPages        int
}

// feed response page
type transactionPage struct {
	Transactions []domain.TransactionRecord `json:"transactions"`
	NextPage     int                        `json:"next_page"`
}

// creates a new HTTP client
func NewHTTPClient(cfg HTTPClientConfig, logger *logger.Logger, metrics *metrics.Metrics) *HTTPClient {
	limit := rate.Limit(cfg.RateLimitPerSecond)
	if cfg.RateLimitPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := max(1, cfg.RateLimitPerSecond/10)

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		transactionsURL: cfg.TransactionsURL,
		sinkURL:         cfg.SinkURL,
		sinkSecret:      cfg.SinkSecret,
		logger:          logger,
		metrics:         metrics,
		rateLimiter:     rate.NewLimiter(limit, burst),
		maxPages:        maxFeedPages,
	}
}

// FetchTransactions pulls every page of the upstream feed. since, when set, is passed through
// as an RFC3339 lower bound.
func (c *HTTPClient) FetchTransactions(ctx context.Context, since *time.Time) ([]domain.TransactionRecord, error) {
	if c.transactionsURL == "" {
		return nil, fmt.Errorf("transactions API URL not configured")
	}

	start := time.Now()
	var all []domain.TransactionRecord
	page := 1

	for i := 0; i < c.maxPages && page > 0; i++ {
		batch, err := c.fetchPage(ctx, since, page)
		if err != nil {
			return nil, err
		}
		all = append(all, batch.Transactions...)
		page = batch.NextPage
	}
	if page > 0 {
		c.metrics.RecordExternalAPIFailure("transactions", "page_limit")
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"url":       c.transactionsURL,
			"max_pages": c.maxPages,
			"next_page": page,
			"records":   len(all),
		}).Warn("Transactions feed truncated at page limit")
		return nil, fmt.Errorf("%w: %d pages fetched, next_page %d", ErrFeedTruncated, c.maxPages, page)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"url":      c.transactionsURL,
		"duration": time.Since(start),
		"records":  len(all),
	}).Info("Successfully fetched transactions")

	return all, nil
}

func (c *HTTPClient) fetchPage(ctx context.Context, since *time.Time, page int) (*transactionPage, error) {
	start := time.Now()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure("transactions", "rate_limit")
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	u, err := url.Parse(c.transactionsURL)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("transactions", "request_creation")
		return nil, fmt.Errorf("invalid transactions URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	if since != nil {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("transactions", "request_creation")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("transactions", "network_error")
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordExternalAPICall("transactions", fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return nil, fmt.Errorf("transactions API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("transactions", "read_body")
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var out transactionPage
	if err := json.Unmarshal(body, &out); err != nil {
		c.metrics.RecordExternalAPIFailure("transactions", "json_parse")
		return nil, fmt.Errorf("failed to parse transactions page %d: %w", page, err)
	}
	if out.NextPage != 0 && out.NextPage <= page {
		return nil, fmt.Errorf("transactions API returned non-increasing next_page %d after %d", out.NextPage, page)
	}

	c.metrics.RecordExternalAPICall("transactions", "success", duration)
	return &out, nil
}

// Export posts the report payload to the sink, signed with HMAC-SHA256 when a secret is set.
func (c *HTTPClient) Export(ctx context.Context, payload domain.ExportPayload) error {
	if c.sinkURL == "" {
		return ErrSinkNotConfigured
	}

	start := time.Now()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "rate_limit")
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "json_marshal")
		return fmt.Errorf("failed to marshal export data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sinkURL, bytes.NewReader(body))
	if err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "request_creation")
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.sinkSecret != "" {
		req.Header.Set("X-Signature", Sign(c.sinkSecret, body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure("sink", "network_error")
		return fmt.Errorf("failed to export data: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordExternalAPICall("sink", fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return fmt.Errorf("sink API returned status %d", resp.StatusCode)
	}

	c.metrics.RecordExternalAPICall("sink", "success", duration)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"url":       c.sinkURL,
		"duration":  duration,
		"rows":      len(payload.Rows),
		"dimension": payload.Meta.Dimension,
	}).Info("Successfully exported report")

	return nil
}

// Sign returns the hex HMAC-SHA256 of payload
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
