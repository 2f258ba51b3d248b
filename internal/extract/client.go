// Package extract fetches market data from a CoinGecko-style /coins/markets
// endpoint with bounded retries, exponential backoff, and rate-limit courtesy.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"market-snapshot-etl/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 5
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultPerPage     = 250

	// defaultRetryAfter applies when a 429 response omits the Retry-After header.
	defaultRetryAfter = 5 * time.Second
)

// ErrUnexpectedShape indicates the response body was valid JSON but not the
// expected array of per-asset objects. Not retryable: the upstream contract
// has changed.
var ErrUnexpectedShape = errors.New("unexpected response shape: expected JSON array")

// HTTPError is a terminal non-2xx response.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // Retry-After hint from a 429 response, 0 otherwise
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// retryableStatuses are transient conditions worth another attempt.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client fetches market data over HTTP.
type Client struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	perPage     int
	logger      logrus.FieldLogger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts after the initial request.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets the backoff delay ceiling.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithPerPage sets the page size requested from the API.
func WithPerPage(n int) ClientOption {
	return func(c *Client) {
		c.perPage = n
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger. Defaults to the logrus standard logger.
func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a markets API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		perPage:     DefaultPerPage,
		logger:      logrus.StandardLogger(),
		now:         time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchMarkets retrieves one page of market records for the given asset ids.
// On a 429 that survives the transport retry loop, it honors the Retry-After
// hint once and issues exactly one more attempt before giving up.
func (c *Client) FetchMarkets(ctx context.Context, ids []string, vsCurrency string) (*domain.RawBatch, error) {
	if len(ids) == 0 {
		return nil, errors.New("fetch markets: no asset ids given")
	}

	endpoint, err := c.marketsURL(ids, vsCurrency)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"ids":         strings.Join(ids, ","),
		"vs_currency": vsCurrency,
	}).Info("requesting market data")

	body, err := c.get(ctx, endpoint)

	// Rate-limit courtesy: the transport loop already treats 429 as
	// retryable; if it still ends on 429, honor the server's hint once.
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		wait := httpErr.RetryAfter
		if wait <= 0 {
			wait = defaultRetryAfter
		}
		c.logger.WithField("retry_after", wait.String()).
			Warn("rate limited (429), sleeping then retrying once")
		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			return nil, sleepErr
		}
		body, err = c.getOnce(ctx, endpoint)
	}
	if err != nil {
		return nil, err
	}

	records, err := DecodeRecords(body)
	if err != nil {
		return nil, err
	}

	return &domain.RawBatch{
		Body:      body,
		Records:   records,
		FetchedAt: c.now().UTC(),
	}, nil
}

// marketsURL builds the /coins/markets request URL.
func (c *Client) marketsURL(ids []string, vsCurrency string) (string, error) {
	u, err := url.Parse(c.baseURL + "/coins/markets")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("vs_currency", vsCurrency)
	q.Set("ids", strings.Join(ids, ","))
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// get performs the request with retries and exponential backoff. Transient
// statuses and connection-level failures are retried; other non-2xx statuses
// fail immediately.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		body, err := c.getOnce(ctx, endpoint)
		if err == nil {
			return body, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && !retryableStatuses[httpErr.StatusCode] {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.logger.WithError(err).WithField("attempt", attempt+1).
			Warn("market data request failed")
	}

	return nil, lastErr
}

// getOnce performs a single attempt with no retry policy.
func (c *Client) getOnce(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			httpErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, httpErr
	}

	return body, nil
}

// DecodeRecords validates the list shape and decodes each element, keeping
// the verbatim bytes alongside. Exported so archived payloads can be
// re-decoded for replay.
func DecodeRecords(body []byte) ([]domain.RawRecord, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedShape, previewBody(body))
	}

	records := make([]domain.RawRecord, 0, len(raws))
	for i, raw := range raws {
		var fields map[string]interface{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrUnexpectedShape, i)
		}
		records = append(records, domain.RawRecord{Fields: fields, Raw: raw})
	}

	return records, nil
}

// parseRetryAfter reads an integer-seconds Retry-After value. HTTP-date
// forms are ignored; the caller falls back to the default.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func previewBody(body []byte) string {
	const maxPreview = 120
	s := strings.TrimSpace(string(body))
	if len(s) > maxPreview {
		s = s[:maxPreview] + "..."
	}
	return s
}
