// Package currency converts amounts between ISO-4217 currencies.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// Places is the number of decimal places kept on converted amounts.
const Places = 4

// Client converts amounts through an exchangerate.host style HTTP API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	rates      *cache.Cache
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	retry      service.RetryOptions
	timeout    time.Duration
}

var _ service.CurrencyConverter = (*Client)(nil)

// NewClient creates a new exchange-rate client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute),
		rates:   cache.New(cacheTTL, 2*cacheTTL),
		logger:  logger.With("component", "currency"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Convert returns amount expressed in the target currency.
// Identical currencies short-circuit without a network call.
func (c *Client) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = model.NormalizeCurrency(from), model.NormalizeCurrency(to)
	if from == to {
		return amount, nil
	}

	r, err := c.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(r).Round(Places), nil
}

// Rate returns the multiplier that turns one unit of from into to.
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := from + "->" + to
	if cached, found := c.rates.Get(key); found {
		return cached.(decimal.Decimal), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var r decimal.Decimal
	err := common.WithRetry(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		fetched, err := c.fetchRate(ctx, from, to)
		if err != nil {
			return err
		}
		r = fetched
		return nil
	}, c.retry)
	if err != nil {
		c.logger.Warn("exchange rate lookup failed", "from", from, "to", to, "error", err)
		return decimal.Zero, fmt.Errorf("%w: %s to %s: %v", common.ErrConversion, from, to, err)
	}

	c.rates.Set(key, r, cache.DefaultExpiration)
	c.logger.Debug("fetched exchange rate", "from", from, "to", to, "rate", r.String())
	return r, nil
}

// convertResponse is the subset of the API payload we rely on.
type convertResponse struct {
	Error *struct {
		Info string `json:"info"`
		Code int    `json:"code"`
	} `json:"error,omitempty"`
	Info struct {
		Rate decimal.Decimal `json:"rate"`
	} `json:"info"`
	Success bool `json:"success"`
}

func (c *Client) fetchRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)
	params.Set("amount", "1")
	if c.apiKey != "" {
		params.Set("access_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/convert?"+params.Encode(), nil)
	if err != nil {
		return decimal.Zero, &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err), Retryable: false}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, &common.RetryableError{Err: fmt.Errorf("request failed: %w", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, &common.RetryableError{Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return decimal.Zero, &common.RetryableError{
			Err:       fmt.Errorf("exchange rate API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, &common.RetryableError{
			Err:       fmt.Errorf("exchange rate API error (status %d): %s", resp.StatusCode, string(body)),
			Retryable: false,
		}
	}

	var payload convertResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err), Retryable: false}
	}

	if !payload.Success {
		msg := "request unsuccessful"
		if payload.Error != nil && payload.Error.Info != "" {
			msg = payload.Error.Info
		}
		return decimal.Zero, &common.RetryableError{Err: fmt.Errorf("exchange rate API: %s", msg), Retryable: false}
	}
	if !payload.Info.Rate.IsPositive() {
		return decimal.Zero, &common.RetryableError{Err: fmt.Errorf("exchange rate API returned no rate"), Retryable: false}
	}

	return payload.Info.Rate, nil
}
