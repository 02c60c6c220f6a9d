// Package simplefin pulls transactions from a SimpleFIN Bridge connection.
package simplefin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"
)

// Config holds SimpleFIN settings.
type Config struct {
	// Token is the one-time setup token from the bridge.
	Token string
	// StatePath is where the claimed access URL is stored.
	StatePath string
	Timeout   time.Duration
}

// Client implements importer.Fetcher for SimpleFIN.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	accessURL  string
	retryOpts  service.RetryOptions
}

type accountSet struct {
	Errors   []string  `json:"errors"`
	Accounts []account `json:"accounts"`
}

type account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Currency     string        `json:"currency"`
	Balance      string        `json:"balance"`
	Transactions []transaction `json:"transactions"`
}

type transaction struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Payee       string `json:"payee"`
	Posted      int64  `json:"posted"`
	Pending     bool   `json:"pending"`
}

// NewClient loads the saved access URL, claiming cfg.Token first when needed.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve SimpleFIN state path: %w", err)
		}
		cfg.StatePath = path
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	logger = logger.With("component", "simplefin")

	auth, err := LoadOrClaim(ctx, httpClient, cfg.StatePath, cfg.Token, logger)
	if err != nil {
		return nil, err
	}
	return NewClientWithAccessURL(auth.AccessURL, httpClient, logger), nil
}

// NewClientWithAccessURL builds a client around an already claimed access URL.
func NewClientWithAccessURL(accessURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		accessURL:  strings.TrimRight(accessURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// GetTransactions returns posted transactions in [startDate, endDate] across
// every connected account. Pending rows are skipped.
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]importer.Record, error) {
	params := url.Values{}
	params.Set("start-date", strconv.FormatInt(startDate.Unix(), 10))
	// end-date is exclusive on the bridge side.
	params.Set("end-date", strconv.FormatInt(endDate.AddDate(0, 0, 1).Unix(), 10))

	c.logger.Debug("Requesting SimpleFIN transactions",
		"start_date", startDate.Format(time.DateOnly),
		"end_date", endDate.Format(time.DateOnly))

	set, err := c.fetchAccounts(ctx, params)
	if err != nil {
		return nil, err
	}

	var records []importer.Record
	for _, acct := range set.Accounts {
		for _, tx := range acct.Transactions {
			if tx.Pending {
				continue
			}
			date := time.Unix(tx.Posted, 0).UTC()
			if date.Before(startDate) || date.After(endDate) {
				continue
			}

			amount, err := decimal.NewFromString(strings.TrimSpace(tx.Amount))
			if err != nil {
				return nil, fmt.Errorf("failed to parse amount %q for transaction %s: %w", tx.Amount, tx.ID, err)
			}

			title := normalizeMerchant(tx.Payee)
			if title == "" {
				title = strings.TrimSpace(tx.Description)
			}

			records = append(records, importer.Record{
				Date:          date,
				Amount:        amount,
				Title:         title,
				Currency:      acct.Currency,
				ExternalID:    "simplefin:" + acct.ID + ":" + tx.ID,
				SourceAccount: acct.ID,
			})
		}
	}

	c.logger.Info("Fetched SimpleFIN transactions", "count", len(records), "accounts", len(set.Accounts))
	return records, nil
}

// GetAccounts returns the bridge's account ids.
func (c *Client) GetAccounts(ctx context.Context) ([]string, error) {
	params := url.Values{}
	params.Set("balances-only", "1")

	set, err := c.fetchAccounts(ctx, params)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(set.Accounts))
	for _, acct := range set.Accounts {
		ids = append(ids, acct.ID)
	}
	return ids, nil
}

func (c *Client) fetchAccounts(ctx context.Context, params url.Values) (*accountSet, error) {
	u, err := url.Parse(c.accessURL + "/accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to parse access URL: %w", err)
	}
	u.RawQuery = params.Encode()

	var set accountSet
	err = common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch SimpleFIN accounts: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: SimpleFIN bridge", common.ErrRateLimit)
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("SimpleFIN API error: %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(resp.Body)
			return &common.RetryableError{
				Err:       fmt.Errorf("SimpleFIN API error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body))),
				Retryable: false,
			}
		}

		set = accountSet{}
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to decode SimpleFIN response: %w", err), Retryable: false}
		}
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	for _, msg := range set.Errors {
		c.logger.Warn("SimpleFIN bridge reported a problem", "message", msg)
	}
	return &set, nil
}

var corporateSuffixes = []string{" LLC", " INC", " CORP", " CO"}

// normalizeMerchant trims corporate suffixes and title-cases the rest.
func normalizeMerchant(raw string) string {
	merchant := strings.TrimSpace(raw)
	for _, suffix := range corporateSuffixes {
		n := len(merchant) - len(suffix)
		if n > 0 && strings.EqualFold(merchant[n:], suffix) {
			merchant = strings.TrimSpace(merchant[:n])
			break
		}
	}

	words := strings.Fields(strings.ToLower(merchant))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

var _ importer.Fetcher = (*Client)(nil)
