// Package plaid pulls transactions from linked institutions through the Plaid API.
package plaid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/importer"
	"github.com/Veraticus/tally/internal/service"
	"github.com/plaid/plaid-go/v20/plaid"
	"github.com/shopspring/decimal"
)

const (
	// EnvironmentSandbox talks to Plaid's test institutions.
	EnvironmentSandbox = "sandbox"
	// EnvironmentProduction talks to real institutions.
	EnvironmentProduction = "production"

	dateLayout = "2006-01-02"
	// Plaid's max page size.
	pageSize = int32(500)
)

var (
	errNilContext = errors.New("context cannot be nil")
	errDateRange  = errors.New("start date must be before end date")
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string
	AccessToken string
	// RedirectURI is sent with link tokens in production; OAuth banks require it.
	RedirectURI string
}

// validateCredentials checks everything except the access token, which the
// link flow does not have yet.
func (c *Config) validateCredentials() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, fmt.Errorf("%w: plaid client ID is required", common.ErrMissingConfig))
	}
	if c.Secret == "" {
		errs = append(errs, fmt.Errorf("%w: plaid secret is required", common.ErrMissingConfig))
	}
	switch c.Environment {
	case EnvironmentSandbox, EnvironmentProduction:
	case "":
		errs = append(errs, fmt.Errorf("%w: plaid environment is required", common.ErrMissingConfig))
	default:
		errs = append(errs, fmt.Errorf("%w: invalid Plaid environment %q: must be sandbox or production", common.ErrInvalidConfig, c.Environment))
	}
	return errors.Join(errs...)
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	err := c.validateCredentials()
	if c.AccessToken == "" {
		err = errors.Join(err, fmt.Errorf("%w: plaid access token is required", common.ErrMissingConfig))
	}
	return err
}

// Client implements the TransactionFetcher interface.
type Client struct {
	client      *plaid.APIClient
	logger      *slog.Logger
	retryOpts   service.RetryOptions
	accessToken string
	environment string
	redirectURI string
}

// NewClient creates a Plaid client. The access token may be empty while linking.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.validateCredentials(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)
	if cfg.Environment == EnvironmentProduction {
		configuration.UseEnvironment(plaid.Production)
	} else {
		configuration.UseEnvironment(plaid.Sandbox)
	}

	redirect := cfg.RedirectURI
	if redirect == "" {
		redirect = "https://localhost:8080/"
	}

	return &Client{
		client:      plaid.NewAPIClient(configuration),
		accessToken: cfg.AccessToken,
		environment: cfg.Environment,
		redirectURI: redirect,
		logger:      logger.With("component", "plaid"),
		retryOpts: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// apiError turns a Plaid failure into an error, marking rate limits retryable.
func (c *Client) apiError(err error, action string) error {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if plaidErr.ErrorCode == "RATE_LIMIT_EXCEEDED" {
		c.logger.Warn("Rate limit hit, will retry", "error", plaidErr.ErrorMessage)
		return fmt.Errorf("%w: %s", common.ErrRateLimit, plaidErr.ErrorMessage)
	}
	return &common.RetryableError{
		Err:       fmt.Errorf("plaid API error: %s - %s", plaidErr.ErrorCode, plaidErr.ErrorMessage),
		Retryable: false,
	}
}

// GetTransactions fetches every transaction posted in [startDate, endDate].
func (c *Client) GetTransactions(ctx context.Context, startDate, endDate time.Time) ([]importer.Record, error) {
	if ctx == nil {
		return nil, errNilContext
	}
	if startDate.After(endDate) {
		return nil, errDateRange
	}

	c.logger.Info("Fetching transactions from Plaid",
		"start_date", startDate.Format(dateLayout),
		"end_date", endDate.Format(dateLayout))

	var all []plaid.Transaction
	for offset := int32(0); ; offset += pageSize {
		var page []plaid.Transaction

		err := common.WithRetry(ctx, func() error {
			request := plaid.NewTransactionsGetRequest(
				c.accessToken,
				startDate.Format(dateLayout),
				endDate.Format(dateLayout),
			)
			request.SetOptions(plaid.TransactionsGetRequestOptions{
				Count:  plaid.PtrInt32(pageSize),
				Offset: plaid.PtrInt32(offset),
			})

			resp, _, err := c.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
			if err != nil {
				return c.apiError(err, "fetch transactions")
			}

			page = resp.GetTransactions()
			c.logger.Debug("Fetched transaction batch",
				"count", len(page),
				"offset", offset,
				"total", resp.GetTotalTransactions())
			return nil
		}, c.retryOpts)
		if err != nil {
			return nil, err
		}

		all = append(all, page...)
		if len(page) < int(pageSize) {
			break
		}
	}

	c.logger.Info("Fetched all transactions", "count", len(all))

	records := make([]importer.Record, 0, len(all))
	for _, pt := range all {
		if pt.GetPending() {
			continue
		}
		records = append(records, c.mapPlaidTransaction(pt))
	}
	return records, nil
}

// GetAccounts fetches account IDs from Plaid.
func (c *Client) GetAccounts(ctx context.Context) ([]string, error) {
	if ctx == nil {
		return nil, errNilContext
	}

	var accounts []plaid.AccountBase
	err := common.WithRetry(ctx, func() error {
		request := plaid.NewAccountsGetRequest(c.accessToken)
		resp, _, err := c.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
		if err != nil {
			return c.apiError(err, "fetch accounts")
		}
		accounts = resp.GetAccounts()
		return nil
	}, c.retryOpts)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.GetAccountId())
	}
	return ids, nil
}

// mapPlaidTransaction flips Plaid's sign: Plaid reports money out as positive.
func (c *Client) mapPlaidTransaction(pt plaid.Transaction) importer.Record {
	date, err := time.Parse(dateLayout, pt.GetDate())
	if err != nil {
		c.logger.Error("Failed to parse transaction date", "date", pt.GetDate(), "error", err)
		date = time.Now().UTC().Truncate(24 * time.Hour)
	}

	title := pt.GetMerchantName()
	if title == "" {
		title = pt.GetName()
	}

	return importer.Record{
		Date:          date,
		Amount:        decimal.NewFromFloat(pt.GetAmount()).Neg().Round(2),
		Title:         cleanMerchantName(title),
		Currency:      pt.GetIsoCurrencyCode(),
		ExternalID:    pt.GetTransactionId(),
		SourceAccount: pt.GetAccountId(),
	}
}

var corporateSuffixes = []string{
	" Llc",
	" Inc",
	" Corp",
	" Corporation",
	" Company",
	" Co",
	" Ltd",
	" Limited",
}

// cleanMerchantName title-cases a name and strips trailing processor ids and
// corporate suffixes.
func cleanMerchantName(name string) string {
	parts := strings.Fields(strings.ToLower(name))
	for i, word := range parts {
		runes := []rune(word)
		for j := range runes {
			if j == 0 || !unicode.IsLetter(runes[j-1]) {
				runes[j] = unicode.ToUpper(runes[j])
			}
		}
		parts[i] = string(runes)
	}

	// "MERCHANT 123456789": a long numeric tail is a transaction id
	if n := len(parts); n > 1 && len(parts[n-1]) > 5 && isAllDigits(parts[n-1]) {
		parts = parts[:n-1]
	}
	name = strings.Join(parts, " ")

	for changed := true; changed; {
		changed = false
		for _, suffix := range corporateSuffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}

	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CreateLinkToken creates a Link token for Plaid Link initialization.
func (c *Client) CreateLinkToken(ctx context.Context) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{
		ClientUserId: "tally-user-" + time.Now().Format("20060102150405"),
	}

	request := plaid.NewLinkTokenCreateRequest(
		"Tally",
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		user,
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	if c.environment == EnvironmentProduction {
		request.SetRedirectUri(c.redirectURI)
	}

	resp, _, err := c.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", c.apiError(err, "create link token")
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken exchanges a public token from Link for an access token and item id.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", c.apiError(err, "exchange public token")
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}

var _ TransactionFetcher = (*Client)(nil)
