// Package config resolves tally's settings from viper into a typed Config.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/budget"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/currency"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/plaid"
	"github.com/Veraticus/tally/internal/simplefin"
	"github.com/Veraticus/tally/internal/scheduler"
	"github.com/spf13/viper"
)

// Currency providers.
const (
	ProviderStatic = "static"
	ProviderHTTP   = "http"
)

// DefaultDatabasePath is used when database.path is not set.
const DefaultDatabasePath = "$HOME/.local/share/tally/tally.db"

// Config is the fully resolved application configuration.
type Config struct {
	Database  DatabaseConfig
	Ledger    LedgerConfig
	Currency  CurrencyConfig
	Scheduler SchedulerConfig
	Budgets   BudgetsConfig
	Events    EventsConfig
	Logging   LoggingConfig
	Settings  Settings
	Plaid     plaid.Config
	SimpleFIN simplefin.Config
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string
}

// LedgerConfig identifies the aggregate account every posting also moves.
type LedgerConfig struct {
	AggregateCurrency  string
	AggregateAccountID int64
}

// CurrencyConfig selects and configures the converter.
type CurrencyConfig struct {
	// Rates are "FROM/TO" pairs for the static provider.
	Rates    map[string]string
	Provider string
	HTTP     currency.Config
}

// SchedulerConfig controls the periodic worker.
type SchedulerConfig struct {
	Interval   time.Duration
	MaxCatchUp int
}

// BudgetsConfig controls budget renewal.
type BudgetsConfig struct {
	MaxCatchUp int
}

// EventsConfig enables AMQP publishing when AMQPURL is set.
type EventsConfig struct {
	AMQPURL  string
	Exchange string
	Queue    string
}

// LoggingConfig mirrors the --log-level and --log-format flags.
type LoggingConfig struct {
	Level  string
	Format string
}

// Settings are read-only user preferences consulted by the CLI.
type Settings struct {
	DateFormat      string
	ActiveAccountID int64
	ShowAggregate   bool
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	httpDefaults := currency.DefaultConfig()

	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("ledger.aggregate_account_id", 1)
	v.SetDefault("ledger.aggregate_currency", "USD")
	v.SetDefault("currency.provider", ProviderStatic)
	v.SetDefault("currency.base_url", httpDefaults.BaseURL)
	v.SetDefault("currency.timeout", httpDefaults.Timeout)
	v.SetDefault("currency.cache_ttl", httpDefaults.CacheTTL)
	v.SetDefault("currency.requests_per_minute", httpDefaults.RequestsPerMinute)
	v.SetDefault("scheduler.interval", scheduler.DefaultInterval)
	v.SetDefault("scheduler.max_catch_up", scheduler.DefaultMaxCatchUp)
	v.SetDefault("budgets.max_catch_up", budget.DefaultMaxCatchUp)
	v.SetDefault("events.exchange", "tally.events")
	v.SetDefault("events.queue", "tally.tail")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("plaid.environment", plaid.EnvironmentSandbox)
	v.SetDefault("simplefin.timeout", 30*time.Second)
	v.SetDefault("display.date_format", time.DateOnly)
	v.SetDefault("display.show_aggregate", true)
}

// Load builds a Config from v. Defaults are registered first so a bare viper works.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: viper instance", common.ErrMissingConfig)
	}
	SetDefaults(v)

	httpCfg := currency.DefaultConfig()
	httpCfg.BaseURL = v.GetString("currency.base_url")
	httpCfg.APIKey = v.GetString("currency.api_key")
	httpCfg.Timeout = v.GetDuration("currency.timeout")
	httpCfg.CacheTTL = v.GetDuration("currency.cache_ttl")
	httpCfg.RequestsPerMinute = v.GetInt("currency.requests_per_minute")

	cfg := &Config{
		Database: DatabaseConfig{Path: ExpandPath(v.GetString("database.path"))},
		Ledger: LedgerConfig{
			AggregateAccountID: v.GetInt64("ledger.aggregate_account_id"),
			AggregateCurrency:  model.NormalizeCurrency(v.GetString("ledger.aggregate_currency")),
		},
		Currency: CurrencyConfig{
			Provider: strings.ToLower(v.GetString("currency.provider")),
			Rates:    v.GetStringMapString("currency.rates"),
			HTTP:     httpCfg,
		},
		Scheduler: SchedulerConfig{
			Interval:   v.GetDuration("scheduler.interval"),
			MaxCatchUp: v.GetInt("scheduler.max_catch_up"),
		},
		Budgets: BudgetsConfig{MaxCatchUp: v.GetInt("budgets.max_catch_up")},
		Events: EventsConfig{
			AMQPURL:  v.GetString("events.amqp_url"),
			Exchange: v.GetString("events.exchange"),
			Queue:    v.GetString("events.queue"),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(v.GetString("logging.level")),
			Format: strings.ToLower(v.GetString("logging.format")),
		},
		Settings: Settings{
			ActiveAccountID: v.GetInt64("settings.active_account_id"),
			DateFormat:      v.GetString("display.date_format"),
			ShowAggregate:   v.GetBool("display.show_aggregate"),
		},
		Plaid: plaid.Config{
			ClientID:    v.GetString("plaid.client_id"),
			Secret:      v.GetString("plaid.secret"),
			Environment: v.GetString("plaid.environment"),
			AccessToken: v.GetString("plaid.access_token"),
			RedirectURI: v.GetString("plaid.redirect_uri"),
		},
		SimpleFIN: simplefin.Config{
			Token:     v.GetString("simplefin.token"),
			StatePath: ExpandPath(v.GetString("simplefin.state_file")),
			Timeout:   v.GetDuration("simplefin.timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in the core configuration at once. Plaid and
// Sheets settings are checked by the commands that need them.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{common.ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		invalid("database.path is required")
	}
	if c.Ledger.AggregateAccountID <= 0 {
		invalid("ledger.aggregate_account_id must be positive, got %d", c.Ledger.AggregateAccountID)
	}
	if len(c.Ledger.AggregateCurrency) != 3 {
		invalid("ledger.aggregate_currency must be a 3-letter code, got %q", c.Ledger.AggregateCurrency)
	}

	switch c.Currency.Provider {
	case ProviderStatic:
		if _, err := currency.NewStatic(c.Currency.Rates); err != nil {
			invalid("currency.rates: %v", err)
		}
	case ProviderHTTP:
		if err := c.Currency.HTTP.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		invalid("currency.provider must be %q or %q, got %q", ProviderStatic, ProviderHTTP, c.Currency.Provider)
	}

	if c.Scheduler.Interval <= 0 {
		invalid("scheduler.interval must be positive")
	}
	if c.Scheduler.MaxCatchUp <= 0 {
		invalid("scheduler.max_catch_up must be positive")
	}
	if c.Budgets.MaxCatchUp <= 0 {
		invalid("budgets.max_catch_up must be positive")
	}
	if c.Events.AMQPURL != "" && c.Events.Exchange == "" {
		invalid("events.exchange is required when events.amqp_url is set")
	}
	if _, err := common.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != common.FormatConsole && c.Logging.Format != common.FormatJSON {
		invalid("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Settings.ActiveAccountID < 0 {
		invalid("settings.active_account_id cannot be negative")
	}

	return errors.Join(errs...)
}
