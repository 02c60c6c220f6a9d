package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/tally/internal/budget"
	"github.com/Veraticus/tally/internal/config"
	"github.com/Veraticus/tally/internal/currency"
	"github.com/Veraticus/tally/internal/events"
	"github.com/Veraticus/tally/internal/ledger"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/scheduler"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/storage"
	"github.com/spf13/viper"
)

// app bundles everything a command needs. Close releases it.
type app struct {
	cfg       *config.Config
	store     *storage.SQLiteStorage
	publisher events.Publisher
	ledger    *ledger.Engine
	budgets   *budget.Service
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens and migrates the database.
func initStorage(ctx context.Context, path string) (*storage.SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func initConverter(cfg *config.Config, logger *slog.Logger) (service.CurrencyConverter, error) {
	if cfg.Currency.Provider == config.ProviderHTTP {
		return currency.NewClient(cfg.Currency.HTTP, logger)
	}
	return currency.NewStatic(cfg.Currency.Rates)
}

func initPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if cfg.Events.AMQPURL == "" {
		return events.Nop{}, nil
	}
	return events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, logger)
}

// newApp wires storage, the aggregate account and every service on top of it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := initStorage(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store, logger: logger, publisher: events.Nop{}}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	if _, err := a.store.EnsureAggregateAccount(ctx, a.cfg.Ledger.AggregateAccountID, a.cfg.Ledger.AggregateCurrency); err != nil {
		return fmt.Errorf("failed to ensure aggregate account: %w", err)
	}

	converter, err := initConverter(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create currency converter: %w", err)
	}

	if a.publisher, err = initPublisher(a.cfg, a.logger); err != nil {
		return fmt.Errorf("failed to connect event publisher: %w", err)
	}

	a.ledger, err = ledger.New(a.store, converter, a.cfg.Ledger.AggregateAccountID,
		ledger.WithPublisher(a.publisher),
		ledger.WithLogger(a.logger))
	if err != nil {
		return err
	}

	a.budgets, err = budget.NewService(a.store,
		budget.WithPublisher(a.publisher),
		budget.WithLogger(a.logger),
		budget.WithMaxCatchUp(a.cfg.Budgets.MaxCatchUp))
	if err != nil {
		return err
	}

	a.scheduler, err = scheduler.New(a.store, a.ledger,
		scheduler.WithPublisher(a.publisher),
		scheduler.WithLogger(a.logger),
		scheduler.WithMaxCatchUp(a.cfg.Scheduler.MaxCatchUp))
	return err
}

// Close releases the publisher and the database.
func (a *app) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(ctx context.Context, fn func(a *app) error) (err error) {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

// accountOrActive returns id, or the configured active account when id is zero.
func (a *app) accountOrActive(id int64) (int64, error) {
	if id > 0 {
		return id, nil
	}
	if a.cfg.Settings.ActiveAccountID > 0 {
		return a.cfg.Settings.ActiveAccountID, nil
	}
	return 0, &model.ValidationError{Field: "account", Message: "no account given and settings.active_account_id is not set"}
}

// formatDate renders t with display.date_format.
func (a *app) formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(a.cfg.Settings.DateFormat)
}
