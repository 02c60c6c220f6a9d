// Package storage provides the data persistence layer for the tally ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements service.Queries against any queryable.
type queries struct {
	q queryable
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	*queries
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps in-memory databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		queries: &queries{q: db},
		db:      db,
		dbPath:  dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
// While it is open every other call on s blocks, so callers must use the returned Tx.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Tx, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTx{
		queries: &queries{q: tx},
		tx:      tx,
	}, nil
}

// EnsureAggregateAccount returns the aggregate account, creating it when missing.
func (s *SQLiteStorage) EnsureAggregateAccount(ctx context.Context, id int64, currency string) (*model.Account, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, fmt.Errorf("%w: aggregate account id must be positive", ErrInvalidID)
	}

	account, err := s.GetAccount(ctx, id)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	account = &model.Account{
		ID:       id,
		Title:    "All accounts",
		Currency: model.NormalizeCurrency(currency),
		Balance:  decimal.Zero,
	}
	if err := s.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create aggregate account: %w", err)
	}

	slog.Info("created aggregate account", "id", id, "currency", account.Currency)
	return account, nil
}

// sqliteTx wraps sql.Tx to implement service.Tx.
type sqliteTx struct {
	*queries
	tx *sql.Tx
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}
