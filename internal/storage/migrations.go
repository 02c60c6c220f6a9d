package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial ledger schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS accounts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					title TEXT NOT NULL,
					currency TEXT NOT NULL,
					balance TEXT NOT NULL DEFAULT '0',
					color INTEGER NOT NULL DEFAULT 0,
					sort_order INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					title TEXT NOT NULL,
					symbol TEXT NOT NULL DEFAULT ''
				)`,

				`CREATE TABLE IF NOT EXISTS budgets (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					budget_set TEXT NOT NULL,
					title TEXT NOT NULL,
					currency TEXT NOT NULL,
					amount TEXT NOT NULL,
					amount_spent TEXT NOT NULL DEFAULT '0',
					start_date TEXT NOT NULL,
					end_date TEXT NOT NULL,
					interval_unit TEXT NOT NULL DEFAULT 'months',
					interval_length INTEGER NOT NULL DEFAULT 0
				)`,

				`CREATE TABLE IF NOT EXISTS budget_categories (
					budget_id INTEGER NOT NULL REFERENCES budgets(id) ON DELETE CASCADE,
					category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					PRIMARY KEY (budget_id, category_id)
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					type TEXT NOT NULL CHECK (type IN ('expense', 'income')),
					title TEXT NOT NULL,
					amount TEXT NOT NULL,
					amount_converted TEXT NOT NULL,
					sender_account_id INTEGER NOT NULL REFERENCES accounts(id),
					recipient_account_id INTEGER REFERENCES accounts(id),
					currency TEXT NOT NULL,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					timestamp TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS periodic_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					type TEXT NOT NULL CHECK (type IN ('expense', 'income', 'transfer')),
					title TEXT NOT NULL,
					amount TEXT NOT NULL,
					sender_account_id INTEGER NOT NULL REFERENCES accounts(id),
					recipient_account_id INTEGER REFERENCES accounts(id),
					currency TEXT NOT NULL,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					next_transaction TEXT NOT NULL,
					interval_unit TEXT NOT NULL DEFAULT 'months',
					interval_length INTEGER NOT NULL DEFAULT 0
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add lookup indexes",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions(category_id)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_account_id)`,
				`CREATE INDEX IF NOT EXISTS idx_budgets_set ON budgets(budget_set)`,
				`CREATE INDEX IF NOT EXISTS idx_budget_categories_category ON budget_categories(category_id)`,
				`CREATE INDEX IF NOT EXISTS idx_periodic_next ON periodic_transactions(next_transaction)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Track statement import hashes on transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE transactions ADD COLUMN import_hash TEXT`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_import_hash
					ON transactions(import_hash) WHERE import_hash IS NOT NULL`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate runs all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the applied migration version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
