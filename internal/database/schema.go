package database

import (
	"database/sql"
	"fmt"
	"log"
)

// schema is applied on startup. Statements are idempotent so repeated
// boots against the same database are safe.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		password_hash TEXT NOT NULL,
		stats JSONB NOT NULL DEFAULT '{}',
		stats_updated_at TIMESTAMPTZ,
		failed_login_attempts INT NOT NULL DEFAULT 0,
		locked_until TIMESTAMPTZ,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		label TEXT NOT NULL,
		supplier TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		stats JSONB NOT NULL DEFAULT '{}',
		stats_updated_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_user ON cards(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_supplier ON cards(supplier)`,

	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		card_id TEXT NOT NULL REFERENCES cards(id),
		operation TEXT NOT NULL,
		amount BIGINT NOT NULL,
		status TEXT NOT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TIMESTAMPTZ,
		version INT NOT NULL DEFAULT 1,
		history JSONB NOT NULL DEFAULT '[]',
		reconciled BOOLEAN NOT NULL DEFAULT FALSE,
		reconciliation_id TEXT,
		supplier TEXT NOT NULL DEFAULT '',
		supplier_ref TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_card ON ledger_entries(card_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id, created_at)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_supplier_ref
		ON ledger_entries(supplier, supplier_ref) WHERE supplier_ref <> ''`,

	`CREATE TABLE IF NOT EXISTS consolidations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		card_id TEXT NOT NULL REFERENCES cards(id),
		version INT NOT NULL,
		base_consolidation_id TEXT REFERENCES consolidations(id),
		is_latest BOOLEAN NOT NULL DEFAULT TRUE,
		member_entry_ids TEXT[] NOT NULL DEFAULT '{}',
		new_entry_ids TEXT[] NOT NULL DEFAULT '{}',
		summary JSONB NOT NULL DEFAULT '{}',
		previous_summary JSONB NOT NULL DEFAULT '{}',
		name TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_consolidations_version
		ON consolidations(user_id, card_id, version)`,
	// One head per chain. Concurrent first appends race on this index
	// and the loser surfaces as a unique violation.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_consolidations_latest
		ON consolidations(user_id, card_id) WHERE is_latest`,
}

// Migrate applies the schema. For anything beyond additive changes use a
// real migration tool.
func Migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema migration failed: %w", err)
		}
	}
	log.Println("Database schema up to date")
	return nil
}
