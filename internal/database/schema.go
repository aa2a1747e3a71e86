package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// schema is idempotent. The partial unique index on donation_id is what makes
// a second "in" row for the same donation impossible.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS campaigns (
		id BIGSERIAL PRIMARY KEY,
		creator_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		category VARCHAR(64) NOT NULL DEFAULT '',
		target_amount NUMERIC(18,2) NOT NULL,
		current_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		excess_fund_policy VARCHAR(20),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_category ON campaigns (category, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS donations (
		id BIGSERIAL PRIMARY KEY,
		campaign_id BIGINT NOT NULL,
		donor_id BIGINT,
		amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		message TEXT,
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		payment_method VARCHAR(20) NOT NULL DEFAULT '',
		transaction_code VARCHAR(64) NOT NULL UNIQUE,
		payment_status VARCHAR(16) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		confirmed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_donations_campaign_id ON donations (campaign_id)`,
	`CREATE TABLE IF NOT EXISTS financial_transactions (
		id BIGSERIAL PRIMARY KEY,
		campaign_id BIGINT NOT NULL,
		type VARCHAR(16) NOT NULL CHECK (type IN ('in', 'out', 'transfer_in', 'transfer_out')),
		amount NUMERIC(18,2) NOT NULL CHECK (amount > 0),
		description TEXT,
		donation_id BIGINT,
		counterpart_campaign_id BIGINT,
		pool VARCHAR(20) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_financial_transactions_campaign_id ON financial_transactions (campaign_id)`,
	`CREATE INDEX IF NOT EXISTS idx_financial_transactions_pool ON financial_transactions (pool) WHERE pool <> ''`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_donation_in ON financial_transactions (donation_id) WHERE type = 'in'`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		type VARCHAR(32) NOT NULL DEFAULT '',
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications (user_id)`,
}

// Migrate applies the Postgres schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	log.Printf("Database schema applied (%d statements)", len(schema))
	return nil
}
