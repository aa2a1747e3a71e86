package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charitylink/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const pqUniqueViolation = "23505"

const (
	donationColumns = `id, campaign_id, donor_id, amount, message, is_anonymous, payment_method,
		transaction_code, payment_status, created_at, confirmed_at`
	campaignColumns = `id, creator_id, title, category, target_amount, current_amount, status,
		excess_fund_policy, created_at`
	ledgerColumns = `id, campaign_id, type, amount, description, donation_id, counterpart_campaign_id,
		pool, created_at`
)

// PostgresStore implements Store on database/sql with the lib/pq driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) FindDonationByTransactionCode(ctx context.Context, code string) (*models.Donation, error) {
	return scanDonation(s.db.QueryRowContext(ctx, `
		SELECT `+donationColumns+`
		FROM donations
		WHERE transaction_code = $1`, code))
}

func (s *PostgresStore) FindCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	return scanCampaign(s.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1`, id))
}

func (s *PostgresStore) ListLedger(ctx context.Context, campaignID int64) ([]models.FinancialTransaction, error) {
	return listLedger(ctx, s.db, `
		SELECT `+ledgerColumns+`
		FROM financial_transactions
		WHERE campaign_id = $1
		ORDER BY id`, campaignID)
}

func (s *PostgresStore) LedgerBalance(ctx context.Context, campaignID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type IN ('in', 'transfer_in') THEN amount ELSE -amount END), 0)
		FROM financial_transactions
		WHERE campaign_id = $1`, campaignID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger balance for campaign %d: %w", campaignID, err)
	}
	return balance, nil
}

func (s *PostgresStore) PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM financial_transactions
		WHERE pool = $1 AND type = 'transfer_out'`, pool).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pool balance for %s: %w", pool, err)
	}
	return balance, nil
}

func (s *PostgresStore) ListCampaignIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		n.UserID, n.Title, n.Message, n.Type, n.IsRead, n.CreatedAt).Scan(&n.ID)
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) LockDonationByTransactionCode(ctx context.Context, code string) (*models.Donation, error) {
	return scanDonation(t.tx.QueryRowContext(ctx, `
		SELECT `+donationColumns+`
		FROM donations
		WHERE transaction_code = $1
		FOR UPDATE`, code))
}

func (t *postgresTx) FindCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	return scanCampaign(t.tx.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1`, id))
}

func (t *postgresTx) LockCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	return scanCampaign(t.tx.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1
		FOR UPDATE`, id))
}

func (t *postgresTx) UpdateDonationStatus(ctx context.Context, id int64, from, to models.PaymentStatus, at *time.Time) error {
	var confirmedAt any
	if at != nil {
		confirmedAt = *at
	}
	result, err := t.tx.ExecContext(ctx, `
		UPDATE donations
		SET payment_status = $1, confirmed_at = COALESCE($2::timestamptz, confirmed_at)
		WHERE id = $3 AND payment_status = $4`,
		string(to), confirmedAt, id, string(from))
	if err != nil {
		return fmt.Errorf("update donation %d status: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (t *postgresTx) UpdateCampaignAmount(ctx context.Context, id int64, amount decimal.Decimal) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE campaigns
		SET current_amount = $1
		WHERE id = $2`, amount, id)
	if err != nil {
		return fmt.Errorf("update campaign %d amount: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) AppendTransaction(ctx context.Context, row *models.FinancialTransaction) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO financial_transactions
			(campaign_id, type, amount, description, donation_id, counterpart_campaign_id, pool, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		row.CampaignID, string(row.Type), row.Amount, row.Description,
		nullInt64(row.DonationID), nullInt64(row.CounterpartCampaignID), row.Pool, row.CreatedAt,
	).Scan(&row.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateLedgerEntry
		}
		return fmt.Errorf("append ledger row for campaign %d: %w", row.CampaignID, err)
	}
	return nil
}

func (t *postgresTx) FindNextCaseCampaign(ctx context.Context, category string, excludeID int64) (*models.Campaign, error) {
	return scanCampaign(t.tx.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE category = $1 AND id <> $2 AND status = $3
		ORDER BY created_at, id
		LIMIT 1`, category, excludeID, string(models.CampaignActive)))
}

func scanDonation(row *sql.Row) (*models.Donation, error) {
	var (
		d           models.Donation
		donorID     sql.NullInt64
		message     sql.NullString
		confirmedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.CampaignID, &donorID, &d.Amount, &message, &d.IsAnonymous,
		&d.PaymentMethod, &d.TransactionCode, &d.PaymentStatus, &d.CreatedAt, &confirmedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if donorID.Valid {
		d.DonorID = &donorID.Int64
	}
	if confirmedAt.Valid {
		d.ConfirmedAt = &confirmedAt.Time
	}
	d.Message = message.String
	return &d, nil
}

func scanCampaign(row *sql.Row) (*models.Campaign, error) {
	var (
		c      models.Campaign
		policy sql.NullString
	)
	err := row.Scan(&c.ID, &c.CreatorID, &c.Title, &c.Category, &c.TargetAmount, &c.CurrentAmount,
		&c.Status, &policy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ExcessFundPolicy = models.ExcessPolicy(policy.String)
	return &c, nil
}

func listLedger(ctx context.Context, q queryer, query string, args ...any) ([]models.FinancialTransaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FinancialTransaction
	for rows.Next() {
		var (
			f           models.FinancialTransaction
			donationID  sql.NullInt64
			counterpart sql.NullInt64
			description sql.NullString
			pool        sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.CampaignID, &f.Type, &f.Amount, &description, &donationID,
			&counterpart, &pool, &f.CreatedAt); err != nil {
			return nil, err
		}
		if donationID.Valid {
			f.DonationID = &donationID.Int64
		}
		if counterpart.Valid {
			f.CounterpartCampaignID = &counterpart.Int64
		}
		f.Description = description.String
		f.Pool = pool.String
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
