package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/charitylink/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var donationRowColumns = []string{"id", "campaign_id", "donor_id", "amount", "message", "is_anonymous",
	"payment_method", "transaction_code", "payment_status", "created_at", "confirmed_at"}

var campaignRowColumns = []string{"id", "creator_id", "title", "category", "target_amount",
	"current_amount", "status", "excess_fund_policy", "created_at"}

func TestPostgresStore_FindDonationByTransactionCode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM donations WHERE transaction_code = \\$1").
			WithArgs("DON-1").
			WillReturnRows(sqlmock.NewRows(donationRowColumns).
				AddRow(1, 7, int64(3), "300000", "get well", false, "vnpay", "DON-1", "pending", time.Now(), nil))

		d, err := store.FindDonationByTransactionCode(ctx, "DON-1")
		require.NoError(t, err)
		assert.Equal(t, int64(7), d.CampaignID)
		require.NotNil(t, d.DonorID)
		assert.Equal(t, int64(3), *d.DonorID)
		assert.True(t, decimal.NewFromInt(300000).Equal(d.Amount))
		assert.Equal(t, models.PaymentPending, d.PaymentStatus)
		assert.Nil(t, d.ConfirmedAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT .+ FROM donations WHERE transaction_code = \\$1").
			WithArgs("DON-404").
			WillReturnError(sql.ErrNoRows)

		_, err := store.FindDonationByTransactionCode(ctx, "DON-404")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	t.Run("confirmation writes commit together", func(t *testing.T) {
		now := time.Now()
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT .+ FROM donations WHERE transaction_code = \\$1 FOR UPDATE").
			WithArgs("DON-1").
			WillReturnRows(sqlmock.NewRows(donationRowColumns).
				AddRow(1, 7, nil, "300000", nil, true, "vnpay", "DON-1", "pending", now, nil))
		mock.ExpectQuery("SELECT .+ FROM campaigns WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(campaignRowColumns).
				AddRow(7, 2, "Heart surgery", "medical", "1000000", "900000", "active", "reserve_fund", now))
		mock.ExpectExec("UPDATE donations SET payment_status = \\$1, confirmed_at = COALESCE\\(\\$2::timestamptz, confirmed_at\\) WHERE id = \\$3 AND payment_status = \\$4").
			WithArgs("success", sqlmock.AnyArg(), int64(1), "pending").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE campaigns SET current_amount = \\$1 WHERE id = \\$2").
			WithArgs(decimal.NewFromInt(1200000), int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO financial_transactions").
			WithArgs(int64(7), "in", decimal.NewFromInt(300000), "Donation DON-1", int64(1), nil, "", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(tx Tx) error {
			d, err := tx.LockDonationByTransactionCode(ctx, "DON-1")
			if err != nil {
				return err
			}
			assert.True(t, d.IsAnonymous)
			assert.Nil(t, d.DonorID)

			c, err := tx.LockCampaign(ctx, d.CampaignID)
			if err != nil {
				return err
			}
			assert.Equal(t, models.ExcessReserveFund, c.ExcessFundPolicy)

			at := time.Now()
			if err := tx.UpdateDonationStatus(ctx, d.ID, models.PaymentPending, models.PaymentSuccess, &at); err != nil {
				return err
			}
			if err := tx.UpdateCampaignAmount(ctx, c.ID, c.CurrentAmount.Add(d.Amount)); err != nil {
				return err
			}
			row := &models.FinancialTransaction{
				CampaignID:  c.ID,
				Type:        models.LedgerIn,
				Amount:      d.Amount,
				Description: "Donation DON-1",
				DonationID:  &d.ID,
			}
			if err := tx.AppendTransaction(ctx, row); err != nil {
				return err
			}
			assert.Equal(t, int64(11), row.ID)
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("stale status rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE donations SET payment_status").
			WithArgs("failed", nil, int64(1), "pending").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(tx Tx) error {
			return tx.UpdateDonationStatus(ctx, 1, models.PaymentPending, models.PaymentFailed, nil)
		})
		assert.True(t, errors.Is(err, ErrStaleStatus))
	})

	t.Run("unique violation maps to duplicate ledger entry", func(t *testing.T) {
		donationID := int64(1)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO financial_transactions").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(tx Tx) error {
			return tx.AppendTransaction(ctx, &models.FinancialTransaction{
				CampaignID: 7,
				Type:       models.LedgerIn,
				Amount:     decimal.NewFromInt(300000),
				DonationID: &donationID,
			})
		})
		assert.True(t, errors.Is(err, ErrDuplicateLedgerEntry))
	})

	t.Run("other insert failures are wrapped", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO financial_transactions").
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(tx Tx) error {
			return tx.AppendTransaction(ctx, &models.FinancialTransaction{
				CampaignID: 7,
				Type:       models.LedgerTransferOut,
				Amount:     decimal.NewFromInt(5),
				Pool:       string(models.ExcessReserveFund),
			})
		})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrDuplicateLedgerEntry))
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("begin failure", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		called := false
		err := store.WithinTx(ctx, func(tx Tx) error {
			called = true
			return nil
		})
		assert.Error(t, err)
		assert.False(t, called)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindNextCaseCampaign(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM campaigns WHERE category = \\$1 AND id <> \\$2 AND status = \\$3 ORDER BY created_at, id LIMIT 1$").
		WithArgs("medical", int64(7), "active").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.FindNextCaseCampaign(ctx, "medical", 7)
		return err
	})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Balances(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(CASE WHEN type IN \\('in', 'transfer_in'\\) THEN amount ELSE -amount END\\), 0\\) FROM financial_transactions WHERE campaign_id = \\$1").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("1000000.00"))

	balance, err := store.LedgerBalance(ctx, 7)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000000).Equal(balance))

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM financial_transactions WHERE pool = \\$1 AND type = 'transfer_out'").
		WithArgs("reserve_fund").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("200000"))

	pool, err := store.PoolBalance(ctx, "reserve_fund")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200000).Equal(pool))

	mock.ExpectQuery("SELECT id FROM campaigns ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(7))

	ids, err := store.ListCampaignIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7}, ids)

	assert.NoError(t, mock.ExpectationsWereMet())
}
