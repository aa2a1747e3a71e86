// Package repository holds the only code paths allowed to mutate donations,
// campaigns and ledger rows.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/charitylink/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus is returned by a conditional status update that matched no row.
	ErrStaleStatus = errors.New("donation status changed concurrently")
	// ErrDuplicateLedgerEntry means an "in" row already exists for the donation.
	ErrDuplicateLedgerEntry = errors.New("ledger entry already recorded for donation")
)

// Store is the read side plus the transaction boundary.
type Store interface {
	FindDonationByTransactionCode(ctx context.Context, code string) (*models.Donation, error)
	FindCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	ListLedger(ctx context.Context, campaignID int64) ([]models.FinancialTransaction, error)
	LedgerBalance(ctx context.Context, campaignID int64) (decimal.Decimal, error)
	PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error)
	ListCampaignIDs(ctx context.Context) ([]int64, error)
	InsertNotification(ctx context.Context, n *models.Notification) error

	// WithinTx runs fn in one database transaction. fn returning an error
	// rolls everything back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write side. Every method runs inside the transaction opened by
// Store.WithinTx and row locks are held until it ends.
//
// FindCampaign and FindNextCaseCampaign read without locking. Callers that
// lock more than one campaign do so in ascending id order.
type Tx interface {
	LockDonationByTransactionCode(ctx context.Context, code string) (*models.Donation, error)
	FindCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	LockCampaign(ctx context.Context, id int64) (*models.Campaign, error)
	UpdateDonationStatus(ctx context.Context, id int64, from, to models.PaymentStatus, at *time.Time) error
	UpdateCampaignAmount(ctx context.Context, id int64, amount decimal.Decimal) error
	AppendTransaction(ctx context.Context, row *models.FinancialTransaction) error
	FindNextCaseCampaign(ctx context.Context, category string, excludeID int64) (*models.Campaign, error)
}

func sumLedger(rows []models.FinancialTransaction) decimal.Decimal {
	total := decimal.Zero
	for i := range rows {
		total = total.Add(rows[i].SignedAmount())
	}
	return total
}
