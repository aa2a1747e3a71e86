package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charitylink/backend/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements Store on gorm. It backs the embedded SQLite mode; on
// SQLite the locking clauses are dropped by the dialect and writes are
// serialized by the single connection the database package configures.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the handle for seeding and migrations.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) FindDonationByTransactionCode(ctx context.Context, code string) (*models.Donation, error) {
	var d models.Donation
	if err := s.db.WithContext(ctx).Where("transaction_code = ?", code).First(&d).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &d, nil
}

func (s *GormStore) FindCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &c, nil
}

func (s *GormStore) ListLedger(ctx context.Context, campaignID int64) ([]models.FinancialTransaction, error) {
	var rows []models.FinancialTransaction
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) LedgerBalance(ctx context.Context, campaignID int64) (decimal.Decimal, error) {
	rows, err := s.ListLedger(ctx, campaignID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger balance for campaign %d: %w", campaignID, err)
	}
	return sumLedger(rows), nil
}

func (s *GormStore) PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error) {
	var rows []models.FinancialTransaction
	err := s.db.WithContext(ctx).
		Where("pool = ? AND type = ?", pool, models.LedgerTransferOut).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("pool balance for %s: %w", pool, err)
	}
	total := decimal.Zero
	for i := range rows {
		total = total.Add(rows[i].Amount)
	}
	return total, nil
}

func (s *GormStore) ListCampaignIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&models.Campaign{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) InsertNotification(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) forUpdate(ctx context.Context) *gorm.DB {
	return t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func (t *gormTx) LockDonationByTransactionCode(ctx context.Context, code string) (*models.Donation, error) {
	var d models.Donation
	if err := t.forUpdate(ctx).Where("transaction_code = ?", code).First(&d).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &d, nil
}

func (t *gormTx) FindCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	if err := t.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &c, nil
}

func (t *gormTx) LockCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	var c models.Campaign
	if err := t.forUpdate(ctx).First(&c, id).Error; err != nil {
		return nil, translateGormError(err)
	}
	return &c, nil
}

func (t *gormTx) UpdateDonationStatus(ctx context.Context, id int64, from, to models.PaymentStatus, at *time.Time) error {
	updates := map[string]any{"payment_status": to}
	if at != nil {
		updates["confirmed_at"] = *at
	}
	result := t.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND payment_status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update donation %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (t *gormTx) UpdateCampaignAmount(ctx context.Context, id int64, amount decimal.Decimal) error {
	result := t.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ?", id).
		Update("current_amount", amount)
	if result.Error != nil {
		return fmt.Errorf("update campaign %d amount: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) AppendTransaction(ctx context.Context, row *models.FinancialTransaction) error {
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		if err = translateGormError(err); errors.Is(err, ErrDuplicateLedgerEntry) {
			return err
		}
		return fmt.Errorf("append ledger row for campaign %d: %w", row.CampaignID, err)
	}
	return nil
}

func (t *gormTx) FindNextCaseCampaign(ctx context.Context, category string, excludeID int64) (*models.Campaign, error) {
	var c models.Campaign
	err := t.db.WithContext(ctx).
		Where("category = ? AND id <> ? AND status = ?", category, excludeID, models.CampaignActive).
		Order("created_at, id").
		First(&c).Error
	if err != nil {
		return nil, translateGormError(err)
	}
	return &c, nil
}

func translateGormError(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicateLedgerEntry
	}
	return err
}
