package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerType string

const (
	LedgerIn          LedgerType = "in"
	LedgerOut         LedgerType = "out"
	LedgerTransferIn  LedgerType = "transfer_in"
	LedgerTransferOut LedgerType = "transfer_out"
)

// Credits reports whether rows of this type add to a campaign balance.
func (t LedgerType) Credits() bool {
	return t == LedgerIn || t == LedgerTransferIn
}

// FinancialTransaction is an append-only ledger row. Rows are never updated or
// deleted once written.
type FinancialTransaction struct {
	ID                    int64           `json:"id" db:"id" gorm:"primaryKey"`
	CampaignID            int64           `json:"campaign_id" db:"campaign_id" gorm:"not null;index"`
	Type                  LedgerType      `json:"type" db:"type" gorm:"size:16;not null"`
	Amount                decimal.Decimal `json:"amount" db:"amount" gorm:"type:numeric(18,2);not null"` // always positive
	Description           string          `json:"description" db:"description"`
	DonationID            *int64          `json:"donation_id,omitempty" db:"donation_id" gorm:"uniqueIndex:idx_ledger_donation_in,where:type = 'in'"`
	CounterpartCampaignID *int64          `json:"counterpart_campaign_id,omitempty" db:"counterpart_campaign_id"`
	Pool                  string          `json:"pool,omitempty" db:"pool" gorm:"size:20;index"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
}

func (FinancialTransaction) TableName() string { return "financial_transactions" }

// SignedAmount is the row's effect on its campaign balance.
func (f *FinancialTransaction) SignedAmount() decimal.Decimal {
	if f.Type.Credits() {
		return f.Amount
	}
	return f.Amount.Neg()
}
