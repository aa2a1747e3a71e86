package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignClosed    CampaignStatus = "closed"
)

// ExcessPolicy decides what happens to money raised above a campaign's target.
type ExcessPolicy string

const (
	ExcessReserveFund ExcessPolicy = "reserve_fund"
	ExcessNextCase    ExcessPolicy = "next_case"
	ExcessGeneralFund ExcessPolicy = "general_fund"
	ExcessExtend      ExcessPolicy = "extend"
	ExcessRefund      ExcessPolicy = "refund"
)

// Campaign is the slice of a fundraising campaign the payment engine reads and
// writes. CurrentAmount must always match the campaign's ledger balance.
type Campaign struct {
	ID               int64           `json:"id" db:"id" gorm:"primaryKey"`
	CreatorID        int64           `json:"creator_id" db:"creator_id"`
	Title            string          `json:"title" db:"title" gorm:"size:255"`
	Category         string          `json:"category" db:"category" gorm:"size:64;index"`
	TargetAmount     decimal.Decimal `json:"target_amount" db:"target_amount" gorm:"type:numeric(18,2);not null"`
	CurrentAmount    decimal.Decimal `json:"current_amount" db:"current_amount" gorm:"type:numeric(18,2);not null"`
	Status           CampaignStatus  `json:"status" db:"status" gorm:"size:16;not null"`
	ExcessFundPolicy ExcessPolicy    `json:"excess_fund_policy" db:"excess_fund_policy" gorm:"size:20"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

func (Campaign) TableName() string { return "campaigns" }

// Excess returns the amount strictly above the target, or zero.
func (c *Campaign) Excess() decimal.Decimal {
	if c.CurrentAmount.GreaterThan(c.TargetAmount) {
		return c.CurrentAmount.Sub(c.TargetAmount)
	}
	return decimal.Zero
}
