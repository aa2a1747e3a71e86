package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

// Donation is a single intent to pay into a campaign. TransactionCode is the
// idempotency key shared by every confirmation channel.
type Donation struct {
	ID              int64           `json:"id" db:"id" gorm:"primaryKey"`
	CampaignID      int64           `json:"campaign_id" db:"campaign_id" gorm:"not null;index"`
	DonorID         *int64          `json:"donor_id,omitempty" db:"donor_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount" gorm:"type:numeric(18,2);not null"`
	Message         string          `json:"message,omitempty" db:"message"`
	IsAnonymous     bool            `json:"is_anonymous" db:"is_anonymous"`
	PaymentMethod   string          `json:"payment_method" db:"payment_method" gorm:"size:20"`
	TransactionCode string          `json:"transaction_code" db:"transaction_code" gorm:"size:64;not null;uniqueIndex"`
	PaymentStatus   PaymentStatus   `json:"payment_status" db:"payment_status" gorm:"size:16;not null;index"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

func (Donation) TableName() string { return "donations" }
