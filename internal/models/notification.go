package models

import "time"

const (
	NotifyDonationSuccess   = "donation_success"
	NotifyCampaignDonation  = "campaign_donation"
	NotifyExcessReallocated = "excess_reallocated"
	NotifyExcessRefund      = "excess_refund_review"
)

type Notification struct {
	ID        int64     `json:"id" db:"id" gorm:"primaryKey"`
	UserID    int64     `json:"user_id" db:"user_id" gorm:"not null;index"`
	Title     string    `json:"title" db:"title" gorm:"size:255"`
	Message   string    `json:"message" db:"message"`
	Type      string    `json:"type" db:"type" gorm:"size:32"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

// MigrateModels lists the tables managed by gorm AutoMigrate.
var MigrateModels = []any{
	&Campaign{},
	&Donation{},
	&FinancialTransaction{},
	&Notification{},
}
