// Package audit writes the append-only JSON trail for payment confirmations.
package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp       time.Time        `json:"timestamp"`
	EventType       string           `json:"event_type"`
	TransactionCode string           `json:"transaction_code,omitempty"`
	CampaignID      int64            `json:"campaign_id,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Status          string           `json:"status"`
	Details         map[string]any   `json:"details,omitempty"`
}

const (
	EventConfirmation = "CONFIRMATION"
	EventAnomaly      = "ANOMALY"
	EventLedgerAppend = "LEDGER_APPEND"
	EventReallocation = "REALLOCATION"
	EventError        = "ERROR"
)

type AuditLogger struct {
	out *log.Logger
}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{out: log.Default()}
}

// NewAuditLoggerTo writes events to out instead of the standard logger.
func NewAuditLoggerTo(out *log.Logger) *AuditLogger {
	return &AuditLogger{out: out}
}

func (a *AuditLogger) LogConfirmation(code string, campaignID int64, amount decimal.Decimal, result, channel string) {
	a.log(Event{
		EventType:       EventConfirmation,
		TransactionCode: code,
		CampaignID:      campaignID,
		Amount:          &amount,
		Status:          result,
		Details:         map[string]any{"channel": channel},
	})
}

// LogAnomaly records a state conflict that needs an operator to look at it.
func (a *AuditLogger) LogAnomaly(code string, campaignID int64, reason string, details map[string]any) {
	if details == nil {
		details = make(map[string]any)
	}
	details["reason"] = reason
	a.log(Event{
		EventType:       EventAnomaly,
		TransactionCode: code,
		CampaignID:      campaignID,
		Status:          "REVIEW",
		Details:         details,
	})
}

func (a *AuditLogger) LogLedgerAppend(code string, campaignID int64, entryType string, amount decimal.Decimal) {
	a.log(Event{
		EventType:       EventLedgerAppend,
		TransactionCode: code,
		CampaignID:      campaignID,
		Amount:          &amount,
		Status:          "SUCCESS",
		Details:         map[string]any{"type": entryType},
	})
}

func (a *AuditLogger) LogReallocation(code string, campaignID int64, policy, action string, amount decimal.Decimal, details map[string]any) {
	if details == nil {
		details = make(map[string]any)
	}
	details["policy"] = policy
	a.log(Event{
		EventType:       EventReallocation,
		TransactionCode: code,
		CampaignID:      campaignID,
		Amount:          &amount,
		Status:          action,
		Details:         details,
	})
}

func (a *AuditLogger) LogError(code string, campaignID int64, err error) {
	a.log(Event{
		EventType:       EventError,
		TransactionCode: code,
		CampaignID:      campaignID,
		Status:          "FAILED",
		Details:         map[string]any{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event Event) {
	event.Timestamp = time.Now()
	data, _ := json.Marshal(event)
	a.out.Printf("AUDIT: %s", string(data))
}
