package services

import (
	"context"
	"fmt"
	"log"

	"github.com/charitylink/backend/internal/audit"
	"github.com/charitylink/backend/internal/metrics"
	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/repository"
	"github.com/shopspring/decimal"
)

type ReallocationAction string

const (
	ActionTransferred ReallocationAction = "transferred"
	ActionPooled      ReallocationAction = "pooled"
	ActionFlagged     ReallocationAction = "flagged"
	ActionKept        ReallocationAction = "kept"
	ActionSkipped     ReallocationAction = "skipped"
)

// Reallocation describes what happened to the excess of one confirmation.
type Reallocation struct {
	TransactionCode  string
	Policy           models.ExcessPolicy
	Action           ReallocationAction
	Amount           decimal.Decimal
	SourceCampaignID int64
	SourceCreatorID  int64
	SourceTitle      string
	Destination      *models.Campaign
	Pool             string
	Reason           string
}

// ReallocationService applies a campaign's excess fund policy. It runs inside
// the confirming transaction and only writes through the given Tx.
type ReallocationService struct {
	audit   *audit.AuditLogger
	metrics *metrics.Metrics
}

func NewReallocationService(auditLogger *audit.AuditLogger, m *metrics.Metrics) *ReallocationService {
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &ReallocationService{audit: auditLogger, metrics: m}
}

// ReallocateIfExceeding handles the part of increment that pushed campaign
// above its target. campaign must already reflect the increment. next is the
// locked next_case destination, or nil when none was found. It returns nil
// when the campaign is at or below target.
//
// Moved excess leaves the source campaign: its current amount drops by the
// excess and a transfer_out row records it, so the ledger balance and
// current amount stay equal.
func (s *ReallocationService) ReallocateIfExceeding(ctx context.Context, tx repository.Tx, campaign, next *models.Campaign, increment decimal.Decimal, code string) (*Reallocation, error) {
	excess := decimal.Min(increment, campaign.Excess())
	if !excess.IsPositive() {
		return nil, nil
	}

	r := &Reallocation{
		TransactionCode:  code,
		Policy:           campaign.ExcessFundPolicy,
		Amount:           excess,
		SourceCampaignID: campaign.ID,
		SourceCreatorID:  campaign.CreatorID,
		SourceTitle:      campaign.Title,
	}

	switch campaign.ExcessFundPolicy {
	case models.ExcessNextCase:
		return r, s.transferToNextCase(ctx, tx, campaign, next, r)
	case models.ExcessReserveFund, models.ExcessGeneralFund:
		return r, s.moveToPool(ctx, tx, campaign, r)
	case models.ExcessRefund:
		r.Action = ActionFlagged
		r.Reason = "refund policy requires operator review"
	case models.ExcessExtend:
		r.Action = ActionKept
		r.Reason = "campaign keeps collecting past target"
	default:
		r.Action = ActionSkipped
		r.Reason = fmt.Sprintf("unknown excess fund policy %q", campaign.ExcessFundPolicy)
	}
	return r, nil
}

func (s *ReallocationService) transferToNextCase(ctx context.Context, tx repository.Tx, source, dest *models.Campaign, r *Reallocation) error {
	if dest == nil {
		r.Action = ActionSkipped
		r.Reason = fmt.Sprintf("no active campaign in category %q", source.Category)
		return nil
	}
	if dest.Status != models.CampaignActive || dest.Category != source.Category || dest.ID == source.ID {
		r.Action = ActionSkipped
		r.Reason = fmt.Sprintf("campaign %d stopped accepting transfers", dest.ID)
		return nil
	}

	source.CurrentAmount = source.CurrentAmount.Sub(r.Amount)
	if err := tx.UpdateCampaignAmount(ctx, source.ID, source.CurrentAmount); err != nil {
		return err
	}
	dest.CurrentAmount = dest.CurrentAmount.Add(r.Amount)
	if err := tx.UpdateCampaignAmount(ctx, dest.ID, dest.CurrentAmount); err != nil {
		return err
	}

	if err := tx.AppendTransaction(ctx, &models.FinancialTransaction{
		CampaignID:            source.ID,
		Type:                  models.LedgerTransferOut,
		Amount:                r.Amount,
		Description:           fmt.Sprintf("Excess from %s moved to campaign %d", r.TransactionCode, dest.ID),
		CounterpartCampaignID: &dest.ID,
	}); err != nil {
		return err
	}
	if err := tx.AppendTransaction(ctx, &models.FinancialTransaction{
		CampaignID:            dest.ID,
		Type:                  models.LedgerTransferIn,
		Amount:                r.Amount,
		Description:           fmt.Sprintf("Excess from campaign %d (%s)", source.ID, r.TransactionCode),
		CounterpartCampaignID: &source.ID,
	}); err != nil {
		return err
	}

	r.Action = ActionTransferred
	r.Destination = dest
	return nil
}

func (s *ReallocationService) moveToPool(ctx context.Context, tx repository.Tx, source *models.Campaign, r *Reallocation) error {
	source.CurrentAmount = source.CurrentAmount.Sub(r.Amount)
	if err := tx.UpdateCampaignAmount(ctx, source.ID, source.CurrentAmount); err != nil {
		return err
	}

	pool := string(source.ExcessFundPolicy)
	if err := tx.AppendTransaction(ctx, &models.FinancialTransaction{
		CampaignID:  source.ID,
		Type:        models.LedgerTransferOut,
		Amount:      r.Amount,
		Description: fmt.Sprintf("Excess from %s moved to %s", r.TransactionCode, pool),
		Pool:        pool,
	}); err != nil {
		return err
	}

	r.Action = ActionPooled
	r.Pool = pool
	return nil
}

// Record audits a committed reallocation and counts it.
func (s *ReallocationService) Record(r *Reallocation) {
	if r == nil {
		return
	}
	policy := string(r.Policy)
	if policy == "" {
		policy = "unset"
	}
	s.metrics.Reallocations.WithLabelValues(policy, string(r.Action)).Inc()

	details := map[string]any{}
	if r.Destination != nil {
		details["destination_campaign_id"] = r.Destination.ID
	}
	if r.Pool != "" {
		details["pool"] = r.Pool
	}
	if r.Reason != "" {
		details["reason"] = r.Reason
	}
	s.audit.LogReallocation(r.TransactionCode, r.SourceCampaignID, policy, string(r.Action), r.Amount, details)

	switch r.Action {
	case ActionSkipped:
		log.Printf("[REALLOCATION] Campaign %d excess %s left in place: %s", r.SourceCampaignID, r.Amount, r.Reason)
	case ActionFlagged:
		log.Printf("[REALLOCATION] Campaign %d excess %s flagged for refund review", r.SourceCampaignID, r.Amount)
	}
}
