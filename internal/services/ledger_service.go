package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/charitylink/backend/internal/audit"
	"github.com/charitylink/backend/internal/metrics"
	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrUnknownPool      = errors.New("unknown fund pool")
)

// ReconciliationReport compares a campaign's running total with the balance
// derived from its ledger rows.
type ReconciliationReport struct {
	CampaignID    int64           `json:"campaignId"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	LedgerBalance decimal.Decimal `json:"ledgerBalance"`
	Drift         decimal.Decimal `json:"drift"`
	Consistent    bool            `json:"consistent"`
	CheckedAt     time.Time       `json:"checkedAt"`
}

// LedgerService is the read-only view over the donation ledger.
type LedgerService struct {
	store   repository.Store
	audit   *audit.AuditLogger
	metrics *metrics.Metrics
}

func NewLedgerService(store repository.Store, auditLogger *audit.AuditLogger, m *metrics.Metrics) *LedgerService {
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &LedgerService{store: store, audit: auditLogger, metrics: m}
}

func (s *LedgerService) Entries(ctx context.Context, campaignID int64) ([]models.FinancialTransaction, error) {
	if _, err := s.findCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListLedger(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("%w: list ledger for campaign %d: %w", ErrPersistence, campaignID, err)
	}
	return rows, nil
}

func (s *LedgerService) VerifyCampaign(ctx context.Context, campaignID int64) (*ReconciliationReport, error) {
	campaign, err := s.findCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	balance, err := s.store.LedgerBalance(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	drift := campaign.CurrentAmount.Sub(balance)
	return &ReconciliationReport{
		CampaignID:    campaignID,
		CurrentAmount: campaign.CurrentAmount,
		LedgerBalance: balance,
		Drift:         drift,
		Consistent:    drift.IsZero(),
		CheckedAt:     time.Now(),
	}, nil
}

// ReconcileAll verifies every campaign and returns the drifting ones. A
// campaign is re-read once before being reported, since its two reads are
// not taken in one snapshot and a confirmation may land in between.
func (s *LedgerService) ReconcileAll(ctx context.Context) ([]ReconciliationReport, error) {
	ids, err := s.store.ListCampaignIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list campaigns: %w", ErrPersistence, err)
	}

	var drifting []ReconciliationReport
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return drifting, err
		}
		report, err := s.VerifyCampaign(ctx, id)
		if err == nil && !report.Consistent {
			report, err = s.VerifyCampaign(ctx, id)
		}
		if errors.Is(err, ErrCampaignNotFound) {
			continue
		}
		if err != nil {
			return drifting, err
		}
		if !report.Consistent {
			drifting = append(drifting, *report)
			s.audit.LogAnomaly("", id, "ledger drift", map[string]any{
				"current_amount": report.CurrentAmount.String(),
				"ledger_balance": report.LedgerBalance.String(),
			})
		}
	}

	s.metrics.LedgerDriftCampaigns.Set(float64(len(drifting)))
	log.Printf("[LEDGER] Reconciled %d campaigns, %d drifting", len(ids), len(drifting))
	return drifting, nil
}

// StartReconciler runs ReconcileAll every interval until ctx is cancelled.
// The returned channel is closed once the loop has exited. A non-positive
// interval disables the loop.
func (s *LedgerService) StartReconciler(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		log.Printf("[LEDGER] Periodic reconciliation disabled")
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[LEDGER] Reconciliation failed: %v", err)
				}
			}
		}
	}()
	return done
}

// PoolBalance is the total moved into a reserve or general fund pool.
func (s *LedgerService) PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error) {
	switch models.ExcessPolicy(pool) {
	case models.ExcessReserveFund, models.ExcessGeneralFund:
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownPool, pool)
	}
	balance, err := s.store.PoolBalance(ctx, pool)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return balance, nil
}

func (s *LedgerService) findCampaign(ctx context.Context, id int64) (*models.Campaign, error) {
	campaign, err := s.store.FindCampaign(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrCampaignNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load campaign %d: %w", ErrPersistence, id, err)
	}
	return campaign, nil
}
