package services

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/charitylink/backend/internal/audit"
	"github.com/charitylink/backend/internal/database"
	"github.com/charitylink/backend/internal/lock"
	"github.com/charitylink/backend/internal/metrics"
	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type sentNotification struct {
	UserID  int64
	Title   string
	Message string
	Type    string
}

// recordingDispatcher captures notifications synchronously.
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingDispatcher) Send(_ context.Context, userID int64, title, message, notifType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{UserID: userID, Title: title, Message: message, Type: notifType})
}

func (r *recordingDispatcher) all() []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentNotification(nil), r.sent...)
}

func (r *recordingDispatcher) ofType(notifType string) []sentNotification {
	var out []sentNotification
	for _, n := range r.all() {
		if n.Type == notifType {
			out = append(out, n)
		}
	}
	return out
}

// noopLocker leaves exclusivity entirely to the database.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

type harness struct {
	store    *repository.GormStore
	svc      *ConfirmationService
	ledger   *LedgerService
	notifier *recordingDispatcher
	metrics  *metrics.Metrics
}

func quietAudit() *audit.AuditLogger {
	return audit.NewAuditLoggerTo(log.New(io.Discard, "", 0))
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithLocker(t, lock.NewKeyedMutex())
}

func newHarnessWithLocker(t *testing.T, locker lock.Locker) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := database.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := repository.NewGormStore(gdb)
	m := metrics.New(prometheus.NewRegistry())
	auditLogger := quietAudit()
	notifier := &recordingDispatcher{}
	svc := NewConfirmationService(store, locker, NewReallocationService(auditLogger, m), notifier, auditLogger, m)

	return &harness{
		store:    store,
		svc:      svc,
		ledger:   NewLedgerService(store, auditLogger, m),
		notifier: notifier,
		metrics:  m,
	}
}

type campaignSeed struct {
	Title    string
	Category string
	Target   int64
	Current  int64
	Policy   models.ExcessPolicy
	Status   models.CampaignStatus
}

// seedCampaign creates a campaign whose current amount is backed by one
// opening ledger row, so the balance invariant holds from the start.
func (h *harness) seedCampaign(t *testing.T, seed campaignSeed) *models.Campaign {
	t.Helper()
	if seed.Status == "" {
		seed.Status = models.CampaignActive
	}
	if seed.Category == "" {
		seed.Category = "medical"
	}
	c := &models.Campaign{
		CreatorID:        100,
		Title:            seed.Title,
		Category:         seed.Category,
		TargetAmount:     decimal.NewFromInt(seed.Target),
		CurrentAmount:    decimal.NewFromInt(seed.Current),
		Status:           seed.Status,
		ExcessFundPolicy: seed.Policy,
	}
	require.NoError(t, h.store.DB().Create(c).Error)
	c.CreatorID = 100 + c.ID
	require.NoError(t, h.store.DB().Save(c).Error)

	if seed.Current > 0 {
		require.NoError(t, h.store.DB().Create(&models.FinancialTransaction{
			CampaignID:  c.ID,
			Type:        models.LedgerIn,
			Amount:      decimal.NewFromInt(seed.Current),
			Description: "opening balance",
		}).Error)
	}
	return c
}

func (h *harness) seedDonation(t *testing.T, campaignID int64, amount int64, code string, donorID *int64, anonymous bool) *models.Donation {
	t.Helper()
	d := &models.Donation{
		CampaignID:      campaignID,
		DonorID:         donorID,
		Amount:          decimal.NewFromInt(amount),
		IsAnonymous:     anonymous,
		PaymentMethod:   "vnpay",
		TransactionCode: code,
		PaymentStatus:   models.PaymentPending,
	}
	require.NoError(t, h.store.DB().Create(d).Error)
	return d
}

func (h *harness) donation(t *testing.T, code string) *models.Donation {
	t.Helper()
	d, err := h.store.FindDonationByTransactionCode(context.Background(), code)
	require.NoError(t, err)
	return d
}

func (h *harness) campaign(t *testing.T, id int64) *models.Campaign {
	t.Helper()
	c, err := h.store.FindCampaign(context.Background(), id)
	require.NoError(t, err)
	return c
}

func (h *harness) ledgerRows(t *testing.T, campaignID int64) []models.FinancialTransaction {
	t.Helper()
	rows, err := h.store.ListLedger(context.Background(), campaignID)
	require.NoError(t, err)
	return rows
}

func (h *harness) requireBalanced(t *testing.T, campaignID int64) {
	t.Helper()
	report, err := h.ledger.VerifyCampaign(context.Background(), campaignID)
	require.NoError(t, err)
	require.True(t, report.Consistent, "campaign %d: current %s, ledger %s",
		campaignID, report.CurrentAmount, report.LedgerBalance)
}

func int64Ptr(v int64) *int64 { return &v }

func amount(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
