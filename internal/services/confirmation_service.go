package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/charitylink/backend/internal/audit"
	"github.com/charitylink/backend/internal/gateway"
	"github.com/charitylink/backend/internal/lock"
	"github.com/charitylink/backend/internal/metrics"
	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrDonationNotFound = errors.New("donation not found")
	ErrPersistence      = errors.New("persistence failure")
	ErrAmountMismatch   = errors.New("paid amount does not match donation amount")
	ErrCampaignMissing  = errors.New("campaign missing for confirmed donation")
)

const DefaultConfirmTimeout = 10 * time.Second

type Channel string

const (
	ChannelReturn Channel = "return"
	ChannelIPN    Channel = "ipn"
	ChannelManual Channel = "manual"
)

type Outcome struct {
	Success bool
	Reason  string
}

func Succeeded() Outcome { return Outcome{Success: true} }

func Failed(reason string) Outcome { return Outcome{Reason: reason} }

// GatewayMeta carries what the confirming channel knows about the payment.
// Amount is optional; when set it must equal the donation amount.
type GatewayMeta struct {
	Channel      Channel
	Gateway      gateway.Kind
	GatewayTxnNo string
	BankCode     string
	Amount       *decimal.Decimal
	PaidAt       *time.Time
	ConfirmedBy  string
}

// MetaFromCallback builds GatewayMeta from a verified gateway callback.
func MetaFromCallback(channel Channel, cb *gateway.Callback) GatewayMeta {
	amount := cb.Amount
	return GatewayMeta{
		Channel:      channel,
		Gateway:      cb.Gateway,
		GatewayTxnNo: cb.GatewayTxnNo,
		BankCode:     cb.BankCode,
		Amount:       &amount,
		PaidAt:       cb.PaidAt,
	}
}

type ConfirmationResult string

const (
	ResultConfirmed        ConfirmationResult = "confirmed"
	ResultAlreadyProcessed ConfirmationResult = "already_processed"
	ResultRecorded         ConfirmationResult = "recorded"
	ResultNotFound         ConfirmationResult = "not_found"
	ResultAnomalyRecorded  ConfirmationResult = "anomaly_recorded"
)

func (r ConfirmationResult) String() string {
	if r == "" {
		return "error"
	}
	return string(r)
}

// confirmation is the state gathered inside the transaction and acted on
// after commit.
type confirmation struct {
	result       ConfirmationResult
	donation     *models.Donation
	campaign     *models.Campaign
	reallocation *Reallocation
	anomaly      string
}

// ConfirmationService moves a donation out of pending exactly once no matter
// how many channels report the same payment, or how often.
type ConfirmationService struct {
	store       repository.Store
	locker      lock.Locker
	reallocator *ReallocationService
	notifier    NotificationDispatcher
	audit       *audit.AuditLogger
	metrics     *metrics.Metrics
	timeout     time.Duration
	now         func() time.Time
}

func NewConfirmationService(
	store repository.Store,
	locker lock.Locker,
	reallocator *ReallocationService,
	notifier NotificationDispatcher,
	auditLogger *audit.AuditLogger,
	m *metrics.Metrics,
) *ConfirmationService {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	if reallocator == nil {
		reallocator = NewReallocationService(auditLogger, m)
	}
	return &ConfirmationService{
		store:       store,
		locker:      locker,
		reallocator: reallocator,
		notifier:    notifier,
		audit:       auditLogger,
		metrics:     m,
		timeout:     DefaultConfirmTimeout,
		now:         time.Now,
	}
}

// SetTimeout bounds the database transaction of one confirmation.
func (s *ConfirmationService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// ConfirmOutcome applies a payment outcome to the donation identified by
// transactionCode. Results other than Confirmed and Recorded leave the
// donation, its campaign and the ledger untouched, except that a donation
// whose campaign has vanished is still marked successful.
func (s *ConfirmationService) ConfirmOutcome(ctx context.Context, transactionCode string, outcome Outcome, meta GatewayMeta) (ConfirmationResult, error) {
	start := time.Now()
	code := strings.TrimSpace(transactionCode)

	result, c, err := s.confirm(ctx, code, outcome, meta)

	s.metrics.Confirmations.WithLabelValues(string(meta.Channel), result.String()).Inc()
	s.metrics.ConfirmationLatency.Observe(time.Since(start).Seconds())
	s.report(code, outcome, meta, result, c, err)

	if result == ResultConfirmed {
		s.notify(ctx, c)
	}
	return result, err
}

func (s *ConfirmationService) confirm(ctx context.Context, code string, outcome Outcome, meta GatewayMeta) (ConfirmationResult, *confirmation, error) {
	if code == "" {
		return ResultNotFound, nil, ErrDonationNotFound
	}

	release, err := s.locker.Acquire(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("%w: lock %s: %w", ErrPersistence, code, err)
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return "", nil, fmt.Errorf("%w: %s: %w", ErrPersistence, code, err)
	}

	// From here the transaction either commits or never starts; a caller
	// hanging up must not cut it short.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	c := &confirmation{}
	err = s.store.WithinTx(txCtx, func(tx repository.Tx) error {
		return s.apply(txCtx, tx, c, code, outcome, meta)
	})

	switch {
	case err == nil:
		return c.result, c, nil
	case c.donation == nil && errors.Is(err, repository.ErrNotFound):
		return ResultNotFound, c, fmt.Errorf("%w: %s", ErrDonationNotFound, code)
	case errors.Is(err, ErrAmountMismatch):
		return ResultAnomalyRecorded, c, err
	case errors.Is(err, repository.ErrDuplicateLedgerEntry), errors.Is(err, repository.ErrStaleStatus):
		return ResultAlreadyProcessed, c, nil
	default:
		return "", c, fmt.Errorf("%w: confirm %s: %w", ErrPersistence, code, err)
	}
}

func (s *ConfirmationService) apply(ctx context.Context, tx repository.Tx, c *confirmation, code string, outcome Outcome, meta GatewayMeta) error {
	d, err := tx.LockDonationByTransactionCode(ctx, code)
	if err != nil {
		return err
	}
	c.donation = d

	switch {
	case d.PaymentStatus == models.PaymentSuccess:
		c.result = ResultAlreadyProcessed
		return nil

	case !outcome.Success:
		if d.PaymentStatus == models.PaymentPending {
			if err := tx.UpdateDonationStatus(ctx, d.ID, models.PaymentPending, models.PaymentFailed, nil); err != nil {
				return err
			}
			d.PaymentStatus = models.PaymentFailed
		}
		c.result = ResultRecorded
		return nil

	case d.PaymentStatus == models.PaymentFailed:
		c.result = ResultAnomalyRecorded
		c.anomaly = "success reported for a donation already marked failed"
		return nil
	}

	if meta.Amount != nil && !meta.Amount.Equal(d.Amount) {
		c.anomaly = fmt.Sprintf("gateway reported %s, donation is %s", meta.Amount, d.Amount)
		return fmt.Errorf("%w: %s", ErrAmountMismatch, code)
	}

	confirmedAt := s.now()
	if err := tx.UpdateDonationStatus(ctx, d.ID, models.PaymentPending, models.PaymentSuccess, &confirmedAt); err != nil {
		return err
	}
	d.PaymentStatus = models.PaymentSuccess
	d.ConfirmedAt = &confirmedAt

	campaign, next, err := lockCampaigns(ctx, tx, d.CampaignID)
	if errors.Is(err, repository.ErrNotFound) {
		c.result = ResultAnomalyRecorded
		c.anomaly = ErrCampaignMissing.Error()
		return nil
	}
	if err != nil {
		return err
	}

	campaign.CurrentAmount = campaign.CurrentAmount.Add(d.Amount)
	if err := tx.UpdateCampaignAmount(ctx, campaign.ID, campaign.CurrentAmount); err != nil {
		return err
	}
	if err := tx.AppendTransaction(ctx, &models.FinancialTransaction{
		CampaignID:  campaign.ID,
		Type:        models.LedgerIn,
		Amount:      d.Amount,
		Description: fmt.Sprintf("Donation %s", d.TransactionCode),
		DonationID:  &d.ID,
	}); err != nil {
		return err
	}

	realloc, err := s.reallocator.ReallocateIfExceeding(ctx, tx, campaign, next, d.Amount, d.TransactionCode)
	if err != nil {
		return err
	}

	c.campaign = campaign
	c.reallocation = realloc
	c.result = ResultConfirmed
	return nil
}

// lockCampaigns locks the donation's campaign and, for a next_case policy,
// the campaign its excess would move to. Rows are locked in ascending id
// order so opposite transfers between two campaigns cannot deadlock. next is
// nil when there is no destination.
func lockCampaigns(ctx context.Context, tx repository.Tx, campaignID int64) (campaign, next *models.Campaign, err error) {
	current, err := tx.FindCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if current.ExcessFundPolicy != models.ExcessNextCase {
		campaign, err = tx.LockCampaign(ctx, campaignID)
		return campaign, nil, err
	}

	candidate, err := tx.FindNextCaseCampaign(ctx, current.Category, campaignID)
	if errors.Is(err, repository.ErrNotFound) {
		campaign, err = tx.LockCampaign(ctx, campaignID)
		return campaign, nil, err
	}
	if err != nil {
		return nil, nil, err
	}

	ids := []int64{campaignID, candidate.ID}
	slices.Sort(ids)
	for _, id := range ids {
		c, err := tx.LockCampaign(ctx, id)
		switch {
		case id == campaignID && err != nil:
			return nil, nil, err
		case errors.Is(err, repository.ErrNotFound):
			// destination deleted since the read
		case err != nil:
			return nil, nil, err
		case id == campaignID:
			campaign = c
		default:
			next = c
		}
	}
	return campaign, next, nil
}

func (s *ConfirmationService) report(code string, outcome Outcome, meta GatewayMeta, result ConfirmationResult, c *confirmation, err error) {
	var campaignID int64
	if c != nil && c.donation != nil {
		campaignID = c.donation.CampaignID
	}

	switch result {
	case ResultConfirmed:
		s.audit.LogConfirmation(code, campaignID, c.donation.Amount, result.String(), string(meta.Channel))
		s.audit.LogLedgerAppend(code, campaignID, string(models.LedgerIn), c.donation.Amount)
		s.reallocator.Record(c.reallocation)
		log.Printf("[CONFIRM] %s confirmed via %s (gateway txn %q), campaign %d now %s",
			code, meta.Channel, meta.GatewayTxnNo, campaignID, c.campaign.CurrentAmount)
	case ResultRecorded:
		s.audit.LogConfirmation(code, campaignID, c.donation.Amount, result.String(), string(meta.Channel))
		log.Printf("[CONFIRM] %s recorded as failed via %s: %s", code, meta.Channel, outcome.Reason)
	case ResultAlreadyProcessed:
		log.Printf("[CONFIRM] %s already processed, ignoring %s signal", code, meta.Channel)
	case ResultNotFound:
		log.Printf("[CONFIRM] No donation for transaction code %q (%s)", code, meta.Channel)
	case ResultAnomalyRecorded:
		reason := ""
		if c != nil {
			reason = c.anomaly
		}
		s.audit.LogAnomaly(code, campaignID, reason, map[string]any{
			"channel": string(meta.Channel),
			"success": outcome.Success,
		})
	default:
		s.audit.LogError(code, campaignID, err)
		log.Printf("[CONFIRM] Failed to confirm %s: %v", code, err)
	}
}

func (s *ConfirmationService) notify(ctx context.Context, c *confirmation) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	d, campaign := c.donation, c.campaign

	if d.DonorID != nil {
		s.notifier.Send(ctx, *d.DonorID, "Donation received",
			fmt.Sprintf("Thank you! Your donation of %s to %q has been confirmed.", formatAmount(d.Amount), campaign.Title),
			models.NotifyDonationSuccess)
	}

	msg := fmt.Sprintf("%s donated %s to %q.", donorLabel(d), formatAmount(d.Amount), campaign.Title)
	if d.Message != "" && !d.IsAnonymous {
		msg += fmt.Sprintf(" Message: %q", d.Message)
	}
	s.notifier.Send(ctx, campaign.CreatorID, "New donation", msg, models.NotifyCampaignDonation)

	r := c.reallocation
	if r == nil {
		return
	}
	switch r.Action {
	case ActionTransferred:
		s.notifier.Send(ctx, r.SourceCreatorID, "Excess funds reallocated",
			fmt.Sprintf("%q passed its target; %s was moved to %q.", r.SourceTitle, formatAmount(r.Amount), r.Destination.Title),
			models.NotifyExcessReallocated)
		s.notifier.Send(ctx, r.Destination.CreatorID, "Funds received from another campaign",
			fmt.Sprintf("%q received %s of excess funds from %q.", r.Destination.Title, formatAmount(r.Amount), r.SourceTitle),
			models.NotifyExcessReallocated)
	case ActionPooled:
		s.notifier.Send(ctx, r.SourceCreatorID, "Excess funds reallocated",
			fmt.Sprintf("%q passed its target; %s was moved to the %s.", r.SourceTitle, formatAmount(r.Amount), strings.ReplaceAll(r.Pool, "_", " ")),
			models.NotifyExcessReallocated)
	case ActionFlagged:
		s.notifier.Send(ctx, r.SourceCreatorID, "Excess funds under review",
			fmt.Sprintf("%q passed its target by %s; the excess is pending refund review.", r.SourceTitle, formatAmount(r.Amount)),
			models.NotifyExcessRefund)
	}
}

func donorLabel(d *models.Donation) string {
	switch {
	case d.IsAnonymous:
		return "An anonymous donor"
	case d.DonorID == nil:
		return "A guest donor"
	default:
		return fmt.Sprintf("Donor #%d", *d.DonorID)
	}
}

func formatAmount(amount decimal.Decimal) string {
	return amount.String() + " VND"
}
