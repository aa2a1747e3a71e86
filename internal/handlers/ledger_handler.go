package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// LedgerReader is implemented by services.LedgerService.
type LedgerReader interface {
	Entries(ctx context.Context, campaignID int64) ([]models.FinancialTransaction, error)
	VerifyCampaign(ctx context.Context, campaignID int64) (*services.ReconciliationReport, error)
	PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error)
}

type LedgerHandler struct {
	ledger LedgerReader
}

func NewLedgerHandler(ledger LedgerReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// GetCampaignLedger lists a campaign's ledger rows
// @Summary Campaign ledger
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} object{campaignId=int64,entries=[]models.FinancialTransaction}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /campaigns/{id}/ledger [get]
func (h *LedgerHandler) GetCampaignLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.ledger.Entries(r.Context(), id)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	if entries == nil {
		entries = []models.FinancialTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"campaignId": id, "entries": entries})
}

// ReconcileCampaign compares a campaign's total against its ledger
// @Summary Reconcile campaign
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param id path int true "Campaign ID"
// @Success 200 {object} services.ReconciliationReport
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /campaigns/{id}/reconcile [get]
func (h *LedgerHandler) ReconcileCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignIDParam(w, r)
	if !ok {
		return
	}
	report, err := h.ledger.VerifyCampaign(r.Context(), id)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetPoolBalance returns the total moved into a fund pool
// @Summary Fund pool balance
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param pool path string true "reserve_fund or general_fund"
// @Success 200 {object} object{pool=string,balance=string}
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger/pools/{pool} [get]
func (h *LedgerHandler) GetPoolBalance(w http.ResponseWriter, r *http.Request) {
	pool := chi.URLParam(r, "pool")
	balance, err := h.ledger.PoolBalance(r.Context(), pool)
	if err != nil {
		sendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool": pool, "balance": balance})
}

func campaignIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid campaign id", http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

func sendLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCampaignNotFound):
		services.SendErrorResponse(w, "Campaign not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrUnknownPool):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	default:
		services.SendErrorResponse(w, "Internal server error", http.StatusInternalServerError, nil)
	}
}
