package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charitylink/backend/internal/models"
	"github.com/charitylink/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Entries(ctx context.Context, campaignID int64) ([]models.FinancialTransaction, error) {
	args := m.Called(ctx, campaignID)
	rows, _ := args.Get(0).([]models.FinancialTransaction)
	return rows, args.Error(1)
}

func (m *MockLedger) VerifyCampaign(ctx context.Context, campaignID int64) (*services.ReconciliationReport, error) {
	args := m.Called(ctx, campaignID)
	report, _ := args.Get(0).(*services.ReconciliationReport)
	return report, args.Error(1)
}

func (m *MockLedger) PoolBalance(ctx context.Context, pool string) (decimal.Decimal, error) {
	args := m.Called(ctx, pool)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func ledgerRouter(ledger LedgerReader) *chi.Mux {
	h := NewLedgerHandler(ledger)
	r := chi.NewRouter()
	r.Get("/campaigns/{id}/ledger", h.GetCampaignLedger)
	r.Get("/campaigns/{id}/reconcile", h.ReconcileCampaign)
	r.Get("/ledger/pools/{pool}", h.GetPoolBalance)
	return r
}

func TestGetCampaignLedger(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("Entries", mock.Anything, int64(5)).Return([]models.FinancialTransaction{
		{ID: 1, CampaignID: 5, Type: models.LedgerIn, Amount: decimal.NewFromInt(100)},
	}, nil)
	ledger.On("Entries", mock.Anything, int64(6)).Return(nil, services.ErrCampaignNotFound)
	router := ledgerRouter(ledger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/5/ledger", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		CampaignID int64                         `json:"campaignId"`
		Entries    []models.FinancialTransaction `json:"entries"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, int64(5), body.CampaignID)
	assert.Len(t, body.Entries, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/6/ledger", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/abc/ledger", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileCampaign(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("VerifyCampaign", mock.Anything, int64(9)).Return(&services.ReconciliationReport{
		CampaignID:    9,
		CurrentAmount: decimal.NewFromInt(300),
		LedgerBalance: decimal.NewFromInt(250),
		Drift:         decimal.NewFromInt(50),
	}, nil)
	ledger.On("VerifyCampaign", mock.Anything, int64(10)).Return(nil, errors.New("connection reset"))
	router := ledgerRouter(ledger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/9/reconcile", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report services.ReconciliationReport
	decodeBody(t, rec, &report)
	assert.False(t, report.Consistent)
	assert.True(t, report.Drift.Equal(decimal.NewFromInt(50)))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/10/reconcile", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetPoolBalance(t *testing.T) {
	ledger := new(MockLedger)
	ledger.On("PoolBalance", mock.Anything, "reserve_fund").Return(decimal.NewFromInt(1200), nil)
	ledger.On("PoolBalance", mock.Anything, "slush").Return(decimal.Zero, services.ErrUnknownPool)
	router := ledgerRouter(ledger)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/pools/reserve_fund", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pool":"reserve_fund","balance":"1200"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ledger/pools/slush", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
