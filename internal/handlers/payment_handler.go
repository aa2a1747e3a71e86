package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/charitylink/backend/internal/gateway"
	"github.com/charitylink/backend/internal/metrics"
	mW "github.com/charitylink/backend/internal/middleware"
	"github.com/charitylink/backend/internal/services"
)

// VNPay IPN acknowledgment codes.
const (
	vnpRspOK               = "00"
	vnpRspOrderNotFound    = "01"
	vnpRspAlreadyConfirmed = "02"
	vnpRspInvalidAmount    = "04"
	vnpRspInvalidChecksum  = "97"
	vnpRspUnknownError     = "99"
)

// Confirmer is implemented by services.ConfirmationService.
type Confirmer interface {
	ConfirmOutcome(ctx context.Context, transactionCode string, outcome services.Outcome, meta services.GatewayMeta) (services.ConfirmationResult, error)
}

type PaymentHandler struct {
	confirmer Confirmer
	gateways  *gateway.Registry
	metrics   *metrics.Metrics
	validator *services.ValidationHelper
}

func NewPaymentHandler(confirmer Confirmer, gateways *gateway.Registry, m *metrics.Metrics) *PaymentHandler {
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &PaymentHandler{
		confirmer: confirmer,
		gateways:  gateways,
		metrics:   m,
		validator: services.NewValidationHelper(),
	}
}

type ConfirmationResponse struct {
	Success         bool   `json:"success"`
	Result          string `json:"result"`
	TransactionCode string `json:"transactionCode"`
}

type VNPayIPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

type ManualConfirmRequest struct {
	TransactionCode string `json:"transactionCode" validate:"required,max=64"`
	Outcome         string `json:"outcome" validate:"required,oneof=success failed"`
	Reason          string `json:"reason" validate:"max=255"`
}

// VNPayReturn handles the browser redirect after a VNPay payment
// @Summary VNPay return URL
// @Description Verifies the signed VNPay redirect and confirms the donation
// @Tags Payments
// @Produce json
// @Param vnp_TxnRef query string true "Donation transaction code"
// @Param vnp_SecureHash query string true "HMAC signature"
// @Success 200 {object} ConfirmationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/vnpay/return [get]
func (h *PaymentHandler) VNPayReturn(w http.ResponseWriter, r *http.Request) {
	h.handleReturn(w, r, gateway.KindVNPay)
}

// MoMoReturn handles the browser redirect after a MoMo payment
// @Summary MoMo return URL
// @Description Verifies the signed MoMo redirect and confirms the donation
// @Tags Payments
// @Produce json
// @Param orderId query string true "Donation transaction code"
// @Param signature query string true "HMAC signature"
// @Success 200 {object} ConfirmationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/momo/return [get]
func (h *PaymentHandler) MoMoReturn(w http.ResponseWriter, r *http.Request) {
	h.handleReturn(w, r, gateway.KindMoMo)
}

func (h *PaymentHandler) handleReturn(w http.ResponseWriter, r *http.Request, kind gateway.Kind) {
	cb, err := h.verify(kind, queryFields(r))
	if err != nil {
		services.SendErrorResponse(w, "Invalid payment callback", http.StatusBadRequest, nil)
		return
	}

	result, err := h.confirmer.ConfirmOutcome(r.Context(), cb.TransactionCode, outcomeOf(cb), services.MetaFromCallback(services.ChannelReturn, cb))
	if status, msg := failureStatus(err); status != 0 {
		services.SendErrorResponse(w, msg, status, nil)
		return
	}

	writeJSON(w, http.StatusOK, ConfirmationResponse{
		Success:         cb.Success && (result == services.ResultConfirmed || result == services.ResultAlreadyProcessed),
		Result:          result.String(),
		TransactionCode: cb.TransactionCode,
	})
}

// VNPayIPN handles VNPay's server-to-server notification
// @Summary VNPay IPN
// @Description Verifies the VNPay IPN, confirms the donation and acknowledges with an RspCode
// @Tags Payments
// @Produce json
// @Param vnp_TxnRef query string true "Donation transaction code"
// @Param vnp_SecureHash query string true "HMAC signature"
// @Success 200 {object} VNPayIPNResponse
// @Router /payments/vnpay/ipn [get]
func (h *PaymentHandler) VNPayIPN(w http.ResponseWriter, r *http.Request) {
	cb, err := h.verify(gateway.KindVNPay, queryFields(r))
	if errors.Is(err, gateway.ErrInvalidSignature) {
		writeJSON(w, http.StatusOK, VNPayIPNResponse{RspCode: vnpRspInvalidChecksum, Message: "Invalid signature"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusOK, VNPayIPNResponse{RspCode: vnpRspUnknownError, Message: "Invalid request"})
		return
	}

	result, err := h.confirmer.ConfirmOutcome(r.Context(), cb.TransactionCode, outcomeOf(cb), services.MetaFromCallback(services.ChannelIPN, cb))
	writeJSON(w, http.StatusOK, vnpayAck(result, err))
}

func vnpayAck(result services.ConfirmationResult, err error) VNPayIPNResponse {
	switch {
	case errors.Is(err, services.ErrDonationNotFound):
		return VNPayIPNResponse{RspCode: vnpRspOrderNotFound, Message: "Order not found"}
	case errors.Is(err, services.ErrAmountMismatch):
		return VNPayIPNResponse{RspCode: vnpRspInvalidAmount, Message: "Invalid amount"}
	case err != nil:
		return VNPayIPNResponse{RspCode: vnpRspUnknownError, Message: "Unknown error"}
	case result == services.ResultAlreadyProcessed:
		return VNPayIPNResponse{RspCode: vnpRspAlreadyConfirmed, Message: "Order already confirmed"}
	}
	return VNPayIPNResponse{RspCode: vnpRspOK, Message: "Confirm Success"}
}

// MoMoIPN handles MoMo's server-to-server notification
// @Summary MoMo IPN
// @Description Verifies the MoMo IPN body and confirms the donation
// @Tags Payments
// @Accept json
// @Param request body object true "MoMo IPN payload"
// @Success 204
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/momo/ipn [post]
func (h *PaymentHandler) MoMoIPN(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	fields, err := gateway.MoMoFieldsFromJSON(body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	cb, err := h.verify(gateway.KindMoMo, fields)
	if err != nil {
		services.SendErrorResponse(w, "Invalid payment callback", http.StatusBadRequest, nil)
		return
	}

	_, err = h.confirmer.ConfirmOutcome(r.Context(), cb.TransactionCode, outcomeOf(cb), services.MetaFromCallback(services.ChannelIPN, cb))
	if status, msg := failureStatus(err); status != 0 {
		services.SendErrorResponse(w, msg, status, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ManualConfirm confirms a bank transfer or simulated payment by transaction code
// @Summary Manual confirmation
// @Description Operator confirmation for payments that have no gateway callback
// @Tags Payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ManualConfirmRequest true "Confirmation request"
// @Success 200 {object} ConfirmationResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/confirm [post]
func (h *PaymentHandler) ManualConfirm(w http.ResponseWriter, r *http.Request) {
	var req ManualConfirmRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	outcome := services.Succeeded()
	if req.Outcome == "failed" {
		outcome = services.Failed(req.Reason)
	}
	meta := services.GatewayMeta{
		Channel:     services.ChannelManual,
		Gateway:     gateway.KindManual,
		ConfirmedBy: mW.UserID(r.Context()),
	}
	log.Printf("[PAYMENT] Manual %s confirmation of %s by user %s", req.Outcome, req.TransactionCode, meta.ConfirmedBy)

	result, err := h.confirmer.ConfirmOutcome(r.Context(), req.TransactionCode, outcome, meta)
	if status, msg := failureStatus(err); status != 0 {
		services.SendErrorResponse(w, msg, status, nil)
		return
	}

	writeJSON(w, http.StatusOK, ConfirmationResponse{
		Success:         outcome.Success && (result == services.ResultConfirmed || result == services.ResultAlreadyProcessed),
		Result:          result.String(),
		TransactionCode: req.TransactionCode,
	})
}

func (h *PaymentHandler) verify(kind gateway.Kind, fields map[string]string) (*gateway.Callback, error) {
	cb, err := h.gateways.VerifyAndParse(kind, fields)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidSignature) {
			h.metrics.SignatureFailures.WithLabelValues(string(kind)).Inc()
		}
		log.Printf("[PAYMENT] Rejected %s callback: %v", kind, err)
		return nil, err
	}
	return cb, nil
}

// failureStatus maps the errors that must be surfaced to an HTTP status.
// Everything else is reported as success.
func failureStatus(err error) (int, string) {
	switch {
	case err == nil:
		return 0, ""
	case errors.Is(err, services.ErrDonationNotFound):
		return http.StatusNotFound, "Donation not found"
	case errors.Is(err, services.ErrPersistence):
		return http.StatusInternalServerError, "Could not record payment, please retry"
	}
	return 0, ""
}

func outcomeOf(cb *gateway.Callback) services.Outcome {
	if cb.Success {
		return services.Succeeded()
	}
	return services.Failed(fmt.Sprintf("%s response code %s", cb.Gateway, cb.ResponseCode))
}

func queryFields(r *http.Request) map[string]string {
	query := r.URL.Query()
	fields := make(map[string]string, len(query))
	for k, v := range query {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
