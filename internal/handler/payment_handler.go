package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/parking"
)

// PaymentServiceInterface は支払いハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	ListPayments(ctx context.Context) ([]model.Payment, error)
	CreatePayment(ctx context.Context, in parking.PaymentInput) (*model.Payment, error)
	CreateGCashPayment(ctx context.Context, in parking.GCashPaymentInput) (*model.Payment, error)
}

// PaymentHandler は支払いのHTTPハンドラー。
type PaymentHandler struct {
	service PaymentServiceInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type createPaymentRequest struct {
	Plate       string  `json:"plate"`
	Amount      float64 `json:"amount"`
	Method      string  `json:"method"`
	Type        string  `json:"type"`
	ReferenceID string  `json:"referenceId"`
}

// ListPayments は全支払いを返す。
// GET /payments
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": payments})
}

// CreatePayment は支払いを記録する。
// POST /payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	p, err := h.service.CreatePayment(r.Context(), parking.PaymentInput{
		Plate:       req.Plate,
		Amount:      req.Amount,
		Method:      model.PaymentMethod(req.Method),
		Type:        model.PaymentType(req.Type),
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payment": p})
}

// CreateGCashPayment はGCash経由の支払いを記録する。
// POST /payments/gcash
func (h *PaymentHandler) CreateGCashPayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	p, err := h.service.CreateGCashPayment(r.Context(), parking.GCashPaymentInput{
		Plate:       req.Plate,
		Amount:      req.Amount,
		Type:        model.PaymentType(req.Type),
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment": p,
		"message": "GCash payment processed successfully",
	})
}
