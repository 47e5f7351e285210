package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/parking"
)

// ViolationServiceInterface は違反ハンドラーが必要とするサービスインターフェース。
type ViolationServiceInterface interface {
	ListViolations(ctx context.Context) ([]model.Violation, error)
	CreateViolation(ctx context.Context, in parking.ViolationInput) (*model.Violation, error)
	UpdateViolationStatus(ctx context.Context, violationID string, in parking.UpdateViolationInput) (*model.Violation, error)
}

// ViolationHandler は違反記録のHTTPハンドラー。
type ViolationHandler struct {
	service ViolationServiceInterface
}

// NewViolationHandler はViolationHandlerを生成する。
func NewViolationHandler(service ViolationServiceInterface) *ViolationHandler {
	return &ViolationHandler{service: service}
}

type createViolationRequest struct {
	Plate    string  `json:"plate"`
	Type     string  `json:"type"`
	Fine     float64 `json:"fine"`
	PhotoURL string  `json:"photoUrl"`
}

type updateViolationRequest struct {
	Status string `json:"status"`
}

// ListViolations は全違反を返す。
// GET /violations
func (h *ViolationHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	violations, err := h.service.ListViolations(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"violations": violations})
}

// CreateViolation は違反を記録する。
// POST /violations
func (h *ViolationHandler) CreateViolation(w http.ResponseWriter, r *http.Request) {
	var req createViolationRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	v, err := h.service.CreateViolation(r.Context(), parking.ViolationInput{
		Plate:    req.Plate,
		Type:     req.Type,
		Fine:     req.Fine,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"violation": v})
}

// UpdateViolation は違反の状態を更新する。
// PUT /violations/{id}
func (h *ViolationHandler) UpdateViolation(w http.ResponseWriter, r *http.Request) {
	var req updateViolationRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	v, err := h.service.UpdateViolationStatus(r.Context(), chi.URLParam(r, "id"), parking.UpdateViolationInput{
		Status: model.ViolationStatus(req.Status),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"violation": v})
}
