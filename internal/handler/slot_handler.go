package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/parking"
)

// SlotServiceInterface は駐車枠ハンドラーが必要とするサービスインターフェース。
type SlotServiceInterface interface {
	ListSlots(ctx context.Context) ([]model.ParkingSlot, error)
	ListSlotsByZone(ctx context.Context, zone string) ([]model.ParkingSlot, error)
	UpdateSlot(ctx context.Context, slotID string, in parking.UpdateSlotInput) (*model.ParkingSlot, error)
}

// SlotHandler は駐車枠のHTTPハンドラー。
type SlotHandler struct {
	service SlotServiceInterface
}

// NewSlotHandler はSlotHandlerを生成する。
func NewSlotHandler(service SlotServiceInterface) *SlotHandler {
	return &SlotHandler{service: service}
}

type updateSlotRequest struct {
	Status string `json:"status"`
	Plate  string `json:"plate"`
}

// ListSlots は全駐車枠を返す。
// GET /slots
func (h *SlotHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.service.ListSlots(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// ListSlotsByZone はゾーン内の駐車枠を返す。
// GET /slots/zone/{zone}
func (h *SlotHandler) ListSlotsByZone(w http.ResponseWriter, r *http.Request) {
	slots, err := h.service.ListSlotsByZone(r.Context(), chi.URLParam(r, "zone"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

// UpdateSlot は駐車枠の状態を手動で更新する。
// PUT /slots/{id}
func (h *SlotHandler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	var req updateSlotRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	slot, err := h.service.UpdateSlot(r.Context(), chi.URLParam(r, "id"), parking.UpdateSlotInput{
		Status: model.SlotStatus(req.Status),
		Plate:  req.Plate,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slot": slot})
}
