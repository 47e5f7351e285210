package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/parking"
)

// VehicleServiceInterface は車両ハンドラーが必要とするサービスインターフェース。
type VehicleServiceInterface interface {
	ListVehicles(ctx context.Context) ([]model.Vehicle, error)
	GetVehicle(ctx context.Context, vehicleID string) (*model.Vehicle, error)
	GetVehicleByPlate(ctx context.Context, plate string) (*model.Vehicle, error)
	RecordEntry(ctx context.Context, in parking.EntryInput) (*model.Vehicle, error)
	RecordExit(ctx context.Context, vehicleID string) (*parking.ExitResult, error)
	DeleteVehicle(ctx context.Context, vehicleID string) (*model.Vehicle, error)
	UpdateCreditScore(ctx context.Context, vehicleID string, score int) (*model.Vehicle, error)
}

// VehicleHandler は車両と入出庫のHTTPハンドラー。
type VehicleHandler struct {
	service VehicleServiceInterface
}

// NewVehicleHandler はVehicleHandlerを生成する。
func NewVehicleHandler(service VehicleServiceInterface) *VehicleHandler {
	return &VehicleHandler{service: service}
}

type entryRequest struct {
	Plate  string `json:"plate"`
	Owner  string `json:"owner"`
	SlotID string `json:"slotId"`
}

type creditRequest struct {
	Score *int `json:"score"`
}

type vehicleResponse struct {
	Vehicle *model.Vehicle `json:"vehicle"`
}

// ListVehicles は全車両を返す。
// GET /vehicles
func (h *VehicleHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.service.ListVehicles(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

// GetVehicle はIDで車両を返す。
// GET /vehicles/{id}
func (h *VehicleHandler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicleResponse{Vehicle: v})
}

// GetVehicleByPlate はナンバーで車両を返す。
// GET /vehicles/plate/{plate}
func (h *VehicleHandler) GetVehicleByPlate(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetVehicleByPlate(r.Context(), chi.URLParam(r, "plate"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicleResponse{Vehicle: v})
}

// RecordEntry は車両の入庫を記録する。
// POST /vehicles/entry
func (h *VehicleHandler) RecordEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	v, err := h.service.RecordEntry(r.Context(), parking.EntryInput{
		Plate:  req.Plate,
		Owner:  req.Owner,
		SlotID: req.SlotID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicleResponse{Vehicle: v})
}

// RecordExit は車両の出庫を記録し、料金を返す。
// POST /vehicles/{id}/exit
func (h *VehicleHandler) RecordExit(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RecordExit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"vehicle": result.Vehicle,
		"fee":     result.Fee,
	})
}

// DeleteVehicle は車両を削除する。
// DELETE /vehicles/{id}
func (h *VehicleHandler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.DeleteVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Vehicle deleted successfully",
		"vehicle": v,
	})
}

// UpdateCreditScore は信用スコアを上書きする。
// PUT /vehicles/{id}/credit
func (h *VehicleHandler) UpdateCreditScore(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	if req.Score == nil {
		handleServiceError(w, r, model.NewValidationError("Score is required"))
		return
	}

	v, err := h.service.UpdateCreditScore(r.Context(), chi.URLParam(r, "id"), *req.Score)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicleResponse{Vehicle: v})
}
