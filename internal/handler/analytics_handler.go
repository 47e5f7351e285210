package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/smtarpark/internal/analytics"
	"github.com/hitoshi/smtarpark/internal/model"
)

// AnalyticsServiceInterface は分析ハンドラーが必要とするサービスインターフェース。
type AnalyticsServiceInterface interface {
	Dashboard(ctx context.Context) (*model.DashboardStats, error)
	OccupancyTrend(period string) []model.OccupancyPoint
	PeakPrediction() []model.PeakPrediction
	Revenue(ctx context.Context, r analytics.RevenueRange) (*model.RevenueSummary, error)
}

// AnalyticsHandler は分析・集計のHTTPハンドラー。
type AnalyticsHandler struct {
	service AnalyticsServiceInterface
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
func NewAnalyticsHandler(service AnalyticsServiceInterface) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Dashboard はダッシュボードの集計値を返す。
// GET /analytics/dashboard
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

// Occupancy は占有率の推移を返す。
// GET /analytics/occupancy?period=day|week|month
func (h *AnalyticsHandler) Occupancy(w http.ResponseWriter, r *http.Request) {
	data := h.service.OccupancyTrend(r.URL.Query().Get("period"))
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// PeakPrediction は7日分のピーク予測を返す。
// GET /analytics/peak-prediction
func (h *AnalyticsHandler) PeakPrediction(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"predictions": h.service.PeakPrediction()})
}

// Revenue は期間内の売上を集計する。
// GET /analytics/revenue?start&end
func (h *AnalyticsHandler) Revenue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := analytics.ParseRevenueRange(q.Get("start"), q.Get("end"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	summary, err := h.service.Revenue(r.Context(), rng)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revenue": summary})
}
