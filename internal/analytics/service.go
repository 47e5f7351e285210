// Package analytics はダッシュボード集計、占有率推移、ピーク予測、売上集計を提供する。
//
// 占有率推移とピーク予測は実データに基づかない合成値を返す。
package analytics

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/repository"
)

const (
	// syntheticTotalSlots は合成占有率データの総枠数。
	syntheticTotalSlots = 300
	// maxTrendPoints は占有率推移の最大点数。
	maxTrendPoints = 48
	// predictionDays はピーク予測の日数。
	predictionDays = 7
)

// Repositories は集計に使用するコレクションのリポジトリ。
type Repositories struct {
	Slots      repository.SlotRepository
	Vehicles   repository.VehicleRepository
	Violations repository.ViolationRepository
	Payments   repository.PaymentRepository
}

// Service は集計処理を提供する。
type Service struct {
	repos Repositories
	now   func() time.Time
	rand  func() float64
	loc   *time.Location
}

// NewService はServiceの新しいインスタンスを生成する。
// 「今日」の境界はサーバーのローカルタイムゾーンで判定する。
func NewService(repos Repositories) *Service {
	return &Service{
		repos: repos,
		now:   time.Now,
		rand:  rand.Float64,
		loc:   time.Local,
	}
}

// Dashboard は現在の状態から集計値を計算する。
func (s *Service) Dashboard(ctx context.Context) (*model.DashboardStats, error) {
	var (
		slots      []model.ParkingSlot
		vehicles   []model.Vehicle
		violations []model.Violation
		payments   []model.Payment
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		slots, err = s.repos.Slots.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		vehicles, err = s.repos.Vehicles.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		violations, err = s.repos.Violations.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.repos.Payments.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load collections: %w", err)
	}

	stats := &model.DashboardStats{
		TotalSlots:    len(slots),
		TotalVehicles: len(vehicles),
	}
	for _, sl := range slots {
		switch sl.Status {
		case model.SlotStatusOccupied:
			stats.OccupiedSlots++
		case model.SlotStatusFree:
			stats.FreeSlots++
		}
	}
	if stats.TotalSlots > 0 {
		stats.OccupancyRate = roundTo(float64(stats.OccupiedSlots)/float64(stats.TotalSlots)*100, 1)
	}

	now := s.now().In(s.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	for _, p := range payments {
		if p.Status == model.PaymentStatusCompleted && !p.Date.Before(midnight) {
			stats.TodayRevenue += p.Amount
		}
	}

	for _, v := range violations {
		if v.Status == model.ViolationStatusUnpaid {
			stats.UnpaidViolations++
		}
	}
	return stats, nil
}

// PeriodHours は期間名を時間数に変換する。未指定はday、未知の値はmonthとして扱う。
func PeriodHours(period string) int {
	switch strings.ToLower(period) {
	case "", "day":
		return 24
	case "week":
		return 7 * 24
	default:
		return 30 * 24
	}
}

// OccupancyTrend は期間に応じた合成の占有率推移を返す。
// 点は1時間間隔で、期間の先頭から最大48点。ピーク時間帯（9〜12時、17〜20時）は基準値を高くする。
func (s *Service) OccupancyTrend(period string) []model.OccupancyPoint {
	hours := PeriodHours(period)
	now := s.now()

	n := min(hours, maxTrendPoints)
	points := make([]model.OccupancyPoint, 0, n)
	for i := 0; i < n; i++ {
		t := now.Add(-time.Duration(hours-i) * time.Hour)
		base := 100.0
		if isPeakHour(t.In(s.loc).Hour()) {
			base = 200
		}
		points = append(points, model.OccupancyPoint{
			Time:     t.UTC().Format(time.RFC3339Nano),
			Occupied: int(math.Floor(base + s.rand()*50)),
			Total:    syntheticTotalSlots,
		})
	}
	return points
}

func isPeakHour(hour int) bool {
	return (hour >= 9 && hour <= 12) || (hour >= 17 && hour <= 20)
}

// PeakPrediction は今日から7日分のピーク予測を返す。
// 週末は14:00に85%、平日は10:00に75%を予測する。
func (s *Service) PeakPrediction() []model.PeakPrediction {
	today := s.now().In(s.loc)
	predictions := make([]model.PeakPrediction, 0, predictionDays)
	for i := 0; i < predictionDays; i++ {
		d := today.AddDate(0, 0, i)
		p := model.PeakPrediction{
			Date:               d.Format(time.DateOnly),
			PredictedPeakTime:  "10:00",
			PredictedOccupancy: 75,
			Confidence:         0.87 + s.rand()*0.1,
		}
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			p.PredictedPeakTime = "14:00"
			p.PredictedOccupancy = 85
		}
		predictions = append(predictions, p)
	}
	return predictions
}

// RevenueRange は売上集計の期間。ゼロ値は無制限を表す。
type RevenueRange struct {
	Start time.Time
	End   time.Time
}

// ParseRevenueRange はクエリ文字列の開始・終了日時を解釈する。
// RFC3339または日付のみ（YYYY-MM-DD）を受け付け、日付のみの終了日はその日の終わりまでを含む。
func ParseRevenueRange(start, end string) (RevenueRange, error) {
	var r RevenueRange
	var err error
	if start != "" {
		if r.Start, _, err = parseDate(start); err != nil {
			return r, model.NewValidationError("Invalid start date")
		}
	}
	if end != "" {
		var dateOnly bool
		if r.End, dateOnly, err = parseDate(end); err != nil {
			return r, model.NewValidationError("Invalid end date")
		}
		if dateOnly {
			r.End = r.End.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return r, model.NewValidationError("End date must not be before start date")
	}
	return r, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	return t, true, err
}

// Revenue は期間内の完了済み支払いを種別ごとに集計する。
func (s *Service) Revenue(ctx context.Context, r RevenueRange) (*model.RevenueSummary, error) {
	payments, err := s.repos.Payments.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &model.RevenueSummary{}
	for _, p := range payments {
		if p.Status != model.PaymentStatusCompleted {
			continue
		}
		if !r.Start.IsZero() && p.Date.Before(r.Start) {
			continue
		}
		if !r.End.IsZero() && p.Date.After(r.End) {
			continue
		}
		summary.Total += p.Amount
		summary.TransactionCount++
		switch p.Type {
		case model.PaymentTypeParking:
			summary.Parking += p.Amount
		case model.PaymentTypeViolation:
			summary.Violations += p.Amount
		}
	}
	return summary, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
