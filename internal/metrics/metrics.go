// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// parking.Recorder、auth.SessionMetrics、HTTPミドルウェアから利用する。
type Collector struct {
	vehicleEntries  prometheus.Counter
	vehicleExits    prometheus.Counter
	parkingFees     prometheus.Counter
	violations      prometheus.Counter
	payments        *prometheus.CounterVec
	paymentAmount   *prometheus.CounterVec
	sessionsCreated *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		vehicleEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtarpark_vehicle_entries_total",
			Help: "入庫記録の合計数",
		}),
		vehicleExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtarpark_vehicle_exits_total",
			Help: "出庫記録の合計数",
		}),
		parkingFees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtarpark_parking_fees_total",
			Help: "出庫時に計算した駐車料金の合計（ペソ）",
		}),
		violations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smtarpark_violations_total",
			Help: "記録された違反の合計数",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtarpark_payments_total",
			Help: "支払い手段・種別ごとの支払い件数",
		}, []string{"method", "type"}),
		paymentAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtarpark_payment_amount_total",
			Help: "支払い種別ごとの支払い金額の合計（ペソ）",
		}, []string{"type"}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtarpark_sessions_created_total",
			Help: "ログイン方式ごとのセッション発行数",
		}, []string{"method"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smtarpark_http_requests_total",
			Help: "ルート・メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"route", "method", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "smtarpark_http_request_duration_seconds",
			Help:    "ルート別のHTTPリクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	reg.MustRegister(
		c.vehicleEntries,
		c.vehicleExits,
		c.parkingFees,
		c.violations,
		c.payments,
		c.paymentAmount,
		c.sessionsCreated,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordVehicleEntry は入庫を記録する。
func (c *Collector) RecordVehicleEntry() {
	c.vehicleEntries.Inc()
}

// RecordVehicleExit は出庫と駐車料金を記録する。
func (c *Collector) RecordVehicleExit(fee int) {
	c.vehicleExits.Inc()
	c.parkingFees.Add(float64(fee))
}

// RecordViolation は違反の記録を数える。
func (c *Collector) RecordViolation() {
	c.violations.Inc()
}

// RecordPayment は支払いを記録する。
func (c *Collector) RecordPayment(method, paymentType string, amount float64) {
	c.payments.WithLabelValues(method, paymentType).Inc()
	if amount > 0 {
		c.paymentAmount.WithLabelValues(paymentType).Add(amount)
	}
}

// RecordSessionCreated はセッション発行を記録する。
func (c *Collector) RecordSessionCreated(method string) {
	c.sessionsCreated.WithLabelValues(method).Inc()
}

// RecordHTTPRequest はHTTPリクエストの結果と処理時間を記録する。
// routeにはパスではなくルートパターンを渡す。
func (c *Collector) RecordHTTPRequest(route, method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
