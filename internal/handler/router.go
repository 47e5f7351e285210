package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/smtarpark/internal/middleware"
)

// DefaultBasePath は全APIルートの共通プレフィックス。
const DefaultBasePath = "/make-server-66851205"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ルーティング
	BasePath string
	Logger   *slog.Logger

	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPRecorder      middleware.HTTPRecorder // nilの場合はHTTPメトリクスを記録しない
	MetricsHandler    http.Handler            // nilの場合は/metricsを公開しない

	// 認証・アカウント
	AuthService    AuthServiceInterface
	AccountService AccountServiceInterface

	// 駐車場
	SlotService      SlotServiceInterface
	VehicleService   VehicleServiceInterface
	ViolationService ViolationServiceInterface
	PaymentService   PaymentServiceInterface

	// 分析
	AnalyticsService AnalyticsServiceInterface

	// ヘルスチェック
	Store Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Metrics → (Session → RateLimit(General))
//
// 公開ルートと認証ルートはルートごとに明示的に列挙する。/metricsはプレフィックスの外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	basePath := deps.BasePath
	if basePath == "" {
		basePath = DefaultBasePath
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	// CORS ミドルウェアは認証より外側に適用する（プリフライトは常に204）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.HTTPRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPRecorder))
	}

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AccountService)
	slotHandler := NewSlotHandler(deps.SlotService)
	vehicleHandler := NewVehicleHandler(deps.VehicleService)
	violationHandler := NewViolationHandler(deps.ViolationService)
	paymentHandler := NewPaymentHandler(deps.PaymentService)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService)
	healthHandler := NewHealthHandler(deps.Store)

	r.Route(basePath, func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, messageResponse{Message: "Not found"})
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: "Method not allowed"})
		})

		// --- 認証不要のルート ---

		r.Get("/health", healthHandler.Health)
		r.Get("/health/ready", healthHandler.Ready)

		// ログイン系はIP単位のレート制限を適用
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/exchange", authHandler.Exchange)
			r.Post("/auth/signup", authHandler.Signup)
		})
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/reset-accounts", authHandler.ResetAccounts)

		r.Get("/slots", slotHandler.ListSlots)
		r.Get("/slots/zone/{zone}", slotHandler.ListSlotsByZone)

		r.Get("/vehicles", vehicleHandler.ListVehicles)
		r.Get("/vehicles/{id}", vehicleHandler.GetVehicle)
		r.Get("/vehicles/plate/{plate}", vehicleHandler.GetVehicleByPlate)

		r.Get("/analytics/dashboard", analyticsHandler.Dashboard)
		r.Get("/analytics/occupancy", analyticsHandler.Occupancy)
		r.Get("/analytics/peak-prediction", analyticsHandler.PeakPrediction)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/profile", authHandler.UpdateProfile)

			r.Put("/slots/{id}", slotHandler.UpdateSlot)

			r.Post("/vehicles/entry", vehicleHandler.RecordEntry)
			r.Post("/vehicles/{id}/exit", vehicleHandler.RecordExit)
			r.Delete("/vehicles/{id}", vehicleHandler.DeleteVehicle)
			r.Put("/vehicles/{id}/credit", vehicleHandler.UpdateCreditScore)

			r.Get("/violations", violationHandler.ListViolations)
			r.Post("/violations", violationHandler.CreateViolation)
			r.Put("/violations/{id}", violationHandler.UpdateViolation)

			r.Get("/payments", paymentHandler.ListPayments)
			r.Post("/payments", paymentHandler.CreatePayment)
			r.Post("/payments/gcash", paymentHandler.CreateGCashPayment)

			r.Get("/analytics/revenue", analyticsHandler.Revenue)
		})
	})

	return r
}
