package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/smtarpark/internal/analytics"
	"github.com/hitoshi/smtarpark/internal/auth"
	"github.com/hitoshi/smtarpark/internal/bootstrap"
	"github.com/hitoshi/smtarpark/internal/config"
	"github.com/hitoshi/smtarpark/internal/database"
	"github.com/hitoshi/smtarpark/internal/handler"
	"github.com/hitoshi/smtarpark/internal/kv"
	"github.com/hitoshi/smtarpark/internal/logger"
	"github.com/hitoshi/smtarpark/internal/metrics"
	"github.com/hitoshi/smtarpark/internal/middleware"
	"github.com/hitoshi/smtarpark/internal/parking"
	"github.com/hitoshi/smtarpark/internal/repository"
	"github.com/hitoshi/smtarpark/internal/security"
	"github.com/hitoshi/smtarpark/internal/user"
	"github.com/hitoshi/smtarpark/internal/worker/cleanup"
)

const (
	shutdownTimeout  = 30 * time.Second
	storeOpenTimeout = 10 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	if cfg.LogLevel != slog.LevelInfo {
		logger.SetupDefault(w, cfg.LogLevel)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		basePath := os.Getenv("API_BASE_PATH")
		if basePath == "" {
			basePath = handler.DefaultBasePath
		}
		return runHealthcheck(healthcheckURL(port, basePath))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("kv_backend", cfg.KVBackend),
		slog.String("identity_provider", cfg.IdentityProvider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSweepSessions:
		return runSweepSessions(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// services は1プロセス分のサービス群。
type services struct {
	store     kv.Store
	repos     parking.Repositories
	auth      *auth.Service
	accounts  *user.Service
	parking   *parking.Service
	analytics *analytics.Service
	collector *metrics.Collector
	registry  *prometheus.Registry
}

// newServices はストアの上に全サービスを組み立てる。
func newServices(cfg *config.Config, store kv.Store) *services {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	repos := parking.Repositories{
		Slots:      repository.NewSlotRepo(store),
		Vehicles:   repository.NewVehicleRepo(store),
		Violations: repository.NewViolationRepo(store),
		Payments:   repository.NewPaymentRepo(store),
	}

	idp := newIdentityProvider(cfg)
	authService := auth.NewService(idp, repository.NewKVSessionRepo(store), auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		Metrics:       collector,
	})

	return &services{
		store:     store,
		repos:     repos,
		auth:      authService,
		accounts:  user.NewService(idp, authService),
		parking:   parking.NewService(repos, security.NewTextSanitizer(), collector, parking.Config{HourlyRate: cfg.HourlyRate}),
		analytics: analytics.NewService(analytics.Repositories{
			Slots:      repos.Slots,
			Vehicles:   repos.Vehicles,
			Violations: repos.Violations,
			Payments:   repos.Payments,
		}),
		collector: collector,
		registry:  registry,
	}
}

// bootstrap はコレクションと既定アカウントを用意する。
// 失敗はログに記録するのみで、サーバーの起動は継続する。
func (s *services) bootstrap(ctx context.Context, cfg *config.Config) {
	b := bootstrap.New(s.repos, repository.NewKVFlagRepo(s.store), s.accounts, bootstrap.Config{
		Zones:        cfg.ParkingZones,
		SlotsPerZone: cfg.SlotsPerZone,
		MaxAttempts:  cfg.BootstrapMaxAttempts,
	}, slog.Default())

	if err := b.Run(ctx); err != nil {
		slog.Warn("bootstrap finished with errors", slog.String("error", err.Error()))
	}
}

// router はHTTPハンドラーを構築する。
func (s *services) router(cfg *config.Config, limiter *middleware.RateLimiter) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		BasePath:          cfg.APIBasePath,
		Logger:            slog.Default(),
		SessionVerifier:   s.auth,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		HTTPRecorder:      s.collector,
		MetricsHandler:    metrics.Handler(s.registry),

		AuthService:    s.auth,
		AccountService: s.accounts,

		SlotService:      s.parking,
		VehicleService:   s.parking,
		ViolationService: s.parking,
		PaymentService:   s.parking,

		AnalyticsService: s.analytics,

		Store: s.store,
	})
}

// openStore はKV_BACKENDに応じたストアを開き、サーキットブレーカーで包んで返す。
func openStore(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	var store kv.Store
	switch cfg.KVBackend {
	case config.KVBackendMemory:
		s, err := kv.OpenInMemory()
		if err != nil {
			return nil, fmt.Errorf("failed to open in-memory store: %w", err)
		}
		store = s

	case config.KVBackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store = kv.NewPostgresStore(db)

	case config.KVBackendRedis:
		s := kv.NewRedisStore(kv.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store = s

	default:
		s, err := kv.OpenBadger(kv.BadgerConfig{Path: cfg.BadgerPath, Logger: slog.Default()})
		if err != nil {
			return nil, err
		}
		store = s
	}

	slog.Info("kv store connection established", slog.String("backend", cfg.KVBackend))
	return kv.WithCircuitBreaker(store, config.NewCircuitBreaker("KV-"+cfg.KVBackend)), nil
}

// newIdentityProvider はIDENTITY_PROVIDERに応じた認証基盤を返す。
func newIdentityProvider(cfg *config.Config) auth.IdentityProvider {
	if cfg.IdentityProvider == config.IdentityProviderSupabase {
		return auth.NewSupabaseProvider(auth.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			AnonKey:        cfg.SupabaseAnonKey,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Timeout:        cfg.IdentityTimeout,
		}, config.NewCircuitBreaker("IdentityProvider"))
	}
	return auth.NewLocalProvider()
}

// runServe はAPIサーバーモードで起動する。
// ストアを開いて初期化を行い、HTTPサーバーとセッションクリーンアップを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open kv store: %w", err)
	}
	defer store.Close()

	svc := newServices(cfg, store)
	svc.bootstrap(ctx, cfg)

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin))
	defer limiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      svc.router(cfg, limiter),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serve(ctx, server, cleanup.NewSessionCleanupJob(svc.auth, slog.Default()), cfg.SessionSweepInterval)
}

// serve はHTTPサーバーとクリーンアップジョブを並行に動かし、ctxのキャンセルで両方を停止する。
// どちらかが異常終了した場合も残りを停止してエラーを返す。
func serve(ctx context.Context, server *http.Server, job *cleanup.SessionCleanupJob, sweepInterval time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	if sweepInterval > 0 {
		g.Go(func() error {
			job.Start(gctx, sweepInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runSweepSessions は期限切れセッションを1回削除して終了する。
// cronなど外部スケジューラからの実行を想定している。
func runSweepSessions(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open kv store: %w", err)
	}
	defer store.Close()

	svc := newServices(cfg, store)
	return cleanup.NewSessionCleanupJob(svc.auth, slog.Default()).Run(ctx)
}

// runMigrate はkv_storeテーブルのマイグレーションを実行する。
// PostgreSQLバックエンド専用。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

func healthcheckURL(port, basePath string) string {
	return fmt.Sprintf("http://localhost:%s%s/health", port, basePath)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
