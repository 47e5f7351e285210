package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/smtarpark/internal/analytics"
	"github.com/hitoshi/smtarpark/internal/auth"
	"github.com/hitoshi/smtarpark/internal/kv"
	"github.com/hitoshi/smtarpark/internal/middleware"
	"github.com/hitoshi/smtarpark/internal/parking"
	"github.com/hitoshi/smtarpark/internal/repository"
	"github.com/hitoshi/smtarpark/internal/security"
	"github.com/hitoshi/smtarpark/internal/user"
)

const testBase = DefaultBasePath

// testServer はインメモリBadgerとローカルIdPで組み立てた実サービス構成のルーター。
type testServer struct {
	router   http.Handler
	store    *kv.BadgerStore
	sessions *repository.KVSessionRepo
	limiter  *middleware.RateLimiter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := kv.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	repos := parking.Repositories{
		Slots:      repository.NewSlotRepo(store),
		Vehicles:   repository.NewVehicleRepo(store),
		Violations: repository.NewViolationRepo(store),
		Payments:   repository.NewPaymentRepo(store),
	}
	if _, err := repos.Slots.Ensure(ctx, parking.SeedSlots([]string{"A", "B"}, 5)); err != nil {
		t.Fatalf("seed slots: %v", err)
	}

	idp := auth.NewLocalProviderWithCost(bcrypt.MinCost)
	sessions := repository.NewKVSessionRepo(store)
	authSvc := auth.NewService(idp, sessions, auth.ServiceConfig{})
	accountSvc := user.NewService(idp, authSvc)
	if err := accountSvc.EnsureDefaultAccounts(ctx); err != nil {
		t.Fatalf("EnsureDefaultAccounts() error = %v", err)
	}

	parkingSvc := parking.NewService(repos, security.NewTextSanitizer(), nil, parking.Config{})
	analyticsSvc := analytics.NewService(analytics.Repositories{
		Slots:      repos.Slots,
		Vehicles:   repos.Vehicles,
		Violations: repos.Violations,
		Payments:   repos.Payments,
	})

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	router := NewRouter(&RouterDeps{
		SessionVerifier:   authSvc,
		CORSAllowedOrigin: "*",
		RateLimiter:       limiter,
		AuthService:       authSvc,
		AccountService:    accountSvc,
		SlotService:       parkingSvc,
		VehicleService:    parkingSvc,
		ViolationService:  parkingSvc,
		PaymentService:    parkingSvc,
		AnalyticsService:  analyticsSvc,
		Store:             store,
	})

	return &testServer{router: router, store: store, sessions: sessions, limiter: limiter}
}

// do はリクエストを実行し、レスポンスを返す。bodyがnilでない場合はJSONとして送る。
func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, testBase+path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(middleware.SessionTokenHeader, token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// login は既定アカウントでログインし、セッショントークンを返す。
func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp sessionResponse
	decodeBody(t, w, &resp)
	return resp.Token
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, want, w.Body.String())
	}
}

func expectMessage(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body map[string]any
	decodeBody(t, w, &body)
	if body["message"] != want {
		t.Errorf("message = %v, want %q", body["message"], want)
	}
}
