// Package auth はスタッフのログイン、セッショントークンの発行と検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/repository"
)

// DefaultSessionMaxAge はセッションの有効期間。延長はしない。
const DefaultSessionMaxAge = 24 * time.Hour

// SessionMetrics はセッション発行数を記録するインターフェース。
type SessionMetrics interface {
	RecordSessionCreated(method string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge time.Duration
	Metrics       SessionMetrics
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	idp         IdentityProvider
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(idp IdentityProvider, sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = DefaultSessionMaxAge
	}
	return &Service{
		idp:         idp,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}

	pu, err := s.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			slog.Info("login rejected", slog.String("email", email))
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, UpstreamError("password sign-in", err)
	}

	name := pu.Metadata.Name
	if name == "" {
		name = emailLocalPart(pu.Email)
	}

	user := &model.User{
		ID:    pu.ID,
		Email: pu.Email,
		Name:  name,
		Role:  roleOrDefault(pu.Metadata.Role),
	}
	return s.createSession(ctx, user, "password")
}

// Exchange はIdPのアクセストークン（OAuthログインの結果）をセッションに交換する。
func (s *Service) Exchange(ctx context.Context, accessToken string) (*model.Session, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, model.NewValidationError("Access token is required")
	}

	pu, err := s.idp.GetUserByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return nil, model.NewInvalidOAuthTokenError()
		}
		return nil, UpstreamError("access token lookup", err)
	}

	name := pu.Metadata.Name
	if name == "" {
		name = pu.Metadata.FullName
	}
	if name == "" {
		name = emailLocalPart(pu.Email)
	}
	if name == "" {
		name = "User"
	}

	user := &model.User{
		ID:    pu.ID,
		Email: pu.Email,
		Name:  name,
		Role:  roleOrDefault(pu.Metadata.Role),
	}
	return s.createSession(ctx, user, "oauth")
}

// CreateSession は認証済みユーザーのセッションを発行する。
func (s *Service) CreateSession(ctx context.Context, user *model.User) (*model.Session, error) {
	return s.createSession(ctx, user, "direct")
}

func (s *Service) createSession(ctx context.Context, user *model.User, method string) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		Token:     NewSessionToken(),
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionMaxAge),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if s.config.Metrics != nil {
		s.config.Metrics.RecordSessionCreated(method)
	}
	slog.Info("session created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
		slog.String("method", method),
	)
	return session, nil
}

// Verify はセッショントークンを検証する。
// 空・プレースホルダー・未登録・期限切れのトークンにはnilを返す。
// 期限切れのセッションは検出時に削除する。
func (s *Service) Verify(ctx context.Context, token string) (*model.Session, error) {
	if isPlaceholderToken(token) {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.Expired(s.now()) {
		if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
			slog.Warn("failed to delete expired session", slog.String("error", err.Error()))
		}
		return nil, nil
	}
	return session, nil
}

// Logout はセッションを破棄する。冪等であり、未登録のトークンでもエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if isPlaceholderToken(token) {
		return nil
	}
	if err := s.sessionRepo.DeleteByToken(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// UpdateSessionName はセッションに保持している表示名を更新する。
func (s *Service) UpdateSessionName(ctx context.Context, token, name string) error {
	return s.sessionRepo.UpdateName(ctx, token, name)
}

// PurgeAll は全セッションを削除し、削除件数を返す。
func (s *Service) PurgeAll(ctx context.Context) (int, error) {
	return s.deleteSessions(ctx, func(*model.Session) bool { return true })
}

// SweepExpired は期限切れセッションを削除し、削除件数を返す。
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	return s.deleteSessions(ctx, func(session *model.Session) bool {
		return session.Expired(now)
	})
}

func (s *Service) deleteSessions(ctx context.Context, match func(*model.Session) bool) (int, error) {
	sessions, err := s.sessionRepo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	deleted := 0
	for _, session := range sessions {
		if !match(session) {
			continue
		}
		if err := s.sessionRepo.DeleteByToken(ctx, session.Token); err != nil {
			return deleted, fmt.Errorf("failed to delete session: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// NewSessionToken は推測不能なセッショントークンを生成する。
// ランダムUUID 2つをハイフンで連結した形式。
func NewSessionToken() string {
	return uuid.NewString() + "-" + uuid.NewString()
}

// isPlaceholderToken はクライアントが未ログイン時に送ってくる値かどうかを判定する。
func isPlaceholderToken(token string) bool {
	switch strings.TrimSpace(token) {
	case "", "undefined", "null":
		return true
	default:
		return false
	}
}

func emailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func roleOrDefault(role string) string {
	if role == "" {
		return model.RoleToll
	}
	return role
}

// UpstreamError はIdP呼び出しの失敗をAPIErrorに変換する。
// IdPが4xxで拒否した場合はそのメッセージを400で返し、それ以外は500として扱う。
func UpstreamError(op string, err error) error {
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Status >= 400 && perr.Status < 500 {
		return model.NewUpstreamError(http.StatusBadRequest, perr.Message)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
