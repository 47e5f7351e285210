// Package user はスタッフアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/smtarpark/internal/auth"
	"github.com/hitoshi/smtarpark/internal/model"
)

// DefaultAccount は起動時に用意する既定のスタッフアカウント。
type DefaultAccount struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// DefaultAccounts は管理者と料金所担当の既定アカウント。
var DefaultAccounts = []DefaultAccount{
	{Email: "admin@smtarpark.com", Password: "Admin123!", Name: "Admin User", Role: model.RoleAdmin},
	{Email: "toll@smtarpark.com", Password: "Toll123!", Name: "Toll Personnel", Role: model.RoleToll},
}

// SessionStore はアカウント操作に伴うセッション更新のインターフェース。
type SessionStore interface {
	UpdateSessionName(ctx context.Context, token, name string) error
	PurgeAll(ctx context.Context) (int, error)
}

// SignupInput はアカウント作成の入力。
type SignupInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// ProfileInput はプロフィール更新の入力。空文字は未指定として扱う。
type ProfileInput struct {
	Name        string
	Phone       string
	GCashNumber string
}

// ResetResult はアカウント再作成の結果。
type ResetResult struct {
	Email    string `json:"email"`
	Status   string `json:"status"`
	Password string `json:"password,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Service はアカウント管理のサービス層。
type Service struct {
	idp      auth.IdentityProvider
	sessions SessionStore
	accounts []DefaultAccount
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(idp auth.IdentityProvider, sessions SessionStore) *Service {
	return &Service{
		idp:      idp,
		sessions: sessions,
		accounts: DefaultAccounts,
	}
}

// Signup はメール確認済みのアカウントを作成する。ロールの既定値はtoll。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}

	role := in.Role
	if role == "" {
		role = model.RoleToll
	}
	if role != model.RoleAdmin && role != model.RoleToll {
		return nil, model.NewValidationError("Role must be admin or toll")
	}

	pu, err := s.idp.CreateUser(ctx, auth.UserAttributes{
		Email:    email,
		Password: in.Password,
		Metadata: auth.UserMetadata{Name: in.Name, Role: role},
	})
	if err != nil {
		slog.Warn("signup failed", slog.String("email", email), slog.String("error", err.Error()))
		return nil, auth.UpstreamError("signup", err)
	}

	slog.Info("account created", slog.String("user_id", pu.ID), slog.String("role", role))
	return &model.User{
		ID:    pu.ID,
		Email: pu.Email,
		Name:  pu.Metadata.Name,
		Role:  pu.Metadata.Role,
	}, nil
}

// UpdateProfile はIdPのメタデータを更新し、セッションの表示名を合わせる。
// ロールはセッションの値を維持する。
func (s *Service) UpdateProfile(ctx context.Context, session *model.Session, in ProfileInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = session.Name
	}

	_, err := s.idp.UpdateUser(ctx, session.UserID, auth.UserAttributes{
		Metadata: auth.UserMetadata{
			Name:        name,
			Role:        session.Role,
			Phone:       in.Phone,
			GCashNumber: in.GCashNumber,
		},
	})
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if err := s.sessions.UpdateSessionName(ctx, session.Token, name); err != nil {
		return fmt.Errorf("failed to update session name: %w", err)
	}
	return nil
}

// EnsureDefaultAccounts は既定アカウントを作成し、既存の場合はパスワードとメタデータを上書きする。
// 1件の失敗で残りを中断しない。
func (s *Service) EnsureDefaultAccounts(ctx context.Context) error {
	var errs []error
	for _, acct := range s.accounts {
		if err := s.ensureAccount(ctx, acct); err != nil {
			slog.Error("failed to ensure default account",
				slog.String("email", acct.Email),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", acct.Email, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) ensureAccount(ctx context.Context, acct DefaultAccount) error {
	attrs := auth.UserAttributes{
		Email:    acct.Email,
		Password: acct.Password,
		Metadata: auth.UserMetadata{Name: acct.Name, Role: acct.Role},
	}

	existing, err := s.idp.FindUserByEmail(ctx, acct.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		if _, err := s.idp.UpdateUser(ctx, existing.ID, attrs); err != nil {
			return err
		}
		slog.Info("default account updated", slog.String("email", acct.Email), slog.String("role", acct.Role))
		return nil
	}

	if _, err := s.idp.CreateUser(ctx, attrs); err != nil {
		return err
	}
	slog.Info("default account created", slog.String("email", acct.Email), slog.String("role", acct.Role))
	return nil
}

// ResetDefaultAccounts は既定アカウントを削除して作り直し、全セッションを破棄する。
// アカウントごとの結果を返す。
func (s *Service) ResetDefaultAccounts(ctx context.Context) ([]ResetResult, error) {
	results := make([]ResetResult, 0, len(s.accounts))
	for _, acct := range s.accounts {
		if err := s.recreateAccount(ctx, acct); err != nil {
			slog.Error("failed to reset default account",
				slog.String("email", acct.Email),
				slog.String("error", err.Error()),
			)
			results = append(results, ResetResult{Email: acct.Email, Status: "error", Message: resetErrorMessage(err)})
			continue
		}
		results = append(results, ResetResult{Email: acct.Email, Status: "created", Password: acct.Password})
	}

	purged, err := s.sessions.PurgeAll(ctx)
	if err != nil {
		return results, fmt.Errorf("failed to purge sessions: %w", err)
	}
	slog.Info("default accounts reset", slog.Int("sessions_cleared", purged))
	return results, nil
}

func (s *Service) recreateAccount(ctx context.Context, acct DefaultAccount) error {
	existing, err := s.idp.FindUserByEmail(ctx, acct.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		if err := s.idp.DeleteUser(ctx, existing.ID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
			return err
		}
	}

	_, err = s.idp.CreateUser(ctx, auth.UserAttributes{
		Email:    acct.Email,
		Password: acct.Password,
		Metadata: auth.UserMetadata{Name: acct.Name, Role: acct.Role},
	})
	return err
}

func resetErrorMessage(err error) string {
	var perr *auth.ProviderError
	if errors.As(err, &perr) {
		return perr.Message
	}
	return "identity provider unavailable"
}
