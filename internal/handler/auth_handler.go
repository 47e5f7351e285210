package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/smtarpark/internal/middleware"
	"github.com/hitoshi/smtarpark/internal/model"
	"github.com/hitoshi/smtarpark/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするセッション操作のインターフェース。
type AuthServiceInterface interface {
	// Login はメールアドレスとパスワードでログインし、セッションを発行する。
	Login(ctx context.Context, email, password string) (*model.Session, error)
	// Exchange はIdPのアクセストークンをセッションに交換する。
	Exchange(ctx context.Context, accessToken string) (*model.Session, error)
	// Logout はセッションを破棄する。
	Logout(ctx context.Context, token string) error
}

// AccountServiceInterface はアカウント管理のインターフェース。
type AccountServiceInterface interface {
	Signup(ctx context.Context, in user.SignupInput) (*model.User, error)
	UpdateProfile(ctx context.Context, session *model.Session, in user.ProfileInput) error
	ResetDefaultAccounts(ctx context.Context) ([]user.ResetResult, error)
}

// AuthHandler は認証とアカウント管理のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	accounts AccountServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, accounts AccountServiceInterface) *AuthHandler {
	return &AuthHandler{
		service:  service,
		accounts: accounts,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type exchangeRequest struct {
	SupabaseAccessToken string `json:"supabaseAccessToken"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserData struct {
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"userData"`
}

type profileRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	GCashNumber string `json:"gcashNumber"`
}

// userResponse はAPIレスポンスのユーザー情報。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toUserResponse(session *model.Session) userResponse {
	return userResponse{
		ID:    session.UserID,
		Email: session.Email,
		Name:  session.Name,
		Role:  session.Role,
	}
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: session.Token, User: toUserResponse(session)})
}

// Exchange はOAuthで取得したIdPのアクセストークンをセッションに交換する。
// POST /auth/exchange
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	session, err := h.service.Exchange(r.Context(), req.SupabaseAccessToken)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Token: session.Token, User: toUserResponse(session)})
}

// Me は現在のセッションのユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]userResponse{"user": toUserResponse(session)})
}

// Logout はセッションを破棄する。トークンがない場合や削除に失敗した場合も成功として応答する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(middleware.SessionTokenHeader)
	if token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			slog.Warn("logout failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
			return
		}
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// Signup はスタッフアカウントを作成する。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	u, err := h.accounts.Signup(r.Context(), user.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.UserData.Name,
		Role:     req.UserData.Role,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    u,
		"message": "User created successfully",
	})
}

// UpdateProfile は表示名・電話番号・GCash番号を更新する。
// PUT /auth/profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewUnauthorizedError())
		return
	}

	var req profileRequest
	if !decodeOrReject(w, r, &req) {
		return
	}

	err := h.accounts.UpdateProfile(r.Context(), session, user.ProfileInput{
		Name:        req.Name,
		Phone:       req.Phone,
		GCashNumber: req.GCashNumber,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Profile updated successfully"})
}

// ResetAccounts は既定のスタッフアカウントを作り直し、全セッションを破棄する。
// POST /auth/reset-accounts
func (h *AuthHandler) ResetAccounts(w http.ResponseWriter, r *http.Request) {
	results, err := h.accounts.ResetDefaultAccounts(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Default accounts reset complete",
		"accounts": results,
	})
}
