package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// SupabaseConfig はSupabase Auth（GoTrue）の設定。
type SupabaseConfig struct {
	// URL はプロジェクトURL（例: https://xxxx.supabase.co）。
	URL            string
	AnonKey        string
	ServiceRoleKey string

	// HTTPClient がnilの場合はTimeout付きのクライアントを生成する。
	HTTPClient *http.Client
	Timeout    time.Duration
}

// SupabaseProvider はSupabase AuthのREST APIを使ったIdentityProvider。
type SupabaseProvider struct {
	config  SupabaseConfig
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewSupabaseProvider はSupabaseProviderを生成する。
// cbがnilの場合はサーキットブレーカーを使用しない。
func NewSupabaseProvider(config SupabaseConfig, cb *gobreaker.CircuitBreaker) *SupabaseProvider {
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &SupabaseProvider{
		config:  config,
		baseURL: strings.TrimRight(config.URL, "/") + "/auth/v1",
		client:  client,
		cb:      cb,
	}
}

// supabaseUser はGoTrueのユーザー表現。
type supabaseUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

func (u *supabaseUser) toProviderUser() *ProviderUser {
	return &ProviderUser{ID: u.ID, Email: u.Email, Metadata: u.UserMetadata}
}

// supabaseTokenResponse はパスワードグラントのレスポンス。
type supabaseTokenResponse struct {
	AccessToken string       `json:"access_token"`
	User        supabaseUser `json:"user"`
}

// supabaseErrorBody はGoTrueのエラーレスポンス。バージョンによりフィールド名が異なる。
type supabaseErrorBody struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (b supabaseErrorBody) text() string {
	for _, s := range []string{b.Msg, b.Message, b.ErrorDescription, b.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// supabaseResponse はHTTP呼び出しの結果。
type supabaseResponse struct {
	status int
	body   []byte
}

// errorMessage はエラーレスポンスからメッセージを取り出す。
func (r *supabaseResponse) errorMessage() string {
	var b supabaseErrorBody
	if err := json.Unmarshal(r.body, &b); err == nil && b.text() != "" {
		return b.text()
	}
	return http.StatusText(r.status)
}

// SignInWithPassword はパスワードグラントでメールアドレスとパスワードを検証する。
// 発行されたIdPセッションは不要なため、検証後にベストエフォートでログアウトする。
func (p *SupabaseProvider) SignInWithPassword(ctx context.Context, email, password string) (*ProviderUser, error) {
	resp, err := p.do(ctx, http.MethodPost, "/token?grant_type=password", p.config.AnonKey, p.config.AnonKey,
		map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("password sign-in failed: %w", err)
	}

	switch {
	case resp.status == http.StatusBadRequest || resp.status == http.StatusUnauthorized:
		return nil, ErrInvalidCredentials
	case resp.status != http.StatusOK:
		return nil, &ProviderError{Status: resp.status, Message: resp.errorMessage()}
	}

	var token supabaseTokenResponse
	if err := json.Unmarshal(resp.body, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.User.ID == "" {
		return nil, fmt.Errorf("empty user in token response")
	}

	p.signOut(ctx, token.AccessToken)

	return token.User.toProviderUser(), nil
}

// signOut はIdPセッションを破棄する。失敗してもログイン処理は継続する。
func (p *SupabaseProvider) signOut(ctx context.Context, accessToken string) {
	if accessToken == "" {
		return
	}
	resp, err := p.do(ctx, http.MethodPost, "/logout", p.config.AnonKey, accessToken, nil)
	if err != nil {
		slog.Debug("identity provider sign-out failed", slog.String("error", err.Error()))
		return
	}
	if resp.status >= 300 {
		slog.Debug("identity provider sign-out rejected", slog.Int("status", resp.status))
	}
}

// GetUserByAccessToken はアクセストークンでユーザー情報を取得する。
func (p *SupabaseProvider) GetUserByAccessToken(ctx context.Context, accessToken string) (*ProviderUser, error) {
	resp, err := p.do(ctx, http.MethodGet, "/user", p.config.AnonKey, accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}
	if resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden || resp.status == http.StatusNotFound {
		return nil, ErrInvalidToken
	}
	if resp.status != http.StatusOK {
		return nil, &ProviderError{Status: resp.status, Message: resp.errorMessage()}
	}

	var user supabaseUser
	if err := json.Unmarshal(resp.body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}
	return user.toProviderUser(), nil
}

// CreateUser は管理APIでメール確認済みのユーザーを作成する。
func (p *SupabaseProvider) CreateUser(ctx context.Context, attrs UserAttributes) (*ProviderUser, error) {
	body := map[string]any{
		"email":         attrs.Email,
		"password":      attrs.Password,
		"user_metadata": attrs.Metadata,
		"email_confirm": true,
	}
	return p.adminUserRequest(ctx, http.MethodPost, "/admin/users", body)
}

// UpdateUser は管理APIでユーザーを更新する。
func (p *SupabaseProvider) UpdateUser(ctx context.Context, id string, attrs UserAttributes) (*ProviderUser, error) {
	body := map[string]any{
		"user_metadata": attrs.Metadata,
		"email_confirm": true,
	}
	if attrs.Password != "" {
		body["password"] = attrs.Password
	}
	return p.adminUserRequest(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id), body)
}

// DeleteUser は管理APIでユーザーを削除する。
func (p *SupabaseProvider) DeleteUser(ctx context.Context, id string) error {
	resp, err := p.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id),
		p.config.ServiceRoleKey, p.config.ServiceRoleKey, nil)
	if err != nil {
		return fmt.Errorf("delete user failed: %w", err)
	}
	if resp.status == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.status >= 300 {
		return &ProviderError{Status: resp.status, Message: resp.errorMessage()}
	}
	return nil
}

// FindUserByEmail は管理APIのユーザー一覧からメールアドレスが一致するユーザーを探す。
func (p *SupabaseProvider) FindUserByEmail(ctx context.Context, email string) (*ProviderUser, error) {
	const perPage = 200
	for page := 1; ; page++ {
		path := fmt.Sprintf("/admin/users?page=%d&per_page=%d", page, perPage)
		resp, err := p.do(ctx, http.MethodGet, path, p.config.ServiceRoleKey, p.config.ServiceRoleKey, nil)
		if err != nil {
			return nil, fmt.Errorf("list users failed: %w", err)
		}
		if resp.status != http.StatusOK {
			return nil, &ProviderError{Status: resp.status, Message: resp.errorMessage()}
		}

		var list struct {
			Users []supabaseUser `json:"users"`
		}
		if err := json.Unmarshal(resp.body, &list); err != nil {
			return nil, fmt.Errorf("failed to parse user list: %w", err)
		}

		for i := range list.Users {
			if strings.EqualFold(list.Users[i].Email, email) {
				return list.Users[i].toProviderUser(), nil
			}
		}
		if len(list.Users) < perPage {
			return nil, nil
		}
	}
}

// adminUserRequest は管理APIを呼び出し、ユーザーを返す。
func (p *SupabaseProvider) adminUserRequest(ctx context.Context, method, path string, body any) (*ProviderUser, error) {
	resp, err := p.do(ctx, method, path, p.config.ServiceRoleKey, p.config.ServiceRoleKey, body)
	if err != nil {
		return nil, fmt.Errorf("admin request failed: %w", err)
	}
	if resp.status == http.StatusNotFound {
		return nil, ErrUserNotFound
	}
	if resp.status >= 300 {
		return nil, &ProviderError{Status: resp.status, Message: resp.errorMessage()}
	}

	var user supabaseUser
	if err := json.Unmarshal(resp.body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return user.toProviderUser(), nil
}

// do はGoTrueへのHTTPリクエストを実行する。
// 通信エラーと5xxのみをサーキットブレーカーの失敗として数える。
func (p *SupabaseProvider) do(ctx context.Context, method, path, apiKey, bearer string, body any) (*supabaseResponse, error) {
	call := func() (*supabaseResponse, error) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request: %w", err)
			}
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("apikey", apiKey)
		req.Header.Set("Authorization", "Bearer "+bearer)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return &supabaseResponse{status: resp.StatusCode, body: raw}, nil
	}

	if p.cb == nil {
		return call()
	}

	var result *supabaseResponse
	_, err := p.cb.Execute(func() (interface{}, error) {
		resp, err := call()
		if err != nil {
			return nil, err
		}
		result = resp
		if resp.status >= 500 {
			return nil, fmt.Errorf("identity provider returned status %d", resp.status)
		}
		return nil, nil
	})
	if result != nil {
		// 5xxはブレーカーに失敗として記録した上で、呼び出し側にはレスポンスとして返す
		return result, nil
	}
	return nil, err
}

// compile-time interface check
var _ IdentityProvider = (*SupabaseProvider)(nil)
