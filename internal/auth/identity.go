package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials はメールアドレスまたはパスワードが誤っている場合に返される。
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken はIdPのアクセストークンが無効または期限切れの場合に返される。
	ErrInvalidToken = errors.New("invalid access token")
	// ErrUserNotFound はIdPにユーザーが存在しない場合に返される。
	ErrUserNotFound = errors.New("user not found")
)

// ProviderError はIdPが4xxで拒否した操作を表す。
// Messageはクライアントにそのまま返してよい内容。
type ProviderError struct {
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("identity provider rejected request (%d): %s", e.Status, e.Message)
}

// UserMetadata はIdPのユーザーに付与するメタデータ。
type UserMetadata struct {
	Name        string `json:"name,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role,omitempty"`
	Phone       string `json:"phone,omitempty"`
	GCashNumber string `json:"gcashNumber,omitempty"`
}

// ProviderUser はIdPから取得したユーザー情報。
type ProviderUser struct {
	ID       string
	Email    string
	Metadata UserMetadata
}

// UserAttributes はユーザー作成・更新時の属性。
// Passwordが空の場合、更新時はパスワードを変更しない。
type UserAttributes struct {
	Email    string
	Password string
	Metadata UserMetadata
}

// IdentityProvider はスタッフアカウントを管理する外部IdPのインターフェース。
// パスワードの検証とアカウントの作成・更新・削除を委譲する。
type IdentityProvider interface {
	// SignInWithPassword はメールアドレスとパスワードを検証する。
	// 誤りの場合はErrInvalidCredentialsを返す。
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderUser, error)
	// GetUserByAccessToken はIdPが発行したアクセストークンからユーザーを取得する。
	// 無効な場合はErrInvalidTokenを返す。
	GetUserByAccessToken(ctx context.Context, accessToken string) (*ProviderUser, error)
	// CreateUser はメール確認済みのユーザーを作成する。
	CreateUser(ctx context.Context, attrs UserAttributes) (*ProviderUser, error)
	// UpdateUser はユーザーのパスワードとメタデータを更新する。
	UpdateUser(ctx context.Context, id string, attrs UserAttributes) (*ProviderUser, error)
	// DeleteUser はユーザーを削除する。存在しない場合はErrUserNotFoundを返す。
	DeleteUser(ctx context.Context, id string) error
	// FindUserByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindUserByEmail(ctx context.Context, email string) (*ProviderUser, error)
}
