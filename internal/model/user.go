package model

import "time"

// スタッフのロール
const (
	RoleAdmin = "admin"
	RoleToll  = "toll"
)

// User はIdPに登録されたスタッフアカウントを表す。
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Phone       string `json:"phone,omitempty"`
	GCashNumber string `json:"gcashNumber,omitempty"`
}

// Session はKVストアに保存されるログインセッションを表す。
// キーは "session:<token>"。
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired はnow時点でセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// User はセッションに保持されたユーザー情報を返す。
func (s *Session) User() *User {
	return &User{
		ID:    s.UserID,
		Email: s.Email,
		Name:  s.Name,
		Role:  s.Role,
	}
}
