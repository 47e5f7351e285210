package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// localAccount はLocalProviderが保持するアカウント。
type localAccount struct {
	user         ProviderUser
	passwordHash []byte
}

// LocalProvider はプロセス内でアカウントを保持するIdentityProvider。
// 外部IdPを使わない開発環境とテストで使用する。パスワードはbcryptでハッシュ化する。
// アカウントはプロセス再起動で失われ、起動時のブートストラップで再作成される。
type LocalProvider struct {
	mu       sync.RWMutex
	accounts map[string]*localAccount // key: user ID
	tokens   map[string]string        // access token -> user ID
	cost     int
}

// NewLocalProvider はLocalProviderを生成する。
func NewLocalProvider() *LocalProvider {
	return NewLocalProviderWithCost(bcrypt.DefaultCost)
}

// NewLocalProviderWithCost はbcryptのコストを指定してLocalProviderを生成する。
func NewLocalProviderWithCost(cost int) *LocalProvider {
	return &LocalProvider{
		accounts: make(map[string]*localAccount),
		tokens:   make(map[string]string),
		cost:     cost,
	}
}

// SignInWithPassword はメールアドレスとパスワードを検証する。
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*ProviderUser, error) {
	p.mu.RLock()
	acc := p.findByEmailLocked(email)
	p.mu.RUnlock()

	if acc == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	user := acc.user
	return &user, nil
}

// IssueAccessToken はパスワード検証に成功したアカウントにアクセストークンを発行する。
// 外部IdPのOAuthフローで得られるトークンの代替として使用する。
func (p *LocalProvider) IssueAccessToken(ctx context.Context, email, password string) (string, error) {
	user, err := p.SignInWithPassword(ctx, email, password)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()

	p.mu.Lock()
	p.tokens[token] = user.ID
	p.mu.Unlock()

	return token, nil
}

// GetUserByAccessToken はIssueAccessTokenで発行したトークンからユーザーを取得する。
func (p *LocalProvider) GetUserByAccessToken(ctx context.Context, accessToken string) (*ProviderUser, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.tokens[accessToken]
	if !ok {
		return nil, ErrInvalidToken
	}
	acc, ok := p.accounts[id]
	if !ok {
		return nil, ErrInvalidToken
	}
	user := acc.user
	return &user, nil
}

// CreateUser はアカウントを作成する。メールアドレスが重複する場合はProviderErrorを返す。
func (p *LocalProvider) CreateUser(ctx context.Context, attrs UserAttributes) (*ProviderUser, error) {
	if attrs.Email == "" || attrs.Password == "" {
		return nil, &ProviderError{Status: 400, Message: "Email and password are required"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), p.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, &ProviderError{Status: 400, Message: "Password is too long"}
		}
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.findByEmailLocked(attrs.Email) != nil {
		return nil, &ProviderError{Status: 422, Message: "A user with this email address has already been registered"}
	}

	acc := &localAccount{
		user: ProviderUser{
			ID:       uuid.NewString(),
			Email:    strings.ToLower(attrs.Email),
			Metadata: attrs.Metadata,
		},
		passwordHash: hash,
	}
	p.accounts[acc.user.ID] = acc

	user := acc.user
	return &user, nil
}

// UpdateUser はメタデータを置き換え、指定があればパスワードを変更する。
func (p *LocalProvider) UpdateUser(ctx context.Context, id string, attrs UserAttributes) (*ProviderUser, error) {
	var hash []byte
	if attrs.Password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), p.cost)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.accounts[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	acc.user.Metadata = attrs.Metadata
	if hash != nil {
		acc.passwordHash = hash
	}

	user := acc.user
	return &user, nil
}

// DeleteUser はアカウントと発行済みトークンを削除する。
func (p *LocalProvider) DeleteUser(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.accounts[id]; !ok {
		return ErrUserNotFound
	}
	delete(p.accounts, id)
	for token, uid := range p.tokens {
		if uid == id {
			delete(p.tokens, token)
		}
	}
	return nil
}

// FindUserByEmail はメールアドレスでアカウントを検索する。
func (p *LocalProvider) FindUserByEmail(ctx context.Context, email string) (*ProviderUser, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	acc := p.findByEmailLocked(email)
	if acc == nil {
		return nil, nil
	}
	user := acc.user
	return &user, nil
}

func (p *LocalProvider) findByEmailLocked(email string) *localAccount {
	for _, acc := range p.accounts {
		if strings.EqualFold(acc.user.Email, email) {
			return acc
		}
	}
	return nil
}

// compile-time interface check
var _ IdentityProvider = (*LocalProvider)(nil)
