// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/smtarpark/internal/model"
)

// SessionTokenHeader はセッショントークンを運ぶリクエストヘッダー名。
// Authorizationヘッダーはゲートウェイ用の資格情報に予約されているため参照しない。
const SessionTokenHeader = "X-Session-Token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// holderContextKey は外側のミドルウェアへ認証結果を返すsessionHolderのキー。
var holderContextKey = contextKey("session_holder")

// sessionHolder はロギングミドルウェアが内側で確定したセッションを参照するための入れ物。
type sessionHolder struct {
	mu      sync.Mutex
	session *model.Session
}

func (h *sessionHolder) set(session *model.Session) {
	h.mu.Lock()
	h.session = session
	h.mu.Unlock()
}

func (h *sessionHolder) get() *model.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

func withSessionHolder(ctx context.Context, h *sessionHolder) context.Context {
	return context.WithValue(ctx, holderContextKey, h)
}

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
// 無効なトークンには (nil, nil) を返す。
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はX-Session-Tokenヘッダーからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 検証済みのセッションをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(SessionTokenHeader)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Error("failed to verify session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if h, ok := r.Context().Value(holderContextKey).(*sessionHolder); ok {
				h.set(session)
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
