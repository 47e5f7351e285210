package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/smtarpark/internal/kv"
	"github.com/hitoshi/smtarpark/internal/model"
)

// KVSessionRepo はKVストアを使用したセッションリポジトリ。
type KVSessionRepo struct {
	store kv.Store
}

// NewKVSessionRepo はKVSessionRepoを生成する。
func NewKVSessionRepo(store kv.Store) *KVSessionRepo {
	return &KVSessionRepo{store: store}
}

func sessionKey(token string) string {
	return SessionKeyPrefix + token
}

// Create はセッションを保存する。
func (r *KVSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if err := kv.SetJSON(ctx, r.store, sessionKey(session.Token), session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByToken は指定トークンのセッションを取得する。
func (r *KVSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	session, found, err := kv.GetJSON[model.Session](ctx, r.store, sessionKey(token))
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &session, nil
}

// DeleteByToken は指定トークンのセッションを削除する。
func (r *KVSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if err := r.store.Del(ctx, sessionKey(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// errSessionGone はUpdateName中にセッションが存在しないことを示す内部エラー。
var errSessionGone = errors.New("session not found")

// UpdateName はセッションの表示名を更新する。
func (r *KVSessionRepo) UpdateName(ctx context.Context, token, name string) error {
	err := kv.UpdateJSON(ctx, r.store, sessionKey(token), func(s *model.Session, exists bool) error {
		if !exists {
			return errSessionGone
		}
		s.Name = name
		return nil
	})
	if errors.Is(err, errSessionGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to update session name: %w", err)
	}
	return nil
}

// ListAll は全セッションを返す。デコードできないエントリはログに記録して読み飛ばす。
func (r *KVSessionRepo) ListAll(ctx context.Context) ([]*model.Session, error) {
	entries, err := r.store.GetByPrefix(ctx, SessionKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]*model.Session, 0, len(entries))
	for _, e := range entries {
		var s model.Session
		if err := json.Unmarshal(e.Value, &s); err != nil {
			slog.Warn("skipping malformed session entry",
				slog.String("key", e.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		if s.Token == "" {
			s.Token = e.Key[len(SessionKeyPrefix):]
		}
		sessions = append(sessions, &s)
	}
	return sessions, nil
}

// encodeJSON はnilスライスを空配列としてエンコードする。
func encodeJSON[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	return raw, nil
}

// compile-time interface check
var _ SessionRepository = (*KVSessionRepo)(nil)
