package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/smtarpark/internal/kv"
)

// KVFlagRepo はKVストアに真偽値フラグを保存するリポジトリ。
type KVFlagRepo struct {
	store kv.Store
}

// NewKVFlagRepo はKVFlagRepoを生成する。
func NewKVFlagRepo(store kv.Store) *KVFlagRepo {
	return &KVFlagRepo{store: store}
}

// SetFlag はフラグを保存する。
func (r *KVFlagRepo) SetFlag(ctx context.Context, key string, value bool) error {
	if err := kv.SetJSON(ctx, r.store, key, value); err != nil {
		return fmt.Errorf("failed to set flag %s: %w", key, err)
	}
	return nil
}

// GetFlag はフラグを取得する。
func (r *KVFlagRepo) GetFlag(ctx context.Context, key string) (bool, error) {
	value, _, err := kv.GetJSON[bool](ctx, r.store, key)
	if err != nil {
		return false, fmt.Errorf("failed to get flag %s: %w", key, err)
	}
	return value, nil
}

// compile-time interface check
var _ FlagRepository = (*KVFlagRepo)(nil)
