// Package kv はキーバリューストアの抽象化と各バックエンド実装を提供する。
//
// 値はJSONエンコード済みのバイト列として扱う。
// 読み込み・更新・書き込みを1操作で行うUpdateはバックエンドごとに
// アトミックに実装され、同一キーへの並行更新で更新が失われないことを保証する。
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound はキーが存在しない場合に返される。
	ErrNotFound = errors.New("kv: key not found")
	// ErrConflict は競合リトライが上限に達した場合に返される。
	ErrConflict = errors.New("kv: too many concurrent update conflicts")
)

// maxUpdateRetries は楽観的並行制御の再試行上限。
const maxUpdateRetries = 20

// Entry はプレフィックス検索の1件を表す。
type Entry struct {
	Key   string
	Value []byte
}

// UpdateFunc は現在値を受け取り、新しい値を返す。
// キーが存在しない場合はexists=falseで呼ばれる。
// エラーを返すと更新は中止され、そのエラーがUpdateの戻り値になる。
// 再試行時に複数回呼ばれることがあるため、副作用を持たせないこと。
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store はKVストアのインターフェース。
type Store interface {
	// Get はキーの値を返す。存在しない場合はErrNotFoundを返す。
	Get(ctx context.Context, key string) ([]byte, error)
	// Set はキーに値を書き込む。
	Set(ctx context.Context, key string, value []byte) error
	// Del はキーを削除する。存在しないキーの削除はエラーにならない。
	Del(ctx context.Context, key string) error
	// GetByPrefix はプレフィックスに一致する全エントリを返す。
	GetByPrefix(ctx context.Context, prefix string) ([]Entry, error)
	// Update はキーの値をアトミックに読み込み・更新する。
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// Ping はバックエンドへの疎通を確認する。
	Ping(ctx context.Context) error
	// Close は接続を閉じる。
	Close() error
}

// GetJSON はキーの値をJSONとしてデコードする。
// キーが存在しない場合はfound=falseを返す。
func GetJSON[T any](ctx context.Context, s Store, key string) (value T, found bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return value, true, nil
}

// SetJSON は値をJSONエンコードしてキーに書き込む。
func SetJSON(ctx context.Context, s Store, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// UpdateJSON はJSON値をアトミックに読み込み・変更・書き戻す。
// fnには毎回新しくデコードされた値が渡される。
func UpdateJSON[T any](ctx context.Context, s Store, key string, fn func(value *T, exists bool) error) error {
	return s.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
		var value T
		if exists {
			if err := json.Unmarshal(current, &value); err != nil {
				return nil, fmt.Errorf("failed to decode %q: %w", key, err)
			}
		}
		if err := fn(&value, exists); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", key, err)
		}
		return raw, nil
	})
}
