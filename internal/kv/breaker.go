package kv

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
)

// BreakerStore はStoreの呼び出しをサーキットブレーカー経由で行うデコレーター。
// バックエンド障害が続いた場合は即座にgobreaker.ErrOpenStateを返す。
// キー不在やUpdateFuncが返したエラーは障害として数えない。
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// WithCircuitBreaker はstoreをサーキットブレーカーでラップする。
func WithCircuitBreaker(store Store, cb *gobreaker.CircuitBreaker) *BreakerStore {
	return &BreakerStore{next: store, cb: cb}
}

// execute はopを実行し、バックエンド障害のみをブレーカーに報告する。
func (s *BreakerStore) execute(op func() (failure error, passthrough error)) error {
	var passthrough error
	_, err := s.cb.Execute(func() (interface{}, error) {
		var failure error
		failure, passthrough = op()
		return nil, failure
	})
	if err != nil {
		return err
	}
	return passthrough
}

// classify はエラーをバックエンド障害とそれ以外に振り分ける。
func classify(err error) (failure error, passthrough error) {
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	return err, nil
}

// Get はキーの値を返す。
func (s *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.execute(func() (error, error) {
		var err error
		value, err = s.next.Get(ctx, key)
		return classify(err)
	})
	return value, err
}

// Set はキーに値を書き込む。
func (s *BreakerStore) Set(ctx context.Context, key string, value []byte) error {
	return s.execute(func() (error, error) {
		return classify(s.next.Set(ctx, key, value))
	})
}

// Del はキーを削除する。
func (s *BreakerStore) Del(ctx context.Context, key string) error {
	return s.execute(func() (error, error) {
		return classify(s.next.Del(ctx, key))
	})
}

// GetByPrefix はプレフィックスに一致する全エントリを返す。
func (s *BreakerStore) GetByPrefix(ctx context.Context, prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.execute(func() (error, error) {
		var err error
		entries, err = s.next.GetByPrefix(ctx, prefix)
		return classify(err)
	})
	return entries, err
}

// Update はキーの値をアトミックに読み込み・更新する。
func (s *BreakerStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return s.execute(func() (error, error) {
		var fnErr error
		err := s.next.Update(ctx, key, func(current []byte, exists bool) ([]byte, error) {
			next, err := fn(current, exists)
			fnErr = err
			return next, err
		})
		if err != nil && fnErr != nil && errors.Is(err, fnErr) {
			return nil, err
		}
		return classify(err)
	})
}

// Ping はバックエンドへの疎通を確認する。ブレーカーの状態に関係なく実行する。
func (s *BreakerStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// Close は下位ストアを閉じる。
func (s *BreakerStore) Close() error {
	return s.next.Close()
}

// compile-time interface check
var _ Store = (*BreakerStore)(nil)
