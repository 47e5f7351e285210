package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/smtarpark/internal/kv"
	"github.com/hitoshi/smtarpark/internal/model"
)

// KVCollectionRepo はKVストアの1キーにJSON配列として保存されるコレクション。
type KVCollectionRepo[T any] struct {
	store kv.Store
	key   string
}

// NewKVCollectionRepo はKVCollectionRepoを生成する。
func NewKVCollectionRepo[T any](store kv.Store, key string) *KVCollectionRepo[T] {
	return &KVCollectionRepo[T]{store: store, key: key}
}

// NewSlotRepo は駐車枠コレクションを生成する。
func NewSlotRepo(store kv.Store) *KVCollectionRepo[model.ParkingSlot] {
	return NewKVCollectionRepo[model.ParkingSlot](store, KeyParkingSlots)
}

// NewVehicleRepo は車両コレクションを生成する。
func NewVehicleRepo(store kv.Store) *KVCollectionRepo[model.Vehicle] {
	return NewKVCollectionRepo[model.Vehicle](store, KeyVehicles)
}

// NewViolationRepo は違反コレクションを生成する。
func NewViolationRepo(store kv.Store) *KVCollectionRepo[model.Violation] {
	return NewKVCollectionRepo[model.Violation](store, KeyViolations)
}

// NewPaymentRepo は支払いコレクションを生成する。
func NewPaymentRepo(store kv.Store) *KVCollectionRepo[model.Payment] {
	return NewKVCollectionRepo[model.Payment](store, KeyPayments)
}

// Key はコレクションのKVキーを返す。
func (r *KVCollectionRepo[T]) Key() string {
	return r.key
}

// List は全レコードを返す。
func (r *KVCollectionRepo[T]) List(ctx context.Context) ([]T, error) {
	items, _, err := kv.GetJSON[[]T](ctx, r.store, r.key)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Mutate は全レコードをアトミックに読み込み・置き換える。
func (r *KVCollectionRepo[T]) Mutate(ctx context.Context, fn func(items []T) ([]T, error)) error {
	return kv.UpdateJSON(ctx, r.store, r.key, func(items *[]T, exists bool) error {
		next, err := fn(*items)
		if err != nil {
			return err
		}
		if next == nil {
			next = []T{}
		}
		*items = next
		return nil
	})
}

// Ensure はコレクションが存在しない場合のみinitialで作成する。
func (r *KVCollectionRepo[T]) Ensure(ctx context.Context, initial []T) (bool, error) {
	created := false
	err := r.store.Update(ctx, r.key, func(current []byte, exists bool) ([]byte, error) {
		if exists {
			created = false
			return current, nil
		}
		created = true
		return encodeJSON(initial)
	})
	if err != nil {
		return false, fmt.Errorf("failed to ensure %s: %w", r.key, err)
	}
	return created, nil
}

// compile-time interface check
var (
	_ SlotRepository      = (*KVCollectionRepo[model.ParkingSlot])(nil)
	_ VehicleRepository   = (*KVCollectionRepo[model.Vehicle])(nil)
	_ ViolationRepository = (*KVCollectionRepo[model.Violation])(nil)
	_ PaymentRepository   = (*KVCollectionRepo[model.Payment])(nil)
)
