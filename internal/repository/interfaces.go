// Package repository はデータ永続化のインターフェースとKVストア上の実装を提供する。
//
// 業務データは4つのコレクション（parking_slots, vehicles, violations, payments）として
// それぞれ1キーにJSON配列で保存する。セッションは "session:<token>" キーに1件ずつ保存する。
package repository

import (
	"context"

	"github.com/hitoshi/smtarpark/internal/model"
)

// KVストア上のキー
const (
	KeyParkingSlots           = "parking_slots"
	KeyVehicles               = "vehicles"
	KeyViolations             = "violations"
	KeyPayments               = "payments"
	KeyDefaultAccountsCreated = "default_accounts_created"

	SessionKeyPrefix = "session:"
)

// CollectionRepository は1キーに保存されるレコード配列の永続化インターフェース。
type CollectionRepository[T any] interface {
	// List は全レコードを返す。コレクション未作成の場合は空スライスを返す。
	List(ctx context.Context) ([]T, error)

	// Mutate は全レコードをアトミックに読み込み、fnの戻り値で置き換える。
	// fnがエラーを返した場合は書き込まない。fnは再試行で複数回呼ばれることがある。
	Mutate(ctx context.Context, fn func(items []T) ([]T, error)) error

	// Ensure はコレクションが存在しない場合のみinitialで作成する。
	// 作成した場合はtrueを返す。既存の内容は変更しない。
	Ensure(ctx context.Context, initial []T) (bool, error)
}

// SlotRepository は駐車枠コレクションのリポジトリ。
type SlotRepository = CollectionRepository[model.ParkingSlot]

// VehicleRepository は車両コレクションのリポジトリ。
type VehicleRepository = CollectionRepository[model.Vehicle]

// ViolationRepository は違反コレクションのリポジトリ。
type ViolationRepository = CollectionRepository[model.Violation]

// PaymentRepository は支払いコレクションのリポジトリ。
type PaymentRepository = CollectionRepository[model.Payment]

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを保存する。
	Create(ctx context.Context, session *model.Session) error
	// FindByToken は指定トークンのセッションを取得する。見つからない場合はnilを返す。
	// 期限切れの判定は呼び出し側で行う。
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	// DeleteByToken は指定トークンのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByToken(ctx context.Context, token string) error
	// UpdateName はセッションに保持している表示名を更新する。見つからない場合は何もしない。
	UpdateName(ctx context.Context, token, name string) error
	// ListAll は全セッションを返す。
	ListAll(ctx context.Context) ([]*model.Session, error)
}

// FlagRepository は真偽値フラグの永続化インターフェース。
type FlagRepository interface {
	// SetFlag はフラグを保存する。
	SetFlag(ctx context.Context, key string, value bool) error
	// GetFlag はフラグを取得する。未設定の場合はfalseを返す。
	GetFlag(ctx context.Context, key string) (bool, error)
}
