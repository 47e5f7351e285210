// Package parking は駐車場運営の業務ルール（入出庫、違反、支払い、駐車枠）を提供する。
//
// 4つのコレクションはそれぞれKVストアの1キーに保存される。複数コレクションにまたがる
// 更新はServiceのミューテックスで直列化し、各コレクションの更新自体は
// リポジトリのアトミックな読み込み・書き込みで行う。
package parking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/smtarpark/internal/repository"
	"github.com/hitoshi/smtarpark/internal/security"
)

// DefaultHourlyRate は1時間あたりの駐車料金（ペソ）。
const DefaultHourlyRate = 25

// Recorder は業務イベントのメトリクス記録インターフェース。
type Recorder interface {
	RecordVehicleEntry()
	RecordVehicleExit(fee int)
	RecordViolation()
	RecordPayment(method, paymentType string, amount float64)
}

// Repositories はServiceが使用するコレクションのリポジトリ。
type Repositories struct {
	Slots      repository.SlotRepository
	Vehicles   repository.VehicleRepository
	Violations repository.ViolationRepository
	Payments   repository.PaymentRepository
}

// Config はServiceの設定。
type Config struct {
	HourlyRate int
}

// Service は駐車場の業務ルールを提供する。
type Service struct {
	mu sync.Mutex

	slots      repository.SlotRepository
	vehicles   repository.VehicleRepository
	violations repository.ViolationRepository
	payments   repository.PaymentRepository

	sanitizer security.TextSanitizer
	recorder  Recorder
	validate  *validator.Validate
	config    Config
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewService(repos Repositories, sanitizer security.TextSanitizer, recorder Recorder, config Config) *Service {
	if config.HourlyRate <= 0 {
		config.HourlyRate = DefaultHourlyRate
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		slots:      repos.Slots,
		vehicles:   repos.Vehicles,
		violations: repos.Violations,
		payments:   repos.Payments,
		sanitizer:  sanitizer,
		recorder:   recorder,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		config:     config,
		now:        time.Now,
	}
}

// newID は "<prefix>_<unixミリ秒>_<ランダム8文字>" 形式のIDを生成する。
func (s *Service) newID(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, s.now().UnixMilli(), uuid.NewString()[:8])
}

// findIndex はpredに一致する最初の要素の位置を返す。見つからない場合は-1。
func findIndex[T any](items []T, pred func(*T) bool) int {
	for i := range items {
		if pred(&items[i]) {
			return i
		}
	}
	return -1
}

type nopRecorder struct{}

func (nopRecorder) RecordVehicleEntry()                   {}
func (nopRecorder) RecordVehicleExit(int)                 {}
func (nopRecorder) RecordViolation()                      {}
func (nopRecorder) RecordPayment(string, string, float64) {}

// withLock はビジネス操作を直列化して実行する。
// 直列化はこのプロセス内に限られ、複数インスタンス間の排他は行わない。
func (s *Service) withLock(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
