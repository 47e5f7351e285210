// Package bootstrap は起動時のデータ初期化を提供する。
//
// 4つのコレクションの作成（駐車枠は初期データを投入）、既定スタッフアカウントの用意、
// 情報用フラグの設定を順に行う。各ステップは冪等で、失敗してもプロセスは停止しない。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/smtarpark/internal/parking"
	"github.com/hitoshi/smtarpark/internal/repository"
)

// AccountEnsurer は既定アカウントを用意するインターフェース。
type AccountEnsurer interface {
	EnsureDefaultAccounts(ctx context.Context) error
}

// Config は初期化の設定。
type Config struct {
	Zones          []string
	SlotsPerZone   int
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Bootstrapper は起動時の初期化処理を実行する。
type Bootstrapper struct {
	repos    parking.Repositories
	flags    repository.FlagRepository
	accounts AccountEnsurer
	config   Config
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New はBootstrapperを生成する。
func New(repos parking.Repositories, flags repository.FlagRepository, accounts AccountEnsurer, config Config, logger *slog.Logger) *Bootstrapper {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaultInitialBackoff
	}
	return &Bootstrapper{
		repos:    repos,
		flags:    flags,
		accounts: accounts,
		config:   config,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Run は全ての初期化ステップを実行する。
// 失敗したステップはログに記録して次に進み、最後にまとめてエラーとして返す。
// 呼び出し側はエラーを記録するのみで起動を継続してよい。
func (b *Bootstrapper) Run(ctx context.Context) error {
	start := time.Now()
	var errs []error

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{repository.KeyParkingSlots, b.ensureSlots},
		{repository.KeyVehicles, ensureEmpty(repository.KeyVehicles, b.repos.Vehicles, b.logger)},
		{repository.KeyViolations, ensureEmpty(repository.KeyViolations, b.repos.Violations, b.logger)},
		{repository.KeyPayments, ensureEmpty(repository.KeyPayments, b.repos.Payments, b.logger)},
		{"default_accounts", b.ensureAccounts},
	}

	for _, step := range steps {
		if err := b.withRetry(ctx, step.name, step.fn); err != nil {
			b.logger.Error("初期化ステップに失敗しました",
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			if ctx.Err() != nil {
				return errors.Join(errs...)
			}
		}
	}

	b.logger.Info("データ初期化が完了しました",
		slog.Int("failed_steps", len(errs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return errors.Join(errs...)
}

func (b *Bootstrapper) ensureSlots(ctx context.Context) error {
	seed := parking.SeedSlots(b.config.Zones, b.config.SlotsPerZone)
	created, err := b.repos.Slots.Ensure(ctx, seed)
	if err != nil {
		return err
	}
	if created {
		b.logger.Info("駐車枠を初期化しました", slog.Int("slot_count", len(seed)))
	}
	return nil
}

func ensureEmpty[T any](name string, repo repository.CollectionRepository[T], logger *slog.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		created, err := repo.Ensure(ctx, []T{})
		if err != nil {
			return err
		}
		if created {
			logger.Info("コレクションを作成しました", slog.String("collection", name))
		}
		return nil
	}
}

// ensureAccounts は既定アカウントを用意し、成功時に情報用フラグを立てる。
// フラグは作成の省略には使わない。
func (b *Bootstrapper) ensureAccounts(ctx context.Context) error {
	if err := b.accounts.EnsureDefaultAccounts(ctx); err != nil {
		return err
	}
	return b.flags.SetFlag(ctx, repository.KeyDefaultAccountsCreated, true)
}
