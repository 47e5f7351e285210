package bootstrap

import (
	"context"
	"log/slog"
	"time"
)

const (
	// defaultInitialBackoff は初回リトライまでの遅延。
	defaultInitialBackoff = 500 * time.Millisecond
	// maxBackoff はリトライ遅延の上限。
	maxBackoff = 5 * time.Second
)

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// initialから2倍ずつ増加し、maxBackoffで頭打ちにする。
func CalculateBackoff(initial time.Duration, failures int) time.Duration {
	delay := initial
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// sleepContext はdだけ待機する。コンテキストがキャンセルされた場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry はfnを最大attempts回実行する。失敗の間は指数バックオフで待機する。
func (b *Bootstrapper) withRetry(ctx context.Context, step string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < b.config.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == b.config.MaxAttempts-1 {
			break
		}

		delay := CalculateBackoff(b.config.InitialBackoff, attempt)
		b.logger.Warn("初期化ステップに失敗しました。リトライします",
			slog.String("step", step),
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)
		if serr := b.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}
