package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// NewCircuitBreaker は依存先ごとの標準設定でサーキットブレーカーを生成する。
// 3回連続で失敗するとオープンになり、タイムアウト経過後にハーフオープンで再試行する。
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	var timeout time.Duration
	switch {
	case strings.HasPrefix(name, "KV-"):
		timeout = 5 * time.Second
	case name == "IdentityProvider":
		timeout = 15 * time.Second
	default:
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}
