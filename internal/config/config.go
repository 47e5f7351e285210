package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// KVバックエンドの種別
const (
	KVBackendBadger   = "badger"
	KVBackendMemory   = "memory"
	KVBackendPostgres = "postgres"
	KVBackendRedis    = "redis"
)

// IdPの種別
const (
	IdentityProviderLocal    = "local"
	IdentityProviderSupabase = "supabase"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort  string
	APIBasePath string

	// KV Store
	KVBackend      string
	BadgerPath     string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Identity Provider
	IdentityProvider       string
	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	IdentityTimeout        time.Duration

	// Session
	SessionMaxAge        time.Duration
	SessionSweepInterval time.Duration

	// Parking
	HourlyRate   int
	ParkingZones []string
	SlotsPerZone int

	// Bootstrap
	BootstrapMaxAttempts int

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel slog.Level
}

// Load は環境変数からConfigを読み込む。
// 選択したバックエンドに必要な環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.APIBasePath = "/" + strings.Trim(getEnvString("API_BASE_PATH", "/make-server-66851205"), "/")
	cfg.KVBackend = strings.ToLower(getEnvString("KV_BACKEND", KVBackendBadger))
	cfg.BadgerPath = getEnvString("BADGER_PATH", "./data/kv")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "smtarpark:")
	cfg.IdentityProvider = strings.ToLower(getEnvString("IDENTITY_PROVIDER", IdentityProviderLocal))
	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	cfg.SupabaseServiceRoleKey = os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	cfg.IdentityTimeout = getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second)

	// Required fields
	var missing []string

	switch cfg.KVBackend {
	case KVBackendBadger, KVBackendMemory, KVBackendRedis:
	case KVBackendPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported KV_BACKEND: %q", cfg.KVBackend)
	}

	switch cfg.IdentityProvider {
	case IdentityProviderLocal:
	case IdentityProviderSupabase:
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseAnonKey == "" {
			missing = append(missing, "SUPABASE_ANON_KEY")
		}
		if cfg.SupabaseServiceRoleKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_ROLE_KEY")
		}
	default:
		return nil, fmt.Errorf("unsupported IDENTITY_PROVIDER: %q", cfg.IdentityProvider)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 24*time.Hour)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour)
	cfg.HourlyRate = getEnvInt("HOURLY_RATE", 25)
	cfg.ParkingZones = getEnvList("PARKING_ZONES", []string{"A", "B", "C", "D", "E", "F"})
	cfg.SlotsPerZone = getEnvInt("SLOTS_PER_ZONE", 100)
	cfg.BootstrapMaxAttempts = getEnvInt("BOOTSTRAP_MAX_ATTEMPTS", 3)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.LogLevel = ParseLogLevel(os.Getenv("LOG_LEVEL"))

	return cfg, nil
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。
// 未知の値はInfoとして扱う。
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvDuration は "24h" のようなDuration表記と、秒数の整数表記の両方を受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
