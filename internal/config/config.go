// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ストレージドライバー
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`

	// Identity provider
	IdPURL            string        `env:"IDP_URL"`
	IdPServiceRoleKey string        `env:"IDP_SERVICE_ROLE_KEY"`
	IdPAnonKey        string        `env:"IDP_ANON_KEY"`
	IdPAdminTimeout   time.Duration `env:"IDP_ADMIN_TIMEOUT" envDefault:"20s"`
	IdPLoginTimeout   time.Duration `env:"IDP_LOGIN_TIMEOUT" envDefault:"10s"`

	// Token verification
	JWTSecret    string `env:"JWT_SECRET"`
	JWTAlgorithm string `env:"JWT_ALGORITHM" envDefault:"HS256"`

	// Password hashing
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// Rate Limit (requests per minute per client IP)
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"20"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGIN" envSeparator:","`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	var missing []string

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q: must be %s or %s", cfg.StoreDriver, DriverPostgres, DriverSQLite)
	}

	if cfg.IdPURL == "" {
		missing = append(missing, "IDP_URL")
	}
	if cfg.IdPServiceRoleKey == "" {
		missing = append(missing, "IDP_SERVICE_ROLE_KEY")
	}
	if cfg.IdPAnonKey == "" {
		missing = append(missing, "IDP_ANON_KEY")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// DataSource は選択されたドライバーの接続先を返す。
func (c *Config) DataSource() string {
	if c.StoreDriver == DriverSQLite {
		return c.SQLitePath
	}
	return c.DatabaseURL
}
