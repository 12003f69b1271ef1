package testdb

import (
	"time"

	"github.com/your-org/inventory-ledger/internal/config"
)

// Config returns a configuration suitable for service tests: SQLite, no
// Redis, no broker, sweeper disabled and a short retry backoff.
func Config() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "Inventory Ledger",
			Version:     "test",
			Environment: "test",
		},
		Server: config.ServerConfig{
			Port:           "0",
			RequestTimeout: 5 * time.Second,
		},
		Database: config.DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: ":memory:",
		},
		JWT: config.JWTConfig{
			Secret:            "test-secret-key-that-is-at-least-32-chars",
			Issuer:            "identity-service",
			AccessTokenExpiry: time.Hour,
		},
		Security: config.SecurityConfig{
			RateLimitPerMinute: 10000,
			CORSAllowedOrigins: []string{"*"},
			CORSAllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			CORSAllowedHeaders: []string{"Origin", "Content-Type", "Authorization"},
		},
		Ledger: config.LedgerConfig{
			MaxAppendRetries:      5,
			RetryBackoff:          time.Millisecond,
			DefaultReservationTTL: 15 * time.Minute,
			MaxReservationTTL:     24 * time.Hour,
			DefaultCurrency:       "USD",
			VerifyParallelism:     2,
		},
		Sweeper: config.SweeperConfig{
			Interval:  time.Second,
			BatchSize: 50,
			LeaseKey:  "inventory:sweeper:lease:test",
		},
		Cache: config.CacheConfig{
			ProjectionTTL: 30 * time.Second,
		},
		Report: config.ReportConfig{
			CompanyName: "Test Stores",
		},
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "text",
		},
	}
}
