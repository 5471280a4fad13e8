package testutils

import (
	"time"

	"fleet_tracking/config"
)

// TestEncryptionKey ключ шифрования учетных данных для тестов
const TestEncryptionKey = "test-encryption-key-for-testing-only-32"

// TestJWTSecret секрет JWT для тестов
const TestJWTSecret = "test-secret-key-for-testing-only-0123456789"

// TestConfig конфигурация с короткими таймаутами поставщика и без Redis
func TestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfigStruct{
			Env:  "test",
			Port: "0",
		},
		Database: config.DatabaseConfig{
			Type: "sqlite",
			Path: ":memory:",
		},
		Redis: config.RedisConfig{
			Enabled: false,
		},
		JWT: config.JWTConfig{
			Secret:           TestJWTSecret,
			ExpiresIn:        time.Hour,
			Issuer:           "fleet-tracking-test",
			OperatorUsername: "operator",
		},
		Vendor: config.VendorConfig{
			RequestTimeout:      300 * time.Millisecond,
			HistoryTimeout:      600 * time.Millisecond,
			UserAgent:           "FleetTracking/test",
			EncryptionKey:       TestEncryptionKey,
			BreakerMinRequests:  100,
			BreakerFailureRatio: 0.9,
			BreakerOpenTimeout:  time.Minute,
		},
		Sync: config.SyncConfig{
			Enabled:                false,
			DefaultIntervalMinutes: 5,
			MaxParallelConfigs:     2,
			LockTTL:                time.Minute,
			HistoryWindow:          24 * time.Hour,
			ReloadInterval:         time.Minute,
		},
		Security: config.SecurityConfig{
			RateLimitRequests: 1000,
			RateLimitWindow:   time.Minute,
			WebhookSecret:     "webhook-test-secret",
		},
	}
}
