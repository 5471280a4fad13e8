package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	// Основные настройки приложения
	App AppConfigStruct `json:"app"`

	// База данных
	Database DatabaseConfig `json:"database"`

	// Redis
	Redis RedisConfig `json:"redis"`

	// JWT
	JWT JWTConfig `json:"jwt"`

	// Поставщики GPS-трекинга
	Vendor VendorConfig `json:"vendor"`

	// Периодическая синхронизация
	Sync SyncConfig `json:"sync"`

	// CORS
	CORS CORSConfig `json:"cors"`

	// Безопасность
	Security SecurityConfig `json:"security"`

	// Логирование
	Logging LoggingConfig `json:"logging"`

	// Внешние сервисы
	External ExternalConfig `json:"external"`
}

type AppConfigStruct struct {
	Env     string `json:"env"`
	Port    string `json:"port"`
	Host    string `json:"host"`
	BaseURL string `json:"base_url"`
	Version string `json:"version"`
	Debug   bool   `json:"debug"`
}

type DatabaseConfig struct {
	Type            string        `json:"type"` // postgres, sqlite
	Path            string        `json:"path"` // файл SQLite
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Host     string        `json:"host"`
	Port     string        `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	URL      string        `json:"url"`
	Timeout  time.Duration `json:"timeout"`
	MaxConns int           `json:"max_connections"`
}

type JWTConfig struct {
	Secret    string        `json:"secret"`
	ExpiresIn time.Duration `json:"expires_in"`
	Issuer    string        `json:"issuer"`

	// Учетная запись оператора, bcrypt-хэш пароля
	OperatorUsername     string `json:"operator_username"`
	OperatorPasswordHash string `json:"-"`
}

// VendorConfig настройки HTTP-клиента поставщиков трекинга
type VendorConfig struct {
	RequestTimeout     time.Duration `json:"request_timeout"`
	HistoryTimeout     time.Duration `json:"history_timeout"`
	UserAgent          string        `json:"user_agent"`
	InsecureSkipVerify bool          `json:"insecure_skip_verify"`
	EncryptionKey      string        `json:"encryption_key"`

	// Circuit breaker на каждую конфигурацию
	BreakerMinRequests  uint32        `json:"breaker_min_requests"`
	BreakerFailureRatio float64       `json:"breaker_failure_ratio"`
	BreakerOpenTimeout  time.Duration `json:"breaker_open_timeout"`
}

// SyncConfig настройки планировщика синхронизации
type SyncConfig struct {
	Enabled                bool          `json:"enabled"`
	DefaultIntervalMinutes int           `json:"default_interval_minutes"`
	MaxParallelConfigs     int           `json:"max_parallel_configs"`
	LockTTL                time.Duration `json:"lock_ttl"`
	HistoryWindow          time.Duration `json:"history_window"`
	ReloadInterval         time.Duration `json:"reload_interval"`
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type SecurityConfig struct {
	RateLimitRequests int           `json:"rate_limit_requests"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
	RequestTimeout    time.Duration `json:"request_timeout"`
	ResponseTimeout   time.Duration `json:"response_timeout"`
	WebhookSecret     string        `json:"webhook_secret"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

type ExternalConfig struct {
	// Telegram
	TelegramBotToken string `json:"telegram_bot_token"`
	TelegramChatID   string `json:"telegram_chat_id"`

	// Google Maps
	GoogleMapsAPIKey string `json:"google_maps_api_key"`
	GeocodingURL     string `json:"geocoding_url"`
}

var GlobalConfig *Config

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	// Загружаем .env файл если он существует
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	config := &Config{
		App: AppConfigStruct{
			Env:     getEnv("APP_ENV", "development"),
			Port:    getEnv("APP_PORT", "8080"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			BaseURL: getEnv("BACKEND_URL", "http://localhost:8080"),
			Version: getEnv("API_VERSION", "v1"),
			Debug:   getEnvBool("DEBUG_MODE", false),
		},
		Database: DatabaseConfig{
			Type:            getEnv("DB_TYPE", "postgres"),
			Path:            getEnv("DB_PATH", "fleet_tracking.db"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "fleet_tracking"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 300*time.Second),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			URL:      getEnv("REDIS_URL", ""),
			Timeout:  getEnvDuration("REDIS_TIMEOUT", 5*time.Second),
			MaxConns: getEnvInt("REDIS_MAX_CONNECTIONS", 10),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", ""),
			ExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour),
			Issuer:    getEnv("JWT_ISSUER", "fleet-tracking"),

			OperatorUsername:     getEnv("OPERATOR_USERNAME", "admin"),
			OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},
		Vendor: VendorConfig{
			RequestTimeout:      getEnvDuration("VENDOR_REQUEST_TIMEOUT", 30*time.Second),
			HistoryTimeout:      getEnvDuration("VENDOR_HISTORY_TIMEOUT", 60*time.Second),
			UserAgent:           getEnv("VENDOR_USER_AGENT", "FleetTracking/1.0"),
			InsecureSkipVerify:  getEnvBool("VENDOR_INSECURE_SKIP_VERIFY", false),
			EncryptionKey:       getEnv("ENCRYPTION_KEY", ""),
			BreakerMinRequests:  uint32(getEnvInt("VENDOR_BREAKER_MIN_REQUESTS", 10)),
			BreakerFailureRatio: getEnvFloat("VENDOR_BREAKER_FAILURE_RATIO", 0.6),
			BreakerOpenTimeout:  getEnvDuration("VENDOR_BREAKER_OPEN_TIMEOUT", 2*time.Minute),
		},
		Sync: SyncConfig{
			Enabled:                getEnvBool("SYNC_ENABLED", true),
			DefaultIntervalMinutes: getEnvInt("SYNC_DEFAULT_INTERVAL_MINUTES", 5),
			MaxParallelConfigs:     getEnvInt("SYNC_MAX_PARALLEL_CONFIGS", 4),
			LockTTL:                getEnvDuration("SYNC_LOCK_TTL", 15*time.Minute),
			HistoryWindow:          getEnvDuration("SYNC_HISTORY_WINDOW", 24*time.Hour),
			ReloadInterval:         getEnvDuration("SYNC_RELOAD_INTERVAL", time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods:   getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin", "X-Webhook-Secret"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400),
		},
		Security: SecurityConfig{
			RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
			RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			ResponseTimeout:   getEnvDuration("RESPONSE_TIMEOUT", 90*time.Second),
			WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
		External: ExternalConfig{
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
			GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),
			GeocodingURL:     getEnv("GOOGLE_GEOCODING_URL", "https://maps.googleapis.com/maps/api/geocode/json"),
		},
	}

	// Валидация критически важных настроек
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	GlobalConfig = config
	return config, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	// Проверяем обязательные поля для продакшена
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
		}
		if c.Database.Type == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
		if c.Vendor.EncryptionKey == "" {
			return fmt.Errorf("ENCRYPTION_KEY is required in production")
		}
		if len(c.Vendor.EncryptionKey) < 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be at least 32 characters long")
		}
	}

	// Проверяем в любом окружении
	switch c.Database.Type {
	case "postgres":
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME cannot be empty")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER cannot be empty")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE: %s", c.Database.Type)
	}

	if c.Vendor.RequestTimeout <= 0 {
		return fmt.Errorf("VENDOR_REQUEST_TIMEOUT must be positive")
	}
	if c.Vendor.HistoryTimeout < c.Vendor.RequestTimeout {
		return fmt.Errorf("VENDOR_HISTORY_TIMEOUT must not be shorter than VENDOR_REQUEST_TIMEOUT")
	}
	if c.Sync.DefaultIntervalMinutes < 1 {
		return fmt.Errorf("SYNC_DEFAULT_INTERVAL_MINUTES must be at least 1")
	}
	if c.Sync.MaxParallelConfigs < 1 {
		return fmt.Errorf("SYNC_MAX_PARALLEL_CONFIGS must be at least 1")
	}

	return nil
}

// GetConfig возвращает текущую конфигурацию
func GetConfig() *Config {
	if GlobalConfig == nil {
		log.Fatal("Config not loaded. Call LoadConfig() first.")
	}
	return GlobalConfig
}

// Вспомогательные функции для получения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("Warning: Invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
		log.Printf("Warning: Invalid float value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		log.Printf("Warning: Invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("Warning: Invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшене
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// GetDatabaseDSN возвращает строку подключения к БД
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// GetAdminDSN возвращает строку подключения к служебной БД postgres
func (c *Config) GetAdminDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.SSLMode)
}

// GetRedisAddr возвращает адрес Redis
func (c *Config) GetRedisAddr() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// LogConfig выводит конфигурацию в лог (без секретных данных)
func (c *Config) LogConfig() {
	log.Printf("=== Application Configuration ===")
	log.Printf("Environment: %s", c.App.Env)
	log.Printf("Port: %s", c.App.Port)
	log.Printf("Database: %s", c.Database.Type)
	if c.Database.Type == "postgres" {
		log.Printf("Database Host: %s:%s", c.Database.Host, c.Database.Port)
		log.Printf("Database Name: %s", c.Database.Name)
	}
	log.Printf("Redis Enabled: %t (%s)", c.Redis.Enabled, c.GetRedisAddr())
	log.Printf("Vendor Timeouts: request=%v history=%v", c.Vendor.RequestTimeout, c.Vendor.HistoryTimeout)
	log.Printf("Sync Enabled: %t (default every %d min, %d configs in parallel)",
		c.Sync.Enabled, c.Sync.DefaultIntervalMinutes, c.Sync.MaxParallelConfigs)
	log.Printf("JWT Issuer: %s", c.JWT.Issuer)
	log.Printf("Log Level: %s", c.Logging.Level)
	log.Printf("Debug Mode: %t", c.App.Debug)
	log.Printf("================================")
}
