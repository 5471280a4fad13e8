package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// AuthMode способ авторизации у поставщика трекинга
type AuthMode string

const (
	// AuthModeBearer API-ключ в заголовке Authorization
	AuthModeBearer AuthMode = "bearer"
	// AuthModeLogin обмен логина/пароля на хэш сессии (user_api_hash)
	AuthModeLogin AuthMode = "login"
)

// Статусы подключения конфигурации
const (
	ConnectionStatusUntested  = "untested"
	ConnectionStatusConnected = "connected"
	ConnectionStatusFailed    = "failed"
)

// MinPollIntervalMinutes минимальный интервал опроса поставщика
const MinPollIntervalMinutes = 1

// TrackingConfig одна учетная запись/подключение к поставщику GPS-трекинга
type TrackingConfig struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Подключение
	Name     string   `json:"name" gorm:"not null;type:varchar(100)"`
	APIURL   string   `json:"api_url" gorm:"not null;type:varchar(255)"`
	AuthMode AuthMode `json:"auth_mode" gorm:"type:varchar(20)"`

	// Учетные данные хранятся в зашифрованном виде
	APIKey   string `json:"-" gorm:"type:text"`
	Username string `json:"username" gorm:"type:varchar(255)"`
	Password string `json:"-" gorm:"type:text"`

	// Опрос
	PollIntervalMinutes int  `json:"poll_interval_minutes" gorm:"default:5"`
	IsActive            bool `json:"is_active" gorm:"default:true;index"`

	// Состояние, которое меняет только синхронизация
	LastSyncAt       *time.Time `json:"last_sync_at"`
	ConnectionStatus string     `json:"connection_status" gorm:"default:'untested';type:varchar(20)"`
	LastError        string     `json:"last_error" gorm:"type:text"`
	LastErrorAt      *time.Time `json:"last_error_at"`

	// Статистика
	SyncCount    int `json:"sync_count" gorm:"default:0"`
	SuccessCount int `json:"success_count" gorm:"default:0"`
	ErrorCount   int `json:"error_count" gorm:"default:0"`

	// Связи
	Devices []TrackingDevice `json:"devices,omitempty" gorm:"foreignKey:ConfigID"`
}

// TableName задает имя таблицы для модели TrackingConfig
func (TrackingConfig) TableName() string {
	return "tracking_configs"
}

// ResolveAuthMode возвращает режим авторизации: явно заданный или выведенный из учетных данных
func (c *TrackingConfig) ResolveAuthMode() AuthMode {
	switch c.AuthMode {
	case AuthModeBearer, AuthModeLogin:
		return c.AuthMode
	}
	if c.APIKey != "" {
		return AuthModeBearer
	}
	return AuthModeLogin
}

// NormalizedURL возвращает базовый URL API со схемой и без завершающего слэша
func (c *TrackingConfig) NormalizedURL() string {
	url := strings.TrimSpace(c.APIURL)
	if url == "" {
		return ""
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return strings.TrimRight(url, "/")
}

// PollInterval возвращает интервал опроса, не меньше минимального
func (c *TrackingConfig) PollInterval() time.Duration {
	minutes := c.PollIntervalMinutes
	if minutes < MinPollIntervalMinutes {
		minutes = MinPollIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// IsHealthy проверяет, работает ли подключение нормально
func (c *TrackingConfig) IsHealthy() bool {
	if !c.IsActive {
		return false
	}

	if c.ConnectionStatus == ConnectionStatusFailed {
		return false
	}

	// Если синхронизация не выполнялась дольше трех интервалов, это проблема
	if c.LastSyncAt != nil && time.Since(*c.LastSyncAt) > 3*c.PollInterval() {
		return false
	}

	return true
}

// GetSuccessRate возвращает процент успешных синхронизаций
func (c *TrackingConfig) GetSuccessRate() float64 {
	if c.SyncCount == 0 {
		return 0.0
	}

	return float64(c.SuccessCount) / float64(c.SyncCount) * 100.0
}

// RecordSync обновляет состояние после цикла синхронизации и возвращает изменённые колонки
func (c *TrackingConfig) RecordSync(at time.Time, status string, errorMessage string) map[string]interface{} {
	c.SyncCount++
	c.LastSyncAt = &at
	c.ConnectionStatus = status

	if status == ConnectionStatusFailed {
		c.ErrorCount++
		c.LastError = errorMessage
		c.LastErrorAt = &at
	} else {
		c.SuccessCount++
		c.LastError = ""
	}

	return map[string]interface{}{
		"sync_count":        c.SyncCount,
		"success_count":     c.SuccessCount,
		"error_count":       c.ErrorCount,
		"last_sync_at":      c.LastSyncAt,
		"connection_status": c.ConnectionStatus,
		"last_error":        c.LastError,
		"last_error_at":     c.LastErrorAt,
	}
}
