package models

import (
	"time"

	"gorm.io/gorm"
)

// IntegrationError модель для сохранения ошибок синхронизации с поставщиком в БД
type IntegrationError struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Информация об ошибке
	ConfigID  uint   `json:"config_id" gorm:"not null;index"`
	Operation string `json:"operation" gorm:"not null;type:varchar(50)"` // auth, sync, history, webhook
	DeviceID  uint   `json:"device_id" gorm:"index"`                     // ID локального устройства
	DeviceRef string `json:"device_ref" gorm:"type:varchar(100);index"`  // ID устройства у поставщика
	Service   string `json:"service" gorm:"not null;type:varchar(50)"`
	RunID     string `json:"run_id" gorm:"type:varchar(36)"`

	// Детали ошибки
	ErrorMessage string `json:"error_message" gorm:"type:text"`
	ErrorCode    string `json:"error_code" gorm:"type:varchar(100)"`
	Retryable    bool   `json:"retryable"`

	// Повторения той же ошибки в следующих циклах
	RetryCount  int        `json:"retry_count" gorm:"default:0"`
	MaxRetries  int        `json:"max_retries" gorm:"default:3"`
	LastRetryAt *time.Time `json:"last_retry_at"`

	// Статус обработки
	Status     string     `json:"status" gorm:"default:'pending';type:varchar(50)"` // pending, processing, resolved, failed
	ResolvedAt *time.Time `json:"resolved_at"`
	ResolvedBy string     `json:"resolved_by" gorm:"type:varchar(100)"` // user_id или system

	// Связи
	Config *TrackingConfig `json:"config,omitempty" gorm:"foreignKey:ConfigID"`
}

// TableName задает имя таблицы для модели IntegrationError
func (IntegrationError) TableName() string {
	return "integration_errors"
}

// IntegrationErrorStatus константы для статусов ошибок
const (
	IntegrationErrorStatusPending    = "pending"
	IntegrationErrorStatusProcessing = "processing"
	IntegrationErrorStatusResolved   = "resolved"
	IntegrationErrorStatusFailed     = "failed"
)

// IntegrationServiceTrackingVendor сервис, к которому относятся ошибки
const IntegrationServiceTrackingVendor = "tracking_vendor"

// IntegrationErrorOperation константы для операций
const (
	IntegrationOperationAuth    = "auth"
	IntegrationOperationSync    = "sync"
	IntegrationOperationHistory = "history"
	IntegrationOperationWebhook = "webhook"
)

// ResolvedBySystem отметка автоматического разрешения после успешной синхронизации
const ResolvedBySystem = "system"

// MarkAsResolved отмечает ошибку как решенную
func (ie *IntegrationError) MarkAsResolved(resolvedBy string) {
	ie.Status = IntegrationErrorStatusResolved
	now := time.Now()
	ie.ResolvedAt = &now
	ie.ResolvedBy = resolvedBy
	ie.UpdatedAt = now
}

// MarkAsFailed отмечает ошибку как неразрешимую
func (ie *IntegrationError) MarkAsFailed() {
	ie.Status = IntegrationErrorStatusFailed
	ie.UpdatedAt = time.Now()
}

// IncrementRetryCount фиксирует повторение той же ошибки в следующем цикле
func (ie *IntegrationError) IncrementRetryCount(message string) {
	ie.RetryCount++
	now := time.Now()
	ie.LastRetryAt = &now
	ie.ErrorMessage = message
	ie.UpdatedAt = now

	// Ошибка, повторившаяся MaxRetries раз подряд, считается устойчивой
	if ie.RetryCount >= ie.MaxRetries {
		ie.MarkAsFailed()
	}
}

// IntegrationErrorStats статистика по ошибкам синхронизации
type IntegrationErrorStats struct {
	TotalErrors       int64              `json:"total_errors"`
	PendingErrors     int64              `json:"pending_errors"`
	ResolvedErrors    int64              `json:"resolved_errors"`
	FailedErrors      int64              `json:"failed_errors"`
	ErrorsByOperation map[string]int64   `json:"errors_by_operation"`
	RecentErrors      []IntegrationError `json:"recent_errors"`
}

// GetIntegrationErrorStats возвращает статистику ошибок для конфигурации
func GetIntegrationErrorStats(db *gorm.DB, configID uint, limit int) (*IntegrationErrorStats, error) {
	stats := &IntegrationErrorStats{
		ErrorsByOperation: make(map[string]int64),
	}

	base := func() *gorm.DB {
		return db.Model(&IntegrationError{}).Where("config_id = ?", configID)
	}

	// Общее количество ошибок
	if err := base().Count(&stats.TotalErrors).Error; err != nil {
		return nil, err
	}

	// Ошибки по статусам
	if err := base().Where("status = ?", IntegrationErrorStatusPending).Count(&stats.PendingErrors).Error; err != nil {
		return nil, err
	}

	if err := base().Where("status = ?", IntegrationErrorStatusResolved).Count(&stats.ResolvedErrors).Error; err != nil {
		return nil, err
	}

	if err := base().Where("status = ?", IntegrationErrorStatusFailed).Count(&stats.FailedErrors).Error; err != nil {
		return nil, err
	}

	// Ошибки по операциям
	var operationStats []struct {
		Operation string
		Count     int64
	}
	if err := base().Select("operation, COUNT(*) as count").Group("operation").Scan(&operationStats).Error; err != nil {
		return nil, err
	}

	for _, stat := range operationStats {
		stats.ErrorsByOperation[stat.Operation] = stat.Count
	}

	// Последние ошибки
	if limit > 0 {
		if err := base().Order("created_at DESC").Limit(limit).Find(&stats.RecentErrors).Error; err != nil {
			return nil, err
		}
	}

	return stats, nil
}
