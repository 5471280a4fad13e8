package services

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"fleet_tracking/models"

	"gorm.io/gorm"
)

// IntegrationErrorLog ведет журнал ошибок синхронизации в БД.
// Повтор той же ошибки увеличивает счетчик существующей записи, успех закрывает ее
type IntegrationErrorLog struct {
	db     *gorm.DB
	logger *log.Logger
}

// NewIntegrationErrorLog создает журнал ошибок
func NewIntegrationErrorLog(db *gorm.DB, logger *log.Logger) *IntegrationErrorLog {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &IntegrationErrorLog{db: db, logger: logger}
}

// Record сохраняет ошибку операции. Ошибки записи журнала только логируются
func (l *IntegrationErrorLog) Record(ctx context.Context, configID uint, operation, deviceRef, runID string, cause error) {
	db := l.db.WithContext(ctx)

	var existing models.IntegrationError
	err := db.Where("config_id = ? AND operation = ? AND device_ref = ? AND status = ?",
		configID, operation, deviceRef, models.IntegrationErrorStatusPending).
		Order("id DESC").First(&existing).Error

	switch {
	case err == nil:
		existing.IncrementRetryCount(cause.Error())
		existing.RunID = runID
		if err := db.Save(&existing).Error; err != nil {
			l.logger.Printf("не удалось обновить запись об ошибке %d: %v", existing.ID, err)
		}
		return
	case !errors.Is(err, gorm.ErrRecordNotFound):
		l.logger.Printf("не удалось найти запись об ошибке: %v", err)
		return
	}

	entry := &models.IntegrationError{
		ConfigID:     configID,
		Operation:    operation,
		DeviceRef:    deviceRef,
		Service:      models.IntegrationServiceTrackingVendor,
		RunID:        runID,
		ErrorMessage: cause.Error(),
		ErrorCode:    errorCode(cause),
		Retryable:    isRetryable(cause),
		MaxRetries:   3,
		Status:       models.IntegrationErrorStatusPending,
	}
	if err := db.Create(entry).Error; err != nil {
		l.logger.Printf("не удалось сохранить запись об ошибке: %v", err)
	}
}

// Resolve закрывает открытые ошибки операции после успеха
func (l *IntegrationErrorLog) Resolve(ctx context.Context, configID uint, operation, deviceRef string) {
	now := time.Now()
	err := l.db.WithContext(ctx).Model(&models.IntegrationError{}).
		Where("config_id = ? AND operation = ? AND device_ref = ? AND status IN ?",
			configID, operation, deviceRef,
			[]string{models.IntegrationErrorStatusPending, models.IntegrationErrorStatusFailed}).
		Updates(map[string]interface{}{
			"status":      models.IntegrationErrorStatusResolved,
			"resolved_at": &now,
			"resolved_by": models.ResolvedBySystem,
		}).Error
	if err != nil {
		l.logger.Printf("не удалось закрыть ошибки %s/%s: %v", operation, deviceRef, err)
	}
}

func errorCode(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "auth"
	}
	if errors.Is(err, ErrInvalidCoordinates) {
		return "invalid_coordinates"
	}
	if kind := FetchKind(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrInvalidCoordinates) || IsSkip(err) {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Err != nil
	}
	return FetchKind(err) != FetchErrorInvalidJSON
}
