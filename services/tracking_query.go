package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleet_tracking/models"

	"gorm.io/gorm"
)

// MaxRouteWindow максимальный период запроса маршрута
const MaxRouteWindow = 31 * 24 * time.Hour

// ErrInvalidRange некорректный период запроса
var ErrInvalidRange = errors.New("invalid time range")

// TrackingQueryService чтение последних позиций и истории. Только чтение, без логики синхронизации
type TrackingQueryService struct {
	db    *gorm.DB
	cache *PositionCache
}

// NewTrackingQueryService создает сервис чтения. cache может быть nil
func NewTrackingQueryService(db *gorm.DB, cache *PositionCache) *TrackingQueryService {
	return &TrackingQueryService{db: db, cache: cache}
}

// LatestPositions последние позиции активных устройств с координатами. configID 0 - все конфигурации
func (q *TrackingQueryService) LatestPositions(ctx context.Context, configID uint) ([]models.TrackingDevice, error) {
	if devices, ok := q.cache.GetPositions(ctx, configID); ok {
		return devices, nil
	}

	query := q.db.WithContext(ctx).
		Select("tracking_devices.*").
		Joins("JOIN tracking_configs ON tracking_configs.id = tracking_devices.config_id AND tracking_configs.deleted_at IS NULL").
		Where("tracking_devices.is_active = ? AND tracking_configs.is_active = ?", true, true).
		Where("(tracking_devices.latitude <> 0 OR tracking_devices.longitude <> 0)")
	if configID != 0 {
		query = query.Where("tracking_devices.config_id = ?", configID)
	}

	var devices []models.TrackingDevice
	if err := query.Order("tracking_devices.name ASC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("ошибка загрузки позиций: %w", err)
	}

	if err := q.cache.SetPositions(ctx, configID, devices); err != nil {
		q.cache.logger.Printf("ошибка записи кэша позиций: %v", err)
	}
	return devices, nil
}

// DeviceLocation текущее состояние одного устройства
func (q *TrackingQueryService) DeviceLocation(ctx context.Context, deviceID uint) (*models.TrackingDevice, error) {
	if cached, err := q.cache.GetDevicePosition(ctx, deviceID); err == nil && cached != nil {
		return cached, nil
	}

	var device models.TrackingDevice
	if err := q.db.WithContext(ctx).First(&device, deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// PositionHistory точки устройства за период, по возрастанию времени позиции
func (q *TrackingQueryService) PositionHistory(ctx context.Context, deviceID uint, from, to time.Time) ([]models.LocationRecord, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: окончание должно быть позже начала", ErrInvalidRange)
	}
	if to.Sub(from) > MaxRouteWindow {
		return nil, fmt.Errorf("%w: период больше %d дней", ErrInvalidRange, int(MaxRouteWindow.Hours()/24))
	}

	var records []models.LocationRecord
	err := q.db.WithContext(ctx).
		Where("device_id = ? AND position_time >= ? AND position_time <= ?", deviceID, from, to).
		Order("position_time ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки истории: %w", err)
	}
	return records, nil
}

// RouteSummary сводка по маршруту
type RouteSummary struct {
	Points     int     `json:"points"`
	DistanceKm float64 `json:"distance_km"`
	MaxSpeed   float64 `json:"max_speed"`
	AvgSpeed   float64 `json:"avg_speed"`
}

// SummarizeRoute считает пройденное расстояние по точкам маршрута
func SummarizeRoute(records []models.LocationRecord) RouteSummary {
	summary := RouteSummary{Points: len(records)}
	if len(records) == 0 {
		return summary
	}

	var speedSum float64
	for i, record := range records {
		speedSum += record.Speed
		if record.Speed > summary.MaxSpeed {
			summary.MaxSpeed = record.Speed
		}
		if i > 0 {
			prev := records[i-1]
			summary.DistanceKm += HaversineKm(prev.Latitude, prev.Longitude, record.Latitude, record.Longitude)
		}
	}
	summary.AvgSpeed = speedSum / float64(len(records))
	return summary
}

// ConfigStats сводка конфигурации для API
type ConfigStats struct {
	ConfigID       uint       `json:"config_id"`
	TotalDevices   int64      `json:"total_devices"`
	ActiveDevices  int64      `json:"active_devices"`
	OnlineDevices  int64      `json:"online_devices"`
	MovingDevices  int64      `json:"moving_devices"`
	TotalLocations int64      `json:"total_locations"`
	SyncCount      int        `json:"sync_count"`
	SuccessRate    float64    `json:"success_rate"`
	IsHealthy      bool       `json:"is_healthy"`
	LastSyncAt     *time.Time `json:"last_sync_at"`
}

// ConfigStats собирает статистику конфигурации
func (q *TrackingQueryService) ConfigStats(ctx context.Context, cfg *models.TrackingConfig) (*ConfigStats, error) {
	stats := &ConfigStats{
		ConfigID:    cfg.ID,
		SyncCount:   cfg.SyncCount,
		SuccessRate: cfg.GetSuccessRate(),
		IsHealthy:   cfg.IsHealthy(),
		LastSyncAt:  cfg.LastSyncAt,
	}

	devices := func() *gorm.DB {
		return q.db.WithContext(ctx).Model(&models.TrackingDevice{}).Where("config_id = ?", cfg.ID)
	}

	if err := devices().Count(&stats.TotalDevices).Error; err != nil {
		return nil, err
	}
	if err := devices().Where("is_active = ?", true).Count(&stats.ActiveDevices).Error; err != nil {
		return nil, err
	}
	if err := devices().Where("status IN ?", []models.DeviceStatus{
		models.DeviceStatusOnline, models.DeviceStatusMoving, models.DeviceStatusIdle,
	}).Count(&stats.OnlineDevices).Error; err != nil {
		return nil, err
	}
	if err := devices().Where("status = ?", models.DeviceStatusMoving).Count(&stats.MovingDevices).Error; err != nil {
		return nil, err
	}
	if err := q.db.WithContext(ctx).Model(&models.LocationRecord{}).Where("config_id = ?", cfg.ID).Count(&stats.TotalLocations).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
