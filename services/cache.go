package services

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"fleet_tracking/database"
	"fleet_tracking/models"

	"github.com/go-redis/redis/v8"
)

// Константы для TTL кэша
const (
	CacheTTLPosition  = 10 * time.Minute
	CacheTTLPositions = 1 * time.Minute
)

// PositionCache кэширует последние позиции устройств в Redis. Без Redis все методы no-op
type PositionCache struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewPositionCache создает кэш позиций
func NewPositionCache(redisClient *redis.Client, logger *log.Logger) *PositionCache {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &PositionCache{
		redis:  redisClient,
		logger: logger,
	}
}

// Enabled проверяет, подключен ли Redis
func (pc *PositionCache) Enabled() bool {
	return pc != nil && pc.redis != nil
}

// SetDevicePosition сохраняет позицию устройства и сбрасывает список позиций его конфигурации
func (pc *PositionCache) SetDevicePosition(ctx context.Context, device *models.TrackingDevice) error {
	if !pc.Enabled() {
		return nil
	}

	if err := database.CacheSetJSON(ctx, pc.redis, database.GenerateDevicePositionKey(device.ID), device, CacheTTLPosition); err != nil {
		return err
	}
	return database.CacheDel(ctx, pc.redis, database.GenerateConfigPositionsKey(device.ConfigID), database.GenerateConfigPositionsKey(0))
}

// GetDevicePosition получает позицию устройства. Промах возвращает (nil, nil)
func (pc *PositionCache) GetDevicePosition(ctx context.Context, deviceID uint) (*models.TrackingDevice, error) {
	if !pc.Enabled() {
		return nil, nil
	}

	var device models.TrackingDevice
	err := database.CacheGetJSON(ctx, pc.redis, database.GenerateDevicePositionKey(deviceID), &device)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// SetPositions кэширует список последних позиций. configID 0 означает все конфигурации
func (pc *PositionCache) SetPositions(ctx context.Context, configID uint, devices []models.TrackingDevice) error {
	if !pc.Enabled() {
		return nil
	}
	return database.CacheSetJSON(ctx, pc.redis, database.GenerateConfigPositionsKey(configID), devices, CacheTTLPositions)
}

// GetPositions получает кэшированный список позиций. Промах возвращает (nil, false)
func (pc *PositionCache) GetPositions(ctx context.Context, configID uint) ([]models.TrackingDevice, bool) {
	if !pc.Enabled() {
		return nil, false
	}

	var devices []models.TrackingDevice
	if err := database.CacheGetJSON(ctx, pc.redis, database.GenerateConfigPositionsKey(configID), &devices); err != nil {
		if !errors.Is(err, redis.Nil) {
			pc.logger.Printf("ошибка чтения кэша позиций: %v", err)
		}
		return nil, false
	}
	return devices, true
}

// InvalidateDevice удаляет позицию устройства из кэша
func (pc *PositionCache) InvalidateDevice(ctx context.Context, device *models.TrackingDevice) error {
	if !pc.Enabled() {
		return nil
	}
	return database.CacheDel(ctx, pc.redis,
		database.GenerateDevicePositionKey(device.ID),
		database.GenerateConfigPositionsKey(device.ConfigID),
		database.GenerateConfigPositionsKey(0),
	)
}

// InvalidateConfig сбрасывает списки позиций конфигурации
func (pc *PositionCache) InvalidateConfig(ctx context.Context, configID uint) error {
	if !pc.Enabled() {
		return nil
	}
	return database.CacheDel(ctx, pc.redis, database.GenerateConfigPositionsKey(configID), database.GenerateConfigPositionsKey(0))
}
