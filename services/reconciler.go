package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"fleet_tracking/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Geocoder обратное геокодирование координат в адрес
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// Reconciler записывает нормализованные данные поставщика в хранилище
type Reconciler struct {
	db       *gorm.DB
	geocoder Geocoder
	cache    *PositionCache
	logger   *log.Logger
}

// NewReconciler создает Reconciler. geocoder и cache необязательны
func NewReconciler(db *gorm.DB, geocoder Geocoder, cache *PositionCache, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reconciler{
		db:       db,
		geocoder: geocoder,
		cache:    cache,
		logger:   logger,
	}
}

// ReconcileDevice создает или обновляет устройство по ключу (config_id, vendor_device_id).
// Обновляются только присланные поля, остальные сохраняются
func (r *Reconciler) ReconcileDevice(ctx context.Context, config *models.TrackingConfig, nd *NormalizedDevice) (*models.TrackingDevice, bool, error) {
	db := r.db.WithContext(ctx)

	device, err := r.findDevice(db, config.ID, nd.VendorDeviceID)
	if err != nil {
		return nil, false, storeError("поиск устройства", err)
	}

	if device == nil {
		device = &models.TrackingDevice{
			ConfigID:       config.ID,
			VendorDeviceID: nd.VendorDeviceID,
			Name:           nd.Name,
			IMEI:           nd.IMEI,
			DeviceModel:    nd.DeviceModel,
			PlateNumber:    nd.PlateNumber,
			VehicleRef:     nd.VehicleRef,
			DriverName:     nd.DriverName,
			IsActive:       true,
			Status:         models.DeviceStatusOffline,
		}
		if device.Name == "" {
			device.Name = device.DisplayName()
		}

		createErr := db.Create(device).Error
		if createErr == nil {
			// gorm пропускает false при default:true
			if nd.Active != nil && !*nd.Active {
				if err := db.Model(device).Update("is_active", false).Error; err != nil {
					return nil, false, storeError("создание устройства", err)
				}
				device.IsActive = false
			}
			return device, true, nil
		}

		// Параллельный цикл мог создать то же устройство
		existing, err := r.findDevice(db, config.ID, nd.VendorDeviceID)
		if err != nil || existing == nil {
			return nil, false, storeError("создание устройства", createErr)
		}
		device = existing
	}

	updates := deviceIdentityUpdates(nd)
	// Устройство, отключенное каскадом, снова активно, пока поставщик его перечисляет
	if nd.Active == nil && config.IsActive && !device.IsActive {
		updates["is_active"] = true
	}
	if len(updates) > 0 {
		if err := db.Model(device).Updates(updates).Error; err != nil {
			return nil, false, storeError("обновление устройства", err)
		}
		if active, ok := updates["is_active"].(bool); ok {
			device.IsActive = active
		}
	}

	return device, false, nil
}

func (r *Reconciler) findDevice(db *gorm.DB, configID uint, vendorDeviceID string) (*models.TrackingDevice, error) {
	var device models.TrackingDevice
	err := db.Where("config_id = ? AND vendor_device_id = ?", configID, vendorDeviceID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func deviceIdentityUpdates(nd *NormalizedDevice) map[string]interface{} {
	updates := make(map[string]interface{})
	set := func(column, value string) {
		if value != "" {
			updates[column] = value
		}
	}
	set("name", nd.Name)
	set("imei", nd.IMEI)
	set("device_model", nd.DeviceModel)
	set("plate_number", nd.PlateNumber)
	set("vehicle_ref", nd.VehicleRef)
	set("driver_name", nd.DriverName)
	if nd.Active != nil {
		updates["is_active"] = *nd.Active
	}
	return updates
}

// AppendLocation добавляет новую историческую точку. Записи никогда не объединяются и не изменяются
func (r *Reconciler) AppendLocation(ctx context.Context, device *models.TrackingDevice, loc *NormalizedLocation, source string) (*models.LocationRecord, error) {
	if err := ValidateCoordinates(loc.Latitude, loc.Longitude); err != nil {
		return nil, err
	}

	var rawData datatypes.JSON
	if loc.Raw.Kind != RawScalar || loc.Raw.Scalar != nil {
		encoded, err := json.Marshal(loc.Raw)
		if err == nil {
			rawData = datatypes.JSON(encoded)
		}
	}

	record := &models.LocationRecord{
		DeviceID:       device.ID,
		ConfigID:       device.ConfigID,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		Altitude:       loc.Altitude,
		Speed:          loc.Speed,
		Heading:        loc.Heading,
		Accuracy:       loc.Accuracy,
		Ignition:       loc.Ignition,
		MovementStatus: loc.MovementStatus,
		Satellites:     loc.Satellites,
		Address:        loc.Address,
		PositionTime:   loc.PositionTime,
		ServerTime:     loc.ReceivedAt,
		Source:         source,
		RawData:        rawData,
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, storeError("запись истории", err)
	}
	return record, nil
}

// ApplyLocation полный путь одной свежей точки: геокодирование, запись истории,
// обновление последней позиции устройства и зеркала транспорта.
// Ошибка возвращается только если точка не попала в историю
func (r *Reconciler) ApplyLocation(ctx context.Context, device *models.TrackingDevice, loc *NormalizedLocation, source string) (*models.LocationRecord, error) {
	if err := ValidateCoordinates(loc.Latitude, loc.Longitude); err != nil {
		return nil, err
	}

	if loc.Address == "" && loc.HasCoordinates && r.geocoder != nil {
		address, err := r.geocoder.ReverseGeocode(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			r.logger.Printf("геокодирование устройства %s не удалось: %v", device.VendorDeviceID, err)
		} else {
			loc.Address = address
		}
	}

	record, err := r.AppendLocation(ctx, device, loc, source)
	if err != nil {
		return nil, err
	}

	if err := r.mergeDevicePosition(ctx, device, loc); err != nil {
		r.logger.Printf("обновление позиции устройства %s не удалось: %v", device.VendorDeviceID, err)
		return record, nil
	}

	if err := r.syncFleetVehicle(ctx, device); err != nil {
		r.logger.Printf("обновление транспорта для устройства %s не удалось: %v", device.VendorDeviceID, err)
	}

	if r.cache != nil {
		if err := r.cache.SetDevicePosition(ctx, device); err != nil {
			r.logger.Printf("кэш позиции устройства %s: %v", device.VendorDeviceID, err)
		}
	}

	return record, nil
}

// mergeDevicePosition обновляет последнее состояние устройства только присланными полями.
// Позиция меняется, только если пришли обе координаты
func (r *Reconciler) mergeDevicePosition(ctx context.Context, device *models.TrackingDevice, loc *NormalizedLocation) error {
	receivedAt := loc.ReceivedAt
	updates := map[string]interface{}{
		"status":      loc.Status,
		"last_update": &receivedAt,
	}

	if loc.HasCoordinates {
		positionTime := loc.PositionTime
		updates["latitude"] = loc.Latitude
		updates["longitude"] = loc.Longitude
		updates["position_time"] = &positionTime
	}
	if loc.HasAltitude {
		updates["altitude"] = loc.Altitude
	}
	if loc.HasSpeed {
		updates["speed"] = loc.Speed
	}
	if loc.HasHeading {
		updates["heading"] = loc.Heading
	}
	if loc.HasAccuracy {
		updates["accuracy"] = loc.Accuracy
	}
	if loc.HasIgnition {
		updates["ignition"] = loc.Ignition
	}
	if loc.Address != "" {
		updates["address"] = loc.Address
	}

	if err := r.db.WithContext(ctx).Model(device).Updates(updates).Error; err != nil {
		return storeError("обновление позиции", err)
	}

	device.Status = loc.Status
	device.LastUpdate = &receivedAt
	if loc.HasCoordinates {
		positionTime := loc.PositionTime
		device.Latitude = loc.Latitude
		device.Longitude = loc.Longitude
		device.PositionTime = &positionTime
	}
	if loc.HasAltitude {
		device.Altitude = loc.Altitude
	}
	if loc.HasSpeed {
		device.Speed = loc.Speed
	}
	if loc.HasHeading {
		device.Heading = loc.Heading
	}
	if loc.HasAccuracy {
		device.Accuracy = loc.Accuracy
	}
	if loc.HasIgnition {
		device.Ignition = loc.Ignition
	}
	if loc.Address != "" {
		device.Address = loc.Address
	}
	return nil
}

// syncFleetVehicle обновляет зеркало привязанного транспорта, при необходимости привязывая его по госномеру
func (r *Reconciler) syncFleetVehicle(ctx context.Context, device *models.TrackingDevice) error {
	db := r.db.WithContext(ctx)

	var vehicle models.FleetVehicle
	err := db.Where("tracking_device_id = ?", device.ID).First(&vehicle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if device.PlateNumber == "" {
			return nil
		}
		err = db.Where("plate_number = ? AND tracking_device_id IS NULL", device.PlateNumber).First(&vehicle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deviceID := device.ID
		if err := db.Model(&vehicle).Update("tracking_device_id", &deviceID).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return db.Model(&vehicle).Updates(vehicle.MirrorDevice(device)).Error
}

// DeactivateConfigDevices отключает устройства конфигурации
func DeactivateConfigDevices(db *gorm.DB, configID uint) error {
	return db.Model(&models.TrackingDevice{}).
		Where("config_id = ?", configID).
		Update("is_active", false).Error
}

// DeleteConfigCascade удаляет конфигурацию вместе с устройствами и их историей
func DeleteConfigCascade(db *gorm.DB, configID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		deviceIDs := tx.Model(&models.TrackingDevice{}).Select("id").Where("config_id = ?", configID)

		if err := tx.Model(&models.FleetVehicle{}).
			Where("tracking_device_id IN (?)", deviceIDs).
			Update("tracking_device_id", nil).Error; err != nil {
			return fmt.Errorf("ошибка отвязки транспорта: %w", err)
		}
		if err := tx.Where("device_id IN (?)", deviceIDs).Delete(&models.LocationRecord{}).Error; err != nil {
			return fmt.Errorf("ошибка удаления истории: %w", err)
		}
		if err := tx.Where("config_id = ?", configID).Delete(&models.TrackingDevice{}).Error; err != nil {
			return fmt.Errorf("ошибка удаления устройств: %w", err)
		}
		if err := tx.Unscoped().Where("config_id = ?", configID).Delete(&models.IntegrationError{}).Error; err != nil {
			return fmt.Errorf("ошибка удаления журнала ошибок: %w", err)
		}
		if err := tx.Unscoped().Delete(&models.TrackingConfig{}, configID).Error; err != nil {
			return fmt.Errorf("ошибка удаления конфигурации: %w", err)
		}
		return nil
	})
}

func storeError(op string, err error) error {
	return &FetchError{Kind: FetchErrorStore, Op: op, Err: err}
}

// receiptTime время получения данных сервером
func receiptTime() time.Time {
	return time.Now().UTC()
}
