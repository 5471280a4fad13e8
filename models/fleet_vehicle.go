package models

import (
	"time"

	"gorm.io/gorm"
)

// FleetVehicle транспортное средство автопарка, к которому может быть привязан трекер
type FleetVehicle struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	Name        string `json:"name" gorm:"not null;type:varchar(150)"`
	PlateNumber string `json:"plate_number" gorm:"type:varchar(50);index"`
	DriverName  string `json:"driver_name" gorm:"type:varchar(150)"`

	// Привязанный трекер
	TrackingDeviceID *uint           `json:"tracking_device_id" gorm:"index"`
	TrackingDevice   *TrackingDevice `json:"tracking_device,omitempty" gorm:"foreignKey:TrackingDeviceID"`

	// Зеркало состояния трекера на момент последней синхронизации
	DeviceStatus    DeviceStatus `json:"device_status" gorm:"type:varchar(20)"`
	CurrentLocation string       `json:"current_location" gorm:"type:text"`
	LastKnownSpeed  float64      `json:"last_known_speed"`
	Latitude        float64      `json:"latitude"`
	Longitude       float64      `json:"longitude"`
	LastGPSUpdate   *time.Time   `json:"last_gps_update"`
}

// TableName задает имя таблицы для модели FleetVehicle
func (FleetVehicle) TableName() string {
	return "fleet_vehicles"
}

// MirrorDevice копирует текущее состояние трекера в транспортное средство
func (v *FleetVehicle) MirrorDevice(device *TrackingDevice) map[string]interface{} {
	v.DeviceStatus = device.Status
	v.CurrentLocation = device.Address
	v.LastKnownSpeed = device.Speed
	v.Latitude = device.Latitude
	v.Longitude = device.Longitude
	v.LastGPSUpdate = device.LastUpdate

	return map[string]interface{}{
		"device_status":    v.DeviceStatus,
		"current_location": v.CurrentLocation,
		"last_known_speed": v.LastKnownSpeed,
		"latitude":         v.Latitude,
		"longitude":        v.Longitude,
		"last_gps_update":  v.LastGPSUpdate,
	}
}
