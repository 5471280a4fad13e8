package models

import (
	"time"
)

// DeviceStatus текущее состояние трекера
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
	DeviceStatusMoving  DeviceStatus = "moving"
	DeviceStatusIdle    DeviceStatus = "idle"
	DeviceStatusStopped DeviceStatus = "stopped"
)

// IsMovement проверяет, описывает ли статус движение (moving/idle/stopped)
func (s DeviceStatus) IsMovement() bool {
	switch s {
	case DeviceStatusMoving, DeviceStatusIdle, DeviceStatusStopped:
		return true
	}
	return false
}

// TrackingDevice кэш последнего известного состояния одного трекера
type TrackingDevice struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Естественный ключ: (config_id, vendor_device_id)
	ConfigID       uint   `json:"config_id" gorm:"not null;uniqueIndex:idx_tracking_devices_config_vendor,priority:1"`
	VendorDeviceID string `json:"vendor_device_id" gorm:"not null;type:varchar(100);uniqueIndex:idx_tracking_devices_config_vendor,priority:2"`

	// Описание устройства
	Name        string `json:"name" gorm:"not null;type:varchar(150)"`
	IMEI        string `json:"imei" gorm:"type:varchar(32);index"`
	DeviceModel string `json:"device_model" gorm:"type:varchar(100)"`
	IsActive    bool   `json:"is_active" gorm:"default:true;index"`

	// Текущее состояние
	Status   DeviceStatus `json:"status" gorm:"default:'offline';type:varchar(20)"`
	Ignition bool         `json:"ignition"`

	// Последняя известная позиция
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
	Altitude     float64    `json:"altitude"`
	Speed        float64    `json:"speed"`   // км/ч
	Heading      float64    `json:"heading"` // градусы
	Accuracy     float64    `json:"accuracy"`
	PositionTime *time.Time `json:"position_time"`
	LastUpdate   *time.Time `json:"last_update"`
	Address      string     `json:"address" gorm:"type:text"`

	// Транспорт
	VehicleRef  string `json:"vehicle_ref" gorm:"type:varchar(100)"`
	PlateNumber string `json:"plate_number" gorm:"type:varchar(50)"`
	DriverName  string `json:"driver_name" gorm:"type:varchar(150)"`

	// Связи
	Config    *TrackingConfig  `json:"config,omitempty" gorm:"foreignKey:ConfigID"`
	Locations []LocationRecord `json:"locations,omitempty" gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE"`
}

// TableName задает имя таблицы для модели TrackingDevice
func (TrackingDevice) TableName() string {
	return "tracking_devices"
}

// HasFix проверяет, есть ли у устройства координаты (0,0 означает "фиксации еще нет")
func (d *TrackingDevice) HasFix() bool {
	return d.Latitude != 0 || d.Longitude != 0
}

// DisplayName возвращает имя для отображения
func (d *TrackingDevice) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return "Device " + d.VendorDeviceID
}
