package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Источники исторических точек
const (
	LocationSourcePoll    = "poll"
	LocationSourceHistory = "history"
	LocationSourceWebhook = "webhook"
	LocationSourceDemo    = "demo"
)

// ErrLocationImmutable возвращается при попытке изменить историческую точку
var ErrLocationImmutable = errors.New("location records are append-only")

// LocationRecord одна неизменяемая историческая GPS-точка устройства
type LocationRecord struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	DeviceID uint `json:"device_id" gorm:"not null;index:idx_location_records_device_time,priority:1"`
	ConfigID uint `json:"config_id" gorm:"not null;index"`

	// Координаты
	Latitude  float64 `json:"latitude" gorm:"not null"`
	Longitude float64 `json:"longitude" gorm:"not null"`
	Altitude  float64 `json:"altitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Accuracy  float64 `json:"accuracy"`

	// Состояние транспорта
	Ignition       bool         `json:"ignition"`
	MovementStatus DeviceStatus `json:"movement_status" gorm:"type:varchar(20)"`
	Satellites     int          `json:"satellites"`
	Address        string       `json:"address" gorm:"type:text"`

	// Время: от поставщика (авторитетное) и время получения сервером
	PositionTime time.Time `json:"position_time" gorm:"not null;index:idx_location_records_device_time,priority:2"`
	ServerTime   time.Time `json:"server_time" gorm:"not null"`

	// Исходный ответ поставщика для аудита
	Source  string         `json:"source" gorm:"type:varchar(20);default:'poll'"`
	RawData datatypes.JSON `json:"raw_data" gorm:"type:json"`

	Device *TrackingDevice `json:"device,omitempty" gorm:"foreignKey:DeviceID"`
}

// TableName задает имя таблицы для модели LocationRecord
func (LocationRecord) TableName() string {
	return "location_records"
}

// BeforeUpdate запрещает изменение истории
func (l *LocationRecord) BeforeUpdate(tx *gorm.DB) error {
	return ErrLocationImmutable
}
