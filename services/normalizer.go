package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fleet_tracking/models"
)

// VendorTimeLayout формат даты/времени поставщика
const VendorTimeLayout = "2006-01-02 15:04:05"

// MovingSpeedThreshold скорость (км/ч), выше которой устройство считается движущимся
const MovingSpeedThreshold = 5.0

// Таблицы псевдонимов полей: ключи перебираются по порядку, первое непустое значение побеждает.
// Новый диалект поставщика добавляется расширением таблицы
var (
	deviceIDAliases    = []string{"id", "device_id", "deviceId", "uniqueId", "imei"}
	deviceNameAliases  = []string{"name", "label", "title"}
	imeiAliases        = []string{"imei", "uniqueId", "device_data.imei"}
	modelAliases       = []string{"model", "device_model", "device_data.device_model"}
	plateAliases       = []string{"plate_number", "plateNumber", "device_data.plate_number"}
	vehicleAliases     = []string{"vehicle_id", "vehicleId"}
	driverAliases      = []string{"driver_name", "driver"}
	latitudeAliases    = []string{"lat", "latitude", "position.latitude"}
	longitudeAliases   = []string{"lng", "lon", "longitude", "position.longitude"}
	altitudeAliases    = []string{"altitude", "alt", "position.altitude"}
	speedAliases       = []string{"speed", "position.speed"}
	headingAliases     = []string{"course", "heading", "bearing", "position.course"}
	accuracyAliases    = []string{"accuracy", "position.accuracy"}
	timeAliases        = []string{"dt_tracker", "time", "timestamp", "position_time", "fixTime"}
	ignitionAliases    = []string{"ignition", "engine", "attributes.ignition"}
	statusAliases      = []string{"status", "state", "online"}
	addressAliases     = []string{"address", "location"}
	satellitesAliases  = []string{"satellites", "sat", "attributes.sat"}
	activeAliases      = []string{"active", "is_active", "enabled"}
)

// vendorStatusTable сопоставление статуса поставщика каноническому. Неизвестное значение - offline
var vendorStatusTable = map[string]models.DeviceStatus{
	"online":  models.DeviceStatusOnline,
	"offline": models.DeviceStatusOffline,
	"moving":  models.DeviceStatusMoving,
	"stopped": models.DeviceStatusIdle,
	"idle":    models.DeviceStatusIdle,
	"true":    models.DeviceStatusOnline,
	"false":   models.DeviceStatusOffline,
	"ack":     models.DeviceStatusOnline,
}

// NormalizedDevice каноническое описание устройства
type NormalizedDevice struct {
	VendorDeviceID string
	Name           string
	IMEI           string
	DeviceModel    string
	PlateNumber    string
	VehicleRef     string
	DriverName     string
	Active         *bool
	Raw            RawValue
}

// NormalizedLocation каноническая точка
type NormalizedLocation struct {
	Latitude       float64
	Longitude      float64
	Altitude       float64
	Speed          float64
	Heading        float64
	Accuracy       float64
	Ignition       bool
	Satellites     int
	Address        string
	Status         models.DeviceStatus
	MovementStatus models.DeviceStatus
	PositionTime   time.Time
	ReceivedAt     time.Time

	// HasCoordinates true, только если присланы и широта, и долгота
	HasCoordinates bool
	HasAltitude    bool
	HasSpeed       bool
	HasHeading     bool
	HasAccuracy    bool
	HasIgnition    bool
	// TimeFromVendor false, если время заменено временем получения
	TimeFromVendor bool

	Raw RawValue
}

// NormalizeDevice извлекает идентичность устройства. Запись без идентификатора пропускается
func NormalizeDevice(raw RawValue) (*NormalizedDevice, error) {
	if raw.Kind != RawObject {
		return nil, &SkipError{Reason: "запись устройства не является объектом"}
	}

	id, ok := firstString(raw, deviceIDAliases)
	if !ok {
		return nil, &SkipError{Reason: "нет идентификатора устройства"}
	}

	device := &NormalizedDevice{
		VendorDeviceID: id,
		Raw:            raw,
	}
	device.Name, _ = firstString(raw, deviceNameAliases)
	device.IMEI, _ = firstString(raw, imeiAliases)
	device.DeviceModel, _ = firstString(raw, modelAliases)
	device.PlateNumber, _ = firstString(raw, plateAliases)
	device.VehicleRef, _ = firstString(raw, vehicleAliases)
	device.DriverName, _ = firstString(raw, driverAliases)
	if active, ok := firstBool(raw, activeAliases); ok {
		device.Active = &active
	}

	return device, nil
}

// NormalizeLocation приводит сырую точку к канонической схеме. Отсутствующие координаты дают 0.0,
// нечитаемое время заменяется временем получения
func NormalizeLocation(raw RawValue, receivedAt time.Time) *NormalizedLocation {
	loc := &NormalizedLocation{
		ReceivedAt:   receivedAt,
		PositionTime: receivedAt,
		Raw:          raw,
	}

	lat, hasLat := firstFloat(raw, latitudeAliases)
	lng, hasLng := firstFloat(raw, longitudeAliases)
	loc.Latitude = lat
	loc.Longitude = lng
	loc.HasCoordinates = hasLat && hasLng

	loc.Altitude, loc.HasAltitude = firstFloat(raw, altitudeAliases)
	loc.Heading, loc.HasHeading = firstFloat(raw, headingAliases)
	loc.Accuracy, loc.HasAccuracy = firstFloat(raw, accuracyAliases)
	if sats, ok := firstFloat(raw, satellitesAliases); ok {
		loc.Satellites = int(sats)
	}
	loc.Ignition, loc.HasIgnition = firstBool(raw, ignitionAliases)
	loc.Address, _ = firstString(raw, addressAliases)

	speed, hasSpeed := firstFloat(raw, speedAliases)
	loc.Speed = speed
	loc.HasSpeed = hasSpeed

	derived := models.DeviceStatusStopped
	if hasSpeed && speed > MovingSpeedThreshold {
		derived = models.DeviceStatusMoving
	}

	loc.Status = derived
	if vendorStatus, ok := firstScalar(raw, statusAliases); ok {
		loc.Status = MapVendorStatus(vendorStatus)
	}

	loc.MovementStatus = derived
	if loc.Status.IsMovement() {
		loc.MovementStatus = loc.Status
	}

	if value, ok := firstScalar(raw, timeAliases); ok {
		if parsed, ok := parseVendorTime(value); ok {
			loc.PositionTime = parsed
			loc.TimeFromVendor = true
		}
	}

	return loc
}

// MapVendorStatus сопоставляет статус поставщика каноническому через таблицу
func MapVendorStatus(value interface{}) models.DeviceStatus {
	key := strings.ToLower(strings.TrimSpace(toString(value)))
	if n, ok := toFloat(value); ok && key != "true" && key != "false" {
		if n != 0 {
			key = "true"
		} else {
			key = "false"
		}
	}
	if status, ok := vendorStatusTable[key]; ok {
		return status
	}
	return models.DeviceStatusOffline
}

// ValidateCoordinates проверяет диапазоны широты и долготы
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: %.6f, %.6f", ErrInvalidCoordinates, lat, lng)
	}
	return nil
}

func parseVendorTime(value interface{}) (time.Time, bool) {
	if n, ok := value.(json.Number); ok {
		if unix, err := n.Int64(); err == nil && unix > 0 {
			// Миллисекунды у некоторых поставщиков
			if unix > 1e12 {
				return time.UnixMilli(unix).UTC(), true
			}
			return time.Unix(unix, 0).UTC(), true
		}
		return time.Time{}, false
	}

	s := strings.TrimSpace(toString(value))
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(VendorTimeLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func firstScalar(raw RawValue, aliases []string) (interface{}, bool) {
	for _, key := range aliases {
		value, ok := raw.Lookup(key)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case map[string]interface{}, []interface{}:
			continue
		case string:
			if strings.TrimSpace(v) == "" {
				continue
			}
		}
		return value, true
	}
	return nil, false
}

func firstString(raw RawValue, aliases []string) (string, bool) {
	value, ok := firstScalar(raw, aliases)
	if !ok {
		return "", false
	}
	s := strings.TrimSpace(toString(value))
	return s, s != ""
}

func firstFloat(raw RawValue, aliases []string) (float64, bool) {
	for _, key := range aliases {
		value, ok := raw.Lookup(key)
		if !ok {
			continue
		}
		if f, ok := toFloat(value); ok {
			return f, true
		}
	}
	return 0, false
}

func firstBool(raw RawValue, aliases []string) (bool, bool) {
	value, ok := firstScalar(raw, aliases)
	if !ok {
		return false, false
	}
	switch v := value.(type) {
	case bool:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0, err == nil
	case string:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "on", "yes":
				return true, true
			case "off", "no":
				return false, true
			}
			return false, false
		}
		return b, true
	}
	return false, false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
