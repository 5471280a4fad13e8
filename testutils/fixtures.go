package testutils

import (
	"testing"
	"time"

	"fleet_tracking/models"

	"gorm.io/gorm"
)

// Учетные данные тестовых конфигураций
const (
	TestAPIKey   = "test-api-key"
	TestUsername = "demo@example.com"
	TestPassword = "demo-password"
	TestUserHash = "user-api-hash-123"
)

// CreateTestTrackingConfig создает активную конфигурацию с открытыми учетными данными
func CreateTestTrackingConfig(t *testing.T, db *gorm.DB, apiURL string, mode models.AuthMode) *models.TrackingConfig {
	t.Helper()

	cfg := &models.TrackingConfig{
		Name:                "Test Vendor",
		APIURL:              apiURL,
		AuthMode:            mode,
		PollIntervalMinutes: 5,
		IsActive:            true,
		ConnectionStatus:    models.ConnectionStatusUntested,
	}
	switch mode {
	case models.AuthModeLogin:
		cfg.Username = TestUsername
		cfg.Password = TestPassword
	default:
		cfg.APIKey = TestAPIKey
	}

	if err := db.Create(cfg).Error; err != nil {
		t.Fatalf("Failed to create tracking config: %v", err)
	}
	return cfg
}

// CreateTestDevice создает устройство конфигурации с позицией
func CreateTestDevice(t *testing.T, db *gorm.DB, configID uint, vendorID string, lat, lng float64) *models.TrackingDevice {
	t.Helper()

	now := time.Now().UTC()
	device := &models.TrackingDevice{
		ConfigID:       configID,
		VendorDeviceID: vendorID,
		Name:           "Device " + vendorID,
		IsActive:       true,
		Status:         models.DeviceStatusOnline,
		Latitude:       lat,
		Longitude:      lng,
		PositionTime:   &now,
		LastUpdate:     &now,
	}
	if err := db.Create(device).Error; err != nil {
		t.Fatalf("Failed to create tracking device: %v", err)
	}
	return device
}

// CreateTestLocation добавляет историческую точку устройства
func CreateTestLocation(t *testing.T, db *gorm.DB, device *models.TrackingDevice, lat, lng, speed float64, at time.Time) *models.LocationRecord {
	t.Helper()

	record := &models.LocationRecord{
		DeviceID:       device.ID,
		ConfigID:       device.ConfigID,
		Latitude:       lat,
		Longitude:      lng,
		Speed:          speed,
		MovementStatus: models.DeviceStatusMoving,
		PositionTime:   at,
		ServerTime:     time.Now().UTC(),
		Source:         models.LocationSourcePoll,
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("Failed to create location record: %v", err)
	}
	return record
}
