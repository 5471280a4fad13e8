package services

import (
	"context"
	"time"

	"fleet_tracking/models"
)

// demoDevices тестовые трекеры для проверки карты и API без поставщика
var demoDevices = []map[string]interface{}{
	{
		"name": "Vehicle 1 - Riyadh", "device_id": "DEV001", "imei": "123456789012345",
		"latitude": 24.7136, "longitude": 46.6753, "speed": 45.5, "status": "moving",
		"address": "King Fahd Road, Riyadh, Saudi Arabia", "vehicle_id": "VEH-001", "driver_name": "Ahmad Al-Rashid",
	},
	{
		"name": "Vehicle 2 - Jeddah", "device_id": "DEV002", "imei": "234567890123456",
		"latitude": 21.4225, "longitude": 39.8262, "speed": 0.0, "status": "idle",
		"address": "Palestine Street, Jeddah, Saudi Arabia", "vehicle_id": "VEH-002", "driver_name": "Mohammed Hassan",
	},
	{
		"name": "Vehicle 3 - Dammam", "device_id": "DEV003", "imei": "345678901234567",
		"latitude": 26.4207, "longitude": 50.0888, "speed": 62.3, "status": "online",
		"address": "Dhahran Highway, Dammam, Saudi Arabia", "vehicle_id": "VEH-003", "driver_name": "Khalid Ahmed",
	},
	{
		"name": "Vehicle 4 - Abu Dhabi", "device_id": "DEV004", "imei": "456789012345678",
		"latitude": 24.4539, "longitude": 54.3773, "speed": 0.0, "status": "offline",
		"address": "Sheikh Zayed Road, Abu Dhabi, UAE", "vehicle_id": "VEH-004", "driver_name": "Abdullah Saeed",
	},
}

// SeedDemoDevices создает или обновляет демо-устройства конфигурации через обычный путь нормализации
func (s *SyncService) SeedDemoDevices(ctx context.Context, cfg *models.TrackingConfig) *SyncReport {
	now := time.Now().UTC().Format(VendorTimeLayout)

	items := make([]interface{}, 0, len(demoDevices))
	for _, device := range demoDevices {
		item := make(map[string]interface{}, len(device)+1)
		for key, value := range device {
			item[key] = value
		}
		item["time"] = now
		items = append(items, item)
	}

	return s.ingest(ctx, cfg, NewRawValue(items), models.LocationSourceDemo)
}
