package services

import (
	"bytes"
	"testing"
	"time"

	"fleet_tracking/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRoute() (*models.TrackingDevice, []models.LocationRecord) {
	device := &models.TrackingDevice{ID: 1, VendorDeviceID: "42", Name: "Truck 42"}
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	records := []models.LocationRecord{
		{DeviceID: 1, Latitude: 24.7136, Longitude: 46.6753, Speed: 40, MovementStatus: models.DeviceStatusMoving, PositionTime: base},
		{DeviceID: 1, Latitude: 24.7236, Longitude: 46.6853, Speed: 60, MovementStatus: models.DeviceStatusMoving, PositionTime: base.Add(5 * time.Minute), Address: "King Fahd Road"},
		{DeviceID: 1, Latitude: 24.7236, Longitude: 46.6853, Speed: 0, MovementStatus: models.DeviceStatusStopped, PositionTime: base.Add(10 * time.Minute)},
	}
	return device, records
}

func TestExportRoute_Excel(t *testing.T) {
	device, records := sampleRoute()

	var buf bytes.Buffer
	require.NoError(t, ExportRoute(&buf, RouteFormatXLSX, device, records, records[0].PositionTime, records[2].PositionTime))
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Route")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Time", rows[0][0])
	assert.Equal(t, "2024-01-15 10:05:00", rows[2][0])

	name, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Truck 42", name)
}

func TestExportRoute_PDF(t *testing.T) {
	device, records := sampleRoute()

	var buf bytes.Buffer
	require.NoError(t, ExportRoute(&buf, RouteFormatPDF, device, records, records[0].PositionTime, records[2].PositionTime))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestExportRoute_UnknownFormat(t *testing.T) {
	device, records := sampleRoute()

	err := ExportRoute(&bytes.Buffer{}, "csv", device, records, time.Now(), time.Now())
	assert.Error(t, err)

	_, _, err = RouteExportContentType("csv")
	assert.Error(t, err)

	contentType, ext, err := RouteExportContentType(RouteFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.Equal(t, "pdf", ext)
}

func TestHaversineKm(t *testing.T) {
	assert.Zero(t, HaversineKm(10, 10, 10, 10))
	// Один градус по экватору
	assert.InDelta(t, 111.19, HaversineKm(0, 0, 0, 1), 0.01)
	// Эр-Рияд - Джидда
	assert.InDelta(t, 790, HaversineKm(24.7136, 46.6753, 21.4225, 39.8262), 15)
}
