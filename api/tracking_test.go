package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"fleet_tracking/models"
	"fleet_tracking/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDeviceLocations(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	other := testutils.CreateTestTrackingConfig(t, s.db, "https://b.example.com", models.AuthModeBearer)
	testutils.CreateTestDevice(t, s.db, cfg.ID, "1", 24.7, 46.6)
	testutils.CreateTestDevice(t, s.db, cfg.ID, "nofix", 0, 0)
	testutils.CreateTestDevice(t, s.db, other.ID, "2", 21.4, 39.8)

	w := s.do(t, http.MethodGet, "/api/tracking/devices/locations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), decodeBody(t, w)["count"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/tracking/devices/locations?config_id=%d", cfg.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := dataList(t, w)
	require.Len(t, list, 1)
	assert.Equal(t, 24.7, list[0].(map[string]interface{})["latitude"])

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/tracking/devices/locations?config_id=x", nil).Code)
}

func TestGetDeviceLocation(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	device := testutils.CreateTestDevice(t, s.db, cfg.ID, "1", 24.7, 46.6)

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/tracking/devices/%d/location", device.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", dataObject(t, w)["vendor_device_id"])

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/tracking/devices/999/location", nil).Code)
}

func TestGetDeviceRoute(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	device := testutils.CreateTestDevice(t, s.db, cfg.ID, "42", 1, 1)

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	testutils.CreateTestLocation(t, s.db, device, 1.01, 1.01, 40, base.Add(10*time.Minute))
	testutils.CreateTestLocation(t, s.db, device, 1.00, 1.00, 20, base)
	testutils.CreateTestLocation(t, s.db, device, 9, 9, 0, base.Add(-48*time.Hour))

	query := url.Values{}
	query.Set("from", base.Add(-time.Hour).Format(time.RFC3339))
	query.Set("to", base.Add(time.Hour).Format(time.RFC3339))

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/tracking/devices/%d/route?%s", device.ID, query.Encode()), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	points := body["data"].([]interface{})
	require.Len(t, points, 2)
	assert.Equal(t, 1.0, points[0].(map[string]interface{})["latitude"])
	assert.Equal(t, "Device 42", body["device"].(map[string]interface{})["name"])
	assert.Equal(t, float64(2), body["summary"].(map[string]interface{})["points"])
	assert.Equal(t, base.Add(-time.Hour).Format(time.RFC3339), body["from"])
}

func TestGetDeviceRoute_BadRange(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	device := testutils.CreateTestDevice(t, s.db, cfg.ID, "42", 1, 1)
	path := fmt.Sprintf("/api/tracking/devices/%d/route", device.ID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, path+"?from=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, path+"?hours=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodGet, path+"?from=2024-02-01T00:00:00Z&to=2024-01-01T00:00:00Z", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(t, http.MethodGet, path+"?from=2024-01-01T00:00:00Z&to=2024-06-01T00:00:00Z", nil).Code)

	w := s.do(t, http.MethodGet, path+"?hours=6", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["data"])
}

func TestExportDeviceRoute(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	device := testutils.CreateTestDevice(t, s.db, cfg.ID, "42", 1, 1)
	testutils.CreateTestLocation(t, s.db, device, 1, 1, 10, time.Now().UTC().Add(-time.Hour))

	w := s.do(t, http.MethodGet, fmt.Sprintf("/api/tracking/devices/%d/route/export", device.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "route_42_")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/tracking/devices/%d/route/export?format=pdf", device.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".pdf")

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/tracking/devices/%d/route/export?format=csv", device.ID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncDeviceHistory(t *testing.T) {
	s := newTestServer(t)
	fv := testutils.NewFakeVendor(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, fv.URL(), models.AuthModeBearer)
	device := testutils.CreateTestDevice(t, s.db, cfg.ID, "42", 1, 1)

	fv.HandleJSON("/devices/42/history", http.StatusOK, map[string]interface{}{
		"data": []map[string]interface{}{
			{"lat": 1.1, "lng": 1.1, "time": "2024-01-15 10:00:00"},
			{"lat": 1.2, "lng": 1.2, "time": "2024-01-15 10:05:00"},
		},
	})

	path := fmt.Sprintf("/api/tracking/devices/%d/history/sync?from=2024-01-15T09:00:00Z&to=2024-01-15T11:00:00Z", device.ID)
	w := s.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), dataObject(t, w)["appended"])

	var records int64
	s.db.Model(&models.LocationRecord{}).Where("device_id = ? AND source = ?", device.ID, models.LocationSourceHistory).Count(&records)
	assert.Equal(t, int64(2), records)

	fv.HandleJSON("/devices/42/history", http.StatusInternalServerError, map[string]string{"error": "boom"})
	w = s.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	inverted := fmt.Sprintf("/api/tracking/devices/%d/history/sync?from=2024-01-15T11:00:00Z&to=2024-01-15T09:00:00Z", device.ID)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, inverted, nil).Code)
}
