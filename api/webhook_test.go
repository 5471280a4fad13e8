package api

import (
	"fmt"
	"net/http"
	"testing"

	"fleet_tracking/middleware"
	"fleet_tracking/models"
	"fleet_tracking/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookHeaders(secret string) map[string]string {
	return map[string]string{middleware.WebhookSecretHeader: secret}
}

func TestReceivePositions(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	path := fmt.Sprintf("/api/tracking/webhook/%d", cfg.ID)

	body := `[
		{"device_id":"W1","name":"Pushed","lat":51.1,"lng":71.4,"speed":15,"time":"2024-01-15 10:00:00"},
		{"name":"no identity"}
	]`
	w := s.doWithHeaders(t, http.MethodPost, path, body, webhookHeaders("webhook-test-secret"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeBody(t, w)
	assert.Equal(t, "success", resp["status"])
	report := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(1), report["created"])
	assert.Equal(t, float64(1), report["skipped"])

	var device models.TrackingDevice
	require.NoError(t, s.db.Where("config_id = ? AND vendor_device_id = ?", cfg.ID, "W1").First(&device).Error)
	assert.Equal(t, 51.1, device.Latitude)

	// Одиночный объект тоже принимается
	w = s.doWithHeaders(t, http.MethodPost, path, `{"device_id":"W1","lat":51.2,"lng":71.5}`, webhookHeaders("webhook-test-secret"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataObject(t, w)["updated"])
}

func TestReceivePositions_Rejects(t *testing.T) {
	s := newTestServer(t)
	cfg := testutils.CreateTestTrackingConfig(t, s.db, "https://a.example.com", models.AuthModeBearer)
	path := fmt.Sprintf("/api/tracking/webhook/%d", cfg.ID)
	valid := webhookHeaders("webhook-test-secret")

	assert.Equal(t, http.StatusUnauthorized, s.doWithHeaders(t, http.MethodPost, path, `[]`, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.doWithHeaders(t, http.MethodPost, path, `[]`, webhookHeaders("wrong")).Code)

	// Токен оператора не заменяет секрет webhook
	operator := map[string]string{"Authorization": "Bearer " + s.token}
	assert.Equal(t, http.StatusUnauthorized, s.doWithHeaders(t, http.MethodPost, path, `[]`, operator).Code)

	assert.Equal(t, http.StatusBadRequest, s.doWithHeaders(t, http.MethodPost, path, `{broken`, valid).Code)
	assert.Equal(t, http.StatusBadRequest, s.doWithHeaders(t, http.MethodPost, path, ``, valid).Code)
	assert.Equal(t, http.StatusBadRequest, s.doWithHeaders(t, http.MethodPost, path, `null`, valid).Code)
	assert.Equal(t, http.StatusNotFound, s.doWithHeaders(t, http.MethodPost, "/api/tracking/webhook/999", `[]`, valid).Code)

	require.NoError(t, s.db.Model(cfg).Update("is_active", false).Error)
	assert.Equal(t, http.StatusUnprocessableEntity, s.doWithHeaders(t, http.MethodPost, path, `[]`, valid).Code)

	var records int64
	s.db.Model(&models.LocationRecord{}).Count(&records)
	assert.Zero(t, records)
}
