package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"fleet_tracking/config"
	"fleet_tracking/models"
	"fleet_tracking/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport() *VendorHTTP {
	return NewVendorHTTP(config.VendorConfig{
		RequestTimeout: 300 * time.Millisecond,
		HistoryTimeout: 600 * time.Millisecond,
		UserAgent:      "FleetTracking-Test",
	}, nil)
}

func bearerSession(fv *testutils.FakeVendor) *VendorSession {
	return &VendorSession{
		Endpoint: VendorEndpoint{BaseURL: fv.URL(), Mode: models.AuthModeBearer, APIKey: testutils.TestAPIKey},
		Token:    testutils.TestAPIKey,
	}
}

func TestBearerClient_FetchErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    FetchErrorKind
	}{
		{"server error", testutils.JSONHandler(http.StatusInternalServerError, map[string]string{"error": "boom"}), FetchErrorHTTPStatus},
		{"not found", testutils.RawHandler(http.StatusNotFound, "not found"), FetchErrorHTTPStatus},
		{"html body", testutils.RawHandler(http.StatusOK, "<html></html>"), FetchErrorInvalidJSON},
		{"empty body", testutils.RawHandler(http.StatusOK, "   "), FetchErrorEmptyBody},
		{"null body", testutils.RawHandler(http.StatusOK, "null"), FetchErrorEmptyBody},
		{"timeout", testutils.HangingHandler(), FetchErrorTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := testutils.NewFakeVendor(t)
			fv.Handle("/devices/1/location", tt.handler)

			client := NewVendorClient(models.AuthModeBearer, newTestTransport())
			_, err := client.GetDeviceLocation(context.Background(), bearerSession(fv), "1")

			require.Error(t, err)
			assert.Equal(t, tt.kind, FetchKind(err))
			assert.False(t, IsAuthError(err))
		})
	}
}

func TestBearerClient_HTTPStatusError(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	fv.Handle("/devices/1/location", testutils.RawHandler(http.StatusBadGateway, "upstream down"))

	client := NewVendorClient(models.AuthModeBearer, newTestTransport())
	_, err := client.GetDeviceLocation(context.Background(), bearerSession(fv), "1")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusBadGateway, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Contains(t, err.Error(), "upstream down")
}

func TestBearerClient_ListDevices(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	fv.Handle("/devices", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testutils.TestAPIKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "FleetTracking-Test", r.Header.Get("User-Agent"))
		testutils.JSONHandler(http.StatusOK, map[string]interface{}{
			"data": []map[string]interface{}{{"id": "1"}, {"id": "2"}},
		})(w, r)
	})

	client := NewVendorClient(models.AuthModeBearer, newTestTransport())
	devices, err := client.ListDevices(context.Background(), bearerSession(fv))
	require.NoError(t, err)
	assert.Len(t, devices, 2)
}

func TestBearerClient_RejectedKeyIsAuthError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		fv := testutils.NewFakeVendor(t)
		fv.HandleJSON("/devices", status, map[string]string{"error": "invalid key"})

		client := NewVendorClient(models.AuthModeBearer, newTestTransport())
		_, err := client.ListDevices(context.Background(), bearerSession(fv))

		require.Error(t, err)
		assert.True(t, IsAuthError(err), "status %d", status)
	}
}

func TestBearerClient_AuthenticateRequiresKey(t *testing.T) {
	client := NewVendorClient(models.AuthModeBearer, newTestTransport())

	_, err := client.Authenticate(context.Background(), VendorEndpoint{BaseURL: "https://vendor.example.com"})
	assert.True(t, IsAuthError(err))

	_, err = client.Authenticate(context.Background(), VendorEndpoint{APIKey: "key"})
	assert.True(t, IsAuthError(err))
}

func TestLoginClient_Authenticate(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	fv.Handle("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, testutils.TestUsername, body["email"])
		assert.Equal(t, testutils.TestPassword, body["password"])
		testutils.JSONHandler(http.StatusOK, map[string]interface{}{"status": 1, "user_api_hash": testutils.TestUserHash})(w, r)
	})

	client := NewVendorClient(models.AuthModeLogin, newTestTransport())
	session, err := client.Authenticate(context.Background(), VendorEndpoint{
		BaseURL:  fv.URL(),
		Mode:     models.AuthModeLogin,
		Username: testutils.TestUsername,
		Password: testutils.TestPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, testutils.TestUserHash, session.Token)
}

func TestLoginClient_AuthenticateFailures(t *testing.T) {
	endpoint := func(fv *testutils.FakeVendor) VendorEndpoint {
		return VendorEndpoint{BaseURL: fv.URL(), Mode: models.AuthModeLogin, Username: "u", Password: "p"}
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"rejected", testutils.JSONHandler(http.StatusUnauthorized, map[string]string{"message": "denied"})},
		{"status zero", testutils.JSONHandler(http.StatusOK, map[string]interface{}{"status": 0})},
		{"no hash", testutils.JSONHandler(http.StatusOK, map[string]interface{}{"status": 1})},
		{"not json", testutils.RawHandler(http.StatusOK, "ok")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := testutils.NewFakeVendor(t)
			fv.Handle("/login", tt.handler)

			client := NewVendorClient(models.AuthModeLogin, newTestTransport())
			_, err := client.Authenticate(context.Background(), endpoint(fv))
			require.Error(t, err)
			assert.True(t, IsAuthError(err))
		})
	}
}

func TestLoginClient_GetHistoryFlattensSegments(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	// Границы в локальной зоне оператора уходят поставщику в UTC
	almaty := time.FixedZone("ALMT", 5*60*60)
	from := time.Date(2024, 1, 15, 13, 0, 0, 0, almaty)
	to := time.Date(2024, 1, 16, 0, 30, 0, 0, almaty)

	fv.Handle("/get_history", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "7", query.Get("device_id"))
		assert.Equal(t, "2024-01-15", query.Get("from_date"))
		assert.Equal(t, "08:00:00", query.Get("from_time"))
		assert.Equal(t, "2024-01-15", query.Get("to_date"))
		assert.Equal(t, "18:30:00", query.Get("to_time"))
		assert.Equal(t, testutils.TestUserHash, query.Get("user_api_hash"))
		testutils.JSONHandler(http.StatusOK, map[string]interface{}{
			"items": []map[string]interface{}{
				{"status": 1, "items": []map[string]interface{}{{"lat": 1, "lng": 1}, {"lat": 2, "lng": 2}}},
				{"status": 2, "items": []map[string]interface{}{{"lat": 3, "lng": 3}}},
			},
		})(w, r)
	})

	client := NewVendorClient(models.AuthModeLogin, newTestTransport())
	session := &VendorSession{Endpoint: VendorEndpoint{BaseURL: fv.URL(), Mode: models.AuthModeLogin}, Token: testutils.TestUserHash}

	points, err := client.GetHistory(context.Background(), session, "7", from, to)
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestRedactURL(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	client := &LoginClient{http: newTestTransport()}
	session := &VendorSession{Endpoint: VendorEndpoint{BaseURL: fv.URL()}, Token: "secret-hash"}

	req, err := http.NewRequest(http.MethodGet, client.endpoint(session, "/get_devices", nil), nil)
	require.NoError(t, err)

	redacted := redactURL(req.URL)
	assert.NotContains(t, redacted, "secret-hash")
	assert.Contains(t, redacted, "user_api_hash=%2A%2A%2A")
}
