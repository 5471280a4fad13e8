package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"fleet_tracking/config"
	"fleet_tracking/models"
	"fleet_tracking/testutils"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerRegistry_OpensOnServerErrors(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	fv.HandleJSON("/devices/1/location", http.StatusServiceUnavailable, map[string]string{"error": "down"})

	registry := NewBreakerRegistry(config.VendorConfig{
		BreakerMinRequests:  3,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}, nil)
	client := registry.Wrap(1, NewVendorClient(models.AuthModeBearer, newTestTransport()))
	session := bearerSession(fv)

	for i := 0; i < 3; i++ {
		_, err := client.GetDeviceLocation(context.Background(), session, "1")
		assert.Equal(t, FetchErrorHTTPStatus, FetchKind(err))
	}
	assert.Equal(t, gobreaker.StateOpen, registry.State(1))

	_, err := client.GetDeviceLocation(context.Background(), session, "1")
	assert.Equal(t, FetchErrorCircuitOpen, FetchKind(err))
	assert.Equal(t, 3, fv.Hits("/devices/1/location"))

	// Другая конфигурация не затронута
	assert.Equal(t, gobreaker.StateClosed, registry.State(2))

	_, err = client.Authenticate(context.Background(), session.Endpoint)
	assert.True(t, IsAuthError(err))

	registry.Forget(1)
	assert.Equal(t, gobreaker.StateClosed, registry.State(1))
}

func TestBreakerRegistry_ClientErrorsDoNotTrip(t *testing.T) {
	fv := testutils.NewFakeVendor(t)
	fv.HandleJSON("/devices/1/location", http.StatusNotFound, map[string]string{"error": "unknown device"})

	registry := NewBreakerRegistry(config.VendorConfig{BreakerMinRequests: 2, BreakerFailureRatio: 0.5}, nil)
	client := registry.Wrap(1, NewVendorClient(models.AuthModeBearer, newTestTransport()))

	for i := 0; i < 5; i++ {
		_, err := client.GetDeviceLocation(context.Background(), bearerSession(fv), "1")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed, registry.State(1))
	assert.Equal(t, 5, fv.Hits("/devices/1/location"))
}
