package services

import (
	"testing"
	"time"

	"fleet_tracking/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseRaw(t *testing.T, body string) RawValue {
	t.Helper()
	raw, err := ParseRaw([]byte(body))
	require.NoError(t, err)
	return raw
}

func TestNormalizeLocation_VendorPoint(t *testing.T) {
	receivedAt := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	raw := mustParseRaw(t, `{"id":"42","lat":24.71,"lng":46.67,"speed":45,"dt_tracker":"2024-01-15 10:30:00"}`)

	loc := NormalizeLocation(raw, receivedAt)

	assert.Equal(t, 24.71, loc.Latitude)
	assert.Equal(t, 46.67, loc.Longitude)
	assert.Equal(t, 45.0, loc.Speed)
	assert.Equal(t, models.DeviceStatusMoving, loc.Status)
	assert.Equal(t, models.DeviceStatusMoving, loc.MovementStatus)
	assert.True(t, loc.HasCoordinates)
	assert.True(t, loc.TimeFromVendor)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), loc.PositionTime)
	assert.Equal(t, receivedAt, loc.ReceivedAt)
}

func TestNormalizeLocation_SpeedThreshold(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected models.DeviceStatus
	}{
		{"stationary", `{"lat":1,"lng":1,"speed":0}`, models.DeviceStatusStopped},
		{"exactly threshold", `{"lat":1,"lng":1,"speed":5}`, models.DeviceStatusStopped},
		{"above threshold", `{"lat":1,"lng":1,"speed":5.1}`, models.DeviceStatusMoving},
		{"speed as string", `{"lat":1,"lng":1,"speed":"60"}`, models.DeviceStatusMoving},
		{"no speed", `{"lat":1,"lng":1}`, models.DeviceStatusStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := NormalizeLocation(mustParseRaw(t, tt.body), time.Now())
			assert.Equal(t, tt.expected, loc.Status)
			assert.Equal(t, tt.expected, loc.MovementStatus)
		})
	}
}

func TestNormalizeLocation_ExplicitStatusWins(t *testing.T) {
	loc := NormalizeLocation(mustParseRaw(t, `{"lat":1,"lng":1,"speed":80,"status":"online"}`), time.Now())

	assert.Equal(t, models.DeviceStatusOnline, loc.Status)
	// Статус связи не описывает движение, движение выводится из скорости
	assert.Equal(t, models.DeviceStatusMoving, loc.MovementStatus)

	loc = NormalizeLocation(mustParseRaw(t, `{"lat":1,"lng":1,"speed":80,"status":"stopped"}`), time.Now())
	assert.Equal(t, models.DeviceStatusIdle, loc.Status)
	assert.Equal(t, models.DeviceStatusIdle, loc.MovementStatus)
}

func TestNormalizeLocation_AliasChains(t *testing.T) {
	raw := mustParseRaw(t, `{
		"deviceId": "A1",
		"position": {"latitude": 55.75, "longitude": 37.61, "course": 90},
		"attributes": {"ignition": true, "sat": 9},
		"timestamp": "2024-03-01T08:00:00Z"
	}`)

	loc := NormalizeLocation(raw, time.Now())

	assert.Equal(t, 55.75, loc.Latitude)
	assert.Equal(t, 37.61, loc.Longitude)
	assert.Equal(t, 90.0, loc.Heading)
	assert.True(t, loc.Ignition)
	assert.Equal(t, 9, loc.Satellites)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), loc.PositionTime)
}

func TestNormalizeLocation_MissingCoordinates(t *testing.T) {
	loc := NormalizeLocation(mustParseRaw(t, `{"id":"1","speed":10}`), time.Now())

	assert.Equal(t, 0.0, loc.Latitude)
	assert.Equal(t, 0.0, loc.Longitude)
	assert.False(t, loc.HasCoordinates)
	assert.True(t, loc.HasSpeed)
	assert.False(t, loc.HasIgnition)
	assert.False(t, loc.HasAltitude)

	loc = NormalizeLocation(mustParseRaw(t, `{"id":"1","lat":24.7}`), time.Now())
	assert.Equal(t, 24.7, loc.Latitude)
	assert.False(t, loc.HasCoordinates)
}

func TestNormalizeLocation_TimestampFallback(t *testing.T) {
	receivedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       string
		expected   time.Time
		fromVendor bool
	}{
		{"unparseable", `{"lat":1,"lng":1,"dt_tracker":"15/01/2024 10:30"}`, receivedAt, false},
		{"missing", `{"lat":1,"lng":1}`, receivedAt, false},
		{"unix seconds", `{"lat":1,"lng":1,"time":1704067200}`, time.Unix(1704067200, 0).UTC(), true},
		{"unix millis", `{"lat":1,"lng":1,"time":1704067200000}`, time.Unix(1704067200, 0).UTC(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := NormalizeLocation(mustParseRaw(t, tt.body), receivedAt)
			assert.Equal(t, tt.expected, loc.PositionTime)
			assert.Equal(t, tt.fromVendor, loc.TimeFromVendor)
		})
	}
}

func TestNormalizeDevice(t *testing.T) {
	t.Run("identity alias chain", func(t *testing.T) {
		for _, body := range []string{
			`{"id":"X1"}`,
			`{"device_id":"X1"}`,
			`{"deviceId":"X1"}`,
			`{"uniqueId":"X1"}`,
			`{"imei":"X1"}`,
		} {
			nd, err := NormalizeDevice(mustParseRaw(t, body))
			require.NoError(t, err, body)
			assert.Equal(t, "X1", nd.VendorDeviceID, body)
		}
	})

	t.Run("first alias wins", func(t *testing.T) {
		nd, err := NormalizeDevice(mustParseRaw(t, `{"id":7,"device_id":"other","imei":"359"}`))
		require.NoError(t, err)
		assert.Equal(t, "7", nd.VendorDeviceID)
		assert.Equal(t, "359", nd.IMEI)
	})

	t.Run("descriptive fields", func(t *testing.T) {
		nd, err := NormalizeDevice(mustParseRaw(t, `{
			"id":"1","name":"Truck","plate_number":"A123BC","driver_name":"Ivan","active":false,
			"device_data":{"device_model":"FMB920"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "Truck", nd.Name)
		assert.Equal(t, "A123BC", nd.PlateNumber)
		assert.Equal(t, "Ivan", nd.DriverName)
		assert.Equal(t, "FMB920", nd.DeviceModel)
		require.NotNil(t, nd.Active)
		assert.False(t, *nd.Active)
	})

	t.Run("skip without identity", func(t *testing.T) {
		_, err := NormalizeDevice(mustParseRaw(t, `{"name":"No id","lat":1}`))
		require.Error(t, err)
		assert.True(t, IsSkip(err))
	})

	t.Run("skip empty identity", func(t *testing.T) {
		_, err := NormalizeDevice(mustParseRaw(t, `{"id":"  ","device_id":null}`))
		assert.True(t, IsSkip(err))
	})

	t.Run("skip non-object", func(t *testing.T) {
		_, err := NormalizeDevice(mustParseRaw(t, `"just a string"`))
		assert.True(t, IsSkip(err))
	})
}

func TestMapVendorStatus(t *testing.T) {
	tests := []struct {
		input    interface{}
		expected models.DeviceStatus
	}{
		{"online", models.DeviceStatusOnline},
		{"ONLINE", models.DeviceStatusOnline},
		{"offline", models.DeviceStatusOffline},
		{"moving", models.DeviceStatusMoving},
		{"stopped", models.DeviceStatusIdle},
		{"parked", models.DeviceStatusOffline},
		{"", models.DeviceStatusOffline},
		{true, models.DeviceStatusOnline},
		{false, models.DeviceStatusOffline},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, MapVendorStatus(tt.input), "input %v", tt.input)
	}
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(0, 0))
	assert.NoError(t, ValidateCoordinates(-90, 180))
	assert.NoError(t, ValidateCoordinates(90, -180))

	for _, c := range [][2]float64{{999, 0}, {-90.1, 0}, {0, 180.5}, {0, -181}} {
		err := ValidateCoordinates(c[0], c[1])
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidCoordinates)
		assert.Contains(t, err.Error(), "invalid coordinates")
	}
}
