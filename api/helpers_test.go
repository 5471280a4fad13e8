package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"fleet_tracking/middleware"
	"fleet_tracking/services"
	"fleet_tracking/testutils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testOperatorPassword = "operator-password"

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	sync   *services.SyncService
	token  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testutils.TestConfig()
	hash, err := bcrypt.GenerateFromPassword([]byte(testOperatorPassword), bcrypt.MinCost)
	require.NoError(t, err)
	cfg.JWT.OperatorPasswordHash = string(hash)

	db := testutils.SetupTestDB(t)
	syncService, err := services.NewSyncService(db, cfg, nil, nil)
	require.NoError(t, err)

	r := gin.New()
	SetupRoutes(r, Dependencies{
		Config: cfg,
		DB:     db,
		Sync:   syncService,
		Query:  services.NewTrackingQueryService(db, syncService.Cache()),
	})

	token, err := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiresIn).
		IssueToken(cfg.JWT.OperatorUsername, "operator")
	require.NoError(t, err)

	return &testServer{router: r, db: db, sync: syncService, token: token}
}

// do выполняет запрос от имени оператора
func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithHeaders(t, method, path, body, map[string]string{"Authorization": "Bearer " + s.token})
}

func (s *testServer) doWithHeaders(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func dataObject(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	data, ok := decodeBody(t, w)["data"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return data
}

func dataList(t *testing.T, w *httptest.ResponseRecorder) []interface{} {
	t.Helper()
	data, ok := decodeBody(t, w)["data"].([]interface{})
	require.True(t, ok, w.Body.String())
	return data
}
