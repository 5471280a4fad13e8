package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.doWithHeaders(t, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "operator",
		"password": testOperatorPassword,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := dataObject(t, w)
	assert.Equal(t, "Bearer", data["token_type"])
	token, ok := data["token"].(string)
	require.True(t, ok)

	w = s.doWithHeaders(t, http.MethodGet, "/api/auth/me", nil, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusOK, w.Code)
	me := dataObject(t, w)
	assert.Equal(t, "operator", me["username"])
	assert.Equal(t, "operator", me["role"])
}

func TestLogin_Rejected(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"wrong password", map[string]string{"username": "operator", "password": "wrong-password"}, http.StatusUnauthorized},
		{"wrong user", map[string]string{"username": "intruder", "password": testOperatorPassword}, http.StatusUnauthorized},
		{"missing password", map[string]string{"username": "operator"}, http.StatusBadRequest},
		{"not json", "username=operator", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.doWithHeaders(t, http.MethodPost, "/api/auth/login", tt.body, nil)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "error", decodeBody(t, w)["status"])
		})
	}
}

func TestLogin_NotConfigured(t *testing.T) {
	s := newTestServer(t)
	api := NewAuthAPI(nil, "operator", "")

	s.router.POST("/login-disabled", api.Login)
	w := s.doWithHeaders(t, http.MethodPost, "/login-disabled", map[string]string{
		"username": "operator",
		"password": testOperatorPassword,
	}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	w := s.doWithHeaders(t, http.MethodGet, "/ping", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", decodeBody(t, w)["message"])
}
