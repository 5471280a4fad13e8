package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"fleet_tracking/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// LoginRequest учетные данные оператора
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=3,max=64"`
}

// AuthAPI выдача токенов операторам
type AuthAPI struct {
	JWT          *middleware.AuthMiddleware
	Username     string
	PasswordHash string
}

// NewAuthAPI создает новый экземпляр AuthAPI
func NewAuthAPI(jwt *middleware.AuthMiddleware, username, passwordHash string) *AuthAPI {
	return &AuthAPI{JWT: jwt, Username: username, PasswordHash: passwordHash}
}

// Структурированное логирование для авторизации
func logAuthOperation(operation, username string, details map[string]interface{}) {
	logData := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"operation": operation,
		"username":  username,
	}

	for key, value := range details {
		logData[key] = value
	}

	logJSON, _ := json.Marshal(logData)
	log.Printf("AUTH_LOG: %s", string(logJSON))
}

// Login проверяет пароль оператора и выдает JWT
func (api *AuthAPI) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status": "error",
			"error":  "Invalid request format: " + err.Error(),
		})
		return
	}

	if api.PasswordHash == "" {
		logAuthOperation("login_disabled", req.Username, nil)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  "Operator login is not configured",
		})
		return
	}

	if req.Username != api.Username ||
		bcrypt.CompareHashAndPassword([]byte(api.PasswordHash), []byte(req.Password)) != nil {
		logAuthOperation("login_failed", req.Username, map[string]interface{}{"client_ip": c.ClientIP()})
		c.JSON(http.StatusUnauthorized, gin.H{
			"status": "error",
			"error":  "Invalid username or password",
		})
		return
	}

	token, err := api.JWT.IssueToken(req.Username, "operator")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Failed to issue token: " + err.Error(),
		})
		return
	}

	logAuthOperation("login_success", req.Username, nil)
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"token":      token,
			"token_type": "Bearer",
		},
	})
}

// Me возвращает данные текущего оператора
func (api *AuthAPI) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"username": c.GetString("user_id"),
			"role":     c.GetString("role"),
		},
	})
}
