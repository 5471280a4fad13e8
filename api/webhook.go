package api

import (
	"io"
	"net/http"

	"fleet_tracking/models"
	"fleet_tracking/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxWebhookBody ограничение размера тела webhook
const maxWebhookBody = 4 << 20

// WebhookAPI прием точек, которые поставщик присылает сам
type WebhookAPI struct {
	DB   *gorm.DB
	Sync *services.SyncService
}

// NewWebhookAPI создает новый экземпляр WebhookAPI
func NewWebhookAPI(db *gorm.DB, sync *services.SyncService) *WebhookAPI {
	return &WebhookAPI{DB: db, Sync: sync}
}

// ReceivePositions принимает один объект или список устройств с позициями
func (api *WebhookAPI) ReceivePositions(c *gin.Context) {
	id, ok := parseIDParam(c, "config_id")
	if !ok {
		return
	}

	var cfg models.TrackingConfig
	if err := api.DB.First(&cfg, id).Error; err != nil {
		respondNotFoundOrError(c, err, "Конфигурация не найдена")
		return
	}
	if !cfg.IsActive {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": "error", "error": "Конфигурация отключена"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Не удалось прочитать тело запроса"})
		return
	}

	payload, err := services.ParseRaw(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный JSON: " + err.Error()})
		return
	}
	if payload.IsNull() {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Пустое тело запроса"})
		return
	}

	report := api.Sync.IngestPush(c.Request.Context(), &cfg, payload)
	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   report,
	})
}
