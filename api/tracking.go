package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fleet_tracking/models"
	"fleet_tracking/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// TrackingAPI чтение позиций и маршрутов устройств
type TrackingAPI struct {
	DB    *gorm.DB
	Sync  *services.SyncService
	Query *services.TrackingQueryService
}

// NewTrackingAPI создает новый экземпляр TrackingAPI
func NewTrackingAPI(db *gorm.DB, sync *services.SyncService, query *services.TrackingQueryService) *TrackingAPI {
	return &TrackingAPI{DB: db, Sync: sync, Query: query}
}

// GetDeviceLocations последние позиции всех активных устройств с координатами
func (api *TrackingAPI) GetDeviceLocations(c *gin.Context) {
	var configID uint
	if raw := c.Query("config_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный config_id"})
			return
		}
		configID = uint(id)
	}

	devices, err := api.Query.LatestPositions(c.Request.Context(), configID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  devices,
		"count": len(devices),
	})
}

// GetDeviceLocation текущее состояние одного устройства
func (api *TrackingAPI) GetDeviceLocation(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	device, err := api.Query.DeviceLocation(c.Request.Context(), id)
	if err != nil {
		respondNotFoundOrError(c, err, "Устройство не найдено")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": device})
}

type deviceRoute struct {
	device  *models.TrackingDevice
	records []models.LocationRecord
	from    time.Time
	to      time.Time
}

func (api *TrackingAPI) loadRoute(c *gin.Context) (*deviceRoute, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}

	var device models.TrackingDevice
	if err := api.DB.First(&device, id).Error; err != nil {
		respondNotFoundOrError(c, err, "Устройство не найдено")
		return nil, false
	}

	from, to, err := parseTimeRange(c, api.Sync.HistoryWindow())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	records, err := api.Query.PositionHistory(c.Request.Context(), device.ID, from, to)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return nil, false
	}

	return &deviceRoute{device: &device, records: records, from: from, to: to}, true
}

// GetDeviceRoute маршрут устройства за период
func (api *TrackingAPI) GetDeviceRoute(c *gin.Context) {
	route, ok := api.loadRoute(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": route.records,
		"device": gin.H{
			"id":   route.device.ID,
			"name": route.device.DisplayName(),
		},
		"from":    route.from.Format(time.RFC3339),
		"to":      route.to.Format(time.RFC3339),
		"summary": services.SummarizeRoute(route.records),
	})
}

// ExportDeviceRoute выгружает маршрут в xlsx или pdf
func (api *TrackingAPI) ExportDeviceRoute(c *gin.Context) {
	format := c.DefaultQuery("format", services.RouteFormatXLSX)
	contentType, ext, err := services.RouteExportContentType(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	route, ok := api.loadRoute(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := services.ExportRoute(&buf, format, route.device, route.records, route.from, route.to); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка формирования файла: " + err.Error()})
		return
	}

	filename := fmt.Sprintf("route_%s_%s.%s", route.device.VendorDeviceID, route.from.Format("20060102_1504"), ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// SyncDeviceHistory загружает историю устройства у поставщика за период
func (api *TrackingAPI) SyncDeviceHistory(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var device models.TrackingDevice
	if err := api.DB.Preload("Config").First(&device, id).Error; err != nil {
		respondNotFoundOrError(c, err, "Устройство не найдено")
		return
	}
	if device.Config == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Конфигурация устройства не найдена"})
		return
	}

	from, to, err := parseTimeRange(c, api.Sync.HistoryWindow())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := api.Sync.SyncHistory(c.Request.Context(), device.Config, &device, from, to)
	if err != nil {
		status := http.StatusBadGateway
		if !to.After(from) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "История загружена",
		"data":    report,
	})
}
