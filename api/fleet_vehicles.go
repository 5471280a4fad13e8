package api

import (
	"net/http"
	"strings"

	"fleet_tracking/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// FleetVehicleAPI транспортные средства и их привязка к трекерам
type FleetVehicleAPI struct {
	DB *gorm.DB
}

// NewFleetVehicleAPI создает новый экземпляр FleetVehicleAPI
func NewFleetVehicleAPI(db *gorm.DB) *FleetVehicleAPI {
	return &FleetVehicleAPI{DB: db}
}

// FleetVehicleRequest тело запроса транспортного средства
type FleetVehicleRequest struct {
	Name             string `json:"name" binding:"required,max=150"`
	PlateNumber      string `json:"plate_number" binding:"max=50"`
	DriverName       string `json:"driver_name" binding:"max=150"`
	TrackingDeviceID *uint  `json:"tracking_device_id"`
}

// checkDevice проверяет, что трекер существует и не привязан к другому транспорту
func (api *FleetVehicleAPI) checkDevice(c *gin.Context, deviceID *uint, vehicleID uint) (*models.TrackingDevice, bool) {
	if deviceID == nil {
		return nil, true
	}

	var device models.TrackingDevice
	if err := api.DB.First(&device, *deviceID).Error; err != nil {
		respondNotFoundOrError(c, err, "Трекер не найден")
		return nil, false
	}

	var linked int64
	api.DB.Model(&models.FleetVehicle{}).
		Where("tracking_device_id = ? AND id <> ?", *deviceID, vehicleID).
		Count(&linked)
	if linked > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Трекер уже привязан к другому транспортному средству"})
		return nil, false
	}
	return &device, true
}

// CreateVehicle создает транспортное средство
func (api *FleetVehicleAPI) CreateVehicle(c *gin.Context) {
	var req FleetVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	device, ok := api.checkDevice(c, req.TrackingDeviceID, 0)
	if !ok {
		return
	}

	vehicle := models.FleetVehicle{
		Name:             strings.TrimSpace(req.Name),
		PlateNumber:      strings.TrimSpace(req.PlateNumber),
		DriverName:       strings.TrimSpace(req.DriverName),
		TrackingDeviceID: req.TrackingDeviceID,
	}
	if device != nil {
		vehicle.MirrorDevice(device)
	}

	if err := api.DB.Create(&vehicle).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании транспортного средства: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Транспортное средство создано",
		"data":    vehicle,
	})
}

// GetVehicles возвращает список транспортных средств
func (api *FleetVehicleAPI) GetVehicles(c *gin.Context) {
	query := api.DB.Model(&models.FleetVehicle{})

	if linked := c.Query("linked"); linked == "true" {
		query = query.Where("tracking_device_id IS NOT NULL")
	} else if linked == "false" {
		query = query.Where("tracking_device_id IS NULL")
	}
	if search := c.Query("search"); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(plate_number) LIKE ?", pattern, pattern)
	}

	var vehicles []models.FleetVehicle
	if err := query.Order("name ASC").Find(&vehicles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении списка транспортных средств"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicles})
}

// GetVehicle возвращает транспортное средство с трекером
func (api *FleetVehicleAPI) GetVehicle(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var vehicle models.FleetVehicle
	if err := api.DB.Preload("TrackingDevice").First(&vehicle, id).Error; err != nil {
		respondNotFoundOrError(c, err, "Транспортное средство не найдено")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": vehicle})
}

// LinkDevice привязывает или отвязывает трекер
func (api *FleetVehicleAPI) LinkDevice(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var vehicle models.FleetVehicle
	if err := api.DB.First(&vehicle, id).Error; err != nil {
		respondNotFoundOrError(c, err, "Транспортное средство не найдено")
		return
	}

	var req struct {
		TrackingDeviceID *uint `json:"tracking_device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	device, ok := api.checkDevice(c, req.TrackingDeviceID, vehicle.ID)
	if !ok {
		return
	}

	updates := map[string]interface{}{"tracking_device_id": req.TrackingDeviceID}
	if device != nil {
		for key, value := range vehicle.MirrorDevice(device) {
			updates[key] = value
		}
	}
	if err := api.DB.Model(&vehicle).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при привязке трекера: " + err.Error()})
		return
	}
	vehicle.TrackingDeviceID = req.TrackingDeviceID

	c.JSON(http.StatusOK, gin.H{
		"message": "Привязка обновлена",
		"data":    vehicle,
	})
}

// DeleteVehicle удаляет транспортное средство (soft delete)
func (api *FleetVehicleAPI) DeleteVehicle(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result := api.DB.Delete(&models.FleetVehicle{}, id)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении транспортного средства"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Транспортное средство не найдено"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Транспортное средство удалено"})
}
