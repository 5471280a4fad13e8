package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"fleet_tracking/models"
	"fleet_tracking/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ScheduleReloader перечитывает расписания после изменения конфигураций
type ScheduleReloader interface {
	Reload() error
}

// TrackingConfigAPI управление подключениями к поставщикам трекинга
type TrackingConfigAPI struct {
	DB        *gorm.DB
	Sync      *services.SyncService
	Query     *services.TrackingQueryService
	Scheduler ScheduleReloader

	DefaultIntervalMinutes int
}

// NewTrackingConfigAPI создает новый экземпляр TrackingConfigAPI
func NewTrackingConfigAPI(db *gorm.DB, sync *services.SyncService, query *services.TrackingQueryService) *TrackingConfigAPI {
	return &TrackingConfigAPI{DB: db, Sync: sync, Query: query, DefaultIntervalMinutes: 5}
}

// TrackingConfigRequest тело запроса создания и изменения конфигурации
type TrackingConfigRequest struct {
	Name                *string          `json:"name"`
	APIURL              *string          `json:"api_url"`
	AuthMode            *models.AuthMode `json:"auth_mode"`
	APIKey              *string          `json:"api_key"`
	Username            *string          `json:"username"`
	Password            *string          `json:"password"`
	PollIntervalMinutes *int             `json:"poll_interval_minutes"`
	IsActive            *bool            `json:"is_active"`
}

// apply переносит заданные поля запроса в конфигурацию
func (r *TrackingConfigRequest) apply(cfg *models.TrackingConfig) {
	if r.Name != nil {
		cfg.Name = strings.TrimSpace(*r.Name)
	}
	if r.APIURL != nil {
		cfg.APIURL = strings.TrimSpace(*r.APIURL)
	}
	if r.AuthMode != nil {
		cfg.AuthMode = *r.AuthMode
	}
	// Пустая строка не затирает сохраненные учетные данные
	if r.APIKey != nil && *r.APIKey != "" {
		cfg.APIKey = *r.APIKey
	}
	if r.Username != nil {
		cfg.Username = strings.TrimSpace(*r.Username)
	}
	if r.Password != nil && *r.Password != "" {
		cfg.Password = *r.Password
	}
	if r.PollIntervalMinutes != nil {
		cfg.PollIntervalMinutes = *r.PollIntervalMinutes
	}
	if r.IsActive != nil {
		cfg.IsActive = *r.IsActive
	}
}

func validateTrackingConfig(cfg *models.TrackingConfig) string {
	if cfg.Name == "" {
		return "Название обязательно"
	}
	if len(cfg.Name) > 100 {
		return "Название не должно превышать 100 символов"
	}
	if cfg.APIURL == "" {
		return "URL API обязателен"
	}
	if cfg.PollIntervalMinutes < models.MinPollIntervalMinutes {
		return "Интервал опроса должен быть не меньше " + strconv.Itoa(models.MinPollIntervalMinutes) + " минуты"
	}

	switch cfg.AuthMode {
	case "", models.AuthModeBearer, models.AuthModeLogin:
	default:
		return "Неизвестный режим авторизации: " + string(cfg.AuthMode)
	}

	switch cfg.ResolveAuthMode() {
	case models.AuthModeBearer:
		if cfg.APIKey == "" {
			return "Для режима bearer требуется api_key"
		}
	case models.AuthModeLogin:
		if cfg.Username == "" || cfg.Password == "" {
			return "Для режима login требуются username и password"
		}
	}
	return ""
}

func (api *TrackingConfigAPI) reloadSchedule() {
	if api.Scheduler == nil {
		return
	}
	if err := api.Scheduler.Reload(); err != nil {
		log.Printf("Ошибка перезагрузки расписания синхронизации: %v", err)
	}
}

func (api *TrackingConfigAPI) loadConfig(c *gin.Context) (*models.TrackingConfig, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}

	var cfg models.TrackingConfig
	if err := api.DB.First(&cfg, id).Error; err != nil {
		respondNotFoundOrError(c, err, "Конфигурация не найдена")
		return nil, false
	}
	return &cfg, true
}

// CreateConfig создает конфигурацию, учетные данные шифруются перед сохранением
func (api *TrackingConfigAPI) CreateConfig(c *gin.Context) {
	var req TrackingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	cfg := models.TrackingConfig{
		PollIntervalMinutes: api.DefaultIntervalMinutes,
		IsActive:            true,
		ConnectionStatus:    models.ConnectionStatusUntested,
	}
	req.apply(&cfg)

	if msg := validateTrackingConfig(&cfg); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	if err := api.Sync.Credentials().SealConfig(&cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка шифрования учетных данных: " + err.Error()})
		return
	}

	// gorm пропускает false при default:true и возвращает в структуру значение БД
	active := cfg.IsActive
	if err := api.DB.Create(&cfg).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании конфигурации: " + err.Error()})
		return
	}
	if !active {
		if err := api.DB.Model(&cfg).Update("is_active", false).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при создании конфигурации: " + err.Error()})
			return
		}
		cfg.IsActive = false
	}

	api.reloadSchedule()

	c.JSON(http.StatusCreated, gin.H{
		"message": "Конфигурация успешно создана",
		"data":    cfg,
	})
}

// GetConfigs возвращает список конфигураций
func (api *TrackingConfigAPI) GetConfigs(c *gin.Context) {
	query := api.DB.Model(&models.TrackingConfig{})

	if isActive := c.Query("is_active"); isActive == "true" {
		query = query.Where("is_active = ?", true)
	} else if isActive == "false" {
		query = query.Where("is_active = ?", false)
	}
	if status := c.Query("connection_status"); status != "" {
		query = query.Where("connection_status = ?", status)
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	query.Count(&total)

	var configs []models.TrackingConfig
	if err := query.Order("name ASC").Limit(limit).Offset((page - 1) * limit).Find(&configs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении списка конфигураций"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": configs,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetConfig возвращает конфигурацию по ID
func (api *TrackingConfigAPI) GetConfig(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       cfg,
		"is_running": api.Sync.IsRunning(cfg.ID),
	})
}

// UpdateConfig изменяет параметры подключения
func (api *TrackingConfigAPI) UpdateConfig(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	var req TrackingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректные данные: " + err.Error()})
		return
	}

	wasActive := cfg.IsActive
	req.apply(cfg)
	if msg := validateTrackingConfig(cfg); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	if err := api.Sync.Credentials().SealConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка шифрования учетных данных: " + err.Error()})
		return
	}

	updates := map[string]interface{}{
		"name":                  cfg.Name,
		"api_url":               cfg.APIURL,
		"auth_mode":             cfg.AuthMode,
		"api_key":               cfg.APIKey,
		"username":              cfg.Username,
		"password":              cfg.Password,
		"poll_interval_minutes": cfg.PollIntervalMinutes,
		"is_active":             cfg.IsActive,
	}
	// Смена адреса или учетных данных сбрасывает проверку подключения
	credentialsChanged := (req.APIKey != nil && *req.APIKey != "") || (req.Password != nil && *req.Password != "")
	if req.APIURL != nil || req.Username != nil || req.AuthMode != nil || credentialsChanged {
		updates["connection_status"] = models.ConnectionStatusUntested
		cfg.ConnectionStatus = models.ConnectionStatusUntested
	}

	err := api.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(cfg).Updates(updates).Error; err != nil {
			return err
		}
		if wasActive && !cfg.IsActive {
			return services.DeactivateConfigDevices(tx, cfg.ID)
		}
		return nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при обновлении конфигурации: " + err.Error()})
		return
	}

	api.invalidate(c.Request.Context(), cfg.ID)
	api.reloadSchedule()

	c.JSON(http.StatusOK, gin.H{
		"message": "Конфигурация успешно обновлена",
		"data":    cfg,
	})
}

// DeleteConfig удаляет конфигурацию вместе с устройствами и историей
func (api *TrackingConfigAPI) DeleteConfig(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	if api.Sync.IsRunning(cfg.ID) {
		c.JSON(http.StatusConflict, gin.H{"error": "Синхронизация конфигурации выполняется, повторите позже"})
		return
	}

	if err := services.DeleteConfigCascade(api.DB, cfg.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при удалении конфигурации: " + err.Error()})
		return
	}

	api.Sync.ForgetConfig(cfg.ID)
	api.invalidate(c.Request.Context(), cfg.ID)
	api.reloadSchedule()

	c.JSON(http.StatusOK, gin.H{"message": "Конфигурация успешно удалена"})
}

// ActivateConfig включает периодическую синхронизацию
func (api *TrackingConfigAPI) ActivateConfig(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	if err := api.DB.Model(cfg).Update("is_active", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при активации конфигурации"})
		return
	}

	cfg.IsActive = true
	api.reloadSchedule()
	c.JSON(http.StatusOK, gin.H{"message": "Конфигурация активирована", "data": cfg})
}

// DeactivateConfig отключает конфигурацию и все ее устройства
func (api *TrackingConfigAPI) DeactivateConfig(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	err := api.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(cfg).Update("is_active", false).Error; err != nil {
			return err
		}
		return services.DeactivateConfigDevices(tx, cfg.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при деактивации конфигурации: " + err.Error()})
		return
	}

	cfg.IsActive = false
	api.invalidate(c.Request.Context(), cfg.ID)
	api.reloadSchedule()
	c.JSON(http.StatusOK, gin.H{"message": "Конфигурация деактивирована", "data": cfg})
}

// TestConnection проверяет подключение: авторизация и список устройств
func (api *TrackingConfigAPI) TestConnection(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	result := api.Sync.TestConnection(c.Request.Context(), cfg)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"data": result})
}

// SyncConfig запускает цикл синхронизации вручную
func (api *TrackingConfigAPI) SyncConfig(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	report, err := api.Sync.SyncAllDevices(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(statusForSyncError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Синхронизация завершена",
		"data":    report,
	})
}

// SeedDemo создает демонстрационные устройства конфигурации
func (api *TrackingConfigAPI) SeedDemo(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	report := api.Sync.SeedDemoDevices(c.Request.Context(), cfg)
	c.JSON(http.StatusOK, gin.H{
		"message": "Демо-устройства созданы",
		"data":    report,
	})
}

// GetConfigStats статистика устройств и синхронизаций конфигурации
func (api *TrackingConfigAPI) GetConfigStats(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	stats, err := api.Query.ConfigStats(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении статистики: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// GetConfigErrors ошибки синхронизации конфигурации
func (api *TrackingConfigAPI) GetConfigErrors(c *gin.Context) {
	cfg, ok := api.loadConfig(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 0 || limit > 200 {
		limit = 20
	}

	stats, err := models.GetIntegrationErrorStats(api.DB, cfg.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка при получении ошибок синхронизации: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (api *TrackingConfigAPI) invalidate(ctx context.Context, configID uint) {
	if err := api.Sync.Cache().InvalidateConfig(ctx, configID); err != nil {
		log.Printf("Ошибка сброса кэша позиций конфигурации %d: %v", configID, err)
	}
}
