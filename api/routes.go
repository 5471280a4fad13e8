package api

import (
	"net/http"
	"time"

	"fleet_tracking/config"
	"fleet_tracking/middleware"
	"fleet_tracking/services"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Dependencies зависимости HTTP-слоя
type Dependencies struct {
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Sync      *services.SyncService
	Query     *services.TrackingQueryService
	Scheduler ScheduleReloader
}

// SetupRoutes регистрирует все маршруты API
func SetupRoutes(r *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	jwtAuth := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ExpiresIn)

	authAPI := NewAuthAPI(jwtAuth, cfg.JWT.OperatorUsername, cfg.JWT.OperatorPasswordHash)
	configAPI := NewTrackingConfigAPI(deps.DB, deps.Sync, deps.Query)
	configAPI.Scheduler = deps.Scheduler
	configAPI.DefaultIntervalMinutes = cfg.Sync.DefaultIntervalMinutes
	trackingAPI := NewTrackingAPI(deps.DB, deps.Sync, deps.Query)
	vehicleAPI := NewFleetVehicleAPI(deps.DB)
	webhookAPI := NewWebhookAPI(deps.DB, deps.Sync)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "pong",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})

	r.POST("/api/auth/login", middleware.RateLimit(deps.Redis, middleware.RateLimitConfig{
		Scope:    "login",
		Requests: 10,
		Window:   time.Minute,
	}), authAPI.Login)

	// Поставщики присылают точки без токена оператора
	r.POST("/api/tracking/webhook/:config_id",
		middleware.RequireWebhookSecret(cfg.Security.WebhookSecret),
		middleware.WebhookRateLimit(deps.Redis, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow),
		webhookAPI.ReceivePositions,
	)

	protected := r.Group("/api")
	protected.Use(jwtAuth.RequireAuth())
	protected.Use(middleware.APIRateLimit(deps.Redis, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow))
	{
		protected.GET("/auth/me", authAPI.Me)

		tracking := protected.Group("/tracking")
		{
			configs := tracking.Group("/configs")
			{
				configs.GET("", configAPI.GetConfigs)
				configs.POST("", configAPI.CreateConfig)
				configs.GET("/:id", configAPI.GetConfig)
				configs.PUT("/:id", configAPI.UpdateConfig)
				configs.DELETE("/:id", configAPI.DeleteConfig)
				configs.PUT("/:id/activate", configAPI.ActivateConfig)
				configs.PUT("/:id/deactivate", configAPI.DeactivateConfig)
				configs.POST("/:id/test", configAPI.TestConnection)
				configs.POST("/:id/sync", middleware.ManualSyncRateLimit(deps.Redis), configAPI.SyncConfig)
				configs.POST("/:id/demo", configAPI.SeedDemo)
				configs.GET("/:id/stats", configAPI.GetConfigStats)
				configs.GET("/:id/errors", configAPI.GetConfigErrors)
			}

			devices := tracking.Group("/devices")
			{
				devices.GET("/locations", trackingAPI.GetDeviceLocations)
				devices.GET("/:id/location", trackingAPI.GetDeviceLocation)
				devices.GET("/:id/route", trackingAPI.GetDeviceRoute)
				devices.GET("/:id/route/export", trackingAPI.ExportDeviceRoute)
				devices.POST("/:id/history/sync", trackingAPI.SyncDeviceHistory)
			}

			vehicles := tracking.Group("/vehicles")
			{
				vehicles.GET("", vehicleAPI.GetVehicles)
				vehicles.POST("", vehicleAPI.CreateVehicle)
				vehicles.GET("/:id", vehicleAPI.GetVehicle)
				vehicles.PUT("/:id/device", vehicleAPI.LinkDevice)
				vehicles.DELETE("/:id", vehicleAPI.DeleteVehicle)
			}
		}
	}
}
