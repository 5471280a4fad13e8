package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet_tracking/api"
	"fleet_tracking/config"
	"fleet_tracking/database"
	"fleet_tracking/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// initDB инициализирует подключение к базе данных
func initDB(cfg *config.Config) *gorm.DB {
	log.Println("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(cfg); err != nil {
		log.Fatal("❌ Ошибка при создании базы данных:", err)
	}

	db, err := database.ConnectDatabase(cfg)
	if err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	log.Println("✅ База данных успешно инициализирована")
	return db
}

func newCORS(cfg *config.Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	if len(cfg.CORS.AllowedOrigins) == 1 && cfg.CORS.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	} else {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	return cors.New(corsConfig)
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}
	cfg.LogConfig()

	db := initDB(cfg)

	redisClient, err := database.InitRedis(cfg)
	if err != nil {
		log.Printf("⚠️  Redis недоступен, кэш и распределенная блокировка отключены: %v", err)
		redisClient = nil
	}
	defer database.CloseRedis()

	syncLogger := log.New(os.Stdout, "[SYNC] ", log.LstdFlags)
	syncService, err := services.NewSyncService(db, cfg, redisClient, syncLogger)
	if err != nil {
		log.Fatal("❌ Ошибка инициализации сервиса синхронизации:", err)
	}

	if cfg.External.TelegramBotToken != "" && cfg.External.TelegramChatID != "" {
		telegram, err := services.NewTelegramClient(cfg.External.TelegramBotToken, cfg.External.TelegramChatID,
			log.New(os.Stdout, "[TELEGRAM] ", log.LstdFlags))
		if err != nil {
			log.Printf("⚠️  Telegram оповещения отключены: %v", err)
		} else {
			syncService.SetNotifier(telegram)
			log.Println("📣 Telegram оповещения включены")
		}
	}

	deps := api.Dependencies{
		Config: cfg,
		DB:     db,
		Redis:  redisClient,
		Sync:   syncService,
		Query:  services.NewTrackingQueryService(db, syncService.Cache()),
	}

	var scheduler *services.SyncScheduler
	if cfg.Sync.Enabled {
		scheduler = services.NewSyncScheduler(db, syncService, cfg.Sync.ReloadInterval,
			log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags))
		if err := scheduler.Start(); err != nil {
			log.Fatal("❌ Ошибка запуска планировщика:", err)
		}
		deps.Scheduler = scheduler
		log.Println("⏰ Планировщик синхронизации запущен")
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(newCORS(cfg))
	api.SetupRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.App.Host + ":" + cfg.App.Port,
		Handler:           r,
		ReadHeaderTimeout: cfg.Security.RequestTimeout,
		WriteTimeout:      cfg.Security.ResponseTimeout,
	}

	go func() {
		log.Printf("🚀 Сервер запущен на %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("❌ Ошибка сервера:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Остановка сервера...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Ошибка остановки сервера: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	log.Println("✅ Сервер остановлен")
}
