package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fleet_tracking/database"

	"github.com/gin-gonic/gin"
	redis "github.com/go-redis/redis/v8"
)

// RateLimitConfig конфигурация rate limiting
type RateLimitConfig struct {
	Scope        string                    // Префикс ключа
	Requests     int                       // Количество запросов
	Window       time.Duration             // Временное окно
	KeyGenerator func(*gin.Context) string // Генератор ключей
}

// DefaultKeyGenerator генерирует ключ на основе IP адреса
func DefaultKeyGenerator(c *gin.Context) string {
	return c.ClientIP()
}

// UserKeyGenerator генерирует ключ на основе пользователя
func UserKeyGenerator(c *gin.Context) string {
	userID := c.GetString("user_id")
	if userID == "" {
		return c.ClientIP()
	}
	return "user:" + userID
}

// WebhookKeyGenerator ключ на основе конфигурации webhook
func WebhookKeyGenerator(c *gin.Context) string {
	return "config:" + c.Param("config_id")
}

// RateLimit создает middleware для ограничения частоты запросов. Без Redis ограничение не применяется
func RateLimit(redisClient *redis.Client, config RateLimitConfig) gin.HandlerFunc {
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}

	return func(c *gin.Context) {
		if redisClient == nil || config.Requests <= 0 {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := database.GenerateRateLimitKey(config.Scope, config.KeyGenerator(c))

		// INCR атомарен, TTL ставим на первом запросе окна
		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// В случае ошибки Redis пропускаем запрос
			c.Next()
			return
		}
		if count == 1 {
			redisClient.Expire(ctx, key, config.Window)
		}

		current := int(count)
		reset := strconv.FormatInt(time.Now().Add(config.Window).Unix(), 10)
		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Reset", reset)

		if current > config.Requests {
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status": "error",
				"error":  "Rate limit exceeded",
				"message": fmt.Sprintf("Too many requests. Limit: %d requests per %v",
					config.Requests, config.Window),
				"retry_after": config.Window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(config.Requests-current))
		c.Next()
	}
}

// APIRateLimit ограничение для операторского API
func APIRateLimit(redisClient *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	return RateLimit(redisClient, RateLimitConfig{
		Scope:        "api",
		Requests:     requests,
		Window:       window,
		KeyGenerator: UserKeyGenerator,
	})
}

// WebhookRateLimit ограничение для webhook поставщиков
func WebhookRateLimit(redisClient *redis.Client, requests int, window time.Duration) gin.HandlerFunc {
	return RateLimit(redisClient, RateLimitConfig{
		Scope:        "webhook",
		Requests:     requests,
		Window:       window,
		KeyGenerator: WebhookKeyGenerator,
	})
}

// ManualSyncRateLimit ограничение ручного запуска синхронизации
func ManualSyncRateLimit(redisClient *redis.Client) gin.HandlerFunc {
	return RateLimit(redisClient, RateLimitConfig{
		Scope:        "manual_sync",
		Requests:     10,
		Window:       time.Minute,
		KeyGenerator: UserKeyGenerator,
	})
}
