package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"fleet_tracking/config"

	"github.com/go-redis/redis/v8"
)

var Redis *redis.Client

// InitRedis инициализирует подключение к Redis. Возвращает nil-клиент, если Redis отключен
func InitRedis(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Println("⚠️  Redis отключен, кэш и распределенные блокировки не используются")
		return nil, nil
	}

	var opts *redis.Options
	if cfg.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("некорректный REDIS_URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}

	opts.PoolSize = cfg.Redis.MaxConns
	opts.MinIdleConns = 2
	opts.DialTimeout = cfg.Redis.Timeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.IdleTimeout = 300 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Redis.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	log.Println("✅ Успешно подключено к Redis")
	Redis = client
	return client, nil
}

// CloseRedis закрывает подключение к Redis
func CloseRedis() error {
	if Redis != nil {
		return Redis.Close()
	}
	return nil
}

// CacheSetJSON сохраняет JSON объект в кэш
func CacheSetJSON(ctx context.Context, client *redis.Client, key string, value interface{}, ttl time.Duration) error {
	if client == nil {
		return nil
	}

	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}
	return client.Set(ctx, key, jsonData, ttl).Err()
}

// CacheGetJSON получает JSON объект из кэша. redis.Nil означает промах
func CacheGetJSON(ctx context.Context, client *redis.Client, key string, dest interface{}) error {
	if client == nil {
		return redis.Nil
	}

	jsonData, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	if err := json.Unmarshal(jsonData, dest); err != nil {
		return fmt.Errorf("ошибка десериализации JSON: %w", err)
	}

	return nil
}

// CacheDel удаляет ключи из кэша
func CacheDel(ctx context.Context, client *redis.Client, keys ...string) error {
	if client == nil || len(keys) == 0 {
		return nil
	}
	return client.Del(ctx, keys...).Err()
}

// Генераторы ключей

// GenerateDevicePositionKey ключ последней позиции устройства
func GenerateDevicePositionKey(deviceID uint) string {
	return fmt.Sprintf("tracking:device:%d:position", deviceID)
}

// GenerateConfigPositionsKey ключ списка последних позиций конфигурации
func GenerateConfigPositionsKey(configID uint) string {
	return fmt.Sprintf("tracking:config:%d:positions", configID)
}

// GenerateSyncLockKey ключ блокировки синхронизации конфигурации
func GenerateSyncLockKey(configID uint) string {
	return fmt.Sprintf("tracking:sync:lock:%d", configID)
}

// GenerateRateLimitKey ключ счетчика ограничения запросов
func GenerateRateLimitKey(scope, identifier string) string {
	return fmt.Sprintf("rate_limit:%s:%s", scope, identifier)
}
