package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"fleet_tracking/database"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Снимаем блокировку, только если она все еще наша
var releaseLockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SyncLock гарантирует не более одного цикла на конфигурацию:
// в процессе через карту, между репликами через Redis SETNX
type SyncLock struct {
	mu      sync.Mutex
	running map[uint]struct{}
	redis   *redis.Client
	ttl     time.Duration
	logger  *log.Logger
}

// NewSyncLock создает блокировку. redisClient может быть nil
func NewSyncLock(redisClient *redis.Client, ttl time.Duration, logger *log.Logger) *SyncLock {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &SyncLock{
		running: make(map[uint]struct{}),
		redis:   redisClient,
		ttl:     ttl,
		logger:  logger,
	}
}

// TryAcquire захватывает блокировку конфигурации. Возвращает ErrSyncInProgress, если цикл уже идет
func (l *SyncLock) TryAcquire(ctx context.Context, configID uint) (func(), error) {
	l.mu.Lock()
	if _, busy := l.running[configID]; busy {
		l.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	l.running[configID] = struct{}{}
	l.mu.Unlock()

	releaseLocal := func() {
		l.mu.Lock()
		delete(l.running, configID)
		l.mu.Unlock()
	}

	if l.redis == nil {
		return releaseLocal, nil
	}

	key := database.GenerateSyncLockKey(configID)
	token := uuid.NewString()

	ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("ошибка захвата блокировки синхронизации: %w", err)
	}
	if !ok {
		releaseLocal()
		return nil, ErrSyncInProgress
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		// Блокировка истечет сама через ttl, если снять ее не удалось
		if err := releaseLockScript.Run(releaseCtx, l.redis, []string{key}, token).Err(); err != nil {
			l.logger.Printf("⚠️  Не удалось снять блокировку %s: %v", key, err)
		}
		releaseLocal()
	}, nil
}

// IsRunning проверяет, идет ли цикл конфигурации в этом процессе
func (l *SyncLock) IsRunning(configID uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.running[configID]
	return busy
}
