package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"fleet_tracking/models"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// ConfigSyncer запускает цикл синхронизации конфигурации
type ConfigSyncer interface {
	SyncConfigByID(ctx context.Context, configID uint) (*SyncReport, error)
}

type scheduledConfig struct {
	entryID  cron.EntryID
	interval time.Duration
}

// SyncScheduler запускает синхронизацию каждой активной конфигурации с ее интервалом
type SyncScheduler struct {
	db             *gorm.DB
	syncer         ConfigSyncer
	cron           *cron.Cron
	reloadInterval time.Duration
	logger         *log.Logger

	mu      sync.Mutex
	entries map[uint]scheduledConfig
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSyncScheduler создает планировщик. Задача одной конфигурации не запускается повторно, пока идет
func NewSyncScheduler(db *gorm.DB, syncer ConfigSyncer, reloadInterval time.Duration, logger *log.Logger) *SyncScheduler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}

	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
	), cron.WithLogger(cronLogger))

	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		db:             db,
		syncer:         syncer,
		cron:           c,
		reloadInterval: reloadInterval,
		logger:         logger,
		entries:        make(map[uint]scheduledConfig),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Start загружает расписания и запускает планировщик
func (ss *SyncScheduler) Start() error {
	if err := ss.Reload(); err != nil {
		return fmt.Errorf("failed to load sync schedules: %w", err)
	}

	spec := fmt.Sprintf("@every %s", ss.reloadInterval)
	if _, err := ss.cron.AddFunc(spec, func() {
		if err := ss.Reload(); err != nil {
			ss.logger.Printf("ошибка перезагрузки расписаний: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to add reload job: %w", err)
	}

	ss.cron.Start()
	ss.logger.Println("Sync scheduler started")
	return nil
}

// Stop останавливает планировщик и ждет завершения запущенных задач
func (ss *SyncScheduler) Stop() {
	ss.cancel()
	<-ss.cron.Stop().Done()
	ss.logger.Println("Sync scheduler stopped")
}

// Reload сверяет задачи с активными конфигурациями: добавляет новые, убирает отключенные,
// пересоздает задачи с измененным интервалом
func (ss *SyncScheduler) Reload() error {
	var configs []models.TrackingConfig
	if err := ss.db.Where("is_active = ?", true).Find(&configs).Error; err != nil {
		return err
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	active := make(map[uint]bool, len(configs))
	for i := range configs {
		cfg := configs[i]
		active[cfg.ID] = true
		interval := cfg.PollInterval()

		if existing, ok := ss.entries[cfg.ID]; ok {
			if existing.interval == interval {
				continue
			}
			ss.cron.Remove(existing.entryID)
			delete(ss.entries, cfg.ID)
		}

		ss.addLocked(cfg.ID, interval)
	}

	for configID, entry := range ss.entries {
		if !active[configID] {
			ss.cron.Remove(entry.entryID)
			delete(ss.entries, configID)
			ss.logger.Printf("Removed sync job for config %d", configID)
		}
	}

	return nil
}

func (ss *SyncScheduler) addLocked(configID uint, interval time.Duration) {
	job := cron.NewChain(cron.SkipIfStillRunning(cron.PrintfLogger(ss.logger))).Then(cron.FuncJob(func() {
		ss.run(configID)
	}))

	entryID := ss.cron.Schedule(cron.Every(interval), job)
	ss.entries[configID] = scheduledConfig{entryID: entryID, interval: interval}
	ss.logger.Printf("Added sync job for config %d (every %s)", configID, interval)
}

func (ss *SyncScheduler) run(configID uint) {
	_, err := ss.syncer.SyncConfigByID(ss.ctx, configID)
	switch {
	case err == nil:
	case errors.Is(err, ErrSyncInProgress):
		ss.logger.Printf("Config %d: предыдущий цикл еще выполняется, пропускаем", configID)
	case errors.Is(err, ErrConfigInactive), errors.Is(err, gorm.ErrRecordNotFound):
		ss.logger.Printf("Config %d больше не активна", configID)
	default:
		ss.logger.Printf("Config %d: ошибка цикла: %v", configID, err)
	}
}

// ScheduledIntervals возвращает интервалы запланированных конфигураций
func (ss *SyncScheduler) ScheduledIntervals() map[uint]time.Duration {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	result := make(map[uint]time.Duration, len(ss.entries))
	for id, entry := range ss.entries {
		result[id] = entry.interval
	}
	return result
}

// NextRun время следующего запуска конфигурации
func (ss *SyncScheduler) NextRun(configID uint) (time.Time, bool) {
	ss.mu.Lock()
	entry, ok := ss.entries[configID]
	ss.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return ss.cron.Entry(entry.entryID).Next, true
}
