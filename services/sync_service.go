package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"fleet_tracking/config"
	"fleet_tracking/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceFailure ошибка одного устройства в цикле
type DeviceFailure struct {
	DeviceRef string         `json:"device_ref"`
	Reason    string         `json:"reason"`
	Kind      FetchErrorKind `json:"kind,omitempty"`
}

// DeviceSkip пропущенная запись поставщика
type DeviceSkip struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SyncReport итог одного цикла синхронизации конфигурации
type SyncReport struct {
	RunID            string          `json:"run_id"`
	ConfigID         uint            `json:"config_id"`
	Created          int             `json:"created"`
	Updated          int             `json:"updated"`
	Skipped          int             `json:"skipped"`
	Inactive         int             `json:"inactive"`
	Failed           []DeviceFailure `json:"failed"`
	Skips            []DeviceSkip    `json:"skips,omitempty"`
	AuthFailed       bool            `json:"auth_failed"`
	FirstError       string          `json:"first_error,omitempty"`
	ConnectionStatus string          `json:"connection_status"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`
}

func newSyncReport(configID uint) *SyncReport {
	return &SyncReport{
		RunID:     uuid.NewString(),
		ConfigID:  configID,
		Failed:    []DeviceFailure{},
		StartedAt: time.Now().UTC(),
	}
}

func (r *SyncReport) fail(deviceRef string, err error) {
	r.Failed = append(r.Failed, DeviceFailure{
		DeviceRef: deviceRef,
		Reason:    err.Error(),
		Kind:      FetchKind(err),
	})
}

func (r *SyncReport) skip(index int, err error) {
	r.Skipped++
	reason := err.Error()
	var skipErr *SkipError
	if errors.As(err, &skipErr) {
		reason = skipErr.Reason
	}
	r.Skips = append(r.Skips, DeviceSkip{Index: index, Reason: reason})
}

// Duration длительность цикла
func (r *SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// HistoryReport итог загрузки истории одного устройства
type HistoryReport struct {
	RunID    string    `json:"run_id"`
	DeviceID uint      `json:"device_id"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Fetched  int       `json:"fetched"`
	Appended int       `json:"appended"`
	Rejected int       `json:"rejected"`
	Errors   []string  `json:"errors,omitempty"`
}

// ConnectionTestResult результат проверки подключения
type ConnectionTestResult struct {
	Success          bool   `json:"success"`
	ConnectionStatus string `json:"connection_status"`
	DeviceCount      int    `json:"device_count"`
	Message          string `json:"message"`
}

// ClientFactory создает клиента поставщика для режима авторизации
type ClientFactory func(mode models.AuthMode) VendorClient

// SyncService оркестратор синхронизации с поставщиками трекинга
type SyncService struct {
	db            *gorm.DB
	transport     *VendorHTTP
	breakers      *BreakerRegistry
	credentials   *CredentialCipher
	reconciler    *Reconciler
	cache         *PositionCache
	lock          *SyncLock
	errorLog      *IntegrationErrorLog
	notifier      Notifier
	clientFactory ClientFactory
	maxParallel   int
	historyWindow time.Duration
	logger        *log.Logger
}

// NewSyncService собирает оркестратор из конфигурации. redisClient может быть nil
func NewSyncService(db *gorm.DB, cfg *config.Config, redisClient *redis.Client, logger *log.Logger) (*SyncService, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var credentials *CredentialCipher
	if cfg.Vendor.EncryptionKey != "" {
		cipher, err := NewCredentialCipher(cfg.Vendor.EncryptionKey)
		if err != nil {
			return nil, err
		}
		credentials = cipher
	} else {
		logger.Println("ПРЕДУПРЕЖДЕНИЕ: не задан ENCRYPTION_KEY, учетные данные хранятся открыто")
	}

	var geocoder Geocoder
	if g := NewGoogleGeocoder(cfg.External.GoogleMapsAPIKey, cfg.External.GeocodingURL, logger); g != nil {
		geocoder = g
	}

	cache := NewPositionCache(redisClient, logger)
	transport := NewVendorHTTP(cfg.Vendor, logger)

	s := &SyncService{
		db:            db,
		transport:     transport,
		breakers:      NewBreakerRegistry(cfg.Vendor, logger),
		credentials:   credentials,
		reconciler:    NewReconciler(db, geocoder, cache, logger),
		cache:         cache,
		lock:          NewSyncLock(redisClient, cfg.Sync.LockTTL, logger),
		errorLog:      NewIntegrationErrorLog(db, logger),
		maxParallel:   cfg.Sync.MaxParallelConfigs,
		historyWindow: cfg.Sync.HistoryWindow,
		logger:        logger,
	}
	s.clientFactory = func(mode models.AuthMode) VendorClient {
		return NewVendorClient(mode, transport)
	}
	if s.maxParallel <= 0 {
		s.maxParallel = 1
	}
	if s.historyWindow <= 0 {
		s.historyWindow = 24 * time.Hour
	}

	return s, nil
}

// SetNotifier подключает оповещения о смене статуса подключения
func (s *SyncService) SetNotifier(notifier Notifier) {
	s.notifier = notifier
}

// SetClientFactory подменяет создание клиентов поставщика
func (s *SyncService) SetClientFactory(factory ClientFactory) {
	s.clientFactory = factory
}

// Reconciler возвращает Reconciler сервиса
func (s *SyncService) Reconciler() *Reconciler {
	return s.reconciler
}

// Credentials возвращает шифратор учетных данных (nil без ключа)
func (s *SyncService) Credentials() *CredentialCipher {
	return s.credentials
}

// Cache возвращает кэш позиций
func (s *SyncService) Cache() *PositionCache {
	return s.cache
}

// HistoryWindow окно истории по умолчанию
func (s *SyncService) HistoryWindow() time.Duration {
	return s.historyWindow
}

// IsRunning проверяет, идет ли цикл конфигурации
func (s *SyncService) IsRunning(configID uint) bool {
	return s.lock.IsRunning(configID)
}

// ForgetConfig освобождает ресурсы удаленной конфигурации
func (s *SyncService) ForgetConfig(configID uint) {
	s.breakers.Forget(configID)
}

// connect расшифровывает учетные данные, выбирает клиента по режиму и авторизуется
func (s *SyncService) connect(ctx context.Context, cfg *models.TrackingConfig) (VendorClient, *VendorSession, error) {
	endpoint, err := s.credentials.Endpoint(cfg)
	if err != nil {
		return nil, nil, &AuthError{Reason: "учетные данные недоступны", Err: err}
	}

	client := s.breakers.Wrap(cfg.ID, s.clientFactory(endpoint.Mode))

	session, err := client.Authenticate(ctx, endpoint)
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			err = &AuthError{Reason: "сервер авторизации недоступен", Err: err}
		}
		return nil, nil, err
	}
	return client, session, nil
}

type deviceWork struct {
	device  *models.TrackingDevice
	created bool
}

// SyncAllDevices выполняет один цикл синхронизации конфигурации.
// Ошибка возвращается только если цикл не был запущен (уже идет, конфигурация отключена)
func (s *SyncService) SyncAllDevices(ctx context.Context, cfg *models.TrackingConfig) (*SyncReport, error) {
	if !cfg.IsActive {
		return nil, ErrConfigInactive
	}

	release, err := s.lock.TryAcquire(ctx, cfg.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	report := newSyncReport(cfg.ID)
	previousStatus := cfg.ConnectionStatus

	s.logger.Printf("🔄 Цикл %s: конфигурация %q (#%d)", report.RunID, cfg.Name, cfg.ID)

	client, session, err := s.connect(ctx, cfg)
	if err != nil {
		report.AuthFailed = true
		report.FirstError = err.Error()
		s.errorLog.Record(ctx, cfg.ID, models.IntegrationOperationAuth, "", report.RunID, err)
		return s.finish(ctx, cfg, report, previousStatus), nil
	}
	s.errorLog.Resolve(ctx, cfg.ID, models.IntegrationOperationAuth, "")

	rawDevices, err := client.ListDevices(ctx, session)
	if err != nil {
		report.AuthFailed = IsAuthError(err)
		report.FirstError = err.Error()
		op := models.IntegrationOperationSync
		if report.AuthFailed {
			op = models.IntegrationOperationAuth
		}
		s.errorLog.Record(ctx, cfg.ID, op, "", report.RunID, err)
		return s.finish(ctx, cfg, report, previousStatus), nil
	}

	work := make([]deviceWork, 0, len(rawDevices))
	for i, raw := range rawDevices {
		nd, err := NormalizeDevice(raw)
		if err != nil {
			report.skip(i, err)
			continue
		}

		device, created, err := s.reconciler.ReconcileDevice(ctx, cfg, nd)
		if err != nil {
			report.fail(nd.VendorDeviceID, err)
			s.errorLog.Record(ctx, cfg.ID, models.IntegrationOperationSync, nd.VendorDeviceID, report.RunID, err)
			continue
		}
		work = append(work, deviceWork{device: device, created: created})
	}

	for _, item := range work {
		device := item.device
		if !device.IsActive {
			// Отключенное устройство: обновлена только идентичность, позиция не запрашивается
			report.Inactive++
			continue
		}

		if err := s.syncDeviceLocation(ctx, client, session, device); err != nil {
			report.fail(device.VendorDeviceID, err)
			s.errorLog.Record(ctx, cfg.ID, models.IntegrationOperationSync, device.VendorDeviceID, report.RunID, err)
			s.logger.Printf("⚠️  Устройство %s: %v", device.VendorDeviceID, err)
			continue
		}

		s.errorLog.Resolve(ctx, cfg.ID, models.IntegrationOperationSync, device.VendorDeviceID)
		if item.created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	if err := s.cache.InvalidateConfig(ctx, cfg.ID); err != nil {
		s.logger.Printf("ошибка сброса кэша позиций: %v", err)
	}

	return s.finish(ctx, cfg, report, previousStatus), nil
}

func (s *SyncService) syncDeviceLocation(ctx context.Context, client VendorClient, session *VendorSession, device *models.TrackingDevice) error {
	raw, err := client.GetDeviceLocation(ctx, session, device.VendorDeviceID)
	if err != nil {
		return err
	}

	loc := NormalizeLocation(raw, receiptTime())
	if _, err := s.reconciler.ApplyLocation(ctx, device, loc, models.LocationSourcePoll); err != nil {
		return err
	}
	return nil
}

// finish записывает итог цикла в конфигурацию одним обновлением
func (s *SyncService) finish(ctx context.Context, cfg *models.TrackingConfig, report *SyncReport, previousStatus string) *SyncReport {
	report.FinishedAt = time.Now().UTC()

	status := models.ConnectionStatusConnected
	if report.FirstError != "" {
		status = models.ConnectionStatusFailed
	}
	report.ConnectionStatus = status

	updates := cfg.RecordSync(report.FinishedAt, status, report.FirstError)
	if err := s.db.WithContext(ctx).Model(&models.TrackingConfig{}).Where("id = ?", cfg.ID).Updates(updates).Error; err != nil {
		s.logger.Printf("❌ Не удалось сохранить итог цикла конфигурации %d: %v", cfg.ID, err)
	}

	s.logger.Printf("✅ Цикл %s завершен за %v: создано %d, обновлено %d, пропущено %d, ошибок %d, статус %s",
		report.RunID, report.Duration(), report.Created, report.Updated, report.Skipped, len(report.Failed), status)

	s.notifyStatusChange(cfg, report, previousStatus)
	return report
}

func (s *SyncService) notifyStatusChange(cfg *models.TrackingConfig, report *SyncReport, previousStatus string) {
	if s.notifier == nil || previousStatus == report.ConnectionStatus {
		return
	}

	var err error
	switch {
	case report.ConnectionStatus == models.ConnectionStatusFailed:
		err = s.notifier.NotifyConnectionFailed(cfg, report)
	case previousStatus == models.ConnectionStatusFailed:
		err = s.notifier.NotifyConnectionRestored(cfg, report)
	}
	if err != nil {
		s.logger.Printf("ошибка отправки оповещения: %v", err)
	}
}

// SyncAllConfigs запускает цикл для каждой активной конфигурации, не более maxParallel одновременно
func (s *SyncService) SyncAllConfigs(ctx context.Context) ([]*SyncReport, error) {
	var configs []models.TrackingConfig
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигураций: %w", err)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		reports = make([]*SyncReport, 0, len(configs))
		sem     = make(chan struct{}, s.maxParallel)
	)

	for i := range configs {
		cfg := &configs[i]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return reports, ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			report, err := s.SyncAllDevices(ctx, cfg)
			if err != nil {
				s.logger.Printf("Конфигурация %d пропущена: %v", cfg.ID, err)
				return
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return reports, nil
}

// SyncConfigByID загружает конфигурацию и выполняет цикл
func (s *SyncService) SyncConfigByID(ctx context.Context, configID uint) (*SyncReport, error) {
	var cfg models.TrackingConfig
	if err := s.db.WithContext(ctx).First(&cfg, configID).Error; err != nil {
		return nil, err
	}
	return s.SyncAllDevices(ctx, &cfg)
}

// SyncHistory загружает историю устройства за период и добавляет каждую точку в историю
func (s *SyncService) SyncHistory(ctx context.Context, cfg *models.TrackingConfig, device *models.TrackingDevice, from, to time.Time) (*HistoryReport, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("некорректный период: %s - %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	report := &HistoryReport{RunID: uuid.NewString(), DeviceID: device.ID, From: from, To: to}

	client, session, err := s.connect(ctx, cfg)
	if err != nil {
		s.errorLog.Record(ctx, cfg.ID, models.IntegrationOperationAuth, "", report.RunID, err)
		return nil, err
	}

	points, err := client.GetHistory(ctx, session, device.VendorDeviceID, from, to)
	if err != nil {
		s.errorLog.Record(ctx, cfg.ID, models.IntegrationOperationHistory, device.VendorDeviceID, report.RunID, err)
		return nil, err
	}
	report.Fetched = len(points)

	receivedAt := receiptTime()
	for _, raw := range points {
		loc := NormalizeLocation(raw, receivedAt)
		if _, err := s.reconciler.AppendLocation(ctx, device, loc, models.LocationSourceHistory); err != nil {
			report.Rejected++
			report.Errors = append(report.Errors, err.Error())
			continue
		}
		report.Appended++
	}

	s.errorLog.Resolve(ctx, cfg.ID, models.IntegrationOperationHistory, device.VendorDeviceID)
	s.logger.Printf("📜 История устройства %s: получено %d, записано %d, отклонено %d",
		device.VendorDeviceID, report.Fetched, report.Appended, report.Rejected)
	return report, nil
}

// IngestPush обрабатывает точки, присланные поставщиком (webhook), тем же путем нормализации и записи.
// Статус подключения конфигурации не меняется
func (s *SyncService) IngestPush(ctx context.Context, cfg *models.TrackingConfig, payload RawValue) *SyncReport {
	return s.ingest(ctx, cfg, payload, models.LocationSourceWebhook)
}

func (s *SyncService) ingest(ctx context.Context, cfg *models.TrackingConfig, payload RawValue, source string) *SyncReport {
	report := newSyncReport(cfg.ID)
	receivedAt := receiptTime()

	for i, raw := range payload.Items() {
		nd, err := NormalizeDevice(raw)
		if err != nil {
			report.skip(i, err)
			continue
		}

		device, created, err := s.reconciler.ReconcileDevice(ctx, cfg, nd)
		if err != nil {
			report.fail(nd.VendorDeviceID, err)
			continue
		}

		loc := NormalizeLocation(raw, receivedAt)
		if _, err := s.reconciler.ApplyLocation(ctx, device, loc, source); err != nil {
			report.fail(nd.VendorDeviceID, err)
			s.errorLog.Record(ctx, cfg.ID, models.IntegrationOperationWebhook, nd.VendorDeviceID, report.RunID, err)
			continue
		}

		if created {
			report.Created++
		} else {
			report.Updated++
		}
	}

	report.FinishedAt = time.Now().UTC()
	report.ConnectionStatus = cfg.ConnectionStatus
	return report
}

// TestConnection авторизуется и запрашивает список устройств, сохраняя статус подключения
func (s *SyncService) TestConnection(ctx context.Context, cfg *models.TrackingConfig) *ConnectionTestResult {
	result := &ConnectionTestResult{ConnectionStatus: models.ConnectionStatusFailed}

	client, session, err := s.connect(ctx, cfg)
	if err == nil {
		var devices []RawValue
		devices, err = client.ListDevices(ctx, session)
		result.DeviceCount = len(devices)
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{}
	if err != nil {
		result.Message = err.Error()
		updates["connection_status"] = models.ConnectionStatusFailed
		updates["last_error"] = err.Error()
		updates["last_error_at"] = &now
	} else {
		result.Success = true
		result.ConnectionStatus = models.ConnectionStatusConnected
		result.Message = fmt.Sprintf("Подключение успешно, устройств: %d", result.DeviceCount)
		updates["connection_status"] = models.ConnectionStatusConnected
		updates["last_error"] = ""
	}

	if dbErr := s.db.WithContext(ctx).Model(&models.TrackingConfig{}).Where("id = ?", cfg.ID).Updates(updates).Error; dbErr != nil {
		s.logger.Printf("не удалось сохранить статус подключения %d: %v", cfg.ID, dbErr)
	}
	cfg.ConnectionStatus = result.ConnectionStatus
	return result
}
