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

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerRegistry хранит отдельный circuit breaker для каждой конфигурации,
// чтобы недоступный поставщик одной конфигурации не влиял на другие
type BreakerRegistry struct {
	settings config.VendorConfig
	logger   *log.Logger

	mu       sync.Mutex
	breakers map[uint]*gobreaker.CircuitBreaker[interface{}]
}

// NewBreakerRegistry создает реестр с порогами из конфигурации
func NewBreakerRegistry(cfg config.VendorConfig, logger *log.Logger) *BreakerRegistry {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &BreakerRegistry{
		settings: cfg,
		logger:   logger,
		breakers: make(map[uint]*gobreaker.CircuitBreaker[interface{}]),
	}
}

func (r *BreakerRegistry) get(configID uint) *gobreaker.CircuitBreaker[interface{}] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[configID]; ok {
		return cb
	}

	minRequests := r.settings.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	failureRatio := r.settings.BreakerFailureRatio
	if failureRatio <= 0 {
		failureRatio = 0.6
	}
	openTimeout := r.settings.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 2 * time.Minute
	}

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        fmt.Sprintf("tracking-config-%d", configID),
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= failureRatio {
				r.logger.Printf("[CIRCUIT BREAKER] config %d: %d ошибок из %d (%.0f%%), размыкаем",
					configID, counts.TotalFailures, counts.Requests, ratio*100)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Printf("[CIRCUIT BREAKER] %s: %s -> %s", name, from.String(), to.String())
		},
		// Ответы поставщика 4xx и ошибки авторизации не говорят о недоступности
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) {
				switch fetchErr.Kind {
				case FetchErrorTransport, FetchErrorTimeout:
					return false
				case FetchErrorHTTPStatus:
					return fetchErr.StatusCode < 500
				}
				return true
			}
			var authErr *AuthError
			if errors.As(err, &authErr) {
				return authErr.Err == nil
			}
			return true
		},
	})

	r.breakers[configID] = cb
	return cb
}

// State возвращает состояние breaker конфигурации
func (r *BreakerRegistry) State(configID uint) gobreaker.State {
	return r.get(configID).State()
}

// Forget удаляет breaker удаленной конфигурации
func (r *BreakerRegistry) Forget(configID uint) {
	r.mu.Lock()
	delete(r.breakers, configID)
	r.mu.Unlock()
}

// Wrap оборачивает клиент breaker'ом конфигурации
func (r *BreakerRegistry) Wrap(configID uint, client VendorClient) VendorClient {
	return &breakerClient{client: client, cb: r.get(configID)}
}

type breakerClient struct {
	client VendorClient
	cb     *gobreaker.CircuitBreaker[interface{}]
}

func (b *breakerClient) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &FetchError{Kind: FetchErrorCircuitOpen, Op: op, Err: err}
	}
	return result, err
}

func (b *breakerClient) Authenticate(ctx context.Context, endpoint VendorEndpoint) (*VendorSession, error) {
	result, err := b.execute("login", func() (interface{}, error) {
		return b.client.Authenticate(ctx, endpoint)
	})
	if err != nil {
		if FetchKind(err) == FetchErrorCircuitOpen {
			return nil, &AuthError{Reason: "поставщик временно недоступен", Err: err}
		}
		return nil, err
	}
	return result.(*VendorSession), nil
}

func (b *breakerClient) ListDevices(ctx context.Context, session *VendorSession) ([]RawValue, error) {
	result, err := b.execute("list devices", func() (interface{}, error) {
		return b.client.ListDevices(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	return result.([]RawValue), nil
}

func (b *breakerClient) GetDeviceLocation(ctx context.Context, session *VendorSession, vendorDeviceID string) (RawValue, error) {
	result, err := b.execute("device location", func() (interface{}, error) {
		return b.client.GetDeviceLocation(ctx, session, vendorDeviceID)
	})
	if err != nil {
		return RawValue{}, err
	}
	return result.(RawValue), nil
}

func (b *breakerClient) GetHistory(ctx context.Context, session *VendorSession, vendorDeviceID string, from, to time.Time) ([]RawValue, error) {
	result, err := b.execute("device history", func() (interface{}, error) {
		return b.client.GetHistory(ctx, session, vendorDeviceID, from, to)
	})
	if err != nil {
		return nil, err
	}
	return result.([]RawValue), nil
}
