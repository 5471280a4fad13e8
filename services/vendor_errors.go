package services

import (
	"errors"
	"fmt"
)

// FetchErrorKind вид ошибки запроса к поставщику
type FetchErrorKind string

const (
	FetchErrorTransport   FetchErrorKind = "transport"
	FetchErrorTimeout     FetchErrorKind = "timeout"
	FetchErrorHTTPStatus  FetchErrorKind = "http_status"
	FetchErrorInvalidJSON FetchErrorKind = "invalid_json"
	FetchErrorEmptyBody   FetchErrorKind = "empty_body"
	FetchErrorCircuitOpen FetchErrorKind = "circuit_open"
	FetchErrorStore       FetchErrorKind = "store"
)

// FetchError ошибка одного запроса или записи. Фатальна только для одного устройства
type FetchError struct {
	Kind       FetchErrorKind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorHTTPStatus:
		if e.Body != "" {
			return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	case FetchErrorEmptyBody:
		return fmt.Sprintf("%s: пустой ответ поставщика", e.Op)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AuthError ошибка авторизации или недоступности поставщика. Прерывает весь цикл конфигурации
type AuthError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ошибка авторизации: %s: %v", e.Reason, e.Err)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("ошибка авторизации: %s (HTTP %d)", e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("ошибка авторизации: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// SkipError осознанный пропуск записи поставщика. Не считается ошибкой
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "пропуск записи: " + e.Reason
}

var (
	// ErrInvalidCoordinates координаты вне допустимого диапазона
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrSyncInProgress цикл синхронизации этой конфигурации уже выполняется
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrConfigInactive конфигурация отключена
	ErrConfigInactive = errors.New("tracking config is inactive")
)

// IsAuthError проверяет, является ли ошибка ошибкой авторизации
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsSkip проверяет, является ли ошибка пропуском записи
func IsSkip(err error) bool {
	var skipErr *SkipError
	return errors.As(err, &skipErr)
}

// FetchKind возвращает вид FetchError или пустую строку
func FetchKind(err error) FetchErrorKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ""
}
