package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleet_tracking/config"
	"fleet_tracking/models"
)

const maxVendorResponseSize = 10 << 20

// VendorClient клиент поставщика GPS-трекинга. Повторных попыток внутри клиента нет
type VendorClient interface {
	Authenticate(ctx context.Context, endpoint VendorEndpoint) (*VendorSession, error)
	ListDevices(ctx context.Context, session *VendorSession) ([]RawValue, error)
	GetDeviceLocation(ctx context.Context, session *VendorSession, vendorDeviceID string) (RawValue, error)
	GetHistory(ctx context.Context, session *VendorSession, vendorDeviceID string, from, to time.Time) ([]RawValue, error)
}

// VendorEndpoint расшифрованные параметры подключения одной конфигурации
type VendorEndpoint struct {
	ConfigID uint
	BaseURL  string
	Mode     models.AuthMode
	APIKey   string
	Username string
	Password string
}

// VendorSession сессия, полученная при авторизации. Живет один цикл
type VendorSession struct {
	Endpoint VendorEndpoint
	Token    string
}

// VendorHTTP общий HTTP-транспорт для всех диалектов поставщиков
type VendorHTTP struct {
	HTTPClient     *http.Client
	UserAgent      string
	RequestTimeout time.Duration
	HistoryTimeout time.Duration
	Logger         *log.Logger
}

// NewVendorHTTP создает транспорт с таймаутами из конфигурации
func NewVendorHTTP(cfg config.VendorConfig, logger *log.Logger) *VendorHTTP {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	historyTimeout := cfg.HistoryTimeout
	if historyTimeout <= 0 {
		historyTimeout = 60 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "FleetTracking/1.0"
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &VendorHTTP{
		HTTPClient:     client,
		UserAgent:      userAgent,
		RequestTimeout: requestTimeout,
		HistoryTimeout: historyTimeout,
		Logger:         logger,
	}
}

// NewVendorClient возвращает клиент для режима авторизации конфигурации
func NewVendorClient(mode models.AuthMode, transport *VendorHTTP) VendorClient {
	if mode == models.AuthModeLogin {
		return &LoginClient{http: transport}
	}
	return &BearerClient{http: transport}
}

// send выполняет запрос с собственным таймаутом и возвращает разобранный JSON
func (t *VendorHTTP) send(ctx context.Context, op string, req *http.Request, timeout time.Duration) (RawValue, int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req = req.WithContext(ctx)

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.UserAgent)

	t.Logger.Printf("%s %s %s", op, req.Method, redactURL(req.URL))

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return RawValue{}, 0, classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVendorResponseSize))
	if err != nil {
		return RawValue{}, resp.StatusCode, classifyTransportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return RawValue{}, resp.StatusCode, &FetchError{
			Kind:       FetchErrorHTTPStatus,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(strings.TrimSpace(string(body)), 200),
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return RawValue{}, resp.StatusCode, &FetchError{Kind: FetchErrorEmptyBody, Op: op}
	}

	raw, err := ParseRaw(body)
	if err != nil {
		return RawValue{}, resp.StatusCode, &FetchError{Kind: FetchErrorInvalidJSON, Op: op, Err: err}
	}
	if raw.IsNull() {
		return RawValue{}, resp.StatusCode, &FetchError{Kind: FetchErrorEmptyBody, Op: op}
	}

	return raw, resp.StatusCode, nil
}

func (t *VendorHTTP) get(ctx context.Context, op, rawURL string, headers map[string]string, timeout time.Duration) (RawValue, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return RawValue{}, &FetchError{Kind: FetchErrorTransport, Op: op, Err: err}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	raw, _, err := t.send(ctx, op, req, timeout)
	return raw, err
}

func classifyTransportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: FetchErrorTimeout, Op: op, Err: err}
	}
	return &FetchError{Kind: FetchErrorTransport, Op: op, Err: err}
}

// BearerClient REST-диалект: API-ключ в заголовке Authorization
type BearerClient struct {
	http *VendorHTTP
}

// Authenticate проверяет наличие ключа. Сетевого запроса нет: ключ проверяется первым же листингом
func (c *BearerClient) Authenticate(ctx context.Context, endpoint VendorEndpoint) (*VendorSession, error) {
	if endpoint.BaseURL == "" {
		return nil, &AuthError{Reason: "не задан URL API"}
	}
	if endpoint.APIKey == "" {
		return nil, &AuthError{Reason: "не задан API-ключ"}
	}
	return &VendorSession{Endpoint: endpoint, Token: endpoint.APIKey}, nil
}

func (c *BearerClient) headers(session *VendorSession) map[string]string {
	return map[string]string{"Authorization": "Bearer " + session.Token}
}

// ListDevices GET /devices. 401/403 означают неверный ключ
func (c *BearerClient) ListDevices(ctx context.Context, session *VendorSession) ([]RawValue, error) {
	raw, err := c.http.get(ctx, "list devices", session.Endpoint.BaseURL+"/devices", c.headers(session), c.http.RequestTimeout)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.Kind == FetchErrorHTTPStatus &&
			(fetchErr.StatusCode == http.StatusUnauthorized || fetchErr.StatusCode == http.StatusForbidden) {
			return nil, &AuthError{Reason: "API-ключ отклонен", StatusCode: fetchErr.StatusCode}
		}
		return nil, err
	}
	return raw.Items(), nil
}

// GetDeviceLocation GET /devices/{id}/location
func (c *BearerClient) GetDeviceLocation(ctx context.Context, session *VendorSession, vendorDeviceID string) (RawValue, error) {
	endpoint := fmt.Sprintf("%s/devices/%s/location", session.Endpoint.BaseURL, url.PathEscape(vendorDeviceID))
	raw, err := c.http.get(ctx, "device location", endpoint, c.headers(session), c.http.RequestTimeout)
	if err != nil {
		return RawValue{}, err
	}
	return raw.Unwrap(), nil
}

// GetHistory GET /devices/{id}/history?from=&to= (RFC3339)
func (c *BearerClient) GetHistory(ctx context.Context, session *VendorSession, vendorDeviceID string, from, to time.Time) ([]RawValue, error) {
	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))

	endpoint := fmt.Sprintf("%s/devices/%s/history?%s", session.Endpoint.BaseURL, url.PathEscape(vendorDeviceID), query.Encode())
	raw, err := c.http.get(ctx, "device history", endpoint, c.headers(session), c.http.HistoryTimeout)
	if err != nil {
		return nil, err
	}
	return raw.Items(), nil
}

// LoginClient GPSWOX-диалект: логин/пароль обмениваются на user_api_hash
type LoginClient struct {
	http *VendorHTTP
}

// Authenticate POST /login. Любая ошибка здесь фатальна для цикла
func (c *LoginClient) Authenticate(ctx context.Context, endpoint VendorEndpoint) (*VendorSession, error) {
	if endpoint.BaseURL == "" {
		return nil, &AuthError{Reason: "не задан URL API"}
	}
	if endpoint.Username == "" || endpoint.Password == "" {
		return nil, &AuthError{Reason: "не заданы логин или пароль"}
	}

	payload, err := json.Marshal(map[string]string{
		"email":    endpoint.Username,
		"password": endpoint.Password,
	})
	if err != nil {
		return nil, &AuthError{Reason: "ошибка сериализации данных авторизации", Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, endpoint.BaseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return nil, &AuthError{Reason: "ошибка создания запроса авторизации", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	raw, statusCode, err := c.http.send(ctx, "login", req, c.http.RequestTimeout)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.Kind == FetchErrorHTTPStatus {
			return nil, &AuthError{Reason: "логин отклонен", StatusCode: statusCode}
		}
		return nil, &AuthError{Reason: "сервер авторизации недоступен", Err: err}
	}

	raw = raw.Unwrap()
	if status, ok := raw.Lookup("status"); ok {
		if n, ok := toFloat(status); ok && n == 0 {
			return nil, &AuthError{Reason: "логин отклонен поставщиком", StatusCode: statusCode}
		}
	}

	hash := ""
	for _, key := range []string{"user_api_hash", "api_hash", "token"} {
		if value, ok := raw.Lookup(key); ok {
			hash = toString(value)
			if hash != "" {
				break
			}
		}
	}
	if hash == "" {
		return nil, &AuthError{Reason: "в ответе нет user_api_hash", StatusCode: statusCode}
	}

	return &VendorSession{Endpoint: endpoint, Token: hash}, nil
}

func (c *LoginClient) endpoint(session *VendorSession, path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("user_api_hash", session.Token)
	query.Set("lang", "en")
	return session.Endpoint.BaseURL + path + "?" + query.Encode()
}

// ListDevices GET /get_devices. Группы GPSWOX разворачиваются по ключу items
func (c *LoginClient) ListDevices(ctx context.Context, session *VendorSession) ([]RawValue, error) {
	raw, err := c.http.get(ctx, "list devices", c.endpoint(session, "/get_devices", nil), nil, c.http.RequestTimeout)
	if err != nil {
		return nil, err
	}

	var devices []RawValue
	for _, item := range raw.Items() {
		if item.Kind == RawObject {
			if group, ok := item.Object["items"].([]interface{}); ok {
				devices = append(devices, NewRawValue(group).List...)
				continue
			}
		}
		devices = append(devices, item)
	}
	return devices, nil
}

// GetDeviceLocation GET /get_device_data?device_id=
func (c *LoginClient) GetDeviceLocation(ctx context.Context, session *VendorSession, vendorDeviceID string) (RawValue, error) {
	query := url.Values{}
	query.Set("device_id", vendorDeviceID)

	raw, err := c.http.get(ctx, "device location", c.endpoint(session, "/get_device_data", query), nil, c.http.RequestTimeout)
	if err != nil {
		return RawValue{}, err
	}
	return raw.Unwrap(), nil
}

// GetHistory GET /get_history с датой и временем раздельно
func (c *LoginClient) GetHistory(ctx context.Context, session *VendorSession, vendorDeviceID string, from, to time.Time) ([]RawValue, error) {
	from, to = from.UTC(), to.UTC()
	query := url.Values{}
	query.Set("device_id", vendorDeviceID)
	query.Set("from_date", from.Format("2006-01-02"))
	query.Set("from_time", from.Format("15:04:05"))
	query.Set("to_date", to.Format("2006-01-02"))
	query.Set("to_time", to.Format("15:04:05"))

	raw, err := c.http.get(ctx, "device history", c.endpoint(session, "/get_history", query), nil, c.http.HistoryTimeout)
	if err != nil {
		return nil, err
	}

	var points []RawValue
	for _, item := range raw.Items() {
		// В GPSWOX точки лежат внутри items каждого отрезка поездки
		if item.Kind == RawObject {
			if segment, ok := item.Object["items"].([]interface{}); ok {
				points = append(points, NewRawValue(segment).List...)
				continue
			}
		}
		points = append(points, item)
	}
	return points, nil
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	query := clone.Query()
	if query.Has("user_api_hash") {
		query.Set("user_api_hash", "***")
		clone.RawQuery = query.Encode()
	}
	return clone.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
