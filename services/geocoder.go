package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GoogleGeocoder обратное геокодирование через Google Geocoding API
type GoogleGeocoder struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// NewGoogleGeocoder создает геокодер. Без ключа возвращает nil
func NewGoogleGeocoder(apiKey, baseURL string, logger *log.Logger) *GoogleGeocoder {
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com/maps/api/geocode/json"
	}
	return &GoogleGeocoder{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

// ReverseGeocode возвращает адрес для координат
func (g *GoogleGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	query := url.Values{}
	query.Set("latlng", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lng, 'f', 6, 64))
	query.Set("key", g.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса геокодирования: %w", err)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка запроса геокодирования: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("геокодирование: HTTP %d", resp.StatusCode)
	}

	var result geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ошибка декодирования ответа геокодирования: %w", err)
	}

	switch result.Status {
	case "OK":
		if len(result.Results) > 0 {
			return result.Results[0].FormattedAddress, nil
		}
		return "", nil
	case "ZERO_RESULTS":
		return "", nil
	default:
		return "", fmt.Errorf("геокодирование: %s %s", result.Status, result.ErrorMessage)
	}
}
