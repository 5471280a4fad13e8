package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"fleet_tracking/models"

	"golang.org/x/crypto/hkdf"
)

const (
	credentialPrefix = "enc:"
	credentialSalt   = "fleet-tracking-credentials"
	credentialInfo   = "vendor-credentials-v1"
)

// CredentialCipher шифрует учетные данные поставщиков для хранения в БД
type CredentialCipher struct {
	key []byte
}

// NewCredentialCipher выводит AES-256 ключ из секрета через HKDF-SHA256
func NewCredentialCipher(secret string) (*CredentialCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("ключ шифрования не задан")
	}

	reader := hkdf.New(sha256.New, []byte(secret), []byte(credentialSalt), []byte(credentialInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("ошибка вывода ключа: %w", err)
	}

	return &CredentialCipher{key: key}, nil
}

// Encrypt шифрует значение. Пустая строка и уже зашифрованное значение не меняются.
// Без ключа (nil) значение хранится открыто
func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	if c == nil || plaintext == "" || strings.HasPrefix(plaintext, credentialPrefix) {
		return plaintext, nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return credentialPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает значение. Значения без префикса считаются открытыми
func (c *CredentialCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, credentialPrefix) {
		return stored, nil
	}
	if c == nil {
		return "", fmt.Errorf("значение зашифровано, но ключ шифрования не задан")
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, credentialPrefix))
	if err != nil {
		return "", fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка расшифровки: %w", err)
	}

	return string(plaintext), nil
}

func (c *CredentialCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания шифра: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}
	return gcm, nil
}

// SealConfig шифрует API-ключ и пароль конфигурации перед сохранением
func (c *CredentialCipher) SealConfig(cfg *models.TrackingConfig) error {
	apiKey, err := c.Encrypt(cfg.APIKey)
	if err != nil {
		return fmt.Errorf("шифрование API-ключа: %w", err)
	}
	password, err := c.Encrypt(cfg.Password)
	if err != nil {
		return fmt.Errorf("шифрование пароля: %w", err)
	}
	cfg.APIKey = apiKey
	cfg.Password = password
	return nil
}

// Endpoint собирает расшифрованные параметры подключения конфигурации.
// Режим авторизации определяется здесь один раз на цикл
func (c *CredentialCipher) Endpoint(cfg *models.TrackingConfig) (VendorEndpoint, error) {
	apiKey, err := c.Decrypt(cfg.APIKey)
	if err != nil {
		return VendorEndpoint{}, fmt.Errorf("расшифровка API-ключа: %w", err)
	}
	password, err := c.Decrypt(cfg.Password)
	if err != nil {
		return VendorEndpoint{}, fmt.Errorf("расшифровка пароля: %w", err)
	}

	return VendorEndpoint{
		ConfigID: cfg.ID,
		BaseURL:  cfg.NormalizedURL(),
		Mode:     cfg.ResolveAuthMode(),
		APIKey:   apiKey,
		Username: cfg.Username,
		Password: password,
	}, nil
}
