package services

import (
	"fmt"
	"html"
	"io"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"fleet_tracking/models"
)

// Notifier оповещение операторов о смене состояния подключения
type Notifier interface {
	NotifyConnectionFailed(config *models.TrackingConfig, report *SyncReport) error
	NotifyConnectionRestored(config *models.TrackingConfig, report *SyncReport) error
}

// TelegramClient отправляет оповещения в чат Telegram
type TelegramClient struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *log.Logger
}

// NewTelegramClient создает новый экземпляр Telegram клиента
func NewTelegramClient(token, chatID string, logger *log.Logger) (*TelegramClient, error) {
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("Telegram не настроен")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("неверный chat ID: %s", chatID)
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}

	// В продакшене отключаем debug
	bot.Debug = false

	logger.Printf("✅ Telegram бот авторизован: %s", bot.Self.UserName)

	return &TelegramClient{
		bot:    bot,
		chatID: chatIDInt,
		logger: logger,
	}, nil
}

// SendMessage отправляет HTML-сообщение в чат
func (tc *TelegramClient) SendMessage(message string) error {
	msg := tgbotapi.NewMessage(tc.chatID, message)
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := tc.bot.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	return nil
}

// NotifyConnectionFailed сообщает о потере подключения к поставщику
func (tc *TelegramClient) NotifyConnectionFailed(config *models.TrackingConfig, report *SyncReport) error {
	return tc.SendMessage(FormatConnectionFailed(config, report))
}

// NotifyConnectionRestored сообщает о восстановлении подключения
func (tc *TelegramClient) NotifyConnectionRestored(config *models.TrackingConfig, report *SyncReport) error {
	return tc.SendMessage(FormatConnectionRestored(config, report))
}

// FormatConnectionFailed текст оповещения о сбое
func FormatConnectionFailed(config *models.TrackingConfig, report *SyncReport) string {
	return fmt.Sprintf("🔴 <b>Трекинг: нет подключения</b>\n\n"+
		"Конфигурация: %s (#%d)\n"+
		"Ошибка: <code>%s</code>\n"+
		"Цикл: %s",
		html.EscapeString(config.Name), config.ID,
		html.EscapeString(report.FirstError),
		report.RunID)
}

// FormatConnectionRestored текст оповещения о восстановлении
func FormatConnectionRestored(config *models.TrackingConfig, report *SyncReport) string {
	return fmt.Sprintf("🟢 <b>Трекинг: подключение восстановлено</b>\n\n"+
		"Конфигурация: %s (#%d)\n"+
		"Создано: %d, обновлено: %d, ошибок: %d",
		html.EscapeString(config.Name), config.ID,
		report.Created, report.Updated, len(report.Failed))
}
