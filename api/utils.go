package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"fleet_tracking/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// parseIDParam извлекает числовой идентификатор из пути
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Некорректный ID"})
		return 0, false
	}
	return uint(id), true
}

// respondNotFoundOrError отвечает 404 для отсутствующей записи, иначе 500
func respondNotFoundOrError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Ошибка базы данных: " + err.Error()})
}

// parseTimeRange читает период из from/to (RFC3339) или hours (последние N часов)
func parseTimeRange(c *gin.Context, defaultWindow time.Duration) (time.Time, time.Time, error) {
	now := time.Now().UTC()

	fromParam, toParam := c.Query("from"), c.Query("to")
	if fromParam != "" || toParam != "" {
		to := now
		if toParam != "" {
			parsed, err := time.Parse(time.RFC3339, toParam)
			if err != nil {
				return time.Time{}, time.Time{}, errors.New("параметр to должен быть в формате RFC3339")
			}
			to = parsed.UTC()
		}
		if fromParam == "" {
			return to.Add(-defaultWindow), to, nil
		}
		from, err := time.Parse(time.RFC3339, fromParam)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("параметр from должен быть в формате RFC3339")
		}
		return from.UTC(), to, nil
	}

	window := defaultWindow
	if hoursParam := c.Query("hours"); hoursParam != "" {
		hours, err := strconv.Atoi(hoursParam)
		if err != nil || hours <= 0 {
			return time.Time{}, time.Time{}, errors.New("параметр hours должен быть положительным числом")
		}
		window = time.Duration(hours) * time.Hour
	}
	return now.Add(-window), now, nil
}

// statusForSyncError код ответа для ошибки запуска цикла
func statusForSyncError(err error) int {
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfigInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
