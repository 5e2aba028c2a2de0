package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenledger/server/internal/inventory"
)

// respondError отвечает кодом по типу ошибки: 400 валидация, 404 не найдено, 409 нет остатка, иначе 500
func respondError(c *gin.Context, message string, err error) {
	var (
		validation   *inventory.ValidationError
		notFound     *inventory.NotFoundError
		insufficient *inventory.InsufficientStockError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &insufficient):
		status = http.StatusConflict
	}

	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
