package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kitchenledger/server/internal/inventory"
	"kitchenledger/server/internal/lifecycle"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/orders"
)

// OrderController - заказы всех каналов: создание, просмотр, смена статуса
type OrderController struct {
	dispatcher *lifecycle.Dispatcher
	repo       *orders.Repository
}

// NewOrderController создает контроллер заказов
func NewOrderController(dispatcher *lifecycle.Dispatcher, repo *orders.Repository) *OrderController {
	return &OrderController{
		dispatcher: dispatcher,
		repo:       repo,
	}
}

// CreateOrder создает заказ
// POST /api/v1/orders/:type
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var request struct {
		OrderNumber string            `json:"order_number" binding:"required"`
		Status      string            `json:"status"`
		Items       models.OrderItems `json:"items" binding:"required"`
		Notes       string            `json:"notes"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверные параметры запроса",
			"details": err.Error(),
		})
		return
	}

	order := &models.Order{
		OrderNumber: request.OrderNumber,
		Status:      request.Status,
		Items:       request.Items,
		Notes:       request.Notes,
	}
	transition, err := oc.dispatcher.CreateOrder(c.Request.Context(), c.Param("type"), order)
	if err != nil {
		respondError(c, "Ошибка создания заказа", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":      order,
		"transition": transition,
	})
}

// GetOrder возвращает заказ
// GET /api/v1/orders/:type/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	t, ok := orders.Lookup(c.Param("type"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Неизвестный тип заказа"})
		return
	}

	order, err := oc.repo.Get(c.Request.Context(), nil, t, c.Param("id"))
	if errors.Is(err, orders.ErrNotFound) {
		respondError(c, "Заказ не найден", &inventory.NotFoundError{Kind: "order", ID: c.Param("id")})
		return
	}
	if err != nil {
		respondError(c, "Ошибка получения заказа", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// UpdateStatus меняет статус заказа со складской операцией
// PATCH /api/v1/orders/:type/:id/status
func (oc *OrderController) UpdateStatus(c *gin.Context) {
	var request struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверные параметры запроса",
			"details": err.Error(),
		})
		return
	}

	result, err := oc.dispatcher.UpdateStatus(c.Request.Context(), c.Param("type"), c.Param("id"), request.Status)
	if err != nil {
		respondError(c, "Ошибка смены статуса", err)
		return
	}
	c.JSON(http.StatusOK, result)
}
