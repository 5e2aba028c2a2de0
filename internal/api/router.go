package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Controllers - все контроллеры HTTP API
type Controllers struct {
	Orders  *OrderController
	Stock   *StockController
	StockWS *StockWSController
}

// SetupRouter регистрирует маршруты HTTP API
func SetupRouter(router *gin.Engine, ctrl Controllers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		ordersGroup := v1.Group("/orders")
		ordersGroup.POST("/:type", ctrl.Orders.CreateOrder)
		ordersGroup.GET("/:type/:id", ctrl.Orders.GetOrder)
		ordersGroup.PATCH("/:type/:id/status", ctrl.Orders.UpdateStatus)

		inventory := v1.Group("/inventory")
		inventory.GET("/stock/:itemId", ctrl.Stock.GetStock)
		inventory.POST("/receipts", ctrl.Stock.CreateReceipt)
		inventory.POST("/receipts/import", ctrl.Stock.ImportReceipts)
	}

	if ctrl.StockWS != nil {
		router.GET("/ws/stock", ctrl.StockWS.ServeWS)
	}
}
