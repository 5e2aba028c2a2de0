package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kitchenledger/server/internal/catalog"
	"kitchenledger/server/internal/inventory"
	"kitchenledger/server/internal/ledger"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/notify"
	"kitchenledger/server/internal/uow"
)

// StockController управляет API endpoints для остатков и поступлений
type StockController struct {
	db               *gorm.DB
	unit             uow.UnitOfWork
	warehouses       *catalog.Warehouses
	notifier         notify.Notifier
	alerts           inventory.AlertRecomputer
	defaultWarehouse string
}

// NewStockController создает новый контроллер остатков
func NewStockController(db *gorm.DB, unit uow.UnitOfWork, warehouses *catalog.Warehouses, notifier notify.Notifier, alerts inventory.AlertRecomputer, defaultWarehouse string) *StockController {
	return &StockController{
		db:               db,
		unit:             unit,
		warehouses:       warehouses,
		notifier:         notifier,
		alerts:           alerts,
		defaultWarehouse: defaultWarehouse,
	}
}

// fallbackWarehouse - операционный склад по умолчанию для товаров без объявленного склада
func (sc *StockController) fallbackWarehouse(c *gin.Context, tx *gorm.DB) (string, error) {
	return sc.warehouses.Default(c.Request.Context(), tx, sc.defaultWarehouse)
}

// afterReceipt рассылает событие и ставит пересчет алерта после коммита
func (sc *StockController) afterReceipt(c *gin.Context, event notify.StockEvent) {
	if sc.notifier != nil {
		sc.notifier.Notify(c.Request.Context(), event)
	}
	if sc.alerts != nil {
		sc.alerts.Trigger(event.ItemID, event.WarehouseName)
	}
}

// GetStock возвращает баланс, резерв, доступный остаток и FIFO слои товара
// GET /api/v1/inventory/stock/:itemId?warehouse=main
func (sc *StockController) GetStock(c *gin.Context) {
	db := sc.db.WithContext(c.Request.Context())

	item, err := ledger.LoadItem(db, c.Param("itemId"))
	if errors.Is(err, ledger.ErrItemNotFound) {
		respondError(c, "Товар не найден", &inventory.NotFoundError{Kind: "inventory item", ID: c.Param("itemId")})
		return
	}
	if err != nil {
		respondError(c, "Ошибка получения остатков", err)
		return
	}

	warehouse := c.Query("warehouse")
	if warehouse == "" {
		warehouse = item.WarehouseName
	}
	if warehouse == "" {
		if warehouse, err = sc.fallbackWarehouse(c, db); err != nil {
			respondError(c, "Ошибка получения остатков", err)
			return
		}
	}

	onHand, balance, err := ledger.OnHand(db, item, warehouse)
	if err != nil {
		respondError(c, "Ошибка получения остатков", err)
		return
	}
	reserved, err := ledger.ReservedTotal(db, item.ID, warehouse)
	if err != nil {
		respondError(c, "Ошибка получения резервов", err)
		return
	}
	layers, err := ledger.LoadLayers(db, item.ID, warehouse)
	if err != nil {
		respondError(c, "Ошибка получения FIFO слоев", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item_id":   item.ID,
		"name":      item.Name,
		"unit":      item.Unit,
		"warehouse": warehouse,
		"on_hand":   onHand,
		"reserved":  reserved,
		"available": onHand.Sub(reserved),
		"mirror":    ledger.Project(item, balance),
		"layers":    layers,
	})
}

// CreateReceipt оприходует партию товара
// POST /api/v1/inventory/receipts
func (sc *StockController) CreateReceipt(c *gin.Context) {
	var request struct {
		ItemID         string          `json:"item_id" binding:"required"`
		Warehouse      string          `json:"warehouse"`
		Quantity       decimal.Decimal `json:"quantity"`
		UnitPrice      decimal.Decimal `json:"unit_price"`
		DocumentNumber string          `json:"document_number"`
		PerformedBy    string          `json:"performed_by"`
		Notes          string          `json:"notes"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Неверные параметры запроса",
			"details": err.Error(),
		})
		return
	}
	if !request.Quantity.IsPositive() || request.UnitPrice.IsNegative() {
		respondError(c, "Неверные параметры запроса", &inventory.ValidationError{Field: "quantity", Message: "quantity must be positive and unit_price not negative"})
		return
	}

	receipt := ledger.Receipt{
		ItemID:         request.ItemID,
		Warehouse:      request.Warehouse,
		Quantity:       request.Quantity,
		UnitPrice:      request.UnitPrice,
		DocumentNumber: request.DocumentNumber,
		PerformedBy:    request.PerformedBy,
		Notes:          request.Notes,
		ReceivedAt:     time.Now().UTC(),
	}

	var movementID, warehouse string
	err := sc.unit.Do(c.Request.Context(), func(tx *gorm.DB) error {
		fallback, err := sc.fallbackWarehouse(c, tx)
		if err != nil {
			return err
		}
		receipt.FallbackWarehouse = fallback
		movement, err := ledger.Receive(tx, receipt)
		if err != nil {
			return err
		}
		movementID, warehouse = movement.ID, movement.WarehouseName
		return nil
	})
	if errors.Is(err, ledger.ErrItemNotFound) {
		respondError(c, "Товар не найден", &inventory.NotFoundError{Kind: "inventory item", ID: request.ItemID})
		return
	}
	if err != nil {
		respondError(c, "Ошибка оприходования", err)
		return
	}

	sc.afterReceipt(c, notify.StockEvent{
		ItemID:        request.ItemID,
		WarehouseName: warehouse,
		QuantityDelta: request.Quantity,
		MovementType:  models.MovementReceipt,
		OrderNumber:   request.DocumentNumber,
		OccurredAt:    time.Now().UTC(),
	})

	c.JSON(http.StatusCreated, gin.H{
		"movement_id": movementID,
		"warehouse":   warehouse,
	})
}

// ImportReceipts оприходует накладную из XLSX файла (поле формы "file")
// POST /api/v1/inventory/receipts/import
func (sc *StockController) ImportReceipts(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Файл не передан",
			"details": err.Error(),
		})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, "Ошибка чтения файла", err)
		return
	}
	defer file.Close()

	// Transactional может повторить транзакцию, поэтому файл читается один раз
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, "Ошибка чтения файла", err)
		return
	}

	performedBy := c.DefaultPostForm("performed_by", "import")
	var movements []models.Movement
	err = sc.unit.Do(c.Request.Context(), func(tx *gorm.DB) error {
		fallback, err := sc.fallbackWarehouse(c, tx)
		if err != nil {
			return err
		}
		movements, err = ledger.ImportReceiptsXLSX(tx, bytes.NewReader(data), fallback, performedBy)
		return err
	})
	if errors.Is(err, ledger.ErrMalformedReceipts) {
		respondError(c, "Ошибка разбора накладной", &inventory.ValidationError{Field: "file", Message: err.Error()})
		return
	}
	if errors.Is(err, ledger.ErrItemNotFound) {
		respondError(c, "Товар из накладной не найден", &inventory.NotFoundError{Kind: "inventory item", ID: err.Error()})
		return
	}
	if err != nil {
		respondError(c, "Ошибка импорта накладной", err)
		return
	}

	for _, movement := range movements {
		sc.afterReceipt(c, notify.StockEvent{
			ItemID:        movement.ItemID,
			WarehouseName: movement.WarehouseName,
			QuantityDelta: movement.Quantity,
			MovementType:  models.MovementReceipt,
			OrderNumber:   movement.DocumentNumber,
			OccurredAt:    time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"imported": len(movements),
	})
}
