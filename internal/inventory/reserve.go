package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/ledger"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/uow"
)

// ReserveResult - итог резервирования
type ReserveResult struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	Reservations []models.Reservation `json:"reservations"`
}

// Reserve резервирует ингредиенты заказа: по одной строке Reservation на ингредиент.
// Нехватка любого ингредиента проваливает весь вызов; в транзакционном режиме ничего не пишется.
func (e *Engine) Reserve(ctx context.Context, u uow.UnitOfWork, orderID, orderNumber, orderType string, items []models.OrderItem) (result ReserveResult, err error) {
	ctx, span := e.startSpan(ctx, "inventory.Reserve", orderID, orderNumber)
	defer func() { endSpan(span, err) }()

	if err := validateOrderID(orderID); err != nil {
		return ReserveResult{Message: err.Error()}, err
	}

	requirements, skipped, err := e.resolveRequirements(ctx, items)
	if err != nil {
		return ReserveResult{Message: err.Error()}, err
	}

	var reservations []models.Reservation
	err = u.Do(ctx, func(tx *gorm.DB) error {
		reservations = reservations[:0]
		for _, req := range requirements {
			reservation, err := e.reserveOne(ctx, tx, orderID, orderNumber, orderType, req)
			if err != nil {
				return err
			}
			if reservation != nil {
				reservations = append(reservations, *reservation)
			}
		}
		return nil
	})

	if err != nil {
		message := err.Error()
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			message = fmt.Sprintf("Недостаточно остатка: %s", insufficient.Error())
		}
		if !u.Transactional() && len(reservations) > 0 {
			message = fmt.Sprintf("%s (частично зарезервировано ингредиентов: %d)", message, len(reservations))
			e.log.Warn("⚠️ Резерв выполнен частично",
				zap.String("order_id", orderID),
				zap.Int("reserved", len(reservations)),
				zap.Error(err))
			return ReserveResult{Message: message, Reservations: reservations}, err
		}
		e.log.Warn("⚠️ Резерв отклонен", zap.String("order_id", orderID), zap.Error(err))
		return ReserveResult{Message: message}, err
	}

	message := fmt.Sprintf("Зарезервировано ингредиентов: %d", len(reservations))
	if len(skipped) > 0 {
		message = fmt.Sprintf("%s, пропущено позиций без техкарты: %d", message, len(skipped))
	}
	e.log.Info("✅ Ингредиенты зарезервированы",
		zap.String("order_id", orderID),
		zap.String("order_number", orderNumber),
		zap.Int("reservations", len(reservations)))
	return ReserveResult{Success: true, Message: message, Reservations: reservations}, nil
}

func (e *Engine) reserveOne(ctx context.Context, tx *gorm.DB, orderID, orderNumber, orderType string, req requirement) (*models.Reservation, error) {
	item, err := e.loadItem(tx, orderID, req.IngredientID)
	if err != nil || item == nil {
		return nil, err
	}
	warehouse, err := e.warehouseFor(ctx, tx, req.Warehouse, item)
	if err != nil {
		return nil, err
	}

	// Повторный резерв того же заказа не создает вторую строку
	var existing models.Reservation
	err = tx.Where("order_id = ? AND ingredient_id = ? AND status = ?", orderID, item.ID, models.ReservationReserved).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("check existing reservation for %s: %w", item.ID, err)
	}

	balance, err := ledger.LoadBalance(tx, item.ID, warehouse)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		if balance, err = ledger.AdoptLegacyBalance(tx, item, warehouse); err != nil {
			return nil, err
		}
	}
	reserved, err := ledger.ReservedTotal(tx, item.ID, warehouse)
	if err != nil {
		return nil, err
	}
	available := balance.Quantity.Sub(reserved)
	insufficient := &InsufficientStockError{
		ItemID:    item.ID,
		ItemName:  item.Name,
		Warehouse: warehouse,
		Available: available,
		Required:  req.Quantity,
	}
	if available.LessThan(req.Quantity) {
		return nil, insufficient
	}

	// Условное обновление строки Balance закрывает гонку между проверкой и записью:
	// из двух параллельных резервов на одном складе пройдет только тот, что укладывается в остаток.
	qty := req.Quantity.InexactFloat64()
	update := tx.Model(&models.Balance{}).
		Where("id = ? AND quantity - reserved_quantity >= ?", balance.ID, qty).
		Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", qty))
	if update.Error != nil {
		return nil, fmt.Errorf("reserve %s@%s: %w", item.ID, warehouse, update.Error)
	}
	if update.RowsAffected == 0 {
		return nil, insufficient
	}
	if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).
		Update("reserved_stock", gorm.Expr("reserved_stock + ?", qty)).Error; err != nil {
		return nil, fmt.Errorf("update reserved stock mirror for %s: %w", item.ID, err)
	}

	reservation := models.Reservation{
		OrderID:          orderID,
		OrderNumber:      orderNumber,
		OrderType:        orderType,
		IngredientID:     item.ID,
		WarehouseName:    warehouse,
		ReservedQuantity: req.Quantity,
		Status:           models.ReservationReserved,
		ReservedAt:       now(),
	}
	if err := tx.Create(&reservation).Error; err != nil {
		return nil, fmt.Errorf("create reservation for %s: %w", item.ID, err)
	}
	return &reservation, nil
}
