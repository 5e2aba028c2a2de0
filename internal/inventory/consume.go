package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/ledger"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/notify"
	"kitchenledger/server/internal/orders"
	"kitchenledger/server/internal/uow"
)

// ConsumedLine - списание одного ингредиента
type ConsumedLine struct {
	IngredientID  string          `json:"ingredient_id"`
	WarehouseName string          `json:"warehouse_name"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	MovementID    string          `json:"movement_id"`
	ReservationID string          `json:"reservation_id,omitempty"`
}

// ConsumeResult - итог списания
type ConsumeResult struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Consumed []ConsumedLine `json:"consumed"`
}

// Consume списывает ингредиенты заказа по FIFO. Есть резервы - списываются они,
// нет - списание идет напрямую по техкарте заказа за вычетом уже проведенных по заказу продаж.
func (e *Engine) Consume(ctx context.Context, u uow.UnitOfWork, orderID, orderNumber string) (result ConsumeResult, err error) {
	ctx, span := e.startSpan(ctx, "inventory.Consume", orderID, orderNumber)
	defer func() { endSpan(span, err) }()

	if err := validateOrderID(orderID); err != nil {
		return ConsumeResult{Message: err.Error()}, err
	}

	var (
		consumed        []ConsumedLine
		events          []notify.StockEvent
		alreadyConsumed bool
		direct          bool
	)
	err = u.Do(ctx, func(tx *gorm.DB) error {
		consumed, events, alreadyConsumed, direct = consumed[:0], events[:0], false, false

		var reservations []models.Reservation
		if err := tx.Where("order_id = ? AND status = ?", orderID, models.ReservationReserved).
			Order("created_at ASC").Find(&reservations).Error; err != nil {
			return fmt.Errorf("load reservations for %s: %w", orderID, err)
		}

		if len(reservations) > 0 {
			for i := range reservations {
				r := &reservations[i]
				req := requirement{IngredientID: r.IngredientID, Warehouse: r.WarehouseName, Quantity: r.ReservedQuantity}
				line, event, err := e.consumeOne(ctx, tx, orderID, orderNumber, req, r)
				if err != nil {
					return err
				}
				if line != nil {
					consumed = append(consumed, *line)
					events = append(events, *event)
				}
			}
			return nil
		}

		direct = true
		moved, err := consumedByOrder(tx, orderID)
		if err != nil {
			return err
		}

		order, _, err := e.orders.Find(ctx, tx, orderID)
		if errors.Is(err, orders.ErrNotFound) {
			// Заказ списан по резервам, а сама строка заказа уже недоступна
			if len(moved) > 0 {
				alreadyConsumed = true
				return nil
			}
			return &NotFoundError{Kind: "order", ID: orderID}
		}
		if err != nil {
			return err
		}
		if orderNumber == "" {
			orderNumber = order.OrderNumber
		}

		requirements, _, err := e.resolveRequirements(ctx, order.Items)
		if err != nil {
			return err
		}
		pending := 0
		for _, req := range requirements {
			// Списываем только остаток: после частичного best-effort списания повтор доводит заказ до конца
			remaining := req.Quantity.Sub(moved[req.IngredientID])
			if !remaining.IsPositive() {
				continue
			}
			pending++
			req.Quantity = remaining

			line, event, err := e.consumeOne(ctx, tx, orderID, orderNumber, req, nil)
			if err != nil {
				return err
			}
			if line != nil {
				consumed = append(consumed, *line)
				events = append(events, *event)
			}
		}
		alreadyConsumed = pending == 0 && len(moved) > 0
		return nil
	})

	if err == nil || !u.Transactional() {
		e.publish(u, events)
	}

	if err != nil {
		message := err.Error()
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			message = fmt.Sprintf("Недостаточно остатка: %s", insufficient.Error())
		}
		if !u.Transactional() && len(consumed) > 0 {
			message = fmt.Sprintf("%s (частично списано ингредиентов: %d)", message, len(consumed))
			e.log.Warn("⚠️ Списание выполнено частично",
				zap.String("order_id", orderID),
				zap.Int("consumed", len(consumed)),
				zap.Error(err))
			return ConsumeResult{Message: message, Consumed: consumed}, err
		}
		e.log.Warn("⚠️ Списание отклонено", zap.String("order_id", orderID), zap.Error(err))
		return ConsumeResult{Message: message}, err
	}

	if alreadyConsumed {
		e.log.Info("ℹ️ Заказ уже списан, повтор пропущен", zap.String("order_id", orderID))
		return ConsumeResult{Success: true, Message: "Заказ уже списан"}, nil
	}

	mode := "по резерву"
	if direct {
		mode = "напрямую по техкарте"
	}
	e.log.Info("✅ Ингредиенты списаны",
		zap.String("order_id", orderID),
		zap.String("order_number", orderNumber),
		zap.String("mode", mode),
		zap.Int("lines", len(consumed)))
	return ConsumeResult{
		Success:  true,
		Message:  fmt.Sprintf("Списано ингредиентов: %d (%s)", len(consumed), mode),
		Consumed: consumed,
	}, nil
}

// consumeOne списывает один ингредиент; reservation != nil - списание по резерву
func (e *Engine) consumeOne(ctx context.Context, tx *gorm.DB, orderID, orderNumber string, req requirement, reservation *models.Reservation) (*ConsumedLine, *notify.StockEvent, error) {
	item, err := e.loadItem(tx, orderID, req.IngredientID)
	if err != nil || item == nil {
		return nil, nil, err
	}
	warehouse, err := e.warehouseFor(ctx, tx, req.Warehouse, item)
	if err != nil {
		return nil, nil, err
	}

	balance, err := ledger.LoadBalance(tx, item.ID, warehouse)
	if err != nil {
		return nil, nil, err
	}
	if balance == nil {
		if balance, err = ledger.AdoptLegacyBalance(tx, item, warehouse); err != nil {
			return nil, nil, err
		}
	}

	settings, err := e.warehouses.Lookup(ctx, tx, warehouse)
	if err != nil {
		return nil, nil, err
	}
	if !settings.AllowNegativeStock && balance.Quantity.Sub(req.Quantity).IsNegative() {
		return nil, nil, &InsufficientStockError{
			ItemID:    item.ID,
			ItemName:  item.Name,
			Warehouse: warehouse,
			Available: balance.Quantity,
			Required:  req.Quantity,
		}
	}

	layers, err := ledger.LoadLayers(tx, item.ID, warehouse)
	if err != nil {
		return nil, nil, err
	}
	plan := ledger.PlanFIFO(layers, req.Quantity, ledger.FallbackPrice(balance, item))

	movement, err := ledger.ApplyDepletion(tx, ledger.Depletion{
		Item:           item,
		Warehouse:      warehouse,
		Balance:        balance,
		Plan:           plan,
		MovementType:   models.MovementSale,
		DocumentNumber: orderNumber,
		ReferenceID:    orderID,
		PerformedBy:    "system",
		Notes:          "Автоматическое списание при выдаче заказа",
	})
	if err != nil {
		return nil, nil, err
	}

	line := &ConsumedLine{
		IngredientID:  item.ID,
		WarehouseName: warehouse,
		Quantity:      req.Quantity,
		UnitCost:      movement.UnitPrice,
		TotalCost:     plan.TotalCost,
		MovementID:    movement.ID,
	}

	if reservation != nil {
		settled := tx.Model(&models.Reservation{}).
			Where("id = ? AND status = ?", reservation.ID, models.ReservationReserved).
			Updates(map[string]interface{}{
				"status":      models.ReservationConsumed,
				"consumed_at": now(),
			})
		if settled.Error != nil {
			return nil, nil, fmt.Errorf("mark reservation %s consumed: %w", reservation.ID, settled.Error)
		}
		if settled.RowsAffected != 1 {
			return nil, nil, fmt.Errorf("reservation %s already settled", reservation.ID)
		}
		if err := adjustReserved(tx, item.ID, reservation.WarehouseName, reservation.ReservedQuantity.Neg()); err != nil {
			return nil, nil, err
		}
		line.ReservationID = reservation.ID
	}

	if plan.Shortfall.IsPositive() {
		e.log.Warn("⚠️ Списание сверх FIFO слоев, недостача оценена по средней цене",
			zap.String("order_id", orderID),
			zap.String("ingredient_id", item.ID),
			zap.String("shortfall", plan.Shortfall.String()))
	}

	event := &notify.StockEvent{
		ItemID:        item.ID,
		WarehouseName: warehouse,
		QuantityDelta: req.Quantity.Neg(),
		MovementType:  models.MovementSale,
		OrderNumber:   orderNumber,
		OccurredAt:    now(),
	}
	return line, event, nil
}

// consumedByOrder - уже списанное по заказу количество по каждому ингредиенту
func consumedByOrder(tx *gorm.DB, orderID string) (map[string]decimal.Decimal, error) {
	var movements []models.Movement
	if err := tx.Where("reference_id = ? AND movement_type = ?", orderID, models.MovementSale).
		Find(&movements).Error; err != nil {
		return nil, fmt.Errorf("load previous sales for %s: %w", orderID, err)
	}
	moved := make(map[string]decimal.Decimal, len(movements))
	for _, m := range movements {
		moved[m.ItemID] = moved[m.ItemID].Add(m.Quantity.Abs())
	}
	return moved, nil
}
