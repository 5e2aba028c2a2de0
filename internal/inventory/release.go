package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/uow"
)

// ReleaseResult - итог снятия резерва
type ReleaseResult struct {
	Success  bool                 `json:"success"`
	Message  string               `json:"message"`
	Released []models.Reservation `json:"released"`
}

// Release снимает активные резервы заказа. Balance и FIFO слои не меняются;
// уже списанное не возвращается.
func (e *Engine) Release(ctx context.Context, u uow.UnitOfWork, orderID, orderNumber string) (result ReleaseResult, err error) {
	ctx, span := e.startSpan(ctx, "inventory.Release", orderID, orderNumber)
	defer func() { endSpan(span, err) }()

	if err := validateOrderID(orderID); err != nil {
		return ReleaseResult{Message: err.Error()}, err
	}

	var released []models.Reservation
	err = u.Do(ctx, func(tx *gorm.DB) error {
		released = released[:0]

		var reservations []models.Reservation
		if err := tx.Where("order_id = ? AND status = ?", orderID, models.ReservationReserved).
			Find(&reservations).Error; err != nil {
			return fmt.Errorf("load reservations for %s: %w", orderID, err)
		}

		for _, r := range reservations {
			releasedAt := now()
			update := tx.Model(&models.Reservation{}).
				Where("id = ? AND status = ?", r.ID, models.ReservationReserved).
				Updates(map[string]interface{}{
					"status":      models.ReservationReleased,
					"released_at": releasedAt,
				})
			if update.Error != nil {
				return fmt.Errorf("release reservation %s: %w", r.ID, update.Error)
			}
			// Параллельно уже списан или снят
			if update.RowsAffected == 0 {
				continue
			}
			if err := adjustReserved(tx, r.IngredientID, r.WarehouseName, r.ReservedQuantity.Neg()); err != nil {
				return err
			}

			r.Status = models.ReservationReleased
			r.ReleasedAt = &releasedAt
			released = append(released, r)
		}
		return nil
	})

	if err != nil {
		e.log.Warn("⚠️ Ошибка снятия резерва", zap.String("order_id", orderID), zap.Error(err))
		if !u.Transactional() && len(released) > 0 {
			return ReleaseResult{
				Message:  fmt.Sprintf("%s (частично снято резервов: %d)", err.Error(), len(released)),
				Released: released,
			}, err
		}
		return ReleaseResult{Message: err.Error()}, err
	}

	if len(released) == 0 {
		return ReleaseResult{Success: true, Message: "Активных резервов нет"}, nil
	}
	e.log.Info("↩️ Резерв снят",
		zap.String("order_id", orderID),
		zap.String("order_number", orderNumber),
		zap.Int("released", len(released)))
	return ReleaseResult{
		Success:  true,
		Message:  fmt.Sprintf("Снято резервов: %d", len(released)),
		Released: released,
	}, nil
}
