// Package ledger - авторитетный учет остатков: Balance, FIFO слои, журнал движений и зеркало InventoryItem.
package ledger

import (
	"github.com/shopspring/decimal"

	"kitchenledger/server/internal/models"
)

// Draw - сколько списано из одного FIFO слоя
type Draw struct {
	LayerID   string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	Remaining decimal.Decimal // Остаток слоя после списания
}

// Plan - результат FIFO расчета себестоимости
type Plan struct {
	Quantity  decimal.Decimal
	Draws     []Draw
	TotalCost decimal.Decimal
	Shortfall decimal.Decimal // Количество, не покрытое слоями (оценено по fallbackPrice)
}

// UnitCost возвращает среднюю цену списания (totalCost/quantity)
func (p Plan) UnitCost() decimal.Decimal {
	if p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Quantity)
}

// PlanFIFO рассчитывает списание qty из слоев от старого к новому.
// layers должны быть отсортированы по received_at. Слои не изменяются.
func PlanFIFO(layers []models.FIFOLayer, qty decimal.Decimal, fallbackPrice decimal.Decimal) Plan {
	plan := Plan{Quantity: qty, TotalCost: decimal.Zero, Shortfall: decimal.Zero}
	needed := qty

	for _, layer := range layers {
		if !needed.IsPositive() {
			break
		}
		if !layer.RemainingQuantity.IsPositive() {
			continue
		}

		take := decimal.Min(layer.RemainingQuantity, needed)
		plan.Draws = append(plan.Draws, Draw{
			LayerID:   layer.ID,
			Quantity:  take,
			UnitPrice: layer.UnitPrice,
			Remaining: layer.RemainingQuantity.Sub(take),
		})
		plan.TotalCost = plan.TotalCost.Add(take.Mul(layer.UnitPrice))
		needed = needed.Sub(take)
	}

	if needed.IsPositive() {
		plan.Shortfall = needed
		plan.TotalCost = plan.TotalCost.Add(needed.Mul(fallbackPrice))
	}
	return plan
}

// FallbackPrice - цена для недостачи: средневзвешенная по Balance, иначе цена из InventoryItem
func FallbackPrice(balance *models.Balance, item *models.InventoryItem) decimal.Decimal {
	if avg, ok := balance.AverageCost(); ok {
		return avg
	}
	if item != nil {
		return item.UnitPrice
	}
	return decimal.Zero
}
