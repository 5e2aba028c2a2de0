package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// Projection - поля зеркала InventoryItem, вычисленные из Balance
type Projection struct {
	CurrentStock decimal.Decimal `json:"current_stock"`
	TotalValue   decimal.Decimal `json:"total_value"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	IsLowStock   bool            `json:"is_low_stock"`
}

// Project вычисляет зеркало из Balance. Без Balance возвращает текущее (legacy) зеркало товара.
func Project(item *models.InventoryItem, balance *models.Balance) Projection {
	if balance == nil {
		return Projection{
			CurrentStock: item.CurrentStock,
			TotalValue:   item.TotalValue,
			UnitPrice:    item.UnitPrice,
			IsLowStock:   item.CurrentStock.LessThanOrEqual(item.MinStock),
		}
	}

	unitPrice := item.UnitPrice
	if avg, ok := balance.AverageCost(); ok {
		unitPrice = avg.Round(4)
	}
	return Projection{
		CurrentStock: balance.Quantity,
		TotalValue:   balance.TotalValue,
		UnitPrice:    unitPrice,
		IsLowStock:   balance.Quantity.LessThanOrEqual(item.MinStock),
	}
}

// RecomputeMirror записывает в InventoryItem ровно Project(item, balance).
// Зеркало никогда не пишется мимо этой функции.
func RecomputeMirror(tx *gorm.DB, item *models.InventoryItem, balance *models.Balance) error {
	p := Project(item, balance)
	if err := tx.Model(&models.InventoryItem{}).Where("id = ?", item.ID).Updates(map[string]interface{}{
		"current_stock": p.CurrentStock,
		"total_value":   p.TotalValue,
		"unit_price":    p.UnitPrice,
		"is_low_stock":  p.IsLowStock,
	}).Error; err != nil {
		return fmt.Errorf("recompute mirror for %s: %w", item.ID, err)
	}

	item.CurrentStock = p.CurrentStock
	item.TotalValue = p.TotalValue
	item.UnitPrice = p.UnitPrice
	item.IsLowStock = p.IsLowStock
	return nil
}
