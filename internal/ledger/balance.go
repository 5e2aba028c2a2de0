package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// LoadBalance читает Balance для товара и склада. Возвращает nil, nil если строки нет.
func LoadBalance(tx *gorm.DB, itemID, warehouse string) (*models.Balance, error) {
	var balance models.Balance
	err := tx.Where("item_id = ? AND warehouse_name = ?", itemID, warehouse).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load balance %s@%s: %w", itemID, warehouse, err)
	}
	return &balance, nil
}

// LoadLayers возвращает непустые FIFO слои от старого к новому
func LoadLayers(tx *gorm.DB, itemID, warehouse string) ([]models.FIFOLayer, error) {
	var layers []models.FIFOLayer
	if err := tx.Where("item_id = ? AND warehouse_name = ?", itemID, warehouse).
		Order("received_at ASC").Order("created_at ASC").
		Find(&layers).Error; err != nil {
		return nil, fmt.Errorf("load fifo layers %s@%s: %w", itemID, warehouse, err)
	}

	result := layers[:0]
	for _, layer := range layers {
		if layer.RemainingQuantity.IsPositive() {
			result = append(result, layer)
		}
	}
	return result, nil
}

// AdoptLegacyBalance создает Balance и один FIFO слой из зеркала товара
// (currentStock по unitPrice), если у товара еще не было строки баланса.
// Зеркало общее для товара, поэтому остальные склады начинают с нуля.
func AdoptLegacyBalance(tx *gorm.DB, item *models.InventoryItem, warehouse string) (*models.Balance, error) {
	var existing int64
	if err := tx.Model(&models.Balance{}).Where("item_id = ?", item.ID).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("count balances for %s: %w", item.ID, err)
	}
	opening := item.CurrentStock
	if existing > 0 {
		opening = decimal.Zero
	}

	balance := models.Balance{
		ItemID:        item.ID,
		WarehouseName: warehouse,
		Quantity:      opening,
		TotalValue:    opening.Mul(item.UnitPrice),
	}
	if err := tx.Create(&balance).Error; err != nil {
		return nil, fmt.Errorf("adopt legacy balance for %s: %w", item.ID, err)
	}

	if opening.IsPositive() {
		layer := models.FIFOLayer{
			ItemID:            item.ID,
			WarehouseName:     warehouse,
			UnitPrice:         item.UnitPrice,
			OriginalQuantity:  opening,
			RemainingQuantity: opening,
			DocumentNumber:    "legacy-opening",
			ReceivedAt:        item.CreatedAt.UTC(),
		}
		if layer.ReceivedAt.IsZero() {
			layer.ReceivedAt = time.Now().UTC()
		}
		if err := tx.Create(&layer).Error; err != nil {
			return nil, fmt.Errorf("adopt legacy fifo layer for %s: %w", item.ID, err)
		}
	}
	return &balance, nil
}

// ReservedTotal - сумма активных резервов товара на складе
func ReservedTotal(tx *gorm.DB, itemID, warehouse string) (decimal.Decimal, error) {
	var reservations []models.Reservation
	if err := tx.Where("ingredient_id = ? AND warehouse_name = ? AND status = ?",
		itemID, warehouse, models.ReservationReserved).
		Find(&reservations).Error; err != nil {
		return decimal.Zero, fmt.Errorf("load reservations %s@%s: %w", itemID, warehouse, err)
	}

	total := decimal.Zero
	for _, r := range reservations {
		total = total.Add(r.ReservedQuantity)
	}
	return total, nil
}

// OnHand - физический остаток: Balance, а при его отсутствии зеркало currentStock
func OnHand(tx *gorm.DB, item *models.InventoryItem, warehouse string) (decimal.Decimal, *models.Balance, error) {
	balance, err := LoadBalance(tx, item.ID, warehouse)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if balance == nil {
		return item.CurrentStock, nil, nil
	}
	return balance.Quantity, balance, nil
}

// Available = остаток - активные резервы
func Available(tx *gorm.DB, item *models.InventoryItem, warehouse string) (decimal.Decimal, error) {
	onHand, _, err := OnHand(tx, item, warehouse)
	if err != nil {
		return decimal.Zero, err
	}
	reserved, err := ReservedTotal(tx, item.ID, warehouse)
	if err != nil {
		return decimal.Zero, err
	}
	return onHand.Sub(reserved), nil
}
