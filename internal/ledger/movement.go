package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// ErrItemNotFound - товара нет в inventory_items
var ErrItemNotFound = errors.New("inventory item not found")

// LoadItem читает InventoryItem по id
func LoadItem(tx *gorm.DB, itemID string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := tx.Where("id = ?", itemID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("load inventory item %s: %w", itemID, err)
	}
	return &item, nil
}

// Depletion - списание по рассчитанному FIFO плану
type Depletion struct {
	Item           *models.InventoryItem
	Warehouse      string
	Balance        *models.Balance
	Plan           Plan
	MovementType   string
	DocumentNumber string
	ReferenceID    string
	PerformedBy    string
	Notes          string
}

// ApplyDepletion пишет движение, обновляет Balance, FIFO слои и зеркало товара.
// Вызывается внутри одной единицы работы.
func ApplyDepletion(tx *gorm.DB, d Depletion) (*models.Movement, error) {
	if d.Balance == nil {
		return nil, fmt.Errorf("apply depletion for %s: balance is required", d.Item.ID)
	}
	movementType := d.MovementType
	if movementType == "" {
		movementType = models.MovementSale
	}

	movement := models.Movement{
		ItemID:         d.Item.ID,
		WarehouseName:  d.Warehouse,
		Quantity:       d.Plan.Quantity.Neg(),
		UnitPrice:      d.Plan.UnitCost().Round(4),
		TotalValue:     d.Plan.TotalCost.Neg().Round(4),
		MovementType:   movementType,
		DocumentNumber: d.DocumentNumber,
		ReferenceID:    d.ReferenceID,
		PerformedBy:    d.PerformedBy,
		Notes:          d.Notes,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, fmt.Errorf("create movement for %s: %w", d.Item.ID, err)
	}

	newQty := d.Balance.Quantity.Sub(d.Plan.Quantity)
	newValue := d.Balance.TotalValue.Sub(d.Plan.TotalCost)
	if newQty.IsZero() {
		newValue = decimal.Zero
	}
	if err := updateBalance(tx, d.Balance, newQty, newValue); err != nil {
		return nil, err
	}

	for _, draw := range d.Plan.Draws {
		if err := tx.Model(&models.FIFOLayer{}).Where("id = ?", draw.LayerID).
			Update("remaining_quantity", draw.Remaining).Error; err != nil {
			return nil, fmt.Errorf("update fifo layer %s: %w", draw.LayerID, err)
		}
	}

	if err := RecomputeMirror(tx, d.Item, d.Balance); err != nil {
		return nil, err
	}
	return &movement, nil
}

// Receipt - поступление товара на склад
type Receipt struct {
	ItemID    string
	Warehouse string // Пусто = объявленный склад товара
	// Склад, если не указан ни в поступлении, ни у товара
	FallbackWarehouse string
	Quantity          decimal.Decimal
	UnitPrice         decimal.Decimal
	DocumentNumber    string
	PerformedBy       string
	Notes             string
	ReceivedAt        time.Time
}

// Receive оприходует партию: новый FIFO слой, Balance += qty/value, движение receipt, зеркало.
func Receive(tx *gorm.DB, r Receipt) (*models.Movement, error) {
	if !r.Quantity.IsPositive() {
		return nil, fmt.Errorf("receipt quantity must be positive, got %s", r.Quantity.String())
	}
	if r.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("receipt unit price must not be negative, got %s", r.UnitPrice.String())
	}

	item, err := LoadItem(tx, r.ItemID)
	if err != nil {
		return nil, err
	}
	warehouse := r.Warehouse
	if warehouse == "" {
		warehouse = item.WarehouseName
	}
	if warehouse == "" {
		warehouse = r.FallbackWarehouse
	}
	if warehouse == "" {
		return nil, fmt.Errorf("receipt for %s: warehouse is required", item.ID)
	}

	balance, err := LoadBalance(tx, item.ID, warehouse)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		if balance, err = AdoptLegacyBalance(tx, item, warehouse); err != nil {
			return nil, err
		}
	}

	receivedAt := r.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	value := r.Quantity.Mul(r.UnitPrice)

	// Отрицательный остаток сначала гасится поступлением, в слой попадает только излишек:
	// при минусе все слои уже на нуле, и Σ слоев остается равной Balance.
	remaining := r.Quantity
	if balance.Quantity.IsNegative() {
		remaining = decimal.Max(decimal.Zero, r.Quantity.Add(balance.Quantity))
	}

	layer := models.FIFOLayer{
		ItemID:            item.ID,
		WarehouseName:     warehouse,
		UnitPrice:         r.UnitPrice,
		OriginalQuantity:  r.Quantity,
		RemainingQuantity: remaining,
		DocumentNumber:    r.DocumentNumber,
		ReceivedAt:        receivedAt.UTC(),
	}
	if err := tx.Create(&layer).Error; err != nil {
		return nil, fmt.Errorf("create fifo layer for %s: %w", item.ID, err)
	}

	if err := updateBalance(tx, balance, balance.Quantity.Add(r.Quantity), balance.TotalValue.Add(value)); err != nil {
		return nil, err
	}

	movement := models.Movement{
		ItemID:         item.ID,
		WarehouseName:  warehouse,
		Quantity:       r.Quantity,
		UnitPrice:      r.UnitPrice,
		TotalValue:     value,
		MovementType:   models.MovementReceipt,
		DocumentNumber: r.DocumentNumber,
		ReferenceID:    r.DocumentNumber,
		PerformedBy:    r.PerformedBy,
		Notes:          r.Notes,
	}
	if err := tx.Create(&movement).Error; err != nil {
		return nil, fmt.Errorf("create receipt movement for %s: %w", item.ID, err)
	}

	if err := RecomputeMirror(tx, item, balance); err != nil {
		return nil, err
	}
	return &movement, nil
}

func updateBalance(tx *gorm.DB, balance *models.Balance, quantity, value decimal.Decimal) error {
	if err := tx.Model(&models.Balance{}).Where("id = ?", balance.ID).Updates(map[string]interface{}{
		"quantity":    quantity,
		"total_value": value,
		"updated_at":  time.Now().UTC(),
	}).Error; err != nil {
		return fmt.Errorf("update balance %s@%s: %w", balance.ItemID, balance.WarehouseName, err)
	}
	balance.Quantity = quantity
	balance.TotalValue = value
	return nil
}
