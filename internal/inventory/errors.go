package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError - некорректный вход (пустой id заказа, неизвестный статус, нулевое количество)
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InsufficientStockError - доступного остатка не хватает
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	Warehouse string
	Available decimal.Decimal
	Required  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = e.ItemID
	}
	return fmt.Sprintf("insufficient stock for %s at %s: available %s, required %s",
		name, e.Warehouse, e.Available.StringFixed(4), e.Required.StringFixed(4))
}

// NotFoundError - не найден заказ, товар или позиция меню
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
