package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RecipeLine - строка техкарты: сколько ингредиента уходит на одну порцию
type RecipeLine struct {
	IngredientID  string          `json:"ingredient_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit,omitempty"`
	WarehouseName string          `json:"warehouse_name,omitempty"` // Пусто = склад по умолчанию
}

// RecipeLines - техкарта, хранится в JSONB
type RecipeLines []RecipeLine

// Value сериализует техкарту для БД
func (r RecipeLines) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan читает техкарту из БД
func (r *RecipeLines) Scan(value interface{}) error {
	return scanJSON(value, r)
}

// OrderItem - позиция заказа. Recipe - снимок техкарты на момент заказа (может отсутствовать).
type OrderItem struct {
	MenuItemID string          `json:"menu_item_id"`
	Name       string          `json:"name,omitempty"`
	Quantity   int             `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Recipe     RecipeLines     `json:"recipe,omitempty"`
}

// OrderItems - позиции заказа, хранятся в JSONB
type OrderItems []OrderItem

// Value сериализует позиции для БД
func (o OrderItems) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan читает позиции из БД
func (o *OrderItems) Scan(value interface{}) error {
	return scanJSON(value, o)
}

func scanJSON(value interface{}, dest interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

// Order - общая форма заказа для всех каналов (зал, самовывоз, доставка, стол, быстрая продажа).
// Имя таблицы задается типом заказа, поэтому TableName не объявлен.
type Order struct {
	ID          string          `json:"id" gorm:"type:uuid;primaryKey"`
	OrderNumber string          `json:"order_number" gorm:"type:varchar(50);index"`
	Status      string          `json:"status" gorm:"type:varchar(30);not null;index"`
	Items       OrderItems      `json:"items" gorm:"type:jsonb"`
	TotalAmount decimal.Decimal `json:"total_amount" gorm:"type:decimal(18,2);not null"`
	Notes       string          `json:"notes,omitempty" gorm:"type:text"`
	CommittedAt *time.Time      `json:"committed_at,omitempty"`
	FulfilledAt *time.Time      `json:"fulfilled_at,omitempty"`
	CancelledAt *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate генерирует UUID
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}

// CalculateTotal пересчитывает сумму заказа по позициям
func (o *Order) CalculateTotal() {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	o.TotalAmount = total
}
