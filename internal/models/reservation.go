package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Статусы резерва
const (
	ReservationReserved = "reserved"
	ReservationConsumed = "consumed"
	ReservationReleased = "released"
)

// Reservation - мягкий резерв ингредиента под заказ.
// Статус меняется ровно один раз: reserved -> consumed или reserved -> released.
type Reservation struct {
	ID               string          `json:"id" gorm:"type:uuid;primaryKey"`
	OrderID          string          `json:"order_id" gorm:"type:uuid;not null;index:idx_reservation_order_status"`
	OrderNumber      string          `json:"order_number" gorm:"type:varchar(50)"`
	OrderType        string          `json:"order_type" gorm:"type:varchar(20);not null"`
	IngredientID     string          `json:"ingredient_id" gorm:"type:uuid;not null;index:idx_reservation_item_status"`
	WarehouseName    string          `json:"warehouse_name" gorm:"type:varchar(100);not null"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity" gorm:"type:decimal(18,4);not null"`
	Status           string          `json:"status" gorm:"type:varchar(20);not null;index:idx_reservation_order_status;index:idx_reservation_item_status"`
	ReservedAt       time.Time       `json:"reserved_at" gorm:"not null"`
	ConsumedAt       *time.Time      `json:"consumed_at,omitempty"`
	ReleasedAt       *time.Time      `json:"released_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Reservation) TableName() string {
	return "inventory_reservations"
}

// BeforeCreate генерирует UUID
func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = ReservationReserved
	}
	if r.ReservedAt.IsZero() {
		r.ReservedAt = time.Now().UTC()
	}
	return nil
}
