package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Типы движений остатков
const (
	MovementReceipt    = "receipt"
	MovementSale       = "sale"
	MovementAdjustment = "adjustment"
)

// InventoryItem - ингредиент (сырье) на складе.
// Поля CurrentStock/TotalValue/UnitPrice/IsLowStock - зеркало Balance, источником истины не являются.
type InventoryItem struct {
	ID            string          `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string          `json:"name" gorm:"type:varchar(255);not null"`
	Unit          string          `json:"unit" gorm:"type:varchar(20);not null"`
	WarehouseName string          `json:"warehouse_name" gorm:"type:varchar(100)"` // Пусто = операционный склад по умолчанию
	CurrentStock  decimal.Decimal `json:"current_stock" gorm:"type:decimal(18,4);not null"`
	TotalValue    decimal.Decimal `json:"total_value" gorm:"type:decimal(18,4);not null"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,4);not null"`
	ReservedStock decimal.Decimal `json:"reserved_stock" gorm:"type:decimal(18,4);not null"`
	MinStock      decimal.Decimal `json:"min_stock" gorm:"type:decimal(18,4);not null"`
	IsLowStock    bool            `json:"is_low_stock" gorm:"default:false;index"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// BeforeCreate генерирует UUID
func (i *InventoryItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}

// Balance - авторитетный остаток товара на складе
type Balance struct {
	ID               string          `json:"id" gorm:"type:uuid;primaryKey"`
	ItemID           string          `json:"item_id" gorm:"type:uuid;not null;uniqueIndex:idx_balance_item_wh"`
	WarehouseName    string          `json:"warehouse_name" gorm:"type:varchar(100);not null;uniqueIndex:idx_balance_item_wh"`
	Quantity         decimal.Decimal `json:"quantity" gorm:"type:decimal(18,4);not null"`
	TotalValue       decimal.Decimal `json:"total_value" gorm:"type:decimal(18,4);not null"`
	ReservedQuantity decimal.Decimal `json:"reserved_quantity" gorm:"type:decimal(18,4);not null;default:0"` // Активные резервы на этом складе
	CreatedAt        time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Balance) TableName() string {
	return "inventory_balance"
}

// BeforeCreate генерирует UUID
func (b *Balance) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

// AverageCost возвращает средневзвешенную цену (totalValue/quantity), ok=false если остатка нет
func (b *Balance) AverageCost() (decimal.Decimal, bool) {
	if b == nil || !b.Quantity.IsPositive() {
		return decimal.Zero, false
	}
	return b.TotalValue.Div(b.Quantity), true
}

// FIFOLayer - партия поступления по своей цене, списывается от старой к новой
type FIFOLayer struct {
	ID                string          `json:"id" gorm:"type:uuid;primaryKey"`
	ItemID            string          `json:"item_id" gorm:"type:uuid;not null;index:idx_fifo_item_wh"`
	WarehouseName     string          `json:"warehouse_name" gorm:"type:varchar(100);not null;index:idx_fifo_item_wh"`
	UnitPrice         decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,4);not null"`
	OriginalQuantity  decimal.Decimal `json:"original_quantity" gorm:"type:decimal(18,4);not null"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity" gorm:"type:decimal(18,4);not null"` // Остаток после списаний
	DocumentNumber    string          `json:"document_number" gorm:"type:varchar(100)"`
	ReceivedAt        time.Time       `json:"received_at" gorm:"not null;index"`
	CreatedAt         time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (FIFOLayer) TableName() string {
	return "fifo_layers"
}

// BeforeCreate генерирует UUID и проставляет время поступления
func (l *FIFOLayer) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = time.Now().UTC()
	}
	return nil
}

// Movement - неизменяемая запись журнала движения остатков
type Movement struct {
	ID             string          `json:"id" gorm:"type:uuid;primaryKey"`
	ItemID         string          `json:"item_id" gorm:"type:uuid;not null;index"`
	WarehouseName  string          `json:"warehouse_name" gorm:"type:varchar(100);not null"`
	Quantity       decimal.Decimal `json:"quantity" gorm:"type:decimal(18,4);not null"` // Положительное = приход, отрицательное = расход
	UnitPrice      decimal.Decimal `json:"unit_price" gorm:"type:decimal(18,4);not null"`
	TotalValue     decimal.Decimal `json:"total_value" gorm:"type:decimal(18,4);not null"`
	MovementType   string          `json:"movement_type" gorm:"type:varchar(50);not null;index"`
	DocumentNumber string          `json:"document_number" gorm:"type:varchar(100)"`
	ReferenceID    string          `json:"reference_id" gorm:"type:varchar(100);index"` // ID заказа или накладной
	PerformedBy    string          `json:"performed_by" gorm:"type:varchar(255)"`
	Notes          string          `json:"notes" gorm:"type:text"`
	CreatedAt      time.Time       `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName указывает имя таблицы
func (Movement) TableName() string {
	return "stock_movements"
}

// BeforeCreate генерирует UUID
func (m *Movement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// Warehouse - настройки склада
type Warehouse struct {
	Name               string    `json:"name" gorm:"type:varchar(100);primaryKey"`
	AllowNegativeStock bool      `json:"allow_negative_stock" gorm:"default:false"`
	IsOperational      bool      `json:"is_operational" gorm:"default:false"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (Warehouse) TableName() string {
	return "warehouses"
}

// Типы уведомлений об остатках
const (
	AlertLowStock   = "low_stock"
	AlertOutOfStock = "out_of_stock"
)

// StockAlert - уведомление о низком остатке (одно на товар и склад)
type StockAlert struct {
	ID            string          `json:"id" gorm:"type:uuid;primaryKey"`
	ItemID        string          `json:"item_id" gorm:"type:uuid;not null;uniqueIndex:idx_alert_item_wh"`
	WarehouseName string          `json:"warehouse_name" gorm:"type:varchar(100);not null;uniqueIndex:idx_alert_item_wh"`
	AlertType     string          `json:"alert_type" gorm:"type:varchar(20);not null;index"`
	CurrentStock  decimal.Decimal `json:"current_stock" gorm:"type:decimal(18,4);not null"`
	MinStock      decimal.Decimal `json:"min_stock" gorm:"type:decimal(18,4);not null"`
	IsResolved    bool            `json:"is_resolved" gorm:"default:false;index"`
	ResolvedAt    *time.Time      `json:"resolved_at"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (StockAlert) TableName() string {
	return "stock_alerts"
}

// BeforeCreate генерирует UUID
func (a *StockAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}
