package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MenuItem - позиция меню с техкартой
type MenuItem struct {
	ID              string          `json:"id" gorm:"type:uuid;primaryKey"`
	Name            string          `json:"name" gorm:"type:varchar(255);not null"`
	Price           decimal.Decimal `json:"price" gorm:"type:decimal(18,2);not null"`
	PreparationTime int             `json:"preparation_time"` // минуты
	Recipe          RecipeLines     `json:"recipe" gorm:"type:jsonb"`
	IsActive        bool            `json:"is_active" gorm:"default:false"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName указывает имя таблицы
func (MenuItem) TableName() string {
	return "menu_items"
}

// BeforeCreate генерирует UUID
func (m *MenuItem) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
