package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"kitchenledger/server/internal/models"
)

// WarehouseSettings - настройки склада, влияющие на списание
type WarehouseSettings struct {
	Name               string
	AllowNegativeStock bool
	IsOperational      bool // Склад для ингредиентов без объявленного склада
}

// Warehouses - поиск настроек склада
type Warehouses struct {
	db *gorm.DB
}

func NewWarehouses(db *gorm.DB) *Warehouses {
	return &Warehouses{db: db}
}

// Lookup читает настройки склада через tx (или собственное соединение, если tx nil).
// Неизвестный склад: отрицательный остаток запрещен.
func (w *Warehouses) Lookup(ctx context.Context, tx *gorm.DB, name string) (WarehouseSettings, error) {
	if tx == nil {
		tx = w.db
	}

	var warehouse models.Warehouse
	err := tx.WithContext(ctx).Where("name = ?", name).First(&warehouse).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return WarehouseSettings{Name: name}, nil
	}
	if err != nil {
		return WarehouseSettings{}, fmt.Errorf("load warehouse %s: %w", name, err)
	}
	return WarehouseSettings{
		Name:               warehouse.Name,
		AllowNegativeStock: warehouse.AllowNegativeStock,
		IsOperational:      warehouse.IsOperational,
	}, nil
}

// Default - операционный склад по умолчанию. Если fallback отмечен операционным или
// операционных складов нет, возвращается fallback; иначе первый операционный по имени.
func (w *Warehouses) Default(ctx context.Context, tx *gorm.DB, fallback string) (string, error) {
	if tx == nil {
		tx = w.db
	}

	var operational []models.Warehouse
	if err := tx.WithContext(ctx).Where("is_operational = ?", true).
		Order("name ASC").Find(&operational).Error; err != nil {
		return "", fmt.Errorf("load operational warehouses: %w", err)
	}
	if len(operational) == 0 {
		return fallback, nil
	}
	for _, warehouse := range operational {
		if warehouse.Name == fallback {
			return fallback, nil
		}
	}
	return operational[0].Name, nil
}
