package models

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate создает таблицы склада, каталога и заказов всех каналов.
// orderTables - имена таблиц заказов (одна форма Order на каждый канал).
func AutoMigrate(db *gorm.DB, orderTables []string, log *zap.Logger) error {
	if err := db.AutoMigrate(
		&Warehouse{},
		&InventoryItem{},
		&Balance{},
		&FIFOLayer{},
		&Reservation{},
		&Movement{},
		&StockAlert{},
		&MenuItem{},
	); err != nil {
		log.Error("❌ AutoMigrate для складских таблиц failed", zap.Error(err))
		return fmt.Errorf("migrate inventory tables: %w", err)
	}
	log.Info("✅ Inventory tables migrated successfully")

	for _, table := range orderTables {
		if err := db.Table(table).AutoMigrate(&Order{}); err != nil {
			log.Error("❌ AutoMigrate для таблицы заказов failed", zap.String("table", table), zap.Error(err))
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	log.Info("✅ Order tables migrated successfully", zap.Int("tables", len(orderTables)))
	return nil
}
