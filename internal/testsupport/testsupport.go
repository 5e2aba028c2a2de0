// Package testsupport - общие хелперы для тестов: SQLite в памяти со схемой склада.
package testsupport

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kitchenledger/server/internal/models"
)

var dbCounter int64

// NewDB открывает изолированную SQLite базу в памяти и мигрирует схему.
// orderTables - таблицы заказов, которые нужно создать.
func NewDB(t *testing.T, orderTables ...string) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("file:kitchenledger_%d?mode=memory&cache=shared", atomic.AddInt64(&dbCounter, 1))
	db, err := gorm.Open(sqlite.Open(name), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db, orderTables, zap.NewNop()))
	return db
}

// Dec - короткая запись decimal в тестах
func Dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// AssertDec сравнивает decimal по значению, а не по представлению
func AssertDec(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	if !Dec(expected).Equal(actual) {
		require.Failf(t, "decimal mismatch", "expected %s, got %s", expected, actual.String())
	}
}

// SeedItem создает ингредиент с зеркалом остатка
func SeedItem(t *testing.T, db *gorm.DB, item models.InventoryItem) models.InventoryItem {
	t.Helper()
	require.NoError(t, db.Create(&item).Error)
	return item
}

// SeedLayer создает FIFO слой, receivedAt задает порядок списания
func SeedLayer(t *testing.T, db *gorm.DB, itemID, warehouse string, qty, price string, receivedAt time.Time) models.FIFOLayer {
	t.Helper()
	layer := models.FIFOLayer{
		ItemID:            itemID,
		WarehouseName:     warehouse,
		UnitPrice:         Dec(price),
		OriginalQuantity:  Dec(qty),
		RemainingQuantity: Dec(qty),
		ReceivedAt:        receivedAt.UTC(),
	}
	require.NoError(t, db.Create(&layer).Error)
	return layer
}

// SeedBalance создает строку баланса
func SeedBalance(t *testing.T, db *gorm.DB, itemID, warehouse string, qty, value string) models.Balance {
	t.Helper()
	balance := models.Balance{
		ItemID:        itemID,
		WarehouseName: warehouse,
		Quantity:      Dec(qty),
		TotalValue:    Dec(value),
	}
	require.NoError(t, db.Create(&balance).Error)
	return balance
}
