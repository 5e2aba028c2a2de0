// Package alerts - фоновый пересчет уведомлений о низком остатке после списаний.
package alerts

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/ledger"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/utils"
)

// LowStockSetKey - Redis множество id товаров с активным уведомлением
const LowStockSetKey = "stock:alerts:low"

type task struct {
	itemID    string
	warehouse string
}

// Worker пересчитывает StockAlert по очереди задач. Ошибки логируются и не возвращаются вызывающему.
type Worker struct {
	db    *gorm.DB
	cache *utils.RedisClient
	queue chan task
	log   *zap.Logger
}

// NewWorker создает воркер; cache может быть nil
func NewWorker(db *gorm.DB, cache *utils.RedisClient, queueSize int, log *zap.Logger) *Worker {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Worker{
		db:    db,
		cache: cache,
		queue: make(chan task, queueSize),
		log:   log,
	}
}

// Trigger ставит товар в очередь пересчета, не блокируясь
func (w *Worker) Trigger(itemID, warehouse string) {
	select {
	case w.queue <- task{itemID: itemID, warehouse: warehouse}:
	default:
		w.log.Warn("⚠️ Очередь пересчета уведомлений переполнена",
			zap.String("item_id", itemID),
			zap.String("warehouse", warehouse))
	}
}

// Run обрабатывает очередь до отмены ctx
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			if err := w.Recompute(ctx, t.itemID, t.warehouse); err != nil {
				w.log.Warn("⚠️ Ошибка пересчета уведомления об остатке",
					zap.String("item_id", t.itemID),
					zap.String("warehouse", t.warehouse),
					zap.Error(err))
			}
		}
	}
}

// Recompute приводит строку StockAlert и Redis множество в соответствие с Balance
func (w *Worker) Recompute(ctx context.Context, itemID, warehouse string) error {
	db := w.db.WithContext(ctx)

	item, err := ledger.LoadItem(db, itemID)
	if errors.Is(err, ledger.ErrItemNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	stock, _, err := ledger.OnHand(db, item, warehouse)
	if err != nil {
		return err
	}

	alertType := ""
	switch {
	case !stock.IsPositive():
		alertType = models.AlertOutOfStock
	case stock.LessThanOrEqual(item.MinStock):
		alertType = models.AlertLowStock
	}

	var existing models.StockAlert
	err = db.Where("item_id = ? AND warehouse_name = ?", itemID, warehouse).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	switch {
	case alertType != "" && !found:
		alert := models.StockAlert{
			ItemID:        itemID,
			WarehouseName: warehouse,
			AlertType:     alertType,
			CurrentStock:  stock,
			MinStock:      item.MinStock,
		}
		if err := db.Create(&alert).Error; err != nil {
			return err
		}
		w.log.Info("📉 Низкий остаток", zap.String("item", item.Name), zap.String("alert_type", alertType), zap.String("stock", stock.String()))
	case alertType != "":
		if err := db.Model(&models.StockAlert{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"alert_type":    alertType,
			"current_stock": stock,
			"min_stock":     item.MinStock,
			"is_resolved":   false,
			"resolved_at":   nil,
		}).Error; err != nil {
			return err
		}
	case found && !existing.IsResolved:
		now := time.Now().UTC()
		if err := db.Model(&models.StockAlert{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"current_stock": stock,
			"is_resolved":   true,
			"resolved_at":   now,
		}).Error; err != nil {
			return err
		}
		w.log.Info("✅ Остаток восстановлен", zap.String("item", item.Name))
	}

	if w.cache == nil {
		return nil
	}
	if alertType != "" {
		return w.cache.SAdd(ctx, LowStockSetKey, itemID)
	}
	return w.cache.SRem(ctx, LowStockSetKey, itemID)
}
