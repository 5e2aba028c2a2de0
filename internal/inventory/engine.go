// Package inventory - резервирование, списание и снятие резерва ингредиентов под заказы.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/catalog"
	"kitchenledger/server/internal/ledger"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/notify"
	"kitchenledger/server/internal/orders"
	"kitchenledger/server/internal/uow"
)

// CatalogLookup - техкарта позиции меню
type CatalogLookup interface {
	Lookup(ctx context.Context, itemID string) (*catalog.Entry, error)
}

// WarehouseLookup - настройки склада (читаются в рамках текущей единицы работы)
type WarehouseLookup interface {
	Lookup(ctx context.Context, tx *gorm.DB, name string) (catalog.WarehouseSettings, error)
	Default(ctx context.Context, tx *gorm.DB, fallback string) (string, error)
}

// OrderFinder ищет заказ во всех каналах
type OrderFinder interface {
	Find(ctx context.Context, tx *gorm.DB, orderID string) (*models.Order, orders.Type, error)
}

// AlertRecomputer - пересчет уведомлений о низком остатке
type AlertRecomputer interface {
	Trigger(itemID, warehouse string)
}

// Engine - складской движок заказов
type Engine struct {
	catalog          CatalogLookup
	warehouses       WarehouseLookup
	orders           OrderFinder
	notifier         notify.Notifier
	alerts           AlertRecomputer
	defaultWarehouse string
	log              *zap.Logger
	tracer           trace.Tracer
}

func NewEngine(catalog CatalogLookup, warehouses WarehouseLookup, orderFinder OrderFinder, defaultWarehouse string, log *zap.Logger) *Engine {
	return &Engine{
		catalog:          catalog,
		warehouses:       warehouses,
		orders:           orderFinder,
		defaultWarehouse: defaultWarehouse,
		log:              log,
		tracer:           otel.Tracer("kitchenledger/inventory"),
	}
}

// SetNotifier устанавливает рассылку событий об остатках
func (e *Engine) SetNotifier(n notify.Notifier) {
	e.notifier = n
}

// SetAlerts устанавливает пересчет уведомлений о низком остатке
func (e *Engine) SetAlerts(a AlertRecomputer) {
	e.alerts = a
}

// requirement - сколько ингредиента нужно заказу
type requirement struct {
	IngredientID string
	Warehouse    string // Явно указанный в техкарте склад, может быть пустым
	Quantity     decimal.Decimal
}

// resolveRequirements раскладывает позиции заказа на ингредиенты и суммирует по ингредиенту.
// Техкарта берется из снимка в заказе, иначе из каталога. Неизвестная позиция меню пропускается.
func (e *Engine) resolveRequirements(ctx context.Context, items []models.OrderItem) ([]requirement, []string, error) {
	var (
		result   []requirement
		skipped  []string
		position = make(map[string]int)
	)

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, nil, &ValidationError{Field: "quantity", Message: fmt.Sprintf("item %s quantity must be positive", item.MenuItemID)}
		}

		recipe := item.Recipe
		if len(recipe) == 0 {
			if e.catalog == nil {
				skipped = append(skipped, item.MenuItemID)
				continue
			}
			entry, err := e.catalog.Lookup(ctx, item.MenuItemID)
			if errors.Is(err, catalog.ErrNotFound) {
				e.log.Warn("⚠️ Позиция меню не найдена, пропускаем", zap.String("menu_item_id", item.MenuItemID))
				skipped = append(skipped, item.MenuItemID)
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("catalog lookup %s: %w", item.MenuItemID, err)
			}
			recipe = entry.Recipe
		}

		multiplier := decimal.NewFromInt(int64(item.Quantity))
		for _, line := range recipe {
			if line.IngredientID == "" || !line.Quantity.IsPositive() {
				continue
			}
			required := line.Quantity.Mul(multiplier)
			if idx, ok := position[line.IngredientID]; ok {
				result[idx].Quantity = result[idx].Quantity.Add(required)
				continue
			}
			position[line.IngredientID] = len(result)
			result = append(result, requirement{
				IngredientID: line.IngredientID,
				Warehouse:    line.WarehouseName,
				Quantity:     required,
			})
		}
	}
	return result, skipped, nil
}

// warehouseFor - склад ингредиента: из техкарты, объявленный у товара, иначе операционный по умолчанию
func (e *Engine) warehouseFor(ctx context.Context, tx *gorm.DB, explicit string, item *models.InventoryItem) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if item.WarehouseName != "" {
		return item.WarehouseName, nil
	}
	return e.warehouses.Default(ctx, tx, e.defaultWarehouse)
}

// loadItem возвращает nil, nil для отсутствующего товара (он логируется и пропускается)
func (e *Engine) loadItem(tx *gorm.DB, orderID, itemID string) (*models.InventoryItem, error) {
	item, err := ledger.LoadItem(tx, itemID)
	if errors.Is(err, ledger.ErrItemNotFound) {
		e.log.Warn("⚠️ Ингредиент не найден на складе, пропускаем",
			zap.String("order_id", orderID),
			zap.String("ingredient_id", itemID))
		return nil, nil
	}
	return item, err
}

// adjustReserved сдвигает резерв склада в Balance и зеркало reserved_stock товара на delta
func adjustReserved(tx *gorm.DB, itemID, warehouse string, delta decimal.Decimal) error {
	qty := delta.InexactFloat64()
	if err := tx.Model(&models.Balance{}).Where("item_id = ? AND warehouse_name = ?", itemID, warehouse).
		Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", qty)).Error; err != nil {
		return fmt.Errorf("update reserved quantity for %s@%s: %w", itemID, warehouse, err)
	}
	if err := tx.Model(&models.InventoryItem{}).Where("id = ?", itemID).
		Update("reserved_stock", gorm.Expr("reserved_stock + ?", qty)).Error; err != nil {
		return fmt.Errorf("update reserved stock mirror for %s: %w", itemID, err)
	}
	return nil
}

func (e *Engine) startSpan(ctx context.Context, name, orderID, orderNumber string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.number", orderNumber),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// publish откладывает уведомления и пересчет алертов до фиксации единицы работы
func (e *Engine) publish(u uow.UnitOfWork, events []notify.StockEvent) {
	if len(events) == 0 {
		return
	}
	u.AfterCommit(func() {
		for _, event := range events {
			if e.notifier != nil {
				e.notifier.Notify(context.Background(), event)
			}
			if e.alerts != nil {
				e.alerts.Trigger(event.ItemID, event.WarehouseName)
			}
		}
	})
}

func validateOrderID(orderID string) error {
	if orderID == "" {
		return &ValidationError{Field: "order_id", Message: "is required"}
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
