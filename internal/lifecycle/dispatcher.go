// Package lifecycle - смена статуса заказа любого канала с соответствующей складской операцией.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kitchenledger/server/internal/config"
	"kitchenledger/server/internal/inventory"
	"kitchenledger/server/internal/models"
	"kitchenledger/server/internal/orders"
	"kitchenledger/server/internal/uow"
)

// InventoryEngine - складские операции по заказу
type InventoryEngine interface {
	Reserve(ctx context.Context, u uow.UnitOfWork, orderID, orderNumber, orderType string, items []models.OrderItem) (inventory.ReserveResult, error)
	Consume(ctx context.Context, u uow.UnitOfWork, orderID, orderNumber string) (inventory.ConsumeResult, error)
	Release(ctx context.Context, u uow.UnitOfWork, orderID, orderNumber string) (inventory.ReleaseResult, error)
}

// Складские действия при смене фазы
const (
	ActionNone    = "none"
	ActionReserve = "reserve"
	ActionConsume = "consume"
	ActionRelease = "release"
)

// TransitionResult - итог смены статуса
type TransitionResult struct {
	OrderID    string                   `json:"order_id"`
	OrderType  string                   `json:"order_type"`
	FromStatus string                   `json:"from_status"`
	ToStatus   string                   `json:"to_status"`
	Action     string                   `json:"action"`
	BestEffort bool                     `json:"best_effort"`
	Warning    string                   `json:"warning,omitempty"`
	Reserve    *inventory.ReserveResult `json:"reserve,omitempty"`
	Consume    *inventory.ConsumeResult `json:"consume,omitempty"`
	Release    *inventory.ReleaseResult `json:"release,omitempty"`
}

// Dispatcher - единый обработчик статусов для всех каналов заказов
type Dispatcher struct {
	repo          *orders.Repository
	engine        InventoryEngine
	transactional *uow.Transactional
	bestEffort    *uow.BestEffort
	mode          string
	log           *zap.Logger
	tracer        trace.Tracer
}

// NewDispatcher создает диспетчер; mode - config.TxModeAuto/On/Off
func NewDispatcher(db *gorm.DB, repo *orders.Repository, engine InventoryEngine, mode string, maxRetries int, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:          repo,
		engine:        engine,
		transactional: uow.NewTransactional(db, maxRetries, log),
		bestEffort:    uow.NewBestEffort(db),
		mode:          mode,
		log:           log,
		tracer:        otel.Tracer("kitchenledger/lifecycle"),
	}
}

// CreateOrder сохраняет заказ в начальном статусе канала. Если запрошен другой статус
// (например, быстрая продажа сразу "completed"), он применяется обычной сменой статуса.
func (d *Dispatcher) CreateOrder(ctx context.Context, orderType string, order *models.Order) (*TransitionResult, error) {
	t, ok := orders.Lookup(orderType)
	if !ok {
		return nil, &inventory.ValidationError{Field: "order_type", Message: fmt.Sprintf("unknown order type %q", orderType)}
	}
	requested := order.Status
	if requested != "" {
		if _, ok := t.Classify(requested); !ok {
			return nil, unknownStatus(t, requested)
		}
	}
	if len(order.Items) == 0 {
		return nil, &inventory.ValidationError{Field: "items", Message: "order has no items"}
	}

	order.Status = t.InitialStatus
	if err := d.repo.Create(ctx, nil, t, order); err != nil {
		return nil, err
	}
	d.log.Info("🆕 Заказ создан",
		zap.String("order_type", t.Name),
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber))

	if requested == "" || requested == order.Status {
		return &TransitionResult{OrderID: order.ID, OrderType: t.Name, FromStatus: order.Status, ToStatus: order.Status, Action: ActionNone}, nil
	}
	result, err := d.UpdateStatus(ctx, orderType, order.ID, requested)
	if err == nil {
		order.Status = requested
	}
	return result, err
}

// UpdateStatus переводит заказ в новый статус и выполняет складскую операцию в той же единице работы.
// Резерв и списание при ошибке отменяют смену статуса; ошибка снятия резерва только логируется.
func (d *Dispatcher) UpdateStatus(ctx context.Context, orderType, orderID, newStatus string) (result *TransitionResult, err error) {
	ctx, span := d.tracer.Start(ctx, "lifecycle.UpdateStatus", trace.WithAttributes(
		attribute.String("order.type", orderType),
		attribute.String("order.id", orderID),
		attribute.String("order.status", newStatus),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	t, ok := orders.Lookup(orderType)
	if !ok {
		return nil, &inventory.ValidationError{Field: "order_type", Message: fmt.Sprintf("unknown order type %q", orderType)}
	}
	toBucket, ok := t.Classify(newStatus)
	if !ok {
		return nil, unknownStatus(t, newStatus)
	}

	switch d.mode {
	case config.TxModeOff:
		return d.run(ctx, d.bestEffort, t, orderID, newStatus, toBucket)
	case config.TxModeOn:
		return d.run(ctx, d.transactional, t, orderID, newStatus, toBucket)
	}

	result, err = d.run(ctx, d.transactional, t, orderID, newStatus, toBucket)
	if err != nil && uow.IsTransactionUnsupported(err) {
		d.log.Warn("⚠️ Транзакции недоступны, повтор в режиме best-effort",
			zap.String("order_id", orderID),
			zap.Error(err))
		return d.run(ctx, d.bestEffort, t, orderID, newStatus, toBucket)
	}
	return result, err
}

func (d *Dispatcher) run(ctx context.Context, outer uow.UnitOfWork, t orders.Type, orderID, newStatus string, toBucket orders.Bucket) (*TransitionResult, error) {
	var (
		joined *uow.Joined
		result *TransitionResult
	)

	err := outer.Do(ctx, func(tx *gorm.DB) error {
		joined = uow.Join(tx, outer.Transactional())
		result = &TransitionResult{
			OrderID:    orderID,
			OrderType:  t.Name,
			ToStatus:   newStatus,
			Action:     ActionNone,
			BestEffort: !outer.Transactional(),
		}

		order, err := d.repo.Get(ctx, tx, t, orderID)
		if errors.Is(err, orders.ErrNotFound) {
			return &inventory.NotFoundError{Kind: "order", ID: orderID}
		}
		if err != nil {
			return err
		}
		result.FromStatus = order.Status

		fromBucket, ok := t.Classify(order.Status)
		if !ok {
			d.log.Warn("⚠️ Текущий статус заказа неизвестен, считаем его неподтвержденным",
				zap.String("order_id", orderID),
				zap.String("status", order.Status))
			fromBucket = orders.BucketUncommitted
		}

		action, err := plan(fromBucket, toBucket)
		if err != nil {
			return err
		}
		result.Action = action

		switch action {
		case ActionReserve:
			res, err := d.engine.Reserve(ctx, joined, order.ID, order.OrderNumber, t.Name, order.Items)
			result.Reserve = &res
			if err != nil {
				return err
			}
		case ActionConsume:
			res, err := d.engine.Consume(ctx, joined, order.ID, order.OrderNumber)
			result.Consume = &res
			if err != nil {
				return err
			}
		case ActionRelease:
			res, err := d.engine.Release(ctx, joined, order.ID, order.OrderNumber)
			result.Release = &res
			if err != nil {
				result.Warning = res.Message
				d.log.Error("❌ Не удалось снять резерв, статус все равно меняется",
					zap.String("order_id", orderID),
					zap.String("status", newStatus),
					zap.Error(err))
			}
		}

		return d.repo.UpdateStatus(ctx, tx, t, orderID, newStatus, toBucket)
	})

	if joined != nil {
		if err == nil || !outer.Transactional() {
			joined.Flush()
		} else {
			joined.Discard()
		}
	}
	if err != nil {
		return result, err
	}

	d.log.Info("🔄 Статус заказа изменен",
		zap.String("order_type", t.Name),
		zap.String("order_id", orderID),
		zap.String("from", result.FromStatus),
		zap.String("to", newStatus),
		zap.String("action", result.Action))
	return result, nil
}

// plan выбирает складское действие по фазам: сравниваются фазы, а не строки статусов
func plan(from, to orders.Bucket) (string, error) {
	if from == to {
		return ActionNone, nil
	}
	if from == orders.BucketCancelled {
		return "", &inventory.ValidationError{Field: "status", Message: "cancelled order cannot change status"}
	}

	switch to {
	case orders.BucketCommitted:
		if from == orders.BucketFulfilled {
			return "", &inventory.ValidationError{Field: "status", Message: "fulfilled order cannot return to work"}
		}
		return ActionReserve, nil
	case orders.BucketFulfilled:
		return ActionConsume, nil
	case orders.BucketCancelled:
		return ActionRelease, nil
	default: // uncommitted
		if from == orders.BucketFulfilled {
			return "", &inventory.ValidationError{Field: "status", Message: "fulfilled order cannot return to work"}
		}
		return ActionRelease, nil
	}
}

func unknownStatus(t orders.Type, status string) error {
	return &inventory.ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("unknown %s status %q, expected one of %v", t.Name, status, t.Statuses()),
	}
}
