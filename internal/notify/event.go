// Package notify - рассылка событий об изменении остатков: Redis Pub/Sub, Kafka, WebSocket.
// Все рассылки fire-and-forget: ошибка доставки логируется и не влияет на складскую операцию.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StockEvent - изменение остатка ингредиента на складе
type StockEvent struct {
	ItemID        string          `json:"item_id"`
	WarehouseName string          `json:"warehouse_name"`
	QuantityDelta decimal.Decimal `json:"quantity_delta"`
	MovementType  string          `json:"movement_type"`
	OrderNumber   string          `json:"order_number,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Notifier доставляет событие подписчикам
type Notifier interface {
	Notify(ctx context.Context, event StockEvent)
}

// Fanout рассылает событие во все каналы по очереди
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, event StockEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}
