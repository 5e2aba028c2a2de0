package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"kitchenledger/server/internal/utils"
)

// RedisNotifier публикует события в канал Redis Pub/Sub
type RedisNotifier struct {
	client  *utils.RedisClient
	channel string
	log     *zap.Logger
}

func NewRedisNotifier(client *utils.RedisClient, channel string, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, log: log}
}

func (n *RedisNotifier) Notify(ctx context.Context, event StockEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("⚠️ Ошибка маршалинга события остатков", zap.Error(err))
		return
	}
	if err := n.client.Publish(ctx, n.channel, payload); err != nil {
		n.log.Warn("⚠️ Не удалось опубликовать событие в Redis",
			zap.String("channel", n.channel),
			zap.String("item_id", event.ItemID),
			zap.Error(err))
	}
}
