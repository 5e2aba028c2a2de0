package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Hub управляет WebSocket соединениями экранов склада
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.RWMutex
	log       *zap.Logger
}

// NewHub создает хаб с буферизованным каналом рассылки
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		log:       log,
	}
}

// Run рассылает сообщения до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			var failed []*websocket.Conn
			h.mutex.RLock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					failed = append(failed, client)
				}
			}
			h.mutex.RUnlock()

			// Удаляем клиентов, запись в которых не удалась
			for _, client := range failed {
				h.RemoveClient(client)
			}
		}
	}
}

// AddClient добавляет нового клиента
func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

// RemoveClient удаляет клиента
func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

// BroadcastMessage отправляет сообщение всем подключенным клиентам
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		// Если канал переполнен, пропускаем сообщение (не блокируем)
		h.log.Warn("⚠️ WebSocket: очередь рассылки переполнена, событие пропущено")
	}
}

// GetClientsCount возвращает количество подключенных клиентов
func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Notify реализует Notifier: событие уходит всем экранам
func (h *Hub) Notify(_ context.Context, event StockEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("⚠️ Ошибка маршалинга события остатков", zap.Error(err))
		return
	}
	h.BroadcastMessage(payload)
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

// RelayFromRedis пересылает события из канала Redis в хаб (события всех инстансов сервиса).
// Блокируется до отмены ctx.
func (h *Hub) RelayFromRedis(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			h.BroadcastMessage([]byte(msg.Payload))
		}
	}
}
