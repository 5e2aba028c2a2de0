package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kitchenledger/server/internal/notify"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // В production лучше проверять Origin
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// StockWSController отдает поток событий об изменении остатков
type StockWSController struct {
	hub *notify.Hub
	log *zap.Logger
}

func NewStockWSController(hub *notify.Hub, log *zap.Logger) *StockWSController {
	return &StockWSController{hub: hub, log: log}
}

// ServeWS подключает клиента к хабу
// GET /ws/stock
func (wc *StockWSController) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.log.Warn("❌ WebSocket upgrade error", zap.Error(err))
		return
	}

	wc.hub.AddClient(conn)
	defer wc.hub.RemoveClient(conn)

	// Клиент только слушает, входящие сообщения читаем ради close/ping
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wc.log.Debug("⚠️ WebSocket closed unexpectedly", zap.Error(err))
			}
			return
		}
	}
}
