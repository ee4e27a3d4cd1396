package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub websocket 事件中心，向所有连接的客户端广播分析进度
type Hub struct {
	logger *logrus.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub 创建事件中心
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*websocket.Conn]bool),
	}
}

// HandleWS 升级连接并注册客户端
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade websocket")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	h.logger.Debug("Websocket client connected")

	// 读循环只用于感知连接断开
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast 向全部客户端广播事件，失败的连接直接移除
func (h *Hub) Broadcast(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// remove 注销客户端
func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	delete(h.clients, conn)
}
