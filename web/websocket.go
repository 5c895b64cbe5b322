package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"edgerisk/event"
	"edgerisk/storage"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient 单个连接。gorilla 不允许并发写，中心广播与日志推送
// 可能同时写同一连接，所有写操作经 write 串行化。
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHub WebSocket 中心，向所有连接广播运行事件
type WebSocketHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

var hub *WebSocketHub

func init() {
	hub = &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
	go hub.Run()
}

// SetEventBus 注入事件总线，运行事件会广播给所有连接
func SetEventBus(bus *event.Bus) {
	if bus == nil {
		return
	}
	ch := bus.Subscribe()
	go func() {
		for ev := range ch {
			message := map[string]interface{}{"type": "run_event", "data": ev}
			data, err := json.Marshal(message)
			if err != nil {
				continue
			}
			select {
			case hub.broadcast <- data:
			default:
			}
		}
	}()
}

// Run 运行 WebSocket 中心
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.write(message); err != nil {
					delete(h.clients, client)
					client.conn.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

// handleWebSocket 升级连接；带 subscribe_logs=true 时附加实时日志推送
func handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	client := &wsClient{conn: conn}

	hub.register <- client

	if c.Query("subscribe_logs") == "true" && globalLogStore != nil {
		logCh := globalLogStore.Subscribe()
		defer globalLogStore.Unsubscribe(logCh)
		go pushLogs(client, logCh)
	}

	// 读循环只用于感知连接断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.unregister <- client
			break
		}
	}
}

func pushLogs(client *wsClient, logCh chan *storage.LogRecord) {
	for record := range logCh {
		message := map[string]interface{}{"type": "log", "data": record}
		data, err := json.Marshal(message)
		if err != nil {
			continue
		}
		if err := client.write(data); err != nil {
			return
		}
	}
}
