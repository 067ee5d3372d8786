package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"Bt1QMedia/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType 消息类型
type EventType string

const (
	ContentAdded   EventType = "content_added"
	ContentDeleted EventType = "content_deleted"
)

// Event is one catalog notification sent to every connected client.
type Event struct {
	Type      EventType   `json:"type"`
	Content   interface{} `json:"content,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Publisher accepts catalog events.
type Publisher interface {
	Publish(evt Event)
}

// Client WebSocket 客户端
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans catalog events out to websocket clients.
// All client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu    sync.RWMutex
	count int

	done chan struct{}
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环，直到 ctx 取消或调用 Stop
func (h *Hub) Run(ctx context.Context) {
	defer h.cleanup()
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount(len(h.clients))
			logger.Debug("catalog client registered", logger.String("client", client.ID))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// 发送缓冲区满，移除客户端
					logger.Warn("dropping slow catalog client", logger.String("client", client.ID))
					h.remove(client)
				}
			}

		case <-ctx.Done():
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.setCount(len(h.clients))
	logger.Debug("catalog client unregistered", logger.String("client", client.ID))
}

func (h *Hub) cleanup() {
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]struct{})
	h.setCount(0)
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Publish queues evt for broadcast. It never blocks; events are dropped when the queue is full.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("failed to encode catalog event", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logger.Warn("catalog event queue full, dropping event", logger.String("type", string(evt.Type)))
	}
}

// Attach registers conn and starts its pumps. It returns once the hub accepted the client.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn) *Client {
	client := &Client{ID: uuid.NewString(), hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return client
	case <-ctx.Done():
		conn.Close()
		return client
	}
	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) detach(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// readPump reads and discards inbound messages so the pong handler and
// close detection keep running.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("catalog websocket read error", logger.ErrorField(err), logger.String("client", c.ID))
			}
			return
		}
	}
}

// writePump 写入消息循环
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
