package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"skzb-service/logger"
	"skzb-service/models"
)

const writeWait = 10 * time.Second

// WSMessage WebSocket消息结构
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Client WebSocket客户端
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	leagues []string // 联赛过滤器，为空时接收全部比赛
}

// Hub WebSocket Hub，快照刷新后推送给所有客户端
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Snapshot
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *logger.Logger
}

// NewHub 创建新的Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.Snapshot, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        logger.New("WS"),
	}
}

// Run 运行Hub，直到 Stop
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Printf("Client registered. Total clients: %d", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Printf("Client unregistered. Total clients: %d", n)

		case snap := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- client.snapshotMessage(snap):
				default:
					// 发送缓冲已满，视为慢客户端断开
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop 停止Hub并关闭所有客户端
func (h *Hub) Stop() {
	close(h.done)
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnSnapshot 实现 services.SnapshotObserver
func (h *Hub) OnSnapshot(ctx context.Context, snap models.Snapshot) error {
	select {
	case h.broadcast <- snap:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleWebSocket WebSocket连接处理，连接后立即发送当前快照
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 16),
	}

	client.send <- client.snapshotMessage(s.cache.Snapshot(r.Context()))
	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// snapshotMessage 按客户端的联赛过滤器生成推送内容
func (c *Client) snapshotMessage(snap models.Snapshot) []byte {
	c.mu.RLock()
	leagues := c.leagues
	c.mu.RUnlock()

	if len(leagues) > 0 {
		filtered := make([]models.MatchRecord, 0, len(snap.Matches))
		for _, m := range snap.Matches {
			if matchesLeague(m, leagues) {
				filtered = append(filtered, m)
			}
		}
		snap = models.NewSnapshot(filtered, snap.UpdateTime, snap.LastFetch)
	}

	data, err := json.Marshal(&WSMessage{
		Type:      "snapshot",
		Timestamp: snap.LastFetch,
		Data:      snap,
	})
	if err != nil {
		c.hub.log.Errorf("Failed to marshal message: %v", err)
		return []byte("{}")
	}
	return data
}

func matchesLeague(m models.MatchRecord, leagues []string) bool {
	for _, l := range leagues {
		if l != "" && (strings.Contains(m.League, l) || strings.Contains(m.Title, l)) {
			return true
		}
	}
	return false
}

// readPump 读取客户端消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Errorf("WebSocket error: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump 向客户端写入消息
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// handleMessage 处理客户端发送的消息
//
//	{"type":"subscribe","leagues":["英超","NBA"]}
//	{"type":"unsubscribe"}
func (c *Client) handleMessage(message []byte) {
	var msg struct {
		Type    string   `json:"type"`
		Leagues []string `json:"leagues"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.log.Errorf("Failed to unmarshal client message: %v", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.leagues = msg.Leagues
		c.mu.Unlock()
		c.hub.log.Printf("Client subscribed with leagues: %v", msg.Leagues)

	case "unsubscribe":
		c.mu.Lock()
		c.leagues = nil
		c.mu.Unlock()
		c.hub.log.Printf("Client unsubscribed")
	}
}
