// Package gateway 是浏览器客户端的 WebSocket 通道：上行操作经串行队列交给编排器，
// 下行推送事件流与语音帧。扬声器在浏览器一侧，服务端只负责分发 PCM。
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"socialsim/server/internal/metrics"
	"socialsim/server/internal/model"
)

// Config 网关配置
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	// SendBuffer 每个连接的下行缓冲条数，写满即视为慢客户端并断开。
	SendBuffer int
	// CheckOrigin 为 nil 时允许任意来源（本地单用户应用）。
	CheckOrigin func(r *http.Request) bool
	// Queue 每个连接的上行消息队列参数
	Queue QueueOptions
}

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultSendBuffer   = 256
)

// Hub 管理全部客户端连接，并实现 orchestrator.Publisher。
// Publish 从不阻塞：缓冲写满的连接会被直接断开。
type Hub struct {
	handler  EventHandler
	config   Config
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	closed  bool

	// 序列号生成器（用于ServerMessage）
	seqCounter int64
	seqLock    sync.Mutex
}

// NewHub 创建网关。上行消息的处理器通过 SetEventHandler 注入。
func NewHub(config Config, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaultSendBuffer
	}
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// SetEventHandler 设置上行消息处理器（由 API 层注入）
func (h *Hub) SetEventHandler(handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) eventHandler() EventHandler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler
}

// ServeHTTP 升级为 WebSocket 并阻塞到连接结束。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[Gateway] upgrade failed: %v", err)
		return
	}

	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("conn_%d", time.Now().UnixNano())
	}
	c := newClient(id, conn, h)
	if !h.register(c) {
		c.Close()
		return
	}
	h.logger.Printf("[Gateway] client %s connected from %s", id, r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()
}

// Publish 把一条事件广播给所有客户端。
func (h *Hub) Publish(evt model.Event) {
	h.broadcast(&ServerMessage{Type: EventTypeEvent, Event: &evt})
}

// Clients 当前连接数。
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close 断开所有客户端，之后的连接会被拒绝。
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) broadcast(msg *ServerMessage) {
	data, err := h.encode(msg)
	if err != nil {
		h.logger.Printf("[Gateway] marshal server message: %v", err)
		return
	}

	h.mu.Lock()
	var slow []*Client
	for c := range h.clients {
		if !c.trySend(data) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Printf("[Gateway] ⚠️ client %s too slow, dropping", c.id)
		c.Close()
	}
}

// encode 分配序列号并补充时间戳。
func (h *Hub) encode(msg *ServerMessage) ([]byte, error) {
	h.seqLock.Lock()
	h.seqCounter++
	msg.Seq = h.seqCounter
	h.seqLock.Unlock()

	if msg.ServerTS.IsZero() {
		msg.ServerTS = time.Now()
	}
	return json.Marshal(msg)
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.SetStreamClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	metrics.SetStreamClients(len(h.clients))
}

// Client 是一个浏览器连接：读循环把上行消息放进串行队列，写循环独占连接写入。
type Client struct {
	id    string
	conn  *websocket.Conn
	hub   *Hub
	queue *EventQueue

	send      chan []byte
	closeOnce sync.Once
	closeChan chan struct{}
}

func newClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	c := &Client{
		id:        id,
		conn:      conn,
		hub:       hub,
		send:      make(chan []byte, hub.config.SendBuffer),
		closeChan: make(chan struct{}),
	}
	c.queue = NewEventQueue(id, c.handle, hub.config.Queue, hub.logger)
	return c
}

// handle 调用注入的处理器，失败时把错误回传给该客户端。
func (c *Client) handle(ctx context.Context, msg *ClientMessage) error {
	handler := c.hub.eventHandler()
	if handler == nil {
		err := errors.New("no event handler")
		c.sendError(err.Error())
		return err
	}
	err := handler(ctx, msg)
	if err != nil {
		c.sendError(err.Error())
	}
	return err
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-c.closeChan:
				default:
					c.hub.logger.Printf("[Gateway] client %s read error: %v", c.id, err)
				}
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// 发送错误给客户端，但不断开连接
			c.sendError(fmt.Sprintf("invalid message: %v", err))
			continue
		}
		if msg.ClientTS.IsZero() {
			msg.ClientTS = time.Now()
		}
		if err := c.queue.Enqueue(&msg); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer ticker.Stop()
	defer c.Close()

	for {
		select {
		case <-c.closeChan:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.hub.logger.Printf("[Gateway] write to client %s: %v", c.id, err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.closeChan:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(errMsg string) {
	data, err := c.hub.encode(&ServerMessage{Type: EventTypeError, Error: errMsg})
	if err != nil {
		return
	}
	c.trySend(data)
}

// Close 关闭连接与队列，可重复调用。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.hub.unregister(c)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = c.conn.Close()
		// 队列在独立协程中关闭：Close 可能由队列处理器自身触发。
		go c.queue.Close()
		c.hub.logger.Printf("[Gateway] client %s closed", c.id)
	})
}
