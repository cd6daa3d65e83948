package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	jwtpkg "mailledger/backend/internal/auth/jwt"
	"mailledger/backend/internal/domain"
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 没有 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义 WebSocket 消息类型
type MessageType string

const (
	MessageTypeNewMail MessageType = "new_mail"
	MessageTypePing    MessageType = "ping"
	MessageTypePong    MessageType = "pong"
	MessageTypeError   MessageType = "error"
)

// Message 定义 WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Account   string          `json:"account,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 代表一个 WebSocket 客户端连接
type Client struct {
	ID      string
	Account string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	log     *zap.Logger
}

// Hub 管理所有 WebSocket 连接，按账户分组推送新消息事件。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	accounts       map[string]map[string]*Client // account -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *accountMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	jwt            *jwtpkg.Manager
}

type accountMessage struct {
	Account string
	Message *Message
}

// NewHub 创建 WebSocket Hub。
func NewHub(allowedOrigins []string, jwtManager *jwtpkg.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &Hub{
		clients:        make(map[string]*Client),
		accounts:       make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *accountMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		jwt:            jwtManager,
	}
}

// Run 启动 Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.accounts[client.Account] == nil {
				h.accounts[client.Account] = make(map[string]*Client)
			}
			h.accounts[client.Account][client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered",
				zap.String("id", client.ID),
				zap.String("account", client.Account))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				if clients, exists := h.accounts[client.Account]; exists {
					delete(clients, client.ID)
					if len(clients) == 0 {
						delete(h.accounts, client.Account)
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToAccount(msg.Account, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NewMailData 新消息通知数据
type NewMailData struct {
	MessageID uint64 `json:"messageId"`
	Title     string `json:"title"`
	Preview   string `json:"preview,omitempty"`
	HasAmount bool   `json:"hasAmount"`
	CreatedAt string `json:"createdAt"`
}

// NotifyNewMail 向收件账户的在线客户端推送新消息事件。
func (h *Hub) NotifyNewMail(receiver string, msg *domain.Message) {
	preview := msg.Content
	if len(preview) > 100 {
		preview = preview[:100]
	}

	data, err := json.Marshal(NewMailData{
		MessageID: uint64(msg.ID),
		Title:     msg.Title,
		Preview:   preview,
		HasAmount: msg.Amount != nil,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		h.log.Error("failed to marshal new mail data", zap.Error(err))
		return
	}

	event := &Message{
		Type:      MessageTypeNewMail,
		Account:   receiver,
		Data:      data,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- &accountMessage{Account: receiver, Message: event}:
	default:
		h.log.Warn("broadcast channel full, dropping event",
			zap.String("account", receiver))
	}
}

// broadcastToAccount 向某账户的所有客户端广播消息
func (h *Hub) broadcastToAccount(account string, msg *Message) {
	h.mu.RLock()
	clients := h.accounts[account]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送 ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.accounts = make(map[string]map[string]*Client)
}

// authenticateClient 认证客户端，从 URL 参数或 Header 提取令牌。
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
	}

	if token == "" {
		return nil, jwtpkg.ErrInvalidToken
	}

	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:      uuid.NewString(),
		Account: claims.Account,
		log:     h.log,
	}, nil
}

// HandleWebSocket 处理 WebSocket 连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		if msg.Type == MessageTypePong {
			c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
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
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
