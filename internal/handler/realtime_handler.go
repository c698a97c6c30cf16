package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Maelco1/reset/internal/service"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 16
)

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// RealtimeHandler pushes request board updates to connected websocket clients.
type RealtimeHandler struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewRealtimeHandler builds the hub. allowedOrigins empty or containing "*" accepts every origin.
func NewRealtimeHandler(allowedOrigins []string, logger *zap.Logger) *RealtimeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = struct{}{}
	}
	_, anyOrigin := origins["*"]
	return &RealtimeHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || anyOrigin || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		logger:  logger,
		clients: map[*wsClient]struct{}{},
	}
}

// Subscribe godoc
// @Summary Planning change stream
// @Description Upgrades to a websocket receiving one message per planning change
// @Tags Realtime
// @Param access_token query string false "JWT when the Authorization header cannot be set"
// @Success 101
// @Router /ws/planning [get]
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if claims := claimsFromContext(c); claims != nil {
		client.userID = claims.UserID
	}
	h.register(client)

	go h.writeLoop(client)
	h.readLoop(client)
}

// Broadcast delivers update to every client. Clients whose buffer is full are dropped.
func (h *RealtimeHandler) Broadcast(update service.BoardUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("failed to encode board update", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping slow websocket client", zap.String("user_id", client.userID))
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// Clients returns the number of connected clients.
func (h *RealtimeHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *RealtimeHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *RealtimeHandler) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *RealtimeHandler) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

// readLoop only drains control frames; clients never send data.
func (h *RealtimeHandler) readLoop(client *wsClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()
	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *RealtimeHandler) writeLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
