package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	hive "github.com/do-ops885/ai-orchestrator-hub"
	"github.com/do-ops885/ai-orchestrator-hub/api"
	"github.com/do-ops885/ai-orchestrator-hub/api/handlers"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// =============================================================================
// 🔌 WebSocket 实时推送
// =============================================================================

// WSMessage 服务端推送消息
type WSMessage struct {
	MessageType string      `json:"message_type"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// WSRequest 客户端请求消息
type WSRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsClient 单个 WebSocket 连接。写操作通过 mutex 保护,
// 因为 WebSocket 不支持并发写。
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(ctx context.Context, msg WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, msg)
}

// WSHub 管理所有 WebSocket 连接并周期性广播状态快照。
type WSHub struct {
	hive         *hive.Hive
	pushInterval time.Duration
	logger       *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWSHub 创建 WebSocket hub。
func NewWSHub(h *hive.Hive, pushInterval time.Duration, logger *zap.Logger) *WSHub {
	if pushInterval <= 0 {
		pushInterval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSHub{
		hive:         h,
		pushInterval: pushInterval,
		logger:       logger.With(zap.String("component", "ws_hub")),
		clients:      make(map[*wsClient]struct{}),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start 启动周期性状态广播。
func (h *WSHub) Start() {
	go h.pushLoop()
}

// Stop 停止广播并关闭所有连接。
func (h *WSHub) Stop() {
	h.cancel()
	<-h.done

	h.mu.Lock()
	for c := range h.clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
}

func (h *WSHub) pushLoop() {
	defer close(h.done)

	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.broadcastStatus()
		}
	}
}

func (h *WSHub) broadcastStatus() {
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	if n == 0 {
		return
	}

	status, err := h.hive.Status()
	if err != nil {
		h.logger.Warn("status snapshot failed", zap.Error(err))
		return
	}

	msg := WSMessage{
		MessageType: "hive_status",
		Data:        json.RawMessage(status),
		Timestamp:   time.Now().UTC(),
	}

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		if err := c.send(ctx, msg); err != nil {
			h.remove(c)
		}
		cancel()
	}
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// =============================================================================
// 🌐 连接处理
// =============================================================================

// HandleWS GET /ws
// 升级连接前按客户端 IP 做连接级限流。
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	clientID := handlers.ClientIP(r)

	if res := h.hive.Limiters().WebSocket.Check(clientID); !res.Allowed {
		handlers.WriteError(r, w,
			types.NewResourceExhausted("websocket connections").WithHTTPStatus(http.StatusTooManyRequests),
			h.logger)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	client := &wsClient{conn: conn}
	h.add(client)

	h.logger.Info("websocket client connected", zap.String("client_id", clientID))

	go h.readLoop(client, clientID)
}

// readLoop 处理客户端请求直到连接关闭。
func (h *WSHub) readLoop(c *wsClient, clientID string) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "closing")
		h.logger.Info("websocket client disconnected", zap.String("client_id", clientID))
	}()

	for {
		var req WSRequest
		if err := wsjson.Read(h.ctx, c.conn, &req); err != nil {
			return
		}

		resp := h.dispatch(clientID, req)
		ctx, cancel := context.WithTimeout(h.ctx, 5*time.Second)
		err := c.send(ctx, resp)
		cancel()
		if err != nil {
			return
		}
	}
}

// dispatch 执行单条客户端请求并构造响应。
func (h *WSHub) dispatch(clientID string, req WSRequest) WSMessage {
	now := time.Now().UTC()

	switch req.Action {
	case "create_agent":
		var payload api.CreateAgentPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return wsError("invalid create_agent payload: " + err.Error())
		}
		id, err := h.hive.CreateAgent(h.ctx, clientID, payload.ToRequest())
		if err != nil {
			return wsError(err.Error())
		}
		return WSMessage{
			MessageType: "agent_created",
			Data:        api.AgentCreatedResponse{AgentID: id},
			Timestamp:   now,
		}

	case "create_task":
		var payload api.CreateTaskPayload
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			return wsError("invalid create_task payload: " + err.Error())
		}
		taskReq, err := payload.ToRequest()
		if err != nil {
			return wsError(err.Error())
		}
		id, err := h.hive.SubmitTask(h.ctx, clientID, taskReq)
		if err != nil {
			return wsError(err.Error())
		}
		return WSMessage{
			MessageType: "task_created",
			Data:        api.TaskCreatedResponse{TaskID: id},
			Timestamp:   now,
		}

	case "get_status":
		status, err := h.hive.Status()
		if err != nil {
			return wsError(err.Error())
		}
		return WSMessage{
			MessageType: "hive_status",
			Data:        json.RawMessage(status),
			Timestamp:   now,
		}

	default:
		return wsError("unknown action: " + req.Action)
	}
}

func wsError(message string) WSMessage {
	return WSMessage{
		MessageType: "error",
		Data:        map[string]string{"message": message},
		Timestamp:   time.Now().UTC(),
	}
}
