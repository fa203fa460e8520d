package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	hive "github.com/do-ops885/ai-orchestrator-hub"
)

// 工具调用超时
const toolCallTimeout = 30 * time.Second

// ToolHandler 工具处理接口。实现方在 Execute 中完成实际工作,
// Schema 返回参数的 JSON Schema,Description 返回一行描述。
type ToolHandler interface {
	Execute(ctx context.Context, params map[string]any) (any, error)
	Schema() map[string]any
	Description() string
}

// Server 把协调器的能力以 MCP 工具形式暴露给任意 MCP 客户端。
type Server struct {
	info  ServerInfo
	hive  *hive.Hive
	tools map[string]ToolHandler
	cache *toolCache

	logger *zap.Logger
}

// NewServer 创建 MCP 服务器并注册全部工具。
// 只读工具会被结果缓存包装,写操作工具直接透传。
func NewServer(h *hive.Hive, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		info: ServerInfo{
			Name:        "hive-mcp",
			Version:     "1.0.0",
			Description: "Multi-agent hive coordination MCP server",
		},
		hive:   h,
		tools:  make(map[string]ToolHandler),
		cache:  newToolCache(30 * time.Second),
		logger: logger.With(zap.String("component", "mcp_server")),
	}

	s.RegisterTool("create_swarm_agent", &createSwarmAgentTool{hive: h})
	s.RegisterTool("assign_swarm_task", &assignSwarmTaskTool{hive: h})
	s.RegisterTool("get_swarm_status", &getSwarmStatusTool{hive: h})
	s.RegisterTool("analyze_with_nlp", &analyzeWithNLPTool{analyzer: &LexiconAnalyzer{}})
	s.RegisterTool("coordinate_agents", &coordinateAgentsTool{hive: h})
	s.RegisterTool("echo", &echoTool{})
	s.RegisterTool("system_info", &systemInfoTool{})

	return s
}

// RegisterTool 注册工具。只读工具自动被缓存装饰。
func (s *Server) RegisterTool(name string, handler ToolHandler) {
	if Cacheable(name) {
		handler = NewCachedToolHandler(name, handler, s.cache)
	}
	s.tools[name] = handler
	s.logger.Debug("tool registered", zap.String("name", name))
}

// HandleRequest 处理单条 JSON-RPC 请求并返回响应。
// 与工具名同名的 method 直接按 tools/call 分发。
func (s *Server) HandleRequest(ctx context.Context, req Message) Message {
	s.logger.Debug("handling mcp request",
		zap.String("method", req.Method),
		zap.Any("id", req.ID),
	)

	switch req.Method {
	case "initialize":
		return NewResponse(req.ID, s.handleInitialize())
	case "tools/list":
		return NewResponse(req.ID, s.handleListTools())
	case "tools/call":
		return s.handleCallTool(ctx, req)
	default:
		// 直接按工具名分发
		if _, ok := s.tools[req.Method]; ok {
			return s.dispatchTool(ctx, req.ID, req.Method, req.Params, false)
		}
		return NewErrorResponse(req.ID, ErrorCodeMethodNotFound,
			fmt.Sprintf("Method '%s' not found", req.Method), nil)
	}
}

func (s *Server) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": Capabilities{
			Tools:     true,
			Resources: false,
			Prompts:   false,
			Logging:   true,
		},
		"serverInfo": s.info,
	}
}

func (s *Server) handleListTools() map[string]any {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		handler := s.tools[name]
		tools = append(tools, ToolInfo{
			Name:        name,
			Description: handler.Description(),
			InputSchema: handler.Schema(),
		})
	}

	return map[string]any{"tools": tools}
}

// callToolParams tools/call 的参数结构
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleCallTool(ctx context.Context, req Message) Message {
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, ErrorCodeInvalidParams, "Missing parameters", nil)
	}

	var params callToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrorCodeInvalidParams, "Invalid parameters", err.Error())
	}
	if params.Name == "" {
		return NewErrorResponse(req.ID, ErrorCodeInvalidParams, "Missing tool name", nil)
	}

	if _, ok := s.tools[params.Name]; !ok {
		return NewErrorResponse(req.ID, ErrorCodeToolNotFound,
			fmt.Sprintf("Tool '%s' not found", params.Name), nil)
	}

	return s.dispatchTool(ctx, req.ID, params.Name, params.Arguments, true)
}

// dispatchTool 执行工具并构造响应。wrapContent 为 true 时
// 按 MCP tools/call 规范把结果包进 content 数组。
func (s *Server) dispatchTool(ctx context.Context, id any, name string, rawArgs json.RawMessage, wrapContent bool) Message {
	args := make(map[string]any)
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return NewErrorResponse(id, ErrorCodeInvalidParams, "Invalid tool arguments", err.Error())
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	result, err := s.tools[name].Execute(callCtx, args)
	if err != nil {
		s.logger.Warn("tool call failed", zap.String("name", name), zap.Error(err))
		return NewErrorResponse(id, ErrorCodeInternalError,
			fmt.Sprintf("Tool execution failed: %v", err),
			map[string]any{"tool": name, "error": err.Error()})
	}

	s.logger.Debug("tool call succeeded", zap.String("name", name))

	if !wrapContent {
		return NewResponse(id, result)
	}

	text, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrorCodeInternalError, "Failed to encode tool result", err.Error())
	}

	return NewResponse(id, map[string]any{
		"content": []map[string]any{{
			"type": "text",
			"text": string(text),
		}},
	})
}

// Info 返回服务器信息。
func (s *Server) Info() ServerInfo { return s.info }

// CacheStats 返回工具结果缓存的命中统计。
func (s *Server) CacheStats() (hits, misses uint64) { return s.cache.Stats() }
