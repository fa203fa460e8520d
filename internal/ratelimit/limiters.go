package ratelimit

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🚦 按操作类别组织的限流器集合
// =============================================================================

// LimitersConfig 各操作类别的限流配置
type LimitersConfig struct {
	APILimit           int
	AgentCreationLimit int
	TaskCreationLimit  int
	WebSocketLimit     int
	Window             time.Duration
	IdleExpiry         time.Duration
}

// DefaultLimitersConfig 返回默认配置
func DefaultLimitersConfig() LimitersConfig {
	return LimitersConfig{
		APILimit:           100,
		AgentCreationLimit: 10,
		TaskCreationLimit:  50,
		WebSocketLimit:     5,
		Window:             time.Minute,
		IdleExpiry:         time.Hour,
	}
}

// Limiters 按操作类别划分的限流器集合。
// 各类别的计数相互独立。
type Limiters struct {
	API           *Limiter
	AgentCreation *Limiter
	TaskCreation  *Limiter
	WebSocket     *Limiter
}

// NewLimiters 创建限流器集合
func NewLimiters(config LimitersConfig, logger *zap.Logger) *Limiters {
	def := DefaultLimitersConfig()
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.IdleExpiry <= 0 {
		config.IdleExpiry = def.IdleExpiry
	}

	mk := func(limit, fallback int, category string) *Limiter {
		if limit <= 0 {
			limit = fallback
		}
		return New(Config{
			Limit:           limit,
			Window:          config.Window,
			IdleExpiry:      config.IdleExpiry,
			CleanupInterval: 5 * time.Minute,
		}, logger.With(zap.String("category", category)))
	}

	return &Limiters{
		API:           mk(config.APILimit, def.APILimit, "api"),
		AgentCreation: mk(config.AgentCreationLimit, def.AgentCreationLimit, "agent_creation"),
		TaskCreation:  mk(config.TaskCreationLimit, def.TaskCreationLimit, "task_creation"),
		WebSocket:     mk(config.WebSocketLimit, def.WebSocketLimit, "websocket"),
	}
}

// Close 停止所有后台清理。
func (l *Limiters) Close() {
	l.API.Close()
	l.AgentCreation.Close()
	l.TaskCreation.Close()
	l.WebSocket.Close()
}

// TotalDenied 返回各类别累计拒绝次数之和。
func (l *Limiters) TotalDenied() uint64 {
	return l.API.DeniedCount() +
		l.AgentCreation.DeniedCount() +
		l.TaskCreation.DeniedCount() +
		l.WebSocket.DeniedCount()
}
