// Package ratelimit 提供按客户端维度的固定窗口限流。
//
// 每个客户端在窗口内允许固定次数的操作，窗口到期后计数重置。
// 长时间不活跃的客户端会被后台清理，避免状态无限增长。
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🚦 固定窗口限流器
// =============================================================================

// Config 限流器配置
type Config struct {
	// 每窗口允许的请求数
	Limit int

	// 窗口长度
	Window time.Duration

	// 空闲客户端回收阈值
	IdleExpiry time.Duration

	// 清理间隔（0 表示不启动后台清理）
	CleanupInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Limit:           100,
		Window:          time.Minute,
		IdleExpiry:      time.Hour,
		CleanupInterval: 5 * time.Minute,
	}
}

// Result 单次限流判定结果
type Result struct {
	// 是否放行
	Allowed bool `json:"allowed"`
	// 当前窗口剩余额度
	Remaining int `json:"remaining"`
	// 当前窗口重置时间
	ResetAt time.Time `json:"reset_at"`
	// 当前窗口已计数
	CurrentCount int `json:"current_count"`
}

type window struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// Limiter 固定窗口限流器，按客户端标识隔离计数。
type Limiter struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*window

	denied uint64

	stop chan struct{}
	once sync.Once
}

// New 创建限流器。非法配置会被修正为默认值。
func New(config Config, logger *zap.Logger) *Limiter {
	def := DefaultConfig()
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.IdleExpiry <= 0 {
		config.IdleExpiry = def.IdleExpiry
	}

	l := &Limiter{
		config:  config,
		logger:  logger.With(zap.String("component", "rate_limiter")),
		clients: make(map[string]*window),
		stop:    make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go l.cleanupLoop()
	}

	return l
}

// Check 判定并消费一次额度。放行时计数加一；拒绝时计数不变。
func (l *Limiter) Check(clientID string) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.config.Window {
		// 新客户端或窗口已过期，开新窗口
		w = &window{start: now}
		l.clients[clientID] = w
	}
	w.lastSeen = now

	if w.count >= l.config.Limit {
		l.denied++
		l.logger.Debug("rate limit exceeded",
			zap.String("client_id", clientID),
			zap.Int("count", w.count),
		)
		return Result{
			Allowed:      false,
			Remaining:    0,
			ResetAt:      w.start.Add(l.config.Window),
			CurrentCount: w.count,
		}
	}

	w.count++
	return Result{
		Allowed:      true,
		Remaining:    l.config.Limit - w.count,
		ResetAt:      w.start.Add(l.config.Window),
		CurrentCount: w.count,
	}
}

// Status 查询当前窗口状态，不消费额度。
func (l *Limiter) Status(clientID string) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) >= l.config.Window {
		return Result{
			Allowed:      true,
			Remaining:    l.config.Limit,
			ResetAt:      now.Add(l.config.Window),
			CurrentCount: 0,
		}
	}

	return Result{
		Allowed:      w.count < l.config.Limit,
		Remaining:    max(0, l.config.Limit-w.count),
		ResetAt:      w.start.Add(l.config.Window),
		CurrentCount: w.count,
	}
}

// ClientCount 返回当前被跟踪的客户端数。
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// DeniedCount 返回累计拒绝次数。
func (l *Limiter) DeniedCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.denied
}

// Close 停止后台清理。
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

// cleanupLoop 周期性回收空闲客户端
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *Limiter) cleanup() {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.clients {
		if now.Sub(w.lastSeen) > l.config.IdleExpiry {
			delete(l.clients, id)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("cleaned up idle rate limit clients", zap.Int("removed", removed))
	}
}
