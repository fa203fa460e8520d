package circuitbreaker

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Group 按 Agent 维度管理熔断器集合。
type Group struct {
	config Config
	logger *zap.Logger

	mu       sync.RWMutex
	breakers map[uuid.UUID]*Breaker
}

// NewGroup 创建熔断器组
func NewGroup(config Config, logger *zap.Logger) *Group {
	return &Group{
		config:   config,
		logger:   logger,
		breakers: make(map[uuid.UUID]*Breaker),
	}
}

// Get 获取（必要时创建）某 Agent 的熔断器。
func (g *Group) Get(id uuid.UUID) *Breaker {
	g.mu.RLock()
	b, ok := g.breakers[id]
	g.mu.RUnlock()
	if ok {
		return b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok = g.breakers[id]; ok {
		return b
	}

	b = New(g.config, g.logger.With(zap.String("agent_id", id.String())))
	g.breakers[id] = b
	return b
}

// Remove 移除某 Agent 的熔断器（Agent 注销时调用）。
func (g *Group) Remove(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.breakers, id)
}

// OpenCount 返回当前处于打开状态的熔断器数量。
func (g *Group) OpenCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, b := range g.breakers {
		if b.State() == StateOpen {
			count++
		}
	}
	return count
}

// Snapshot 返回各 Agent 熔断器的统计快照。
func (g *Group) Snapshot() map[uuid.UUID]Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[uuid.UUID]Stats, len(g.breakers))
	for id, b := range g.breakers {
		out[id] = b.GetStats()
	}
	return out
}
