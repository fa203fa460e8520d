package cache

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// ManagerConfig 缓存管理器配置（按类别划分）
type ManagerConfig struct {
	Agents Config `yaml:"agents" json:"agents"`
	Tasks  Config `yaml:"tasks" json:"tasks"`
	Status Config `yaml:"status" json:"status"`
}

// DefaultManagerConfig 返回默认缓存管理器配置
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Agents: Config{TTL: 5 * time.Minute, MaxEntries: 1000, SweepInterval: 60 * time.Second},
		Tasks:  Config{TTL: 10 * time.Minute, MaxEntries: 5000, SweepInterval: 60 * time.Second},
		Status: Config{TTL: 30 * time.Second, MaxEntries: 100, SweepInterval: 60 * time.Second},
	}
}

// Manager 按类别组织的缓存集合：Agent 快照、任务快照、状态摘要。
type Manager struct {
	Agents *Cache[uuid.UUID, types.Agent]
	Tasks  *Cache[uuid.UUID, types.Task]
	Status *Cache[string, json.RawMessage]

	logger *zap.Logger
}

// NewManager 创建缓存管理器
func NewManager(config ManagerConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		Agents: New[uuid.UUID, types.Agent](config.Agents),
		Tasks:  New[uuid.UUID, types.Task](config.Tasks),
		Status: New[string, json.RawMessage](config.Status),
		logger: logger.With(zap.String("component", "cache")),
	}

	m.logger.Info("cache manager initialized",
		zap.Int("agent_capacity", config.Agents.MaxEntries),
		zap.Int("task_capacity", config.Tasks.MaxEntries),
		zap.Int("status_capacity", config.Status.MaxEntries),
	)

	return m
}

// InvalidateAgent 移除某个 Agent 的缓存快照，并使状态摘要失效。
func (m *Manager) InvalidateAgent(id uuid.UUID) {
	m.Agents.Remove(id)
	m.Status.Clear()
}

// InvalidateTask 移除某个任务的缓存快照。
func (m *Manager) InvalidateTask(id uuid.UUID) {
	m.Tasks.Remove(id)
}

// Close 停止所有后台清扫。
func (m *Manager) Close() {
	m.Agents.Close()
	m.Tasks.Close()
	m.Status.Close()
	m.logger.Info("closing cache manager")
}

// AllStats 汇总各类缓存统计。
func (m *Manager) AllStats() map[string]Stats {
	return map[string]Stats{
		"agents": m.Agents.GetStats(),
		"tasks":  m.Tasks.GetStats(),
		"status": m.Status.GetStats(),
	}
}
