// Package agent 提供 Agent 注册表。
//
// 注册表按 ID 哈希分片以降低锁竞争，容量上限由资源调节器
// 动态决定。注册与注销是事务性的：容量检查与插入在同一临界区完成。
package agent

import (
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

const shardCount = 16

// CapacityFunc 返回当前允许的最大 Agent 数。
type CapacityFunc func() int

// View 是某个 Agent 的只读视图，附带调度所需的运行时信息。
type View struct {
	Agent    types.Agent
	InFlight int
	// Seq 注册序号，越小表示越早注册
	Seq uint64
}

type entry struct {
	agent    *types.Agent
	inFlight atomic.Int32
	seq      uint64
}

type shard struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*entry
}

// Registry Agent 注册表
type Registry struct {
	shards   [shardCount]*shard
	capacity CapacityFunc
	publish  func(types.Event)
	logger   *zap.Logger

	count atomic.Int64
	seq   atomic.Uint64

	// lateCompletions 记录 Agent 注销后才到达的任务完成回执
	lateCompletions atomic.Uint64
}

// NewRegistry 创建注册表。
// capacity 为 nil 时视为无上限；publish 为 nil 时不发布事件。
func NewRegistry(capacity CapacityFunc, publish func(types.Event), logger *zap.Logger) *Registry {
	r := &Registry{
		capacity: capacity,
		publish:  publish,
		logger:   logger.With(zap.String("component", "agent_registry")),
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[uuid.UUID]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id uuid.UUID) *shard {
	h := fnv.New32a()
	h.Write(id[:])
	return r.shards[h.Sum32()%shardCount]
}

// Register 注册 Agent。容量已满时返回 RESOURCE_EXHAUSTED。
func (r *Registry) Register(a *types.Agent) error {
	if a == nil {
		return types.NewError(types.ErrAgentCreation, "agent must not be nil")
	}
	if !types.ValidAgentType(a.Type) {
		return types.NewValidationError("invalid agent type",
			types.FieldError{Field: "type", Message: "unknown agent type"})
	}

	s := r.shardFor(a.ID)
	s.mu.Lock()

	if _, exists := s.entries[a.ID]; exists {
		s.mu.Unlock()
		return types.NewError(types.ErrAgentCreation, "agent id already registered")
	}

	// 容量检查与插入同处临界区：先占名额，超限则回滚
	newCount := r.count.Add(1)
	if r.capacity != nil {
		if limit := r.capacity(); limit > 0 && newCount > int64(limit) {
			r.count.Add(-1)
			s.mu.Unlock()
			return types.NewResourceExhausted("agents").WithHTTPStatus(503)
		}
	}

	e := &entry{agent: a, seq: r.seq.Add(1)}
	s.entries[a.ID] = e
	s.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", a.ID.String()),
		zap.String("name", a.Name),
		zap.String("type", string(a.Type)),
	)

	if r.publish != nil {
		r.publish(types.AgentRegisteredEvent(a.ID))
	}
	return nil
}

// Remove 注销 Agent，返回注销时的快照。
func (r *Registry) Remove(id uuid.UUID) (types.Agent, error) {
	s := r.shardFor(id)
	s.mu.Lock()

	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return types.Agent{}, types.NewError(types.ErrAgentNotFound, "agent not found").WithHTTPStatus(404)
	}

	delete(s.entries, id)
	r.count.Add(-1)
	snapshot := e.agent.Clone()
	s.mu.Unlock()

	r.logger.Info("agent removed", zap.String("agent_id", id.String()))

	if r.publish != nil {
		r.publish(types.AgentRemovedEvent(id))
	}
	return snapshot, nil
}

// Get 返回 Agent 的深拷贝快照。
func (r *Registry) Get(id uuid.UUID) (types.Agent, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return types.Agent{}, false
	}
	return e.agent.Clone(), true
}

// List 返回所有 Agent 快照，按注册顺序排列。
func (r *Registry) List() []types.Agent {
	views := r.Snapshot()
	out := make([]types.Agent, len(views))
	for i, v := range views {
		out[i] = v.Agent
	}
	return out
}

// Snapshot 返回所有 Agent 的调度视图，按注册顺序排列。
func (r *Registry) Snapshot() []View {
	var views []View
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			views = append(views, View{
				Agent:    e.agent.Clone(),
				InFlight: int(e.inFlight.Load()),
				Seq:      e.seq,
			})
		}
		s.mu.RUnlock()
	}

	sort.Slice(views, func(i, j int) bool { return views[i].Seq < views[j].Seq })
	return views
}

// Count 返回当前注册的 Agent 数。
func (r *Registry) Count() int {
	return int(r.count.Load())
}

// SetState 更新 Agent 状态。
func (r *Registry) SetState(id uuid.UUID, state types.AgentState) error {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return types.NewError(types.ErrAgentNotFound, "agent not found").WithHTTPStatus(404)
	}
	e.agent.State = state
	return nil
}

// UpdateMetrics 按任务结果更新 Agent 指标。
// Agent 已注销时计入迟到回执并返回 false。
func (r *Registry) UpdateMetrics(id uuid.UUID, executionTimeMS uint64, success bool) bool {
	s := r.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		r.lateCompletions.Add(1)
		r.logger.Debug("completion for removed agent", zap.String("agent_id", id.String()))
		return false
	}

	e.agent.Metrics.Recalculate(executionTimeMS, success, time.Now())
	return true
}

// IncInFlight 增加在途任务计数。Agent 不存在时返回 false。
func (r *Registry) IncInFlight(id uuid.UUID) bool {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.inFlight.Add(1)
	return true
}

// DecInFlight 减少在途任务计数。
func (r *Registry) DecInFlight(id uuid.UUID) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[id]; ok {
		if e.inFlight.Add(-1) < 0 {
			e.inFlight.Store(0)
		}
	}
}

// InFlight 返回某 Agent 的在途任务数。
func (r *Registry) InFlight(id uuid.UUID) int {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[id]; ok {
		return int(e.inFlight.Load())
	}
	return 0
}

// LateCompletions 返回迟到回执的累计次数。
func (r *Registry) LateCompletions() uint64 {
	return r.lateCompletions.Load()
}

// CountByState 按状态统计 Agent 数量。
func (r *Registry) CountByState() map[types.AgentState]int {
	out := make(map[types.AgentState]int)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			out[e.agent.State]++
		}
		s.mu.RUnlock()
	}
	return out
}
