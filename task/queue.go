// Package task 提供混合任务队列。
//
// 队列由两层组成：全局优先级 FIFO 与每个 Agent 的本地双端队列。
// Agent 取任务的顺序是：本地队首 → 全局最高优先级 → 随机窃取
// 至多三个其他 Agent 的队尾。窃取只在受害者队列长度大于 1 时发生。
package task

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// maxStealVictims 单次取任务尝试窃取的最大受害者数。
const maxStealVictims = 3

// Config 队列配置
type Config struct {
	// Capacity 全局与本地队列合计的容量上限
	Capacity int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Capacity: 10000}
}

// Queue 混合任务队列
type Queue struct {
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	global []*types.Task
	local  map[uuid.UUID]*deque
	rng    *rand.Rand

	steals        uint64
	stealAttempts uint64

	notify chan struct{}
}

// NewQueue 创建队列。
func NewQueue(config Config, logger *zap.Logger) *Queue {
	if config.Capacity <= 0 {
		config.Capacity = DefaultConfig().Capacity
	}

	return &Queue{
		config: config,
		logger: logger.With(zap.String("component", "task_queue")),
		local:  make(map[uuid.UUID]*deque),
		rng:    rand.New(rand.NewSource(rand.Int63())),
		notify: make(chan struct{}, 1),
	}
}

// Push 把任务放入全局队列。队列满时返回 RESOURCE_EXHAUSTED。
func (q *Queue) Push(t *types.Task) error {
	q.mu.Lock()

	if q.sizeLocked() >= q.config.Capacity {
		q.mu.Unlock()
		return types.NewResourceExhausted("task_queue").WithHTTPStatus(429)
	}

	q.global = append(q.global, t)
	// 全局队列保持 优先级降序、同级按创建时间升序
	sort.SliceStable(q.global, func(i, j int) bool {
		ri, rj := q.global[i].Priority.Rank(), q.global[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return q.global[i].CreatedAt.Before(q.global[j].CreatedAt)
	})
	q.mu.Unlock()

	q.wake()
	return nil
}

// PushLocal 把任务放到某 Agent 本地队列的队首（重投递走快路径）。
// Agent 的本地队列不存在时退回全局队列。
func (q *Queue) PushLocal(agentID uuid.UUID, t *types.Task) error {
	q.mu.Lock()

	if q.sizeLocked() >= q.config.Capacity {
		q.mu.Unlock()
		return types.NewResourceExhausted("task_queue").WithHTTPStatus(429)
	}

	d, ok := q.local[agentID]
	if !ok {
		q.mu.Unlock()
		return q.Push(t)
	}
	d.pushFront(t)
	q.mu.Unlock()

	q.wake()
	return nil
}

// RegisterAgent 为 Agent 建立本地队列。
func (q *Queue) RegisterAgent(agentID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.local[agentID]; !ok {
		q.local[agentID] = &deque{}
	}
}

// UnregisterAgent 撤销 Agent 的本地队列，
// 尚未执行的任务退回全局队列。
func (q *Queue) UnregisterAgent(agentID uuid.UUID) {
	q.mu.Lock()

	d, ok := q.local[agentID]
	if !ok {
		q.mu.Unlock()
		return
	}
	delete(q.local, agentID)

	requeued := len(d.items)
	q.global = append(q.global, d.items...)
	sort.SliceStable(q.global, func(i, j int) bool {
		ri, rj := q.global[i].Priority.Rank(), q.global[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return q.global[i].CreatedAt.Before(q.global[j].CreatedAt)
	})
	q.mu.Unlock()

	if requeued > 0 {
		q.logger.Info("requeued tasks from removed agent",
			zap.String("agent_id", agentID.String()),
			zap.Int("count", requeued),
		)
		q.wake()
	}
}

// Take 为 Agent 取下一个任务。fits 用于判断 Agent 能否承接任务
// （能力匹配等），为 nil 时接受所有任务。取不到返回 nil。
func (q *Queue) Take(agentID uuid.UUID, fits func(*types.Task) bool) *types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	// 1. 本地队首
	if d, ok := q.local[agentID]; ok {
		if t := d.popFront(); t != nil {
			return t
		}
	}

	// 2. 全局队列，按优先级顺序找第一个可承接的任务
	for i, t := range q.global {
		if fits == nil || fits(t) {
			q.global = append(q.global[:i], q.global[i+1:]...)
			return t
		}
	}

	// 3. 随机窃取至多三个受害者的队尾
	q.stealAttempts++
	victims := make([]uuid.UUID, 0, len(q.local))
	for id, d := range q.local {
		if id != agentID && d.len() > 1 {
			victims = append(victims, id)
		}
	}
	q.rng.Shuffle(len(victims), func(i, j int) {
		victims[i], victims[j] = victims[j], victims[i]
	})
	if len(victims) > maxStealVictims {
		victims = victims[:maxStealVictims]
	}

	for _, victim := range victims {
		d := q.local[victim]
		// 从队尾向前找可承接的任务
		for i := d.len() - 1; i >= 1; i-- {
			t := d.items[i]
			if fits == nil || fits(t) {
				d.items = append(d.items[:i], d.items[i+1:]...)
				q.steals++
				q.logger.Debug("task stolen",
					zap.String("thief", agentID.String()),
					zap.String("victim", victim.String()),
					zap.String("task_id", t.ID.String()),
				)
				return t
			}
		}
	}

	return nil
}

// Cancel 把仍在排队的任务移出队列，返回被移除的任务。
func (q *Queue) Cancel(taskID uuid.UUID) *types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.global {
		if t.ID == taskID {
			q.global = append(q.global[:i], q.global[i+1:]...)
			return t
		}
	}
	for _, d := range q.local {
		if t := d.removeByID(taskID); t != nil {
			return t
		}
	}
	return nil
}

// DrainAll 取出所有排队中的任务（关停时调用）。
func (q *Queue) DrainAll() []*types.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.global
	q.global = nil
	for _, d := range q.local {
		out = append(out, d.items...)
		d.items = nil
	}
	return out
}

// Size 返回排队中的任务总数（全局 + 所有本地队列）。
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

// IsFull 返回队列是否已达容量上限。
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked() >= q.config.Capacity
}

// Steals 返回累计成功窃取次数。
func (q *Queue) Steals() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.steals
}

// StealAttempts 返回到达窃取阶段的取任务次数(含未窃取到的)。
func (q *Queue) StealAttempts() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stealAttempts
}

// Capacity 返回队列容量上限。
func (q *Queue) Capacity() int {
	return q.config.Capacity
}

// Notify 返回入队通知通道。调度器在空转时等待该通道。
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) sizeLocked() int {
	n := len(q.global)
	for _, d := range q.local {
		n += d.len()
	}
	return n
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
