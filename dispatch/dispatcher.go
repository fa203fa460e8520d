// Package dispatch 提供任务调度器。
//
// 调度器把队列中的任务分派给最合适的 Agent：按性能分降序、
// 在途任务数升序、注册先后排序候选。并发度由加权信号量约束，
// 每次执行受熔断器保护并带有截止时间。
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/do-ops885/ai-orchestrator-hub/agent"
	"github.com/do-ops885/ai-orchestrator-hub/internal/circuitbreaker"
	"github.com/do-ops885/ai-orchestrator-hub/task"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// 熔断回退的等待区间。
const (
	minBackoff = 200 * time.Millisecond
	maxBackoff = 5 * time.Second
)

// Config 调度器配置
type Config struct {
	// Parallelism 并发执行上限
	Parallelism int

	// DefaultTimeout 任务无预估时长且 Agent 无限额时的兜底超时
	DefaultTimeout time.Duration

	// TerminalHistory 终态任务保留条数
	TerminalHistory int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Parallelism:     4,
		DefaultTimeout:  5 * time.Minute,
		TerminalHistory: 10000,
	}
}

// TaskRecord 任务的当前状态与（终态时的）执行结果。
type TaskRecord struct {
	Task   types.Task        `json:"task"`
	Result *types.TaskResult `json:"result,omitempty"`
}

// Dispatcher 任务调度器
type Dispatcher struct {
	config   Config
	registry *agent.Registry
	queue    *task.Queue
	breakers *circuitbreaker.Group
	executor Executor
	publish  func(types.Event)
	logger   *zap.Logger

	// par 是当前生效的并发度,可由资源调节器在运行中收缩;
	// config.Parallelism 是硬上限。slotFree 在槽位释放时唤醒调度循环。
	par      atomic.Int64
	inflight atomic.Int64
	slotFree chan struct{}

	mu       sync.Mutex
	live     map[uuid.UUID]*types.Task
	running  map[uuid.UUID]context.CancelFunc
	terminal map[uuid.UUID]*TaskRecord
	termRing []uuid.UUID

	completed uint64
	failed    uint64

	wg sync.WaitGroup
}

// New 创建调度器。executor 为 nil 时使用模拟执行器。
func New(
	config Config,
	registry *agent.Registry,
	queue *task.Queue,
	breakers *circuitbreaker.Group,
	executor Executor,
	publish func(types.Event),
	logger *zap.Logger,
) *Dispatcher {
	def := DefaultConfig()
	if config.Parallelism <= 0 {
		config.Parallelism = def.Parallelism
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = def.DefaultTimeout
	}
	if config.TerminalHistory <= 0 {
		config.TerminalHistory = def.TerminalHistory
	}
	if executor == nil {
		executor = &SimulatedExecutor{}
	}

	d := &Dispatcher{
		config:   config,
		registry: registry,
		queue:    queue,
		breakers: breakers,
		executor: executor,
		publish:  publish,
		logger:   logger.With(zap.String("component", "dispatcher")),
		slotFree: make(chan struct{}, 1),
		live:     make(map[uuid.UUID]*types.Task),
		running:  make(map[uuid.UUID]context.CancelFunc),
		terminal: make(map[uuid.UUID]*TaskRecord),
	}
	d.par.Store(int64(config.Parallelism))
	return d
}

// =============================================================================
// 📥 任务入口
// =============================================================================

// Submit 接收任务进入队列。
func (d *Dispatcher) Submit(t *types.Task) error {
	if err := d.queue.Push(t); err != nil {
		return err
	}

	d.mu.Lock()
	d.live[t.ID] = t
	d.mu.Unlock()

	d.logger.Info("task submitted",
		zap.String("task_id", t.ID.String()),
		zap.String("priority", string(t.Priority)),
	)
	return nil
}

// Get 查询任务记录。
func (d *Dispatcher) Get(id uuid.UUID) (TaskRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.terminal[id]; ok {
		return *rec, true
	}
	if t, ok := d.live[id]; ok {
		return TaskRecord{Task: t.Clone()}, true
	}
	return TaskRecord{}, false
}

// Cancel 取消任务。排队中的任务立即终态；
// 运行中的任务通过取消其执行上下文终止。
func (d *Dispatcher) Cancel(id uuid.UUID) error {
	// 仍在排队：直接移出并终态
	if t := d.queue.Cancel(id); t != nil {
		d.finishCancelled(t)
		return nil
	}

	d.mu.Lock()
	cancel, running := d.running[id]
	_, known := d.live[id]
	d.mu.Unlock()

	if running {
		cancel()
		return nil
	}
	if known {
		// 已被取走但尚未进入运行表的窄窗口，按不可取消处理
		return types.NewError(types.ErrTaskNotFound, "task is being dispatched").WithHTTPStatus(409)
	}
	return types.NewError(types.ErrTaskNotFound, "task not found").WithHTTPStatus(404)
}

// Stats 返回累计完成与失败计数。
func (d *Dispatcher) Stats() (completed, failed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.completed, d.failed
}

// Parallelism 返回当前生效的并发度。
func (d *Dispatcher) Parallelism() int {
	return int(d.par.Load())
}

// SetParallelism 调整生效并发度,夹在 [1, config.Parallelism] 区间。
// 收缩只影响新的分派,在途任务不受影响。
func (d *Dispatcher) SetParallelism(n int) {
	if n < 1 {
		n = 1
	}
	if n > d.config.Parallelism {
		n = d.config.Parallelism
	}
	if d.par.Swap(int64(n)) != int64(n) {
		d.logger.Info("parallelism adjusted", zap.Int("parallelism", n))
		d.nudge()
	}
}

// nudge 唤醒调度循环重新评估容量。
func (d *Dispatcher) nudge() {
	select {
	case d.slotFree <- struct{}{}:
	default:
	}
}

// =============================================================================
// 🔄 调度循环
// =============================================================================

// Run 运行调度循环直到 ctx 取消，随后排空队列并等待在途任务。
func (d *Dispatcher) Run(ctx context.Context) {
	sem := semaphore.NewWeighted(int64(d.config.Parallelism))
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return
		default:
		}

		if d.dispatchOnce(ctx, sem) {
			backoff = minBackoff
			continue
		}

		select {
		case <-ctx.Done():
			d.shutdown()
			return
		case <-d.queue.Notify():
			backoff = minBackoff
		case <-d.slotFree:
			backoff = minBackoff
		case <-time.After(backoff):
			// 指数回退，避免在熔断或无候选时空转
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

// dispatchOnce 尝试分派一个任务，成功返回 true。
func (d *Dispatcher) dispatchOnce(ctx context.Context, sem *semaphore.Weighted) bool {
	// 生效并发度可能已被调节器收缩到信号量容量之下
	if d.inflight.Load() >= d.par.Load() {
		return false
	}

	views := d.registry.Snapshot()

	// 候选排序：性能分降序 → 在途数升序 → 注册先后
	sort.SliceStable(views, func(i, j int) bool {
		si, sj := views[i].Agent.Metrics.PerformanceScore, views[j].Agent.Metrics.PerformanceScore
		if si != sj {
			return si > sj
		}
		if views[i].InFlight != views[j].InFlight {
			return views[i].InFlight < views[j].InFlight
		}
		return views[i].Seq < views[j].Seq
	})

	for _, v := range views {
		a := v.Agent
		if a.State != types.AgentActive && a.State != types.AgentIdle {
			continue
		}
		if a.Limits.MaxConcurrentTasks > 0 && v.InFlight >= a.Limits.MaxConcurrentTasks {
			continue
		}

		fits := func(t *types.Task) bool {
			return a.CanHandle(t.RequiredCapabilities) && d.depsSatisfied(t)
		}
		t := d.queue.Take(a.ID, fits)
		if t == nil {
			continue
		}

		br := d.breakers.Get(a.ID)
		if err := br.Allow(); err != nil {
			// 熔断拒绝不计失败，任务退回队列换下一个候选
			if pushErr := d.queue.Push(t); pushErr != nil {
				d.failTask(t, a.ID, "queue full during circuit breaker requeue")
			}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			// 关停路径：任务退回队列，由 shutdown 统一处理
			br.RecordSuccess()
			if pushErr := d.queue.Push(t); pushErr != nil {
				d.failTask(t, a.ID, "queue full during shutdown requeue")
			}
			return false
		}

		d.launch(ctx, sem, br, a, t)
		return true
	}

	return false
}

// launch 启动一次任务执行。
func (d *Dispatcher) launch(ctx context.Context, sem *semaphore.Weighted, br *circuitbreaker.Breaker, a types.Agent, t *types.Task) {
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deadline(a, t))

	d.registry.IncInFlight(a.ID)

	now := time.Now().UTC()
	d.mu.Lock()
	t.Status = types.TaskRunning
	t.AssignedAgent = &a.ID
	t.AssignedAt = &now
	d.running[t.ID] = cancel
	d.mu.Unlock()

	d.logger.Debug("task dispatched",
		zap.String("task_id", t.ID.String()),
		zap.String("agent_id", a.ID.String()),
	)

	d.wg.Add(1)
	d.inflight.Add(1)
	go func() {
		defer func() {
			d.inflight.Add(-1)
			d.nudge()
			d.wg.Done()
		}()
		defer sem.Release(1)
		defer cancel()
		defer d.registry.DecInFlight(a.ID)
		d.perform(execCtx, br, a, t)
	}()
}

// perform 运行执行器并完成终态处理,返回最终结果。
func (d *Dispatcher) perform(execCtx context.Context, br *circuitbreaker.Breaker, a types.Agent, t *types.Task) types.TaskResult {
	start := time.Now()
	result, err := d.execute(execCtx, a, *t)
	elapsed := time.Since(start)

	d.mu.Lock()
	delete(d.running, t.ID)
	d.mu.Unlock()

	if err != nil {
		result = types.TaskResult{
			TaskID:          t.ID,
			AgentID:         a.ID,
			Success:         false,
			ExecutionTimeMS: uint64(elapsed.Milliseconds()),
			Error:           err.Error(),
			CompletedAt:     time.Now().UTC(),
		}
	}
	if result.ExecutionTimeMS == 0 {
		result.ExecutionTimeMS = uint64(elapsed.Milliseconds())
	}

	ctxErr := execCtx.Err()
	if ctxErr != context.Canceled {
		// 主动取消不计入 Agent 的成败统计
		if result.Success {
			br.RecordSuccess()
		} else {
			br.RecordFailure()
		}
		d.registry.UpdateMetrics(a.ID, result.ExecutionTimeMS, result.Success)
	} else {
		br.RecordSuccess()
	}

	d.finish(t, &result, ctxErr)
	return result
}

// ExecuteWith 同步地把一个排队中的任务交给指定 Agent 执行,绕过候选选择。
// 任务必须仍在队列中;运行中或终态任务不可重新指派。
func (d *Dispatcher) ExecuteWith(ctx context.Context, taskID, agentID uuid.UUID) (types.TaskResult, error) {
	a, ok := d.registry.Get(agentID)
	if !ok {
		return types.TaskResult{}, types.NewError(types.ErrAgentNotFound, "agent not found").WithHTTPStatus(404)
	}

	t := d.queue.Cancel(taskID)
	if t == nil {
		return types.TaskResult{}, types.NewError(types.ErrTaskNotFound, "task not queued").WithHTTPStatus(404)
	}

	if !a.CanHandle(t.RequiredCapabilities) {
		_ = d.queue.Push(t)
		return types.TaskResult{}, types.NewValidationError("agent lacks required capabilities").
			WithField("agent_id", "does not cover the task's required capabilities")
	}

	br := d.breakers.Get(a.ID)
	if err := br.Allow(); err != nil {
		_ = d.queue.Push(t)
		return types.TaskResult{}, types.NewError(types.ErrCircuitBreakerOpen, "agent circuit open").
			WithHTTPStatus(503).WithRetryable(true)
	}

	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.deadline(a, t))
	defer cancel()

	d.registry.IncInFlight(a.ID)
	defer d.registry.DecInFlight(a.ID)

	now := time.Now().UTC()
	d.mu.Lock()
	t.Status = types.TaskRunning
	t.AssignedAgent = &a.ID
	t.AssignedAt = &now
	d.running[t.ID] = cancel
	d.mu.Unlock()

	return d.perform(execCtx, br, a, t), nil
}

// depsSatisfied 检查任务的全部依赖是否已成功完成。
func (d *Dispatcher) depsSatisfied(t *types.Task) bool {
	if len(t.Dependencies) == 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dep := range t.Dependencies {
		rec, ok := d.terminal[dep]
		if !ok || rec.Task.Status != types.TaskCompleted {
			return false
		}
	}
	return true
}

// execute 以 panic 保护运行执行器。执行器 panic 视为任务失败。
func (d *Dispatcher) execute(ctx context.Context, a types.Agent, t types.Task) (result types.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("executor panic",
				zap.String("task_id", t.ID.String()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return d.executor.Execute(ctx, a, t)
}

// deadline 计算本次执行的超时：预估时长的两倍与 Agent 限额取小。
func (d *Dispatcher) deadline(a types.Agent, t *types.Task) time.Duration {
	limit := a.Limits.TaskTimeout
	if limit <= 0 {
		limit = d.config.DefaultTimeout
	}
	if t.EstimatedDuration > 0 {
		if est := 2 * t.EstimatedDuration; est < limit {
			return est
		}
	}
	return limit
}

// =============================================================================
// 🏁 终态处理
// =============================================================================

func (d *Dispatcher) finish(t *types.Task, result *types.TaskResult, ctxErr error) {
	now := time.Now().UTC()

	d.mu.Lock()
	t.CompletedAt = &now
	switch {
	case result.Success:
		t.Status = types.TaskCompleted
	case ctxErr == context.Canceled:
		t.Status = types.TaskCancelled
	default:
		t.Status = types.TaskFailed
		if ctxErr == context.DeadlineExceeded {
			// 超时失败统一为固定错误串,不透传执行器的 ctx 错误文案
			result.Error = "timeout"
		}
	}
	d.mu.Unlock()

	d.recordTerminal(t, result)

	d.logger.Info("task finished",
		zap.String("task_id", t.ID.String()),
		zap.String("status", string(t.Status)),
		zap.Uint64("execution_time_ms", result.ExecutionTimeMS),
	)
}

func (d *Dispatcher) finishCancelled(t *types.Task) {
	now := time.Now().UTC()
	d.mu.Lock()
	t.Status = types.TaskCancelled
	t.CompletedAt = &now
	d.mu.Unlock()
	d.recordTerminal(t, &types.TaskResult{
		TaskID:      t.ID,
		Success:     false,
		Error:       "cancelled",
		CompletedAt: now,
	})

	d.logger.Info("task cancelled", zap.String("task_id", t.ID.String()))
}

func (d *Dispatcher) failTask(t *types.Task, agentID uuid.UUID, reason string) {
	now := time.Now().UTC()
	d.mu.Lock()
	t.Status = types.TaskFailed
	t.CompletedAt = &now
	d.mu.Unlock()
	d.recordTerminal(t, &types.TaskResult{
		TaskID:      t.ID,
		AgentID:     agentID,
		Success:     false,
		Error:       reason,
		CompletedAt: now,
	})
}

// recordTerminal 把任务移入终态环形历史,并广播终态事件。
// 每次终态转换恰好发布一次,无论走哪条路径(完成、取消、关停排空)。
func (d *Dispatcher) recordTerminal(t *types.Task, result *types.TaskResult) {
	d.mu.Lock()

	delete(d.live, t.ID)

	if result != nil && result.Success {
		d.completed++
	} else if t.Status == types.TaskFailed {
		d.failed++
	}

	clone := t.Clone()
	d.terminal[t.ID] = &TaskRecord{Task: clone, Result: result}
	d.termRing = append(d.termRing, t.ID)

	for len(d.termRing) > d.config.TerminalHistory {
		evict := d.termRing[0]
		d.termRing = d.termRing[1:]
		delete(d.terminal, evict)
	}
	d.mu.Unlock()

	if d.publish != nil && result != nil {
		d.publish(types.TaskCompletedEvent(t.ID, result.AgentID, *result))
	}
}

// shutdown 排空队列：未执行的任务标记失败，等待在途任务结束。
func (d *Dispatcher) shutdown() {
	drained := d.queue.DrainAll()
	for _, t := range drained {
		now := time.Now().UTC()
		d.mu.Lock()
		t.Status = types.TaskFailed
		t.CompletedAt = &now
		d.mu.Unlock()
		d.recordTerminal(t, &types.TaskResult{
			TaskID:      t.ID,
			Success:     false,
			Error:       "shutdown",
			CompletedAt: now,
		})
	}

	if len(drained) > 0 {
		d.logger.Info("drained queue on shutdown", zap.Int("failed_tasks", len(drained)))
	}

	d.wg.Wait()
}
