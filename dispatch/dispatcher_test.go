// 调度器测试：候选排序、熔断、超时、取消与关停排空。
package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/agent"
	"github.com/do-ops885/ai-orchestrator-hub/internal/circuitbreaker"
	"github.com/do-ops885/ai-orchestrator-hub/task"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// recordingExecutor 记录执行调用，可注入结果。
type recordingExecutor struct {
	mu    sync.Mutex
	calls []uuid.UUID // agent IDs in call order
	fn    func(ctx context.Context, a types.Agent, t types.Task) (types.TaskResult, error)
}

func (e *recordingExecutor) Execute(ctx context.Context, a types.Agent, t types.Task) (types.TaskResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, a.ID)
	e.mu.Unlock()

	if e.fn != nil {
		return e.fn(ctx, a, t)
	}
	return types.TaskResult{TaskID: t.ID, AgentID: a.ID, Success: true, CompletedAt: time.Now()}, nil
}

func (e *recordingExecutor) agentCalls() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]uuid.UUID, len(e.calls))
	copy(out, e.calls)
	return out
}

type harness struct {
	registry   *agent.Registry
	queue      *task.Queue
	breakers   *circuitbreaker.Group
	executor   *recordingExecutor
	dispatcher *Dispatcher
	events     chan types.Event
	cancel     context.CancelFunc
	done       chan struct{}
}

func newHarness(t *testing.T, cfg Config, breakerCfg circuitbreaker.Config) *harness {
	t.Helper()

	h := &harness{
		registry: agent.NewRegistry(nil, nil, zap.NewNop()),
		queue:    task.NewQueue(task.DefaultConfig(), zap.NewNop()),
		breakers: circuitbreaker.NewGroup(breakerCfg, zap.NewNop()),
		executor: &recordingExecutor{},
		events:   make(chan types.Event, 256),
	}
	h.dispatcher = New(cfg, h.registry, h.queue, h.breakers, h.executor,
		func(ev types.Event) { h.events <- ev }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		h.dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) addAgent(t *testing.T, name string, caps ...types.Capability) *types.Agent {
	t.Helper()
	a := &types.Agent{
		ID:           uuid.New(),
		Name:         name,
		Type:         types.AgentWorker,
		State:        types.AgentActive,
		Capabilities: caps,
		Limits:       types.DefaultResourceLimits(),
	}
	require.NoError(t, h.registry.Register(a))
	h.queue.RegisterAgent(a.ID)
	return a
}

func (h *harness) waitTerminal(t *testing.T, id uuid.UUID) TaskRecord {
	t.Helper()
	var rec TaskRecord
	require.Eventually(t, func() bool {
		r, ok := h.dispatcher.Get(id)
		if ok && r.Task.Status.Terminal() {
			rec = r
			return true
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)
	return rec
}

func TestDispatcher_ExecutesSubmittedTask(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	a := h.addAgent(t, "worker")

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, types.TaskCompleted, rec.Task.Status)
	require.NotNil(t, rec.Result)
	assert.True(t, rec.Result.Success)
	require.NotNil(t, rec.Task.AssignedAgent)
	assert.Equal(t, a.ID, *rec.Task.AssignedAgent)

	// Agent 指标被更新
	got, _ := h.registry.Get(a.ID)
	assert.Equal(t, uint64(1), got.Metrics.TasksCompleted)

	// 完成事件被发布
	select {
	case ev := <-h.events:
		assert.Equal(t, types.EventTaskCompleted, ev.Kind)
		assert.True(t, ev.Success)
	case <-time.After(time.Second):
		t.Fatal("no completion event")
	}
}

func TestDispatcher_PrefersHigherScoringAgent(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	slow := h.addAgent(t, "slow")
	fast := h.addAgent(t, "fast")

	// 给 fast 更好的历史指标
	h.registry.UpdateMetrics(fast.ID, 100, true)
	h.registry.UpdateMetrics(slow.ID, 5000, true)

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	require.NotNil(t, rec.Task.AssignedAgent)
	assert.Equal(t, fast.ID, *rec.Task.AssignedAgent)
}

func TestDispatcher_CapabilityGate(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.addAgent(t, "plain")
	gpu := h.addAgent(t, "gpu", types.Capability{Name: "gpu", Proficiency: 0.9})

	task := types.NewTask("train", "", types.PriorityHigh)
	task.RequiredCapabilities = []types.RequiredCapability{{Name: "gpu", MinimumProficiency: 0.5}}
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, gpu.ID, *rec.Task.AssignedAgent)
}

func TestDispatcher_ExecutorErrorFailsTask(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.executor.fn = func(ctx context.Context, a types.Agent, tk types.Task) (types.TaskResult, error) {
		return types.TaskResult{}, errors.New("backend unavailable")
	}
	a := h.addAgent(t, "worker")

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, types.TaskFailed, rec.Task.Status)
	assert.Contains(t, rec.Result.Error, "backend unavailable")

	got, _ := h.registry.Get(a.ID)
	assert.Equal(t, uint64(1), got.Metrics.TasksFailed)
}

func TestDispatcher_PanicBecomesFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.executor.fn = func(ctx context.Context, a types.Agent, tk types.Task) (types.TaskResult, error) {
		panic("boom")
	}
	h.addAgent(t, "worker")

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, types.TaskFailed, rec.Task.Status)
	assert.Contains(t, rec.Result.Error, "panic")
}

func TestDispatcher_DeadlineEnforced(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.executor.fn = func(ctx context.Context, a types.Agent, tk types.Task) (types.TaskResult, error) {
		<-ctx.Done()
		return types.TaskResult{}, ctx.Err()
	}
	h.addAgent(t, "worker")

	task := types.NewTask("job", "", types.PriorityMedium)
	task.EstimatedDuration = 20 * time.Millisecond // 截止时间 = 2×预估
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, types.TaskFailed, rec.Task.Status)
	// 超时失败的错误串是固定的,不透传 ctx 错误文案
	assert.Equal(t, "timeout", rec.Result.Error)
}

func TestDispatcher_CancelQueuedTask(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	// 没有 Agent：任务停留在队列里

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))
	require.NoError(t, h.dispatcher.Cancel(task.ID))

	rec, ok := h.dispatcher.Get(task.ID)
	require.True(t, ok)
	assert.Equal(t, types.TaskCancelled, rec.Task.Status)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "cancelled", rec.Result.Error)

	// 排队中取消同样发布终态事件
	select {
	case ev := <-h.events:
		assert.Equal(t, types.EventTaskCompleted, ev.Kind)
		assert.False(t, ev.Success)
	case <-time.After(time.Second):
		t.Fatal("no terminal event for queued cancellation")
	}

	assert.Error(t, h.dispatcher.Cancel(uuid.New()))
}

func TestDispatcher_CancelRunningTask(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	started := make(chan struct{})
	h.executor.fn = func(ctx context.Context, a types.Agent, tk types.Task) (types.TaskResult, error) {
		close(started)
		<-ctx.Done()
		return types.TaskResult{}, ctx.Err()
	}
	h.addAgent(t, "worker")

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))

	<-started
	require.NoError(t, h.dispatcher.Cancel(task.ID))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, types.TaskCancelled, rec.Task.Status)
}

func TestDispatcher_CircuitBreakerRedirects(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.Config{Threshold: 1, RecoveryTimeout: time.Hour})
	bad := h.addAgent(t, "bad")
	good := h.addAgent(t, "good")

	// 给 bad 更高分保证首选，然后让它的熔断器打开
	h.registry.UpdateMetrics(bad.ID, 10, true)
	br := h.breakers.Get(bad.ID)
	require.NoError(t, br.Allow())
	br.RecordFailure()
	require.Equal(t, circuitbreaker.StateOpen, br.State())

	task := types.NewTask("job", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(task))

	rec := h.waitTerminal(t, task.ID)
	assert.Equal(t, types.TaskCompleted, rec.Task.Status)
	assert.Equal(t, good.ID, *rec.Task.AssignedAgent)
}

func TestDispatcher_DependenciesGateExecution(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.addAgent(t, "worker")

	parent := types.NewTask("parent", "", types.PriorityMedium)
	child := types.NewTask("child", "", types.PriorityCritical)
	child.Dependencies = []uuid.UUID{parent.ID}

	// 先提交 child：依赖未满足，不应执行
	require.NoError(t, h.dispatcher.Submit(child))
	time.Sleep(50 * time.Millisecond)
	rec, ok := h.dispatcher.Get(child.ID)
	require.True(t, ok)
	assert.False(t, rec.Task.Status.Terminal())

	require.NoError(t, h.dispatcher.Submit(parent))
	h.waitTerminal(t, parent.ID)

	childRec := h.waitTerminal(t, child.ID)
	assert.Equal(t, types.TaskCompleted, childRec.Task.Status)
}

func TestDispatcher_ShutdownDrainsQueue(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	// 无 Agent，任务滞留队列

	tasks := make([]*types.Task, 3)
	for i := range tasks {
		tasks[i] = types.NewTask("stuck", "", types.PriorityMedium)
		require.NoError(t, h.dispatcher.Submit(tasks[i]))
	}

	h.cancel()
	<-h.done

	for _, task := range tasks {
		rec, ok := h.dispatcher.Get(task.ID)
		require.True(t, ok)
		assert.Equal(t, types.TaskFailed, rec.Task.Status)
		assert.Equal(t, "shutdown", rec.Result.Error)
	}

	// 每个被排空的任务都发布一条失败事件
	for i := 0; i < len(tasks); i++ {
		select {
		case ev := <-h.events:
			assert.Equal(t, types.EventTaskCompleted, ev.Kind)
			assert.False(t, ev.Success)
			require.NotNil(t, ev.Result)
			assert.Equal(t, "shutdown", ev.Result.Error)
		case <-time.After(time.Second):
			t.Fatalf("missing terminal event %d of %d", i+1, len(tasks))
		}
	}
}

func TestDispatcher_StatsCount(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.addAgent(t, "worker")

	ok := types.NewTask("ok", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(ok))
	h.waitTerminal(t, ok.ID)

	h.executor.fn = func(ctx context.Context, a types.Agent, tk types.Task) (types.TaskResult, error) {
		return types.TaskResult{}, errors.New("nope")
	}
	bad := types.NewTask("bad", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(bad))
	h.waitTerminal(t, bad.ID)

	completed, failed := h.dispatcher.Stats()
	assert.Equal(t, uint64(1), completed)
	assert.Equal(t, uint64(1), failed)
}

func TestDispatcher_TerminalHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TerminalHistory = 2
	h := newHarness(t, cfg, circuitbreaker.DefaultConfig())
	h.addAgent(t, "worker")

	ids := make([]uuid.UUID, 4)
	for i := range ids {
		task := types.NewTask("job", "", types.PriorityMedium)
		ids[i] = task.ID
		require.NoError(t, h.dispatcher.Submit(task))
		h.waitTerminal(t, task.ID)
	}

	// 只保留最近两条
	_, ok := h.dispatcher.Get(ids[0])
	assert.False(t, ok)
	_, ok = h.dispatcher.Get(ids[3])
	assert.True(t, ok)
}

// newIdleHarness builds the dispatcher without running the loop, for the
// synchronous ExecuteWith path.
func newIdleHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		registry: agent.NewRegistry(nil, nil, zap.NewNop()),
		queue:    task.NewQueue(task.DefaultConfig(), zap.NewNop()),
		breakers: circuitbreaker.NewGroup(circuitbreaker.DefaultConfig(), zap.NewNop()),
		executor: &recordingExecutor{},
		events:   make(chan types.Event, 256),
	}
	h.dispatcher = New(DefaultConfig(), h.registry, h.queue, h.breakers, h.executor,
		func(ev types.Event) { h.events <- ev }, zap.NewNop())
	return h
}

func TestDispatcher_ExecuteWithRunsOnNamedAgent(t *testing.T) {
	h := newIdleHarness(t)
	named := h.addAgent(t, "named")
	h.addAgent(t, "other")

	tk := types.NewTask("verify", "", types.PriorityHigh)
	require.NoError(t, h.dispatcher.Submit(tk))

	result, err := h.dispatcher.ExecuteWith(context.Background(), tk.ID, named.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []uuid.UUID{named.ID}, h.executor.agentCalls())

	rec, ok := h.dispatcher.Get(tk.ID)
	require.True(t, ok)
	assert.Equal(t, types.TaskCompleted, rec.Task.Status)

	got, _ := h.registry.Get(named.ID)
	assert.Equal(t, uint64(1), got.Metrics.TasksCompleted)
}

func TestDispatcher_ExecuteWithUnknownAgent(t *testing.T) {
	h := newIdleHarness(t)

	tk := types.NewTask("verify", "", types.PriorityMedium)
	require.NoError(t, h.dispatcher.Submit(tk))

	_, err := h.dispatcher.ExecuteWith(context.Background(), tk.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentNotFound, types.GetErrorCode(err))
	assert.Equal(t, 1, h.queue.Size())
}

func TestDispatcher_ExecuteWithTaskNotQueued(t *testing.T) {
	h := newIdleHarness(t)
	a := h.addAgent(t, "named")

	_, err := h.dispatcher.ExecuteWith(context.Background(), uuid.New(), a.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrTaskNotFound, types.GetErrorCode(err))
}

func TestDispatcher_ExecuteWithCapabilityMismatch(t *testing.T) {
	h := newIdleHarness(t)
	a := h.addAgent(t, "plain")

	tk := types.NewTask("verify", "", types.PriorityMedium)
	tk.RequiredCapabilities = []types.RequiredCapability{{Name: "vision", MinimumProficiency: 0.9}}
	require.NoError(t, h.dispatcher.Submit(tk))

	_, err := h.dispatcher.ExecuteWith(context.Background(), tk.ID, a.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))

	// 任务回到队列,仍可被其他 Agent 认领
	assert.Equal(t, 1, h.queue.Size())
}

func TestDispatcher_SetParallelismClamps(t *testing.T) {
	h := newIdleHarness(t)
	require.Equal(t, DefaultConfig().Parallelism, h.dispatcher.Parallelism())

	h.dispatcher.SetParallelism(0)
	assert.Equal(t, 1, h.dispatcher.Parallelism())

	h.dispatcher.SetParallelism(100)
	assert.Equal(t, DefaultConfig().Parallelism, h.dispatcher.Parallelism())

	h.dispatcher.SetParallelism(2)
	assert.Equal(t, 2, h.dispatcher.Parallelism())
}

func TestDispatcher_ShrunkParallelismLimitsConcurrency(t *testing.T) {
	h := newHarness(t, DefaultConfig(), circuitbreaker.DefaultConfig())
	h.dispatcher.SetParallelism(1)

	var current, peak atomic.Int64
	gate := make(chan struct{})
	h.executor.fn = func(ctx context.Context, a types.Agent, tk types.Task) (types.TaskResult, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-gate
		current.Add(-1)
		return types.TaskResult{TaskID: tk.ID, AgentID: a.ID, Success: true, CompletedAt: time.Now()}, nil
	}
	h.addAgent(t, "worker")

	tasks := make([]*types.Task, 3)
	for i := range tasks {
		tasks[i] = types.NewTask("job", "", types.PriorityMedium)
		require.NoError(t, h.dispatcher.Submit(tasks[i]))
	}

	require.Eventually(t, func() bool { return current.Load() == 1 }, time.Second, 5*time.Millisecond)
	// 给调度循环越界的机会:并发度收缩后不应再分派第二个
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), peak.Load())

	close(gate)
	for _, tk := range tasks {
		h.waitTerminal(t, tk.ID)
	}
	assert.Equal(t, int64(1), peak.Load())
}
