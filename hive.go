// Package hive 是多智能体协调核心的门面。
//
// Hive 把注册表、任务队列、调度器、协调总线、资源调节器、缓存、
// 限流器与指标聚合器组装成一个协调器,对外暴露统一的操作入口。
// HTTP/WebSocket 与 JSON-RPC 传输层只做编解码,语义都在这里。
//
// Usage:
//
//	cfg := config.MustLoad("hive.yaml")
//	h, err := hive.New(cfg, logger)
//	h.Start(ctx)
//	defer h.Close(context.Background())
package hive

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/do-ops885/ai-orchestrator-hub/agent"
	"github.com/do-ops885/ai-orchestrator-hub/config"
	"github.com/do-ops885/ai-orchestrator-hub/dispatch"
	"github.com/do-ops885/ai-orchestrator-hub/hivemetrics"
	"github.com/do-ops885/ai-orchestrator-hub/internal/bus"
	"github.com/do-ops885/ai-orchestrator-hub/internal/cache"
	"github.com/do-ops885/ai-orchestrator-hub/internal/circuitbreaker"
	"github.com/do-ops885/ai-orchestrator-hub/internal/metrics"
	"github.com/do-ops885/ai-orchestrator-hub/internal/ratelimit"
	"github.com/do-ops885/ai-orchestrator-hub/internal/resource"
	"github.com/do-ops885/ai-orchestrator-hub/task"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// DefaultShutdownGrace bounds how long Close waits for in-flight work.
const DefaultShutdownGrace = 30 * time.Second

// Hive 协调器门面。
type Hive struct {
	config config.Config
	logger *zap.Logger

	bus        *bus.Bus
	registry   *agent.Registry
	queue      *task.Queue
	breakers   *circuitbreaker.Group
	dispatcher *dispatch.Dispatcher
	tuner      *resource.Tuner
	caches     *cache.Manager
	limiters   *ratelimit.Limiters
	aggregator *hivemetrics.Aggregator
	collector  *metrics.Collector

	startedAt time.Time
	started   atomic.Bool
	closed    atomic.Bool

	cancel  context.CancelFunc
	group   *errgroup.Group
	aggDone chan struct{}

	droppedMu   sync.Mutex
	lastDropped map[types.EventKind]uint64
}

// Option 配置 Hive 的可选组件。
type Option func(*options)

type options struct {
	executor  dispatch.Executor
	sampler   resource.Sampler
	collector *metrics.Collector
}

// WithExecutor 注入自定义任务执行器,默认为模拟执行器。
func WithExecutor(e dispatch.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithSampler 注入自定义资源采样器,默认读取 /proc。
func WithSampler(s resource.Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithCollector 注入 Prometheus 采集器。
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// New 组装协调器。logger 为 nil 时使用 Nop。
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*Hive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	h := &Hive{
		config:      cfg,
		logger:      logger.With(zap.String("component", "hive")),
		collector:   o.collector,
		startedAt:   time.Now(),
		aggDone:     make(chan struct{}),
		lastDropped: make(map[types.EventKind]uint64),
	}

	h.bus = bus.New(bus.Config{WarnBacklog: cfg.Hive.WarnBacklog}, logger)

	h.tuner = resource.NewTuner(resource.Config{
		SampleInterval:     cfg.Resource.SampleInterval,
		CPUStressThreshold: cfg.Resource.CPUStressThreshold,
		MemStressThreshold: cfg.Resource.MemStressThreshold,
		OnAlert: func(res string, usage float64) {
			h.publish(types.ResourceAlertEvent(res, usage))
		},
	}, o.sampler, logger)

	h.registry = agent.NewRegistry(h.agentCapacity, h.publish, logger)
	h.queue = task.NewQueue(task.Config{Capacity: cfg.Hive.TaskQueueCapacity}, logger)

	h.breakers = circuitbreaker.NewGroup(circuitbreaker.Config{
		Threshold:       cfg.CircuitBreaker.FailureThreshold,
		RecoveryTimeout: cfg.CircuitBreaker.RecoveryTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			if to == circuitbreaker.StateOpen && h.collector != nil {
				h.collector.RecordCircuitBreakerTrip()
			}
		},
	}, logger)

	h.dispatcher = dispatch.New(dispatch.Config{
		Parallelism:     h.tuner.Parallelism(),
		TerminalHistory: cfg.Hive.TerminalTaskHistory,
	}, h.registry, h.queue, h.breakers, o.executor, h.publish, logger)

	h.caches = cache.NewManager(cache.ManagerConfig{
		Agents: cache.Config{TTL: cfg.Cache.AgentTTL, MaxEntries: cfg.Cache.AgentCapacity, SweepInterval: cfg.Cache.SweepInterval},
		Tasks:  cache.Config{TTL: cfg.Cache.TaskTTL, MaxEntries: cfg.Cache.TaskCapacity, SweepInterval: cfg.Cache.SweepInterval},
		Status: cache.Config{TTL: cfg.Hive.StatusCacheTTL, MaxEntries: cfg.Cache.StatusCapacity, SweepInterval: cfg.Cache.SweepInterval},
	}, logger)

	h.limiters = ratelimit.NewLimiters(ratelimit.LimitersConfig{
		APILimit:           cfg.RateLimit.APILimit,
		AgentCreationLimit: cfg.RateLimit.AgentCreationLimit,
		TaskCreationLimit:  cfg.RateLimit.TaskCreationLimit,
		WebSocketLimit:     cfg.RateLimit.WebSocketLimit,
		Window:             cfg.RateLimit.Window,
		IdleExpiry:         cfg.RateLimit.IdleExpiry,
	}, logger)

	h.aggregator = hivemetrics.New(hivemetrics.Config{
		HistorySize: cfg.Hive.MetricsHistory,
	}, logger)
	h.aggregator.SetAgentSource(h.registry.List)
	h.aggregator.SetPendingSource(h.queue.Size)

	h.logger.Info("hive assembled",
		zap.Int("max_agents", h.agentCapacity()),
		zap.Int("parallelism", h.tuner.Parallelism()),
		zap.Int("queue_capacity", h.queue.Capacity()),
	)
	return h, nil
}

// agentCapacity resolves the registry capacity: a configured positive
// max wins, otherwise the tuner's hardware-derived limit applies.
func (h *Hive) agentCapacity() int {
	if h.config.Hive.MaxAgents > 0 {
		return h.config.Hive.MaxAgents
	}
	return h.tuner.MaxAgents()
}

// publish routes an event onto the bus and mirrors it to Prometheus.
func (h *Hive) publish(ev types.Event) {
	if h.collector != nil {
		h.collector.RecordCoordinationEvent(string(ev.Kind))
	}
	h.bus.Publish(ev)
}

// Start 启动后台循环:调度器、资源调节器、总线消费与监控同步。
// 幂等;重复调用无效果。
func (h *Hive) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.cancel = cancel

	// 聚合器独立于 runCtx:它在总线关闭、排空全部事件后才退出
	go func() {
		defer close(h.aggDone)
		h.aggregator.Run(context.Background(), h.bus.Events())
	}()

	g, gctx := errgroup.WithContext(runCtx)
	h.group = g
	g.Go(func() error {
		h.dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		h.tuner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		h.monitorLoop(gctx)
		return nil
	})

	h.logger.Info("hive started")
}

// monitorLoop 周期性把资源采样与运行深度同步给聚合器和采集器。
func (h *Hive) monitorLoop(ctx context.Context) {
	interval := 10 * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.syncMonitors()
		}
	}
}

func (h *Hive) syncMonitors() {
	snap := h.tuner.GetSnapshot()
	h.aggregator.SetResourceUsage(snap.Usage.CPUPercent, float64(snap.Usage.UsedMemoryMB))
	h.dispatcher.SetParallelism(snap.Current.Parallelism)

	if h.collector == nil {
		return
	}
	h.collector.SetResourceUsage(snap.Usage.CPUPercent, snap.Usage.MemoryPercent)
	h.collector.SetQueueDepth(h.queue.Size())

	counts := make(map[[2]string]int)
	for _, a := range h.registry.List() {
		counts[[2]string{string(a.Type), string(a.State)}]++
	}
	for key, n := range counts {
		h.collector.SetAgentCount(key[0], key[1], n)
	}

	h.droppedMu.Lock()
	for kind, total := range h.bus.Dropped() {
		for i := h.lastDropped[kind]; i < total; i++ {
			h.collector.RecordDroppedEvent(string(kind))
		}
		h.lastDropped[kind] = total
	}
	h.droppedMu.Unlock()
}

// Close 按顺序关停:停止入口 → 取消后台循环(调度器排空队列)→
// 关闭总线(聚合器消费完余下事件后退出)→ 释放缓存与限流器。
func (h *Hive) Close(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownGrace)
		defer cancel()
	}

	h.logger.Info("hive shutting down")

	if h.cancel != nil {
		h.cancel()
	}
	if h.group != nil {
		done := make(chan struct{})
		go func() {
			_ = h.group.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			h.logger.Warn("shutdown grace expired waiting for background loops")
		}
	}

	h.bus.Close()
	if h.started.Load() {
		select {
		case <-h.aggDone:
		case <-ctx.Done():
			h.logger.Warn("shutdown grace expired waiting for event drain")
		}
	}

	h.caches.Close()
	h.limiters.Close()

	h.logger.Info("hive stopped")
	return ctx.Err()
}

// =============================================================================
// 🔧 组件访问(传输层使用)
// =============================================================================

// Registry 返回 Agent 注册表。
func (h *Hive) Registry() *agent.Registry { return h.registry }

// Limiters 返回按类别划分的限流器。
func (h *Hive) Limiters() *ratelimit.Limiters { return h.limiters }

// Aggregator 返回指标聚合器。
func (h *Hive) Aggregator() *hivemetrics.Aggregator { return h.aggregator }

// Uptime 返回协调器启动至今的时长。
func (h *Hive) Uptime() time.Duration { return time.Since(h.startedAt) }

// IsRunning 报告协调器是否已启动且未关闭。
func (h *Hive) IsRunning() bool { return h.started.Load() && !h.closed.Load() }
