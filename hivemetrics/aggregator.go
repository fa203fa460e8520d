// =============================================================================
// 蜂巢指标聚合器
// =============================================================================
// Single consumer of the coordination bus. Keeps rolling agent/task/system
// counters, an EWMA throughput estimate and a bounded history ring, and
// renders snapshots as JSON or Prometheus text exposition.
// =============================================================================

package hivemetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// Config 聚合器配置
type Config struct {
	// HistorySize bounds the trend ring.
	HistorySize int `yaml:"history_size" json:"history_size"`
	// EWMAWindow is the averaging window for tasks_per_hour.
	EWMAWindow time.Duration `yaml:"ewma_window" json:"ewma_window"`
	// HistoryInterval controls how often a snapshot is appended to the ring.
	HistoryInterval time.Duration `yaml:"history_interval" json:"history_interval"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		HistorySize:     1000,
		EWMAWindow:      time.Hour,
		HistoryInterval: time.Minute,
	}
}

// AgentStats 智能体维度统计
type AgentStats struct {
	Total                   int        `json:"total"`
	Active                  int        `json:"active"`
	CreatedToday            uint64     `json:"created_today"`
	RemovedToday            uint64     `json:"removed_today"`
	AveragePerformanceScore float64    `json:"average_performance_score"`
	TopPerformerID          *uuid.UUID `json:"top_performer_id,omitempty"`
}

// TaskStats 任务维度统计
type TaskStats struct {
	Total                  uint64  `json:"total"`
	Completed              uint64  `json:"completed"`
	Failed                 uint64  `json:"failed"`
	Pending                int     `json:"pending"`
	AverageExecutionTimeMS float64 `json:"average_execution_time_ms"`
	TasksPerHour           float64 `json:"tasks_per_hour"`
	SuccessRate            float64 `json:"success_rate"`
}

// SystemStats 系统维度统计
type SystemStats struct {
	UptimeSeconds         float64 `json:"uptime_seconds"`
	CPUUsagePercent       float64 `json:"cpu_usage_percent"`
	MemoryUsageMB         float64 `json:"memory_usage_mb"`
	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
	ErrorRate             float64 `json:"error_rate"`
}

// HiveMetrics 聚合快照
type HiveMetrics struct {
	Timestamp time.Time   `json:"timestamp"`
	Agents    AgentStats  `json:"agents"`
	Tasks     TaskStats   `json:"tasks"`
	System    SystemStats `json:"system"`
}

// AgentSnapshotFunc supplies the current agent set when a snapshot is taken.
type AgentSnapshotFunc func() []types.Agent

// PendingFunc supplies the current queue depth.
type PendingFunc func() int

// Aggregator 消费协调总线事件并维护滚动统计。
// All event handling happens on the single Run goroutine; readers
// take the mutex only long enough to clone.
type Aggregator struct {
	config Config
	logger *zap.Logger

	agentSource AgentSnapshotFunc
	pending     PendingFunc

	mu           sync.Mutex
	startedAt    time.Time
	dayStamp     string
	createdToday uint64
	removedToday uint64

	tasksCompleted uint64
	tasksFailed    uint64
	totalExecMS    float64

	tasksPerHour   float64
	lastCompletion time.Time

	cpuPercent float64
	memoryMB   float64

	history []HiveMetrics
}

// New 创建聚合器
func New(config Config, logger *zap.Logger) *Aggregator {
	if config.HistorySize <= 0 {
		config.HistorySize = 1000
	}
	if config.EWMAWindow <= 0 {
		config.EWMAWindow = time.Hour
	}
	if config.HistoryInterval <= 0 {
		config.HistoryInterval = time.Minute
	}
	now := time.Now()
	return &Aggregator{
		config:    config,
		logger:    logger.With(zap.String("component", "metrics_aggregator")),
		startedAt: now,
		dayStamp:  now.UTC().Format("2006-01-02"),
		history:   make([]HiveMetrics, 0, config.HistorySize),
	}
}

// SetAgentSource 设置智能体快照来源(通常为注册表的 List)。
func (a *Aggregator) SetAgentSource(fn AgentSnapshotFunc) { a.agentSource = fn }

// SetPendingSource 设置待处理任务深度来源(通常为队列的 Size)。
func (a *Aggregator) SetPendingSource(fn PendingFunc) { a.pending = fn }

// Run consumes events until the channel closes or ctx is cancelled.
// It is the only writer of the rolling counters.
func (a *Aggregator) Run(ctx context.Context, events <-chan types.Event) {
	ticker := time.NewTicker(a.config.HistoryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.appendHistory(a.Snapshot())
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handle(ev)
			if ev.Kind == types.EventShutdown {
				return
			}
		}
	}
}

// Handle applies a single event. Exposed for synchronous callers and tests;
// Run uses it internally.
func (a *Aggregator) Handle(ev types.Event) { a.handle(ev) }

func (a *Aggregator) handle(ev types.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()

	switch ev.Kind {
	case types.EventAgentRegistered:
		a.createdToday++
	case types.EventAgentRemoved:
		a.removedToday++
	case types.EventTaskCompleted:
		if ev.Result == nil {
			return
		}
		if ev.Result.Success {
			a.tasksCompleted++
		} else {
			a.tasksFailed++
		}
		a.totalExecMS += float64(ev.Result.ExecutionTimeMS)
		a.updateThroughputLocked(ev.Result.CompletedAt)
	case types.EventResourceAlert:
		// alerts carry no counters here; the tuner already logged them
	}
}

// rollDayLocked resets the daily counters at UTC midnight.
func (a *Aggregator) rollDayLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != a.dayStamp {
		a.dayStamp = today
		a.createdToday = 0
		a.removedToday = 0
	}
}

// updateThroughputLocked folds one completion into the tasks_per_hour EWMA.
func (a *Aggregator) updateThroughputLocked(at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	if a.lastCompletion.IsZero() {
		a.lastCompletion = at
		a.tasksPerHour = 1
		return
	}
	dt := at.Sub(a.lastCompletion)
	if dt <= 0 {
		dt = time.Millisecond
	}
	a.lastCompletion = at

	instant := float64(time.Hour) / float64(dt)
	alpha := 1 - math.Exp(-float64(dt)/float64(a.config.EWMAWindow))
	a.tasksPerHour += alpha * (instant - a.tasksPerHour)
}

// SetResourceUsage 记录最近一次资源采样。
func (a *Aggregator) SetResourceUsage(cpuPercent, memoryMB float64) {
	a.mu.Lock()
	a.cpuPercent = cpuPercent
	a.memoryMB = memoryMB
	a.mu.Unlock()
}

// Snapshot 返回当前聚合状态的克隆。
func (a *Aggregator) Snapshot() HiveMetrics {
	var agents []types.Agent
	if a.agentSource != nil {
		agents = a.agentSource()
	}
	pending := 0
	if a.pending != nil {
		pending = a.pending()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollDayLocked()

	m := HiveMetrics{
		Timestamp: time.Now(),
		Agents: AgentStats{
			Total:        len(agents),
			CreatedToday: a.createdToday,
			RemovedToday: a.removedToday,
		},
		Tasks: TaskStats{
			Total:        a.tasksCompleted + a.tasksFailed + uint64(pending),
			Completed:    a.tasksCompleted,
			Failed:       a.tasksFailed,
			Pending:      pending,
			TasksPerHour: a.tasksPerHour,
		},
		System: SystemStats{
			UptimeSeconds:   time.Since(a.startedAt).Seconds(),
			CPUUsagePercent: a.cpuPercent,
			MemoryUsageMB:   a.memoryMB,
		},
	}

	var scoreSum float64
	var best float64 = -1
	for i := range agents {
		ag := &agents[i]
		if ag.State == types.AgentActive || ag.State == types.AgentIdle {
			m.Agents.Active++
		}
		scoreSum += ag.Metrics.PerformanceScore
		if ag.Metrics.PerformanceScore > best {
			best = ag.Metrics.PerformanceScore
			id := ag.ID
			m.Agents.TopPerformerID = &id
		}
	}
	if len(agents) > 0 {
		m.Agents.AveragePerformanceScore = scoreSum / float64(len(agents))
	}

	finished := a.tasksCompleted + a.tasksFailed
	if finished > 0 {
		m.Tasks.AverageExecutionTimeMS = a.totalExecMS / float64(finished)
		m.Tasks.SuccessRate = float64(a.tasksCompleted) / float64(finished)
		m.System.ErrorRate = float64(a.tasksFailed) / float64(finished)
	}
	m.System.AverageResponseTimeMS = m.Tasks.AverageExecutionTimeMS

	return m
}

func (a *Aggregator) appendHistory(m HiveMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, m)
	if len(a.history) > a.config.HistorySize {
		a.history = a.history[len(a.history)-a.config.HistorySize:]
	}
}

// History 返回历史快照环的副本(旧→新)。
func (a *Aggregator) History() []HiveMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]HiveMetrics, len(a.history))
	copy(out, a.history)
	return out
}

// Export renders the current snapshot in the requested format.
// Supported formats: "json" and "prometheus".
func (a *Aggregator) Export(format string) ([]byte, error) {
	m := a.Snapshot()
	switch format {
	case "json":
		return json.MarshalIndent(m, "", "  ")
	case "prometheus":
		return []byte(renderPrometheus(m)), nil
	default:
		err := types.NewValidationError("unsupported export format")
		return nil, err.WithField("format", fmt.Sprintf("must be one of json, prometheus; got %q", format))
	}
}

// renderPrometheus hand-renders the text exposition format for the
// aggregate gauges. The per-request Prometheus metrics live on the
// internal collector; these are the hive-level aggregates.
func renderPrometheus(m HiveMetrics) string {
	var b strings.Builder
	writeMetric(&b, "hive_agents_total", "gauge", "Total number of registered agents.", float64(m.Agents.Total))
	writeMetric(&b, "hive_agents_active", "gauge", "Number of agents able to take work.", float64(m.Agents.Active))
	writeMetric(&b, "hive_tasks_total", "counter", "Total number of tasks observed.", float64(m.Tasks.Total))
	writeMetric(&b, "hive_tasks_success_rate", "gauge", "Fraction of finished tasks that succeeded.", m.Tasks.SuccessRate)
	writeMetric(&b, "hive_system_uptime_seconds", "counter", "Seconds since the coordinator started.", m.System.UptimeSeconds)
	writeMetric(&b, "hive_system_cpu_usage_percent", "gauge", "Most recent CPU usage sample.", m.System.CPUUsagePercent)
	return b.String()
}

func writeMetric(b *strings.Builder, name, kind, help string, value float64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(b, "%s %g\n", name, value)
}
