// =============================================================================
// 📊 状态与分析快照
// =============================================================================
// Status 聚合注册表、队列与指标聚合器的摘要,结果缓存 30 秒;
// Analytics 提供更细的排行、窃取效率与趋势数据。
// =============================================================================

package hive

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/do-ops885/ai-orchestrator-hub/hivemetrics"
	"github.com/do-ops885/ai-orchestrator-hub/internal/cache"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

const (
	statusCacheKey    = "status"
	analyticsCacheKey = "analytics"
	topPerformerCount = 5
	trendPointCount   = 12
)

// QueueStats 队列摘要。
type QueueStats struct {
	Depth       int     `json:"depth"`
	Capacity    int     `json:"capacity"`
	Utilization float64 `json:"utilization"`
}

// StatusReport 复合状态快照。
type StatusReport struct {
	Timestamp     time.Time               `json:"timestamp"`
	UptimeSeconds float64                 `json:"uptime_seconds"`
	HardwareClass string                  `json:"hardware_class"`
	Agents        hivemetrics.AgentStats  `json:"agents"`
	AgentsByState map[string]int          `json:"agents_by_state"`
	Tasks         hivemetrics.TaskStats   `json:"tasks"`
	Queue         QueueStats              `json:"queue"`
	System        hivemetrics.SystemStats `json:"system"`
}

// PerformerStat 排行榜条目。
type PerformerStat struct {
	AgentID        uuid.UUID `json:"agent_id"`
	Name           string    `json:"name"`
	Score          float64   `json:"performance_score"`
	TasksCompleted uint64    `json:"tasks_completed"`
}

// TrendPoint 历史趋势采样点。
type TrendPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	TasksPerHour float64   `json:"tasks_per_hour"`
	SuccessRate  float64   `json:"success_rate"`
}

// AnalyticsReport 运行分析快照。
type AnalyticsReport struct {
	Timestamp     time.Time       `json:"timestamp"`
	TopPerformers []PerformerStat `json:"top_performers"`

	Queue struct {
		QueueStats
		StealAttempts         uint64  `json:"steal_attempts"`
		SuccessfulSteals      uint64  `json:"successful_steals"`
		LoadBalanceEfficiency float64 `json:"load_balance_efficiency"`
	} `json:"queue"`

	Dispatch struct {
		Completed       uint64 `json:"completed"`
		Failed          uint64 `json:"failed"`
		LateCompletions uint64 `json:"late_completions"`
	} `json:"dispatch"`

	Breakers struct {
		Total int `json:"total"`
		Open  int `json:"open"`
	} `json:"circuit_breakers"`

	RateLimit struct {
		TotalDenied uint64 `json:"total_denied"`
	} `json:"rate_limit"`

	Caches map[string]cache.Stats `json:"caches"`
	Trend  []TrendPoint           `json:"trend"`
}

// Status 返回复合状态快照的 JSON。命中缓存时直接返回缓存值。
func (h *Hive) Status() (json.RawMessage, error) {
	if raw, ok := h.caches.Status.Get(statusCacheKey); ok {
		h.recordCache("status", true)
		return raw, nil
	}
	h.recordCache("status", false)

	m := h.aggregator.Snapshot()
	snap := h.tuner.GetSnapshot()

	byState := make(map[string]int)
	for state, n := range h.registry.CountByState() {
		byState[string(state)] = n
	}

	report := StatusReport{
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: h.Uptime().Seconds(),
		HardwareClass: string(snap.Class),
		Agents:        m.Agents,
		AgentsByState: byState,
		Tasks:         m.Tasks,
		Queue:         h.queueStats(),
		System:        m.System,
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "encode status").WithCause(err)
	}
	h.caches.Status.Put(statusCacheKey, raw)
	return raw, nil
}

// Analytics 返回运行分析快照的 JSON,与状态共用 30 秒缓存策略。
func (h *Hive) Analytics() (json.RawMessage, error) {
	if raw, ok := h.caches.Status.Get(analyticsCacheKey); ok {
		h.recordCache("status", true)
		return raw, nil
	}
	h.recordCache("status", false)

	var report AnalyticsReport
	report.Timestamp = time.Now().UTC()
	report.TopPerformers = h.topPerformers(topPerformerCount)

	report.Queue.QueueStats = h.queueStats()
	report.Queue.StealAttempts = h.queue.StealAttempts()
	report.Queue.SuccessfulSteals = h.queue.Steals()
	if report.Queue.StealAttempts > 0 {
		report.Queue.LoadBalanceEfficiency = float64(report.Queue.SuccessfulSteals) / float64(report.Queue.StealAttempts)
	}

	report.Dispatch.Completed, report.Dispatch.Failed = h.dispatcher.Stats()
	report.Dispatch.LateCompletions = h.registry.LateCompletions()

	breakerStates := h.breakers.Snapshot()
	report.Breakers.Total = len(breakerStates)
	report.Breakers.Open = h.breakers.OpenCount()

	report.RateLimit.TotalDenied = h.limiters.TotalDenied()
	report.Caches = h.caches.AllStats()
	report.Trend = h.trend(trendPointCount)

	raw, err := json.Marshal(report)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "encode analytics").WithCause(err)
	}
	h.caches.Status.Put(analyticsCacheKey, raw)
	return raw, nil
}

func (h *Hive) queueStats() QueueStats {
	s := QueueStats{
		Depth:    h.queue.Size(),
		Capacity: h.queue.Capacity(),
	}
	if s.Capacity > 0 {
		s.Utilization = float64(s.Depth) / float64(s.Capacity)
	}
	return s
}

func (h *Hive) topPerformers(n int) []PerformerStat {
	agents := h.registry.List()
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].Metrics.PerformanceScore > agents[j].Metrics.PerformanceScore
	})
	if len(agents) > n {
		agents = agents[:n]
	}

	out := make([]PerformerStat, 0, len(agents))
	for _, a := range agents {
		out = append(out, PerformerStat{
			AgentID:        a.ID,
			Name:           a.Name,
			Score:          a.Metrics.PerformanceScore,
			TasksCompleted: a.Metrics.TasksCompleted,
		})
	}
	return out
}

// trend 取历史环中最近 n 个采样点。
func (h *Hive) trend(n int) []TrendPoint {
	history := h.aggregator.History()
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]TrendPoint, 0, len(history))
	for _, m := range history {
		out = append(out, TrendPoint{
			Timestamp:    m.Timestamp,
			TasksPerHour: m.Tasks.TasksPerHour,
			SuccessRate:  m.Tasks.SuccessRate,
		})
	}
	return out
}
