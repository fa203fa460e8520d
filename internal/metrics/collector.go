// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 任务指标
	tasksTotal            *prometheus.CounterVec
	taskExecutionDuration *prometheus.HistogramVec
	queueDepth            prometheus.Gauge
	workSteals            prometheus.Counter

	// Agent 指标
	agentsActive          *prometheus.GaugeVec
	agentTaskExecutions   *prometheus.CounterVec
	circuitBreakerTrips   prometheus.Counter
	rateLimitDenials      *prometheus.CounterVec
	coordinationEvents    *prometheus.CounterVec
	droppedEvents         *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 资源指标
	cpuUsagePercent    prometheus.Gauge
	memoryUsagePercent prometheus.Gauge

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务指标
	c.tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of tasks by terminal status",
		},
		[]string{"status"},
	)

	c.taskExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_execution_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"priority"},
	)

	c.queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting in the queue",
		},
	)

	c.workSteals = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_steals_total",
			Help:      "Total number of successful work steals",
		},
	)

	// Agent 指标
	c.agentsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Number of registered agents",
		},
		[]string{"type", "state"},
	)

	c.agentTaskExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_task_executions_total",
			Help:      "Total number of task executions per agent type",
		},
		[]string{"agent_type", "status"},
	)

	c.circuitBreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
	)

	c.rateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denials_total",
			Help:      "Total number of rate limited requests",
		},
		[]string{"category"},
	)

	c.coordinationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coordination_events_total",
			Help:      "Total number of coordination events published",
		},
		[]string{"kind"},
	)

	c.droppedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Total number of coordination events dropped under backlog",
		},
		[]string{"kind"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 资源指标
	c.cpuUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cpu_usage_percent",
			Help:      "Sampled CPU usage percentage",
		},
	)

	c.memoryUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_percent",
			Help:      "Sampled memory usage percentage",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 📋 任务指标记录
// =============================================================================

// RecordTaskCompletion 记录任务终态
func (c *Collector) RecordTaskCompletion(status, priority string, duration time.Duration) {
	c.tasksTotal.WithLabelValues(status).Inc()
	c.taskExecutionDuration.WithLabelValues(priority).Observe(duration.Seconds())
}

// SetQueueDepth 设置队列深度
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// RecordWorkSteal 记录一次成功窃取
func (c *Collector) RecordWorkSteal() {
	c.workSteals.Inc()
}

// =============================================================================
// 🤖 Agent 指标记录
// =============================================================================

// SetAgentCount 设置某类型/状态的 Agent 数量
func (c *Collector) SetAgentCount(agentType, state string, count int) {
	c.agentsActive.WithLabelValues(agentType, state).Set(float64(count))
}

// RecordAgentExecution 记录 Agent 执行结果
func (c *Collector) RecordAgentExecution(agentType, status string) {
	c.agentTaskExecutions.WithLabelValues(agentType, status).Inc()
}

// RecordCircuitBreakerTrip 记录一次熔断
func (c *Collector) RecordCircuitBreakerTrip() {
	c.circuitBreakerTrips.Inc()
}

// RecordRateLimitDenial 记录一次限流拒绝
func (c *Collector) RecordRateLimitDenial(category string) {
	c.rateLimitDenials.WithLabelValues(category).Inc()
}

// RecordCoordinationEvent 记录一次协调事件投递
func (c *Collector) RecordCoordinationEvent(kind string) {
	c.coordinationEvents.WithLabelValues(kind).Inc()
}

// RecordDroppedEvent 记录一次事件丢弃
func (c *Collector) RecordDroppedEvent(kind string) {
	c.droppedEvents.WithLabelValues(kind).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// ⚙️ 资源指标记录
// =============================================================================

// SetResourceUsage 设置资源使用率
func (c *Collector) SetResourceUsage(cpuPercent, memoryPercent float64) {
	c.cpuUsagePercent.Set(cpuPercent)
	c.memoryUsagePercent.Set(memoryPercent)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
