package resource

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ⚙️ 自适应容量调节器
// =============================================================================

// Config 调节器配置
type Config struct {
	// 采样间隔覆盖（0 表示使用档位默认值）
	SampleInterval time.Duration

	// CPU 压力阈值（百分比）
	CPUStressThreshold float64

	// 内存压力阈值（百分比）
	MemStressThreshold float64

	// 压力告警回调（resource 为 "cpu" 或 "memory"）
	OnAlert func(resource string, usagePercent float64)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CPUStressThreshold: 80.0,
		MemStressThreshold: 85.0,
	}
}

// 空闲判定阈值：CPU 与内存同时低于此值时逐步恢复容量。
const (
	idleCPUThreshold = 50.0
	idleMemThreshold = 60.0
)

// Snapshot 调节器当前状态
type Snapshot struct {
	Class       HardwareClass `json:"hardware_class"`
	Base        Profile       `json:"base_profile"`
	Current     Profile       `json:"current_profile"`
	Usage       Usage         `json:"usage"`
	LastSampled time.Time     `json:"last_sampled"`
}

// Tuner 按系统负载在基础容量附近调整运行参数。
// 压力下收缩 Agent 上限并放缓采样；空闲时逐步恢复。
type Tuner struct {
	config  Config
	logger  *zap.Logger
	sampler Sampler

	mu          sync.RWMutex
	class       HardwareClass
	base        Profile
	current     Profile
	usage       Usage
	lastSampled time.Time
}

// NewTuner 创建调节器并完成硬件分档。
func NewTuner(config Config, sampler Sampler, logger *zap.Logger) *Tuner {
	def := DefaultConfig()
	if config.CPUStressThreshold <= 0 || config.CPUStressThreshold > 100 {
		config.CPUStressThreshold = def.CPUStressThreshold
	}
	if config.MemStressThreshold <= 0 || config.MemStressThreshold > 100 {
		config.MemStressThreshold = def.MemStressThreshold
	}
	if sampler == nil {
		sampler = NewProcSampler()
	}

	usage := sampler.Sample()
	class := Classify(usage.Cores, usage.TotalMemoryMB)
	base := BaseProfile(class)
	if config.SampleInterval > 0 {
		base.SampleInterval = config.SampleInterval
	}

	t := &Tuner{
		config:      config,
		logger:      logger.With(zap.String("component", "resource_tuner")),
		sampler:     sampler,
		class:       class,
		base:        base,
		current:     base,
		usage:       usage,
		lastSampled: time.Now(),
	}

	t.logger.Info("hardware classified",
		zap.String("class", string(class)),
		zap.Int("cores", usage.Cores),
		zap.Uint64("total_memory_mb", usage.TotalMemoryMB),
		zap.Int("max_agents", base.MaxAgents),
		zap.Int("parallelism", base.Parallelism),
	)

	return t
}

// Run 启动采样调节循环，直到 ctx 取消。
func (t *Tuner) Run(ctx context.Context) {
	for {
		t.mu.RLock()
		interval := t.current.SampleInterval
		t.mu.RUnlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			t.Tick()
		}
	}
}

// Tick 执行一次采样与调整。
func (t *Tuner) Tick() {
	usage := t.sampler.Sample()

	t.mu.Lock()
	t.usage = usage
	t.lastSampled = time.Now()

	stressed := usage.CPUPercent > t.config.CPUStressThreshold ||
		usage.MemoryPercent > t.config.MemStressThreshold
	idle := usage.CPUPercent < idleCPUThreshold && usage.MemoryPercent < idleMemThreshold

	switch {
	case stressed:
		// 收缩 20% 并放缓采样，给系统喘息空间
		shrunk := t.current.MaxAgents * 8 / 10
		if shrunk < 1 {
			shrunk = 1
		}
		t.current.MaxAgents = shrunk

		par := t.current.Parallelism * 8 / 10
		if par < 1 {
			par = 1
		}
		t.current.Parallelism = par

		slowed := t.current.SampleInterval * 3 / 2
		if maxInterval := t.base.SampleInterval * 4; slowed > maxInterval {
			slowed = maxInterval
		}
		t.current.SampleInterval = slowed

		t.logger.Warn("resource pressure, shrinking capacity",
			zap.Float64("cpu_percent", usage.CPUPercent),
			zap.Float64("memory_percent", usage.MemoryPercent),
			zap.Int("max_agents", t.current.MaxAgents),
			zap.Int("parallelism", t.current.Parallelism),
		)

	case idle:
		// 逐步恢复到基础配置
		if t.current.MaxAgents < t.base.MaxAgents {
			t.current.MaxAgents = min(t.base.MaxAgents, t.current.MaxAgents+5)
		}
		if t.current.Parallelism < t.base.Parallelism {
			t.current.Parallelism++
		}
		if t.current.SampleInterval > t.base.SampleInterval {
			restored := t.current.SampleInterval - 500*time.Millisecond
			if restored < t.base.SampleInterval {
				restored = t.base.SampleInterval
			}
			t.current.SampleInterval = restored
		}
	}

	cpuOver := usage.CPUPercent > t.config.CPUStressThreshold
	memOver := usage.MemoryPercent > t.config.MemStressThreshold
	alert := t.config.OnAlert
	t.mu.Unlock()

	// 告警回调在锁外触发
	if alert != nil {
		if cpuOver {
			alert("cpu", usage.CPUPercent)
		}
		if memOver {
			alert("memory", usage.MemoryPercent)
		}
	}
}

// MaxAgents 返回当前 Agent 容量上限。
func (t *Tuner) MaxAgents() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.MaxAgents
}

// Parallelism 返回当前调度并发度。
func (t *Tuner) Parallelism() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.Parallelism
}

// QualityFactor 返回当前质量系数。
func (t *Tuner) QualityFactor() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.QualityFactor
}

// GetSnapshot 返回调节器状态快照。
func (t *Tuner) GetSnapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Class:       t.class,
		Base:        t.base,
		Current:     t.current,
		Usage:       t.usage,
		LastSampled: t.lastSampled,
	}
}
