// 硬件分档与自适应调节测试。
package resource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubSampler 返回预设的采样序列，用完后重复最后一个。
type stubSampler struct {
	samples []Usage
	idx     int
}

func (s *stubSampler) Sample() Usage {
	if s.idx >= len(s.samples) {
		return s.samples[len(s.samples)-1]
	}
	u := s.samples[s.idx]
	s.idx++
	return u
}

func TestClassify(t *testing.T) {
	cases := []struct {
		cores int
		memMB uint64
		want  HardwareClass
	}{
		{1, 1024, ClassEdge},
		{2, 2048, ClassEdge},
		{4, 8192, ClassDesktop},
		{3, 2049, ClassDesktop},
		{8, 16384, ClassDesktop},
		{9, 16385, ClassServer},
		{16, 32768, ClassServer},
		{32, 65536, ClassServer},
		{64, 131072, ClassCloud},
		{8, 65536, ClassCloud},
		// 区间不同时匹配的组合一律按云实例处理
		{2, 4096, ClassCloud},
		{8, 1024, ClassCloud},
		{16, 8192, ClassCloud},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.cores, tc.memMB),
			"cores=%d mem=%d", tc.cores, tc.memMB)
	}
}

func TestBaseProfile(t *testing.T) {
	assert.Equal(t, 5, BaseProfile(ClassEdge).MaxAgents)
	assert.Equal(t, 20, BaseProfile(ClassDesktop).MaxAgents)
	assert.Equal(t, 100, BaseProfile(ClassServer).MaxAgents)
	assert.Equal(t, 500, BaseProfile(ClassCloud).MaxAgents)

	assert.Equal(t, 1, BaseProfile(ClassEdge).Parallelism)
	assert.Equal(t, 32, BaseProfile(ClassCloud).Parallelism)
}

func desktopUsage(cpu, mem float64) Usage {
	return Usage{CPUPercent: cpu, MemoryPercent: mem, TotalMemoryMB: 8192, Cores: 4}
}

func newDesktopTuner(t *testing.T, samples []Usage, onAlert func(string, float64)) *Tuner {
	t.Helper()
	sampler := &stubSampler{samples: append([]Usage{desktopUsage(10, 10)}, samples...)}
	tuner := NewTuner(Config{
		CPUStressThreshold: 80,
		MemStressThreshold: 85,
		OnAlert:            onAlert,
	}, sampler, zap.NewNop())
	require.Equal(t, ClassDesktop, tuner.GetSnapshot().Class)
	return tuner
}

func TestTuner_ShrinksUnderStress(t *testing.T) {
	tuner := newDesktopTuner(t, []Usage{desktopUsage(95, 50)}, nil)

	base := tuner.GetSnapshot().Base
	tuner.Tick()

	snap := tuner.GetSnapshot()
	assert.Equal(t, base.MaxAgents*8/10, snap.Current.MaxAgents)
	assert.Equal(t, base.Parallelism*8/10, snap.Current.Parallelism)
	assert.Equal(t, base.SampleInterval*3/2, snap.Current.SampleInterval)
}

func TestTuner_ParallelismFloorAndRecovery(t *testing.T) {
	samples := make([]Usage, 0, 24)
	for i := 0; i < 16; i++ {
		samples = append(samples, desktopUsage(99, 99))
	}
	for i := 0; i < 8; i++ {
		samples = append(samples, desktopUsage(10, 10))
	}
	tuner := newDesktopTuner(t, samples, nil)

	for i := 0; i < 16; i++ {
		tuner.Tick()
	}
	assert.Equal(t, 1, tuner.Parallelism())

	// 空闲时每轮 +1,封顶在基础并发度
	for i := 0; i < 8; i++ {
		tuner.Tick()
	}
	assert.Equal(t, tuner.GetSnapshot().Base.Parallelism, tuner.Parallelism())
}

func TestTuner_ShrinkFloorIsOne(t *testing.T) {
	samples := make([]Usage, 0, 40)
	for i := 0; i < 40; i++ {
		samples = append(samples, desktopUsage(99, 99))
	}
	tuner := newDesktopTuner(t, samples, nil)

	for i := 0; i < 40; i++ {
		tuner.Tick()
	}

	snap := tuner.GetSnapshot()
	assert.Equal(t, 1, snap.Current.MaxAgents)
	// 采样间隔不超过基础值的 4 倍
	assert.LessOrEqual(t, snap.Current.SampleInterval, snap.Base.SampleInterval*4)
}

func TestTuner_RecoversWhenIdle(t *testing.T) {
	samples := []Usage{
		desktopUsage(95, 50), // 收缩到 16
		desktopUsage(95, 50), // 收缩到 12
		desktopUsage(10, 10), // 恢复 +5 → 17
		desktopUsage(10, 10), // 恢复 +5 → 20（封顶）
		desktopUsage(10, 10),
	}
	tuner := newDesktopTuner(t, samples, nil)

	tuner.Tick()
	tuner.Tick()
	require.Equal(t, 12, tuner.MaxAgents())

	tuner.Tick()
	assert.Equal(t, 17, tuner.MaxAgents())
	tuner.Tick()
	assert.Equal(t, 20, tuner.MaxAgents())

	// 封顶在基础值，不会继续增长
	tuner.Tick()
	assert.Equal(t, 20, tuner.MaxAgents())

	// 采样间隔逐步回落，不低于基础值
	snap := tuner.GetSnapshot()
	assert.Less(t, snap.Current.SampleInterval, snap.Base.SampleInterval*3/2*3/2)
	assert.GreaterOrEqual(t, snap.Current.SampleInterval, snap.Base.SampleInterval)
}

func TestTuner_ModerateLoadLeavesProfileAlone(t *testing.T) {
	// 既不压力也不空闲：不调整
	tuner := newDesktopTuner(t, []Usage{desktopUsage(70, 70)}, nil)

	base := tuner.GetSnapshot().Base
	tuner.Tick()

	assert.Equal(t, base, tuner.GetSnapshot().Current)
}

func TestTuner_Alerts(t *testing.T) {
	type alert struct {
		resource string
		usage    float64
	}
	var alerts []alert

	tuner := newDesktopTuner(t, []Usage{desktopUsage(95, 90)}, func(res string, usage float64) {
		alerts = append(alerts, alert{res, usage})
	})

	tuner.Tick()

	require.Len(t, alerts, 2)
	assert.Equal(t, "cpu", alerts[0].resource)
	assert.Equal(t, 95.0, alerts[0].usage)
	assert.Equal(t, "memory", alerts[1].resource)
	assert.Equal(t, 90.0, alerts[1].usage)
}

func TestTuner_SampleIntervalOverride(t *testing.T) {
	sampler := &stubSampler{samples: []Usage{desktopUsage(10, 10)}}
	tuner := NewTuner(Config{SampleInterval: 42 * time.Millisecond}, sampler, zap.NewNop())

	assert.Equal(t, 42*time.Millisecond, tuner.GetSnapshot().Base.SampleInterval)
}

func TestProcSampler_Smoke(t *testing.T) {
	s := NewProcSampler()
	u := s.Sample()

	assert.Greater(t, u.Cores, 0)
	assert.Greater(t, u.TotalMemoryMB, uint64(0))
	assert.GreaterOrEqual(t, u.MemoryPercent, 0.0)
	assert.LessOrEqual(t, u.MemoryPercent, 100.0)

	// 第二次采样产生差值，CPU 使用率应在合法范围内
	time.Sleep(10 * time.Millisecond)
	u = s.Sample()
	assert.GreaterOrEqual(t, u.CPUPercent, 0.0)
	assert.LessOrEqual(t, u.CPUPercent, 100.0)
}
