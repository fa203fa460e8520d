package hivemetrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

func newAggregator() *Aggregator {
	return New(DefaultConfig(), zap.NewNop())
}

func completion(success bool, execMS uint64, at time.Time) types.Event {
	return types.TaskCompletedEvent(uuid.New(), uuid.New(), types.TaskResult{
		Success:         success,
		ExecutionTimeMS: execMS,
		CompletedAt:     at,
	})
}

func TestAggregatorTaskCounters(t *testing.T) {
	a := newAggregator()
	now := time.Now()

	a.Handle(completion(true, 100, now))
	a.Handle(completion(true, 300, now.Add(time.Second)))
	a.Handle(completion(false, 200, now.Add(2*time.Second)))

	m := a.Snapshot()
	assert.Equal(t, uint64(2), m.Tasks.Completed)
	assert.Equal(t, uint64(1), m.Tasks.Failed)
	assert.InDelta(t, 200.0, m.Tasks.AverageExecutionTimeMS, 0.001)
	assert.InDelta(t, 2.0/3.0, m.Tasks.SuccessRate, 0.001)
	assert.InDelta(t, 1.0/3.0, m.System.ErrorRate, 0.001)
	assert.Positive(t, m.Tasks.TasksPerHour)
}

func TestAggregatorAgentEvents(t *testing.T) {
	a := newAggregator()

	a.Handle(types.AgentRegisteredEvent(uuid.New()))
	a.Handle(types.AgentRegisteredEvent(uuid.New()))
	a.Handle(types.AgentRemovedEvent(uuid.New()))

	m := a.Snapshot()
	assert.Equal(t, uint64(2), m.Agents.CreatedToday)
	assert.Equal(t, uint64(1), m.Agents.RemovedToday)
}

func TestAggregatorAgentSource(t *testing.T) {
	a := newAggregator()

	topID := uuid.New()
	agents := []types.Agent{
		{ID: uuid.New(), State: types.AgentActive, Metrics: types.AgentMetrics{PerformanceScore: 0.4}},
		{ID: topID, State: types.AgentIdle, Metrics: types.AgentMetrics{PerformanceScore: 0.9}},
		{ID: uuid.New(), State: types.AgentDraining, Metrics: types.AgentMetrics{PerformanceScore: 0.2}},
	}
	a.SetAgentSource(func() []types.Agent { return agents })
	a.SetPendingSource(func() int { return 7 })

	m := a.Snapshot()
	assert.Equal(t, 3, m.Agents.Total)
	assert.Equal(t, 2, m.Agents.Active)
	assert.InDelta(t, 0.5, m.Agents.AveragePerformanceScore, 0.001)
	require.NotNil(t, m.Agents.TopPerformerID)
	assert.Equal(t, topID, *m.Agents.TopPerformerID)
	assert.Equal(t, 7, m.Tasks.Pending)
	assert.Equal(t, uint64(7), m.Tasks.Total)
}

func TestAggregatorThroughputEWMA(t *testing.T) {
	a := newAggregator()
	start := time.Now()

	// One completion per second should converge toward 3600 tasks/hour.
	for i := 0; i < 50; i++ {
		a.Handle(completion(true, 10, start.Add(time.Duration(i)*time.Second)))
	}

	m := a.Snapshot()
	assert.Greater(t, m.Tasks.TasksPerHour, 40.0)
	assert.Less(t, m.Tasks.TasksPerHour, 3600.0)
}

func TestAggregatorExportJSON(t *testing.T) {
	a := newAggregator()
	a.Handle(completion(true, 150, time.Now()))
	a.SetResourceUsage(42.5, 1024)

	out, err := a.Export("json")
	require.NoError(t, err)

	var m HiveMetrics
	require.NoError(t, json.Unmarshal(out, &m))
	assert.Equal(t, uint64(1), m.Tasks.Completed)
	assert.InDelta(t, 42.5, m.System.CPUUsagePercent, 0.001)
	assert.InDelta(t, 1024.0, m.System.MemoryUsageMB, 0.001)
}

func TestAggregatorExportPrometheus(t *testing.T) {
	a := newAggregator()
	a.SetAgentSource(func() []types.Agent {
		return []types.Agent{{ID: uuid.New(), State: types.AgentActive}}
	})
	a.Handle(completion(true, 100, time.Now()))

	out, err := a.Export("prometheus")
	require.NoError(t, err)
	text := string(out)

	for _, name := range []string{
		"hive_agents_total",
		"hive_agents_active",
		"hive_tasks_total",
		"hive_tasks_success_rate",
		"hive_system_uptime_seconds",
		"hive_system_cpu_usage_percent",
	} {
		assert.Contains(t, text, "# HELP "+name)
		assert.Contains(t, text, "# TYPE "+name)
	}
	assert.Contains(t, text, "hive_agents_total 1")
	assert.Contains(t, text, "hive_tasks_success_rate 1")
}

func TestAggregatorExportUnknownFormat(t *testing.T) {
	a := newAggregator()

	_, err := a.Export("xml")
	require.Error(t, err)

	var herr *types.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, types.ErrValidation, herr.Code)
	require.Len(t, herr.FieldErrors, 1)
	assert.Equal(t, "format", herr.FieldErrors[0].Field)
}

func TestAggregatorRunConsumesUntilShutdown(t *testing.T) {
	a := newAggregator()
	events := make(chan types.Event, 8)

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Run(context.Background(), events)
	}()

	events <- completion(true, 50, time.Now())
	events <- types.AgentRegisteredEvent(uuid.New())
	events <- types.Event{Kind: types.EventShutdown}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aggregator did not stop on shutdown event")
	}

	m := a.Snapshot()
	assert.Equal(t, uint64(1), m.Tasks.Completed)
	assert.Equal(t, uint64(1), m.Agents.CreatedToday)
}

func TestAggregatorHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 3
	a := New(cfg, zap.NewNop())

	for i := 0; i < 10; i++ {
		a.appendHistory(a.Snapshot())
	}
	assert.Len(t, a.History(), 3)
}
