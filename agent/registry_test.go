// Agent 注册表测试。
package agent

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

func newTestAgent(name string) *types.Agent {
	return &types.Agent{
		ID:    uuid.New(),
		Name:  name,
		Type:  types.AgentWorker,
		State: types.AgentActive,
		Capabilities: []types.Capability{
			{Name: "compute", Proficiency: 0.8, LearningRate: 0.1},
		},
		Limits: types.DefaultResourceLimits(),
	}
}

func newTestRegistry(capacity int) *Registry {
	var capFn CapacityFunc
	if capacity > 0 {
		capFn = func() int { return capacity }
	}
	return NewRegistry(capFn, nil, zap.NewNop())
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("worker-1")

	require.NoError(t, r.Register(a))
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, "worker-1", got.Name)

	// 返回的是深拷贝，修改不影响注册表
	got.Name = "mutated"
	got2, _ := r.Get(a.ID)
	assert.Equal(t, "worker-1", got2.Name)
}

func TestRegistry_DuplicateIDRejected(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("worker-1")

	require.NoError(t, r.Register(a))
	err := r.Register(a)
	assert.True(t, types.IsCode(err, types.ErrAgentCreation))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_InvalidTypeRejected(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("bad")
	a.Type = "alien"

	err := r.Register(a)
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_CapacityEnforced(t *testing.T) {
	r := newTestRegistry(2)

	require.NoError(t, r.Register(newTestAgent("a")))
	require.NoError(t, r.Register(newTestAgent("b")))

	err := r.Register(newTestAgent("c"))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrResourceExhausted))
	assert.Equal(t, 2, r.Count())

	// 注销后腾出名额
	views := r.Snapshot()
	_, err = r.Remove(views[0].Agent.ID)
	require.NoError(t, err)
	assert.NoError(t, r.Register(newTestAgent("c")))
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := newTestRegistry(0)
	_, err := r.Remove(uuid.New())
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))
}

func TestRegistry_Events(t *testing.T) {
	var events []types.Event
	r := NewRegistry(nil, func(ev types.Event) { events = append(events, ev) }, zap.NewNop())

	a := newTestAgent("worker")
	require.NoError(t, r.Register(a))
	_, err := r.Remove(a.ID)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, types.EventAgentRegistered, events[0].Kind)
	assert.Equal(t, types.EventAgentRemoved, events[1].Kind)
	assert.Equal(t, a.ID, events[1].AgentID)
}

func TestRegistry_SnapshotOrderedByRegistration(t *testing.T) {
	r := newTestRegistry(0)

	names := []string{"first", "second", "third", "fourth"}
	for _, n := range names {
		require.NoError(t, r.Register(newTestAgent(n)))
	}

	views := r.Snapshot()
	require.Len(t, views, 4)
	for i, v := range views {
		assert.Equal(t, names[i], v.Agent.Name)
	}
}

func TestRegistry_UpdateMetrics(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("worker")
	require.NoError(t, r.Register(a))

	assert.True(t, r.UpdateMetrics(a.ID, 500, true))
	assert.True(t, r.UpdateMetrics(a.ID, 1500, false))

	got, _ := r.Get(a.ID)
	assert.Equal(t, uint64(1), got.Metrics.TasksCompleted)
	assert.Equal(t, uint64(1), got.Metrics.TasksFailed)
	assert.Equal(t, uint64(2000), got.Metrics.TotalExecutionTimeMS)
	assert.Equal(t, 1000.0, got.Metrics.AverageExecutionTimeMS)
	assert.InDelta(t, 0.5, got.Metrics.PerformanceScore, 1e-9)
}

func TestRegistry_LateCompletion(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("worker")
	require.NoError(t, r.Register(a))
	_, err := r.Remove(a.ID)
	require.NoError(t, err)

	assert.False(t, r.UpdateMetrics(a.ID, 100, true))
	assert.Equal(t, uint64(1), r.LateCompletions())
}

func TestRegistry_InFlightTracking(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("worker")
	require.NoError(t, r.Register(a))

	assert.True(t, r.IncInFlight(a.ID))
	assert.True(t, r.IncInFlight(a.ID))
	assert.Equal(t, 2, r.InFlight(a.ID))

	r.DecInFlight(a.ID)
	assert.Equal(t, 1, r.InFlight(a.ID))

	// 不会降到负数
	r.DecInFlight(a.ID)
	r.DecInFlight(a.ID)
	assert.Equal(t, 0, r.InFlight(a.ID))

	assert.False(t, r.IncInFlight(uuid.New()))
}

func TestRegistry_SetState(t *testing.T) {
	r := newTestRegistry(0)
	a := newTestAgent("worker")
	require.NoError(t, r.Register(a))

	require.NoError(t, r.SetState(a.ID, types.AgentDraining))
	got, _ := r.Get(a.ID)
	assert.Equal(t, types.AgentDraining, got.State)

	counts := r.CountByState()
	assert.Equal(t, 1, counts[types.AgentDraining])

	err := r.SetState(uuid.New(), types.AgentIdle)
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))
}

func TestRegistry_ConcurrentRegisterRespectsCapacity(t *testing.T) {
	const capacity = 10
	r := newTestRegistry(capacity)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register(newTestAgent("w"))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, capacity, succeeded)
	assert.Equal(t, capacity, r.Count())
}

// 属性测试：任意注册/注销序列后 Count 与实际条目数一致。
func TestRegistry_CountConsistent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := newTestRegistry(0)
		var ids []uuid.UUID

		ops := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			if len(ids) == 0 || rapid.Bool().Draw(t, "register") {
				a := newTestAgent("w")
				if r.Register(a) == nil {
					ids = append(ids, a.ID)
				}
			} else {
				idx := rapid.IntRange(0, len(ids)-1).Draw(t, "victim")
				r.Remove(ids[idx])
				ids = append(ids[:idx], ids[idx+1:]...)
			}

			if r.Count() != len(ids) {
				t.Fatalf("count %d, want %d", r.Count(), len(ids))
			}
			if len(r.Snapshot()) != len(ids) {
				t.Fatalf("snapshot size %d, want %d", len(r.Snapshot()), len(ids))
			}
		}
	})
}
