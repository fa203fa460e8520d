package mcp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingTool 记录调用次数的桩工具
type countingTool struct {
	calls atomic.Int64
}

func (t *countingTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	n := t.calls.Add(1)
	return map[string]any{"calls": n}, nil
}

func (t *countingTool) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (t *countingTool) Description() string { return "counting stub" }

func TestCacheable(t *testing.T) {
	cases := map[string]bool{
		"get_swarm_status":   true,
		"list_agents":        true,
		"analyze_with_nlp":   true,
		"system_info":        true,
		"agent_details":      true,
		"echo":               true,
		"create_swarm_agent": false,
		"assign_swarm_task":  false,
		"coordinate_agents":  false,
		"delete_agent":       false,
		"update_config":      false,
		"batch_create_tasks": false,
		// 写前缀优先于只读后缀
		"create_agent_details": false,
		// 两类模式都不匹配时默认不缓存
		"run_benchmark": false,
	}

	for name, want := range cases {
		assert.Equal(t, want, Cacheable(name), "tool %s", name)
	}
}

func TestCachedToolHandler_HitsForSameParams(t *testing.T) {
	inner := &countingTool{}
	tc := newToolCache(time.Minute)
	cached := NewCachedToolHandler("get_counts", inner, tc)

	params := map[string]any{"scope": "all"}

	first, err := cached.Execute(context.Background(), params)
	require.NoError(t, err)
	second, err := cached.Execute(context.Background(), params)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())

	hits, misses := tc.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCachedToolHandler_DistinctParamsDistinctEntries(t *testing.T) {
	inner := &countingTool{}
	tc := newToolCache(time.Minute)
	cached := NewCachedToolHandler("get_counts", inner, tc)

	_, err := cached.Execute(context.Background(), map[string]any{"scope": "all"})
	require.NoError(t, err)
	_, err = cached.Execute(context.Background(), map[string]any{"scope": "active"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedToolHandler_ExpiryReexecutes(t *testing.T) {
	inner := &countingTool{}
	tc := newToolCache(20 * time.Millisecond)
	cached := NewCachedToolHandler("get_counts", inner, tc)

	_, err := cached.Execute(context.Background(), nil)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = cached.Execute(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCachedToolHandler_PassesThroughSchemaAndDescription(t *testing.T) {
	inner := &countingTool{}
	cached := NewCachedToolHandler("get_counts", inner, newToolCache(time.Minute))

	assert.Equal(t, inner.Schema(), cached.Schema())
	assert.Equal(t, inner.Description(), cached.Description())
}

func TestServer_WriteToolsBypassCache(t *testing.T) {
	s := newTestMCPServer(t)

	// create_swarm_agent 未被缓存装饰,连续两次调用创建两个 Agent
	for i := 0; i < 2; i++ {
		resp := s.HandleRequest(context.Background(), Message{
			JSONRPC: "2.0",
			ID:      i,
			Method:  "create_swarm_agent",
			Params:  rawParams(t, map[string]any{"agent_type": "worker"}),
		})
		require.Nil(t, resp.Error)
	}

	assert.Len(t, s.hive.ListAgents(), 2)
}
