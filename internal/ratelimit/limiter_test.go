// 固定窗口限流测试。
package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestLimiter(limit int, window time.Duration) *Limiter {
	return New(Config{Limit: limit, Window: window, IdleExpiry: time.Hour}, zap.NewNop())
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	l := newTestLimiter(3, time.Minute)
	defer l.Close()

	for i := 1; i <= 3; i++ {
		res := l.Check("client")
		require.True(t, res.Allowed, "request %d should be allowed", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, i, res.CurrentCount)
	}

	res := l.Check("client")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 3, res.CurrentCount)
	assert.Equal(t, uint64(1), l.DeniedCount())
}

func TestLimiter_DenialDoesNotConsume(t *testing.T) {
	l := newTestLimiter(1, time.Minute)
	defer l.Close()

	require.True(t, l.Check("client").Allowed)
	for i := 0; i < 5; i++ {
		res := l.Check("client")
		assert.False(t, res.Allowed)
		assert.Equal(t, 1, res.CurrentCount)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	l := newTestLimiter(1, 30*time.Millisecond)
	defer l.Close()

	require.True(t, l.Check("client").Allowed)
	require.False(t, l.Check("client").Allowed)

	time.Sleep(40 * time.Millisecond)

	res := l.Check("client")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.CurrentCount)
}

func TestLimiter_ClientsIsolated(t *testing.T) {
	l := newTestLimiter(1, time.Minute)
	defer l.Close()

	require.True(t, l.Check("a").Allowed)
	require.False(t, l.Check("a").Allowed)
	assert.True(t, l.Check("b").Allowed)
	assert.Equal(t, 2, l.ClientCount())
}

func TestLimiter_StatusDoesNotMutate(t *testing.T) {
	l := newTestLimiter(2, time.Minute)
	defer l.Close()

	// 未知客户端：满额度
	res := l.Status("client")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 0, res.CurrentCount)

	l.Check("client")
	for i := 0; i < 3; i++ {
		res = l.Status("client")
		assert.True(t, res.Allowed)
		assert.Equal(t, 1, res.Remaining)
		assert.Equal(t, 1, res.CurrentCount)
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l := New(Config{
		Limit:      10,
		Window:     time.Minute,
		IdleExpiry: 20 * time.Millisecond,
	}, zap.NewNop())
	defer l.Close()

	l.Check("a")
	l.Check("b")
	require.Equal(t, 2, l.ClientCount())

	time.Sleep(30 * time.Millisecond)
	l.cleanup()

	assert.Equal(t, 0, l.ClientCount())
}

// 属性测试：单窗口内放行次数恰好等于上限。
func TestLimiter_ExactlyLimitAllowedPerWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 20).Draw(t, "limit")
		attempts := rapid.IntRange(1, 50).Draw(t, "attempts")

		l := newTestLimiter(limit, time.Hour)
		defer l.Close()

		allowed := 0
		for i := 0; i < attempts; i++ {
			if l.Check("client").Allowed {
				allowed++
			}
		}

		if attempts <= limit {
			if allowed != attempts {
				t.Fatalf("allowed %d, want %d", allowed, attempts)
			}
		} else if allowed != limit {
			t.Fatalf("allowed %d, want %d", allowed, limit)
		}
	})
}

// --- Limiters 集合测试 ---

func TestLimiters_CategoriesIndependent(t *testing.T) {
	ls := NewLimiters(LimitersConfig{
		APILimit:           100,
		AgentCreationLimit: 1,
		TaskCreationLimit:  50,
		WebSocketLimit:     5,
		Window:             time.Minute,
	}, zap.NewNop())
	defer ls.Close()

	require.True(t, ls.AgentCreation.Check("client").Allowed)
	require.False(t, ls.AgentCreation.Check("client").Allowed)

	// 其他类别不受影响
	assert.True(t, ls.API.Check("client").Allowed)
	assert.True(t, ls.TaskCreation.Check("client").Allowed)
	assert.True(t, ls.WebSocket.Check("client").Allowed)

	assert.Equal(t, uint64(1), ls.TotalDenied())
}

func TestLimiters_DefaultsPatched(t *testing.T) {
	ls := NewLimiters(LimitersConfig{}, zap.NewNop())
	defer ls.Close()

	// 零值配置被修正为默认上限
	for i := 0; i < 10; i++ {
		assert.True(t, ls.AgentCreation.Check("c").Allowed)
	}
	assert.False(t, ls.AgentCreation.Check("c").Allowed)
}
