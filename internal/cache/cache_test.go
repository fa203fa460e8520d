// 缓存行为测试：TTL 过期、LRU 淘汰、统计信息。
package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func newTestCache(ttl time.Duration, capacity int) *Cache[string, int] {
	return New[string, int](Config{TTL: ttl, MaxEntries: capacity})
}

func TestCache_PutGet(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Put("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_OverwriteRefreshesTTL(t *testing.T) {
	c := newTestCache(50*time.Millisecond, 10)
	defer c.Close()

	c.Put("a", 1)
	time.Sleep(30 * time.Millisecond)
	c.Put("a", 2)
	time.Sleep(30 * time.Millisecond)

	// 覆盖写刷新了 TTL，条目应仍然存活
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(20*time.Millisecond, 10)
	defer c.Close()

	c.Put("a", 1)
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.Expirations)
}

func TestCache_PerEntryTTL(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Close()

	c.PutTTL("short", 1, 20*time.Millisecond)
	c.Put("long", 2)
	time.Sleep(40 * time.Millisecond)

	// 逐条 TTL 先过期,默认 TTL 条目不受影响
	_, ok := c.Get("short")
	assert.False(t, ok)
	v, ok := c.Get("long")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	// 非法 TTL 回退到缓存级默认值
	c.PutTTL("fallback", 3, 0)
	_, ok = c.Get("fallback")
	assert.True(t, ok)
}

func TestCache_GetDoesNotRefreshTTL(t *testing.T) {
	c := newTestCache(50*time.Millisecond, 10)
	defer c.Close()

	c.Put("a", 1)
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("a")
	require.True(t, ok)
	time.Sleep(30 * time.Millisecond)

	// 读取只刷新 lastAccess，不延长过期时间
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestCache_LRUEviction(t *testing.T) {
	c := newTestCache(time.Minute, 3)
	defer c.Close()

	c.Put("a", 1)
	time.Sleep(2 * time.Millisecond)
	c.Put("b", 2)
	time.Sleep(2 * time.Millisecond)
	c.Put("c", 3)
	time.Sleep(2 * time.Millisecond)

	// 访问 a，使 b 成为最久未访问
	_, ok := c.Get("a")
	require.True(t, ok)
	time.Sleep(2 * time.Millisecond)

	c.Put("d", 4)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently accessed entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	_, ok = c.Get("d")
	assert.True(t, ok)

	assert.Equal(t, uint64(1), c.GetStats().Evictions)
}

func TestCache_OverwriteAtCapacityDoesNotEvict(t *testing.T) {
	c := newTestCache(time.Minute, 2)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, uint64(0), c.GetStats().Evictions)
}

func TestCache_RemoveClear(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Sweep(t *testing.T) {
	c := New[string, int](Config{TTL: 10 * time.Millisecond, MaxEntries: 10, SweepInterval: 20 * time.Millisecond})
	defer c.Close()

	c.Put("a", 1)
	c.Put("b", 2)

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(time.Minute, 10)
	defer c.Close()

	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.GetStats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

// 属性测试：任意操作序列下条目数不超过容量上限。
func TestCache_CapacityNeverExceeded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		c := newTestCache(time.Minute, capacity)
		defer c.Close()

		ops := rapid.IntRange(1, 100).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			key := fmt.Sprintf("k%d", rapid.IntRange(0, 20).Draw(t, "key"))
			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				c.Put(key, i)
			case 1:
				c.Get(key)
			case 2:
				c.Remove(key)
			}
			if c.Len() > capacity {
				t.Fatalf("cache size %d exceeds capacity %d", c.Len(), capacity)
			}
		}
	})
}

// --- Manager 测试 ---

func TestManager_Categories(t *testing.T) {
	m := NewManager(DefaultManagerConfig(), zap.NewNop())
	defer m.Close()

	id := uuid.New()
	m.Status.Put("summary", []byte(`{"agents":0}`))
	m.InvalidateAgent(id)

	// InvalidateAgent 清空状态摘要
	_, ok := m.Status.Get("summary")
	assert.False(t, ok)

	stats := m.AllStats()
	require.Contains(t, stats, "agents")
	require.Contains(t, stats, "tasks")
	require.Contains(t, stats, "status")
}
