package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub/internal/cache"
)

// 只读操作模式：命中即缓存
var cacheablePatterns = []string{
	"get_", "list_", "analyze_", "_status", "_info", "_details", "echo",
}

// 写操作模式：永不缓存,优先级高于只读模式
var nonCacheablePatterns = []string{
	"create_", "assign_", "batch_create_", "coordinate_", "delete_", "update_",
}

// Cacheable 判断工具是否可按名字缓存结果。
// 写操作模式优先:名字同时匹配两类模式时不缓存。
func Cacheable(name string) bool {
	lower := strings.ToLower(name)

	for _, p := range nonCacheablePatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}
	for _, p := range cacheablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// toolCache 工具结果缓存,多个 CachedToolHandler 共享。
type toolCache struct {
	entries *cache.Cache[string, any]

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newToolCache(ttl time.Duration) *toolCache {
	return &toolCache{
		entries: cache.New[string, any](cache.Config{
			TTL:        ttl,
			MaxEntries: 1000,
		}),
	}
}

func (c *toolCache) get(key string) (any, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

func (c *toolCache) put(key string, value any) {
	c.entries.Put(key, value)
}

// Stats 返回命中/未命中计数。
func (c *toolCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// CachedToolHandler 为只读工具装饰结果缓存。
// 缓存键由工具名和参数内容哈希组成,同参数的重复调用直接命中。
type CachedToolHandler struct {
	name  string
	inner ToolHandler
	cache *toolCache
}

// NewCachedToolHandler 包装一个工具处理器。
func NewCachedToolHandler(name string, inner ToolHandler, cache *toolCache) *CachedToolHandler {
	return &CachedToolHandler{
		name:  name,
		inner: inner,
		cache: cache,
	}
}

// Execute 先查缓存,未命中时调用内层并回填。
func (h *CachedToolHandler) Execute(ctx context.Context, params map[string]any) (any, error) {
	key := h.cacheKey(params)

	if v, ok := h.cache.get(key); ok {
		return v, nil
	}

	result, err := h.inner.Execute(ctx, params)
	if err != nil {
		return nil, err
	}

	h.cache.put(key, result)
	return result, nil
}

// Schema 透传内层 Schema。
func (h *CachedToolHandler) Schema() map[string]any { return h.inner.Schema() }

// Description 透传内层描述。
func (h *CachedToolHandler) Description() string { return h.inner.Description() }

// cacheKey 生成稳定缓存键。json.Marshal 对 map 键排序,
// 因此相同参数总是产生相同哈希。
func (h *CachedToolHandler) cacheKey(params map[string]any) string {
	data, err := json.Marshal(params)
	if err != nil {
		data = []byte("{}")
	}
	sum := sha256.Sum256(data)
	return "tool:" + h.name + ":" + hex.EncodeToString(sum[:16])
}
