// Package cache provides internal in-memory caching with TTL and LRU eviction.
// This package is internal and should not be imported by external projects.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// 💾 泛型 TTL + LRU 缓存
// =============================================================================

// Config 单个缓存实例的配置
type Config struct {
	// 条目存活时间
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 最大条目数
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// 过期清扫间隔（0 表示不启动后台清扫）
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		TTL:           5 * time.Minute,
		MaxEntries:    1000,
		SweepInterval: 60 * time.Second,
	}
}

type entry[V any] struct {
	value      V
	expiresAt  time.Time
	lastAccess time.Time
}

// Cache 是带 TTL 和 LRU 淘汰的线程安全缓存。
// 过期检查是惰性的：Get 时发现过期即删除；
// 后台清扫按 SweepInterval 周期性移除过期条目。
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[V]
	config  Config

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	stop chan struct{}
	once sync.Once
}

// New 创建缓存实例。非法配置会被修正为默认值。
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.TTL <= 0 {
		config.TTL = DefaultConfig().TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultConfig().MaxEntries
	}

	c := &Cache[K, V]{
		entries: make(map[K]*entry[V]),
		config:  config,
		stop:    make(chan struct{}),
	}

	if config.SweepInterval > 0 {
		go c.sweepLoop()
	}

	return c
}

// Put 写入条目，使用缓存级默认 TTL。键已存在时覆盖并刷新 TTL；
// 容量已满且键不存在时，先淘汰最久未访问的条目。
func (c *Cache[K, V]) Put(key K, value V) {
	c.PutTTL(key, value, c.config.TTL)
}

// PutTTL 写入条目并指定本条目的存活时间。
// ttl <= 0 时回退到缓存级默认 TTL。
func (c *Cache[K, V]) PutTTL(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.TTL
	}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.config.MaxEntries {
		c.evictOldest()
	}

	c.entries[key] = &entry[V]{
		value:      value,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
}

// Get 读取条目。过期条目视为未命中并被删除。
// 命中会刷新 lastAccess（但不刷新 TTL）。
func (c *Cache[K, V]) Get(key K) (V, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	if now.After(e.expiresAt) {
		delete(c.entries, key)
		c.expirations.Add(1)
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	e.lastAccess = now
	c.hits.Add(1)
	return e.value, true
}

// Remove 删除条目，返回是否存在。
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	return ok
}

// Clear 清空所有条目。
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*entry[V])
}

// Len 返回当前条目数（含尚未清扫的过期条目）。
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close 停止后台清扫。
func (c *Cache[K, V]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// evictOldest 淘汰 lastAccess 最小的条目；
// 并列时选 expiresAt 最小的。调用方必须持有锁。
func (c *Cache[K, V]) evictOldest() {
	var (
		victim K
		found  bool
		oldest time.Time
		expiry time.Time
	)

	for k, e := range c.entries {
		if !found || e.lastAccess.Before(oldest) ||
			(e.lastAccess.Equal(oldest) && e.expiresAt.Before(expiry)) {
			victim, found = k, true
			oldest, expiry = e.lastAccess, e.expiresAt
		}
	}

	if found {
		delete(c.entries, victim)
		c.evictions.Add(1)
	}
}

// sweepLoop 周期性移除过期条目
func (c *Cache[K, V]) sweepLoop() {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache[K, V]) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			c.expirations.Add(1)
		}
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存统计信息
type Stats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Expirations uint64  `json:"expirations"`
	Size        int     `json:"size"`
	HitRate     float64 `json:"hit_rate"`
}

// GetStats 获取缓存统计信息
func (c *Cache[K, V]) GetStats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		Size:        c.Len(),
		HitRate:     hitRate,
	}
}
