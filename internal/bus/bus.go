// Package bus 提供协调事件总线。
//
// 多生产者、单消费者：Publish 永不阻塞，事件在内部无界队列排队，
// 由单个泵协程按序投递给消费者。积压超过告警阈值时丢弃可降级
// 事件（指标更新），生命周期事件永不丢弃。
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// Config 总线配置
type Config struct {
	// WarnBacklog 积压告警与降级阈值
	WarnBacklog int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{WarnBacklog: 10000}
}

// Bus 协调事件总线
type Bus struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	queue   []types.Event
	dropped map[types.EventKind]uint64
	closed  bool

	notify chan struct{}
	out    chan types.Event
}

// New 创建总线并启动投递泵。
func New(config Config, logger *zap.Logger) *Bus {
	if config.WarnBacklog <= 0 {
		config.WarnBacklog = DefaultConfig().WarnBacklog
	}

	b := &Bus{
		config:  config,
		logger:  logger.With(zap.String("component", "coordination_bus")),
		dropped: make(map[types.EventKind]uint64),
		notify:  make(chan struct{}, 1),
		out:     make(chan types.Event),
	}

	go b.pump()
	return b
}

// Publish 发布事件，永不阻塞。
// 总线关闭后的发布被静默丢弃并计数。
// 积压达到阈值时丢弃非生命周期事件。
func (b *Bus) Publish(ev types.Event) {
	b.mu.Lock()

	if b.closed {
		b.dropped[ev.Kind]++
		b.mu.Unlock()
		return
	}

	if len(b.queue) >= b.config.WarnBacklog && !ev.Kind.Lifecycle() {
		b.dropped[ev.Kind]++
		backlog := len(b.queue)
		b.mu.Unlock()
		b.logger.Warn("event bus backlog, dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Int("backlog", backlog),
		)
		return
	}

	b.queue = append(b.queue, ev)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Events 返回消费端通道。总线关闭且队列排空后通道关闭。
func (b *Bus) Events() <-chan types.Event {
	return b.out
}

// Len 返回当前积压的事件数。
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Dropped 返回各事件类型的累计丢弃计数。
func (b *Bus) Dropped() map[types.EventKind]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[types.EventKind]uint64, len(b.dropped))
	for k, v := range b.dropped {
		out[k] = v
	}
	return out
}

// Close 发布关停事件并关闭总线。
// 已入队的事件仍会被投递完，随后消费通道关闭。
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, types.Event{Kind: types.EventShutdown})
	b.closed = true
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// pump 单消费者投递泵：保持发布顺序，排空后关闭输出通道。
func (b *Bus) pump() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			if b.closed {
				b.mu.Unlock()
				close(b.out)
				return
			}
			b.mu.Unlock()
			<-b.notify
			continue
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.out <- ev
	}
}
