// Package circuitbreaker 提供按 Agent 维度的熔断保护。
//
// 连续失败达到阈值后打开熔断，等待恢复窗口后进入半开，
// 半开状态只放行一次试探调用：成功则关闭，失败则重新打开。
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// RecoveryTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	RecoveryTimeout time.Duration

	// OnStateChange 状态变更回调
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:       5,
		RecoveryTimeout: 30 * time.Second,
	}
}

// 错误定义
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker 熔断器。拒绝的调用不计入失败；
// 半开状态同一时刻只允许一次试探调用在途。
type Breaker struct {
	config Config
	logger *zap.Logger

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	trialInFlight   bool

	rejections uint64
	trips      uint64
}

// New 创建熔断器。非法配置会被修正为默认值。
func New(config Config, logger *zap.Logger) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = DefaultConfig().Threshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}

	return &Breaker{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		state:  StateClosed,
	}
}

// Allow 调用前检查。返回 ErrCircuitOpen 表示调用被拒绝；
// 返回 nil 后调用方必须以 RecordSuccess 或 RecordFailure 收尾。
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(b.lastFailureTime) > b.config.RecoveryTimeout {
			b.setState(StateHalfOpen)
			b.trialInFlight = true
			b.logger.Info("circuit breaker entering half-open")
			return nil
		}
		b.rejections++
		return ErrCircuitOpen

	case StateHalfOpen:
		// 半开状态只放行一次试探
		if b.trialInFlight {
			b.rejections++
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil

	default:
		b.rejections++
		return ErrCircuitOpen
	}
}

// RecordSuccess 记录一次成功调用。
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		b.logger.Info("circuit breaker recovered")
		b.setState(StateClosed)
		b.failureCount = 0
		b.trialInFlight = false

	case StateOpen:
		// 打开状态不应该有在途调用
		b.logger.Warn("success recorded while circuit open")
	}
}

// RecordFailure 记录一次失败调用。
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("circuit breaker opened",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.trips++
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		b.logger.Warn("half-open trial failed, reopening")
		b.trips++
		b.setState(StateOpen)
		b.trialInFlight = false

	case StateOpen:
		b.logger.Warn("failure recorded while circuit open")
	}
}

// Call 以熔断保护执行 fn。被拒绝时返回 ErrCircuitOpen。
func (b *Breaker) Call(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		b.RecordFailure()
		return err
	}

	b.RecordSuccess()
	return nil
}

// State 获取当前状态。打开状态下若恢复窗口已过，报告为半开。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && time.Since(b.lastFailureTime) > b.config.RecoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset 重置熔断器（手动恢复）。
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.trialInFlight = false

	b.logger.Info("circuit breaker reset", zap.String("from_state", oldState.String()))

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, StateClosed)
	}
}

// Stats 熔断器统计信息
type Stats struct {
	State      string `json:"state"`
	Failures   int    `json:"failures"`
	Rejections uint64 `json:"rejections"`
	Trips      uint64 `json:"trips"`
}

// GetStats 获取统计信息
func (b *Breaker) GetStats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:      b.state.String(),
		Failures:   b.failureCount,
		Rejections: b.rejections,
		Trips:      b.trips,
	}
}

// setState 设置状态并触发回调。调用方必须持有锁。
func (b *Breaker) setState(newState State) {
	oldState := b.state
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}
