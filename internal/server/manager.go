// =============================================================================
// 蜂巢 HTTP 服务生命周期管理
// =============================================================================
// Wraps net/http.Server with non-blocking startup, error propagation and
// graceful shutdown, so cmd/hive can compose the API server and the metrics
// server with the same lifecycle code.
// =============================================================================

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Config HTTP 服务器配置
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":3001",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Manager owns a single http.Server instance and its listener.
type Manager struct {
	config   Config
	logger   *zap.Logger
	server   *http.Server
	listener net.Listener
	errCh    chan error
	mu       sync.Mutex
	running  bool
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if config.Addr == "" {
		config.Addr = ":3001"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	return &Manager{
		config: config,
		logger: logger.With(zap.String("component", "http_server")),
		server: &http.Server{
			Addr:           config.Addr,
			Handler:        handler,
			ReadTimeout:    config.ReadTimeout,
			WriteTimeout:   config.WriteTimeout,
			IdleTimeout:    config.IdleTimeout,
			MaxHeaderBytes: config.MaxHeaderBytes,
		},
		errCh: make(chan error, 1),
	}
}

// Start 非阻塞启动:绑定端口后立即返回,serve 循环在后台运行。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("server already running")
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.running = true

	go m.serve()

	m.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
	return nil
}

func (m *Manager) serve() {
	err := m.server.Serve(m.listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("http server error", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭:等待在途请求完成,超时后强制断开。
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ShutdownTimeout)
	defer cancel()

	m.logger.Info("http server shutting down")
	if err := m.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM or a serve error, then shuts down.
func (m *Manager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info("received signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		m.logger.Error("serve failed", zap.Error(err))
		return errors.Join(err, m.Shutdown())
	}
	return m.Shutdown()
}

// Errors exposes serve errors for callers that manage their own signal loop.
func (m *Manager) Errors() <-chan error { return m.errCh }

// Addr returns the bound address, useful when Addr was ":0".
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return m.config.Addr
	}
	return m.listener.Addr().String()
}

// IsRunning 返回服务器是否正在运行
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
