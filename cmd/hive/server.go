package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	hive "github.com/do-ops885/ai-orchestrator-hub"
	"github.com/do-ops885/ai-orchestrator-hub/api/handlers"
	"github.com/do-ops885/ai-orchestrator-hub/config"
	"github.com/do-ops885/ai-orchestrator-hub/internal/metrics"
	"github.com/do-ops885/ai-orchestrator-hub/internal/server"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Hive 的主服务器，组合协调器、HTTP API、WebSocket 推送与
// Prometheus 指标端点。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 协调器
	hive      *hive.Hive
	collector *metrics.Collector

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	hiveHandler   *handlers.HiveHandler
	healthHandler *handlers.HealthHandler

	// WebSocket 推送
	wsHub *WSHub

	// Rate limiter 清理 goroutine 生命周期
	rateLimiterDone chan struct{}
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器与协调器
	s.collector = metrics.NewCollector("hive", s.logger)

	h, err := hive.New(*s.cfg, s.logger, hive.WithCollector(s.collector))
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}
	s.hive = h
	s.hive.Start(context.Background())

	// 2. 初始化 Handlers
	s.hiveHandler = handlers.NewHiveHandler(s.hive, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.hive.IsRunning, s.logger)

	// 3. WebSocket 推送 hub
	s.wsHub = NewWSHub(s.hive, s.cfg.Server.WSPushInterval, s.logger)
	s.wsHub.Start()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// 健康检查与版本端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// Agent 路由
	mux.HandleFunc("POST /agents", s.hiveHandler.HandleCreateAgent)
	mux.HandleFunc("GET /agents", s.hiveHandler.HandleListAgents)
	mux.HandleFunc("GET /agents/{id}", s.hiveHandler.HandleGetAgent)
	mux.HandleFunc("DELETE /agents/{id}", s.hiveHandler.HandleRemoveAgent)

	// Task 路由
	mux.HandleFunc("POST /tasks", s.hiveHandler.HandleCreateTask)
	mux.HandleFunc("GET /tasks/{id}", s.hiveHandler.HandleGetTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.hiveHandler.HandleCancelTask)
	mux.HandleFunc("POST /tasks/{id}/execute", s.hiveHandler.HandleExecuteTask)

	// 状态与指标路由
	mux.HandleFunc("GET /status", s.hiveHandler.HandleStatus)
	mux.HandleFunc("GET /analytics", s.hiveHandler.HandleAnalytics)
	mux.HandleFunc("GET /metrics", s.hiveHandler.HandleMetricsExport)

	// WebSocket 实时推送
	mux.HandleFunc("GET /ws", s.wsHub.HandleWS)

	// 构建中间件链
	s.rateLimiterDone = make(chan struct{})
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(s.rateLimiterDone, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Prometheus 指标服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 1. 停止 rate limiter 清理 goroutine
	if s.rateLimiterDone != nil {
		close(s.rateLimiterDone)
	}

	// 2. 停止 WebSocket 推送
	if s.wsHub != nil {
		s.wsHub.Stop()
	}

	// 3. 关闭 HTTP 服务器(停止接受新请求)
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭协调器(排空队列、停止调度)
	if s.hive != nil {
		if err := s.hive.Close(ctx); err != nil {
			s.logger.Error("Coordinator shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
