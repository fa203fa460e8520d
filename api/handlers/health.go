package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	ready  func() bool
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// NewHealthHandler 创建健康检查处理器。ready 判断协调器是否可服务,
// 为 nil 时始终就绪。
func NewHealthHandler(ready func() bool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, ready: ready}
}

// HandleHealth 处理 /health 请求(活跃度)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// HandleReady 处理 /ready 请求(就绪度)
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		WriteJSON(w, http.StatusServiceUnavailable, HealthStatus{
			Status:    "unhealthy",
			Timestamp: time.Now().UTC(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// HandleVersion 返回版本信息处理器
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}
