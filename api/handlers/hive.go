// =============================================================================
// 蜂巢 HTTP Handlers
// =============================================================================
// REST 入口:Agent 生命周期、任务提交/查询/取消、状态与指标导出。
// 语义校验与类别限流都在协调器门面内;这里只做编解码与状态码映射。
// =============================================================================

package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	hive "github.com/do-ops885/ai-orchestrator-hub"
	"github.com/do-ops885/ai-orchestrator-hub/api"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// HiveHandler 协调器的 HTTP 入口。
type HiveHandler struct {
	hive   *hive.Hive
	logger *zap.Logger
}

// NewHiveHandler 创建 handler。
func NewHiveHandler(h *hive.Hive, logger *zap.Logger) *HiveHandler {
	return &HiveHandler{
		hive:   h,
		logger: logger.With(zap.String("component", "api")),
	}
}

// =============================================================================
// 🤖 Agent 端点
// =============================================================================

// HandleCreateAgent POST /agents
func (h *HiveHandler) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var payload api.CreateAgentPayload
	if err := DecodeJSONBody(r, &payload); err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	id, err := h.hive.CreateAgent(r.Context(), ClientIP(r), payload.ToRequest())
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteData(r, w, http.StatusCreated, api.AgentCreatedResponse{AgentID: id})
}

// HandleListAgents GET /agents
func (h *HiveHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(r, w, h.hive.ListAgents())
}

// HandleGetAgent GET /agents/{id}
func (h *HiveHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	agent, err := h.hive.GetAgent(id)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteSuccess(r, w, agent)
}

// HandleRemoveAgent DELETE /agents/{id}
func (h *HiveHandler) HandleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	if err := h.hive.RemoveAgent(r.Context(), ClientIP(r), id); err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// 📋 任务端点
// =============================================================================

// HandleCreateTask POST /tasks
func (h *HiveHandler) HandleCreateTask(w http.ResponseWriter, r *http.Request) {
	var payload api.CreateTaskPayload
	if err := DecodeJSONBody(r, &payload); err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	req, err := payload.ToRequest()
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	id, err := h.hive.SubmitTask(r.Context(), ClientIP(r), req)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteData(r, w, http.StatusCreated, api.TaskCreatedResponse{TaskID: id})
}

// HandleGetTask GET /tasks/{id}
func (h *HiveHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	rec, err := h.hive.GetTask(id)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteSuccess(r, w, rec)
}

// HandleCancelTask DELETE /tasks/{id}
func (h *HiveHandler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	if err := h.hive.CancelTask(r.Context(), ClientIP(r), id); err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleExecuteTask POST /tasks/{id}/execute
// 同步地把任务交给请求体指定的 Agent 执行并返回结果。
func (h *HiveHandler) HandleExecuteTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := pathID(r)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	var payload api.ExecuteTaskPayload
	if err := DecodeJSONBody(r, &payload); err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	agentID, err := uuid.Parse(payload.AgentID)
	if err != nil {
		WriteError(r, w, types.NewValidationError("invalid agent id").
			WithField("agent_id", "must be a valid UUID"), h.logger)
		return
	}

	result, err := h.hive.ExecuteTaskWithVerification(r.Context(), ClientIP(r), taskID, agentID)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteSuccess(r, w, result)
}

// =============================================================================
// 📊 状态与指标端点
// =============================================================================

// HandleStatus GET /status
func (h *HiveHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	raw, err := h.hive.Status()
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteRaw(w, http.StatusOK, raw)
}

// HandleAnalytics GET /analytics
func (h *HiveHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	raw, err := h.hive.Analytics()
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}
	WriteRaw(w, http.StatusOK, raw)
}

// HandleMetricsExport GET /metrics?format=json|prometheus
func (h *HiveHandler) HandleMetricsExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	out, err := h.hive.ExportMetrics(format)
	if err != nil {
		WriteError(r, w, err, h.logger)
		return
	}

	if format == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)
		return
	}
	WriteRaw(w, http.StatusOK, out)
}

// pathID 解析路径中的 {id} 为 UUID。
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, types.NewValidationError("invalid id").
			WithField("id", "must be a valid UUID")
	}
	return id, nil
}
