// =============================================================================
// 🐝 协调器操作入口
// =============================================================================
// 所有公开操作:Agent 生命周期、任务提交与查询、同步执行验证。
// 变更类入口先过对应类别的固定窗口限流器,再做边界校验。
// =============================================================================

package hive

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/do-ops885/ai-orchestrator-hub/dispatch"
	"github.com/do-ops885/ai-orchestrator-hub/internal/ratelimit"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// 边界校验约束。
const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9 _\-]+$`)

// CreateAgentRequest 创建 Agent 的入参。
type CreateAgentRequest struct {
	Name         string                `json:"name"`
	Type         types.AgentType       `json:"agent_type"`
	Capabilities []types.Capability    `json:"capabilities,omitempty"`
	Limits       *types.ResourceLimits `json:"resource_limits,omitempty"`
}

// SubmitTaskRequest 提交任务的入参。
type SubmitTaskRequest struct {
	Title                string                     `json:"title,omitempty"`
	Description          string                     `json:"description"`
	Priority             types.TaskPriority         `json:"priority,omitempty"`
	RequiredCapabilities []types.RequiredCapability `json:"required_capabilities,omitempty"`
	EstimatedDuration    time.Duration              `json:"estimated_duration,omitempty"`
	Dependencies         []uuid.UUID                `json:"dependencies,omitempty"`
}

// =============================================================================
// 🤖 Agent 生命周期
// =============================================================================

// CreateAgent 校验入参并注册新 Agent,返回其 id。
func (h *Hive) CreateAgent(ctx context.Context, clientID string, req CreateAgentRequest) (uuid.UUID, error) {
	if err := h.gate(h.limiters.AgentCreation, "agent_creation", clientID); err != nil {
		return uuid.Nil, err
	}
	if err := validateCreateAgent(req); err != nil {
		return uuid.Nil, err
	}

	limits := types.DefaultResourceLimits()
	if req.Limits != nil {
		limits = *req.Limits
	}

	a := &types.Agent{
		ID:           uuid.New(),
		Name:         req.Name,
		Type:         req.Type,
		State:        types.AgentIdle,
		Capabilities: req.Capabilities,
		Limits:       limits,
		RegisteredAt: time.Now().UTC(),
	}

	if err := h.registry.Register(a); err != nil {
		return uuid.Nil, err
	}
	h.queue.RegisterAgent(a.ID)
	h.caches.Agents.Put(a.ID, a.Clone())
	h.caches.Status.Clear()

	h.logger.Info("agent created",
		zap.String("agent_id", a.ID.String()),
		zap.String("name", a.Name),
		zap.String("agent_type", string(a.Type)),
	)
	return a.ID, nil
}

// RemoveAgent 注销 Agent。其本地队列中的任务回到全局队列。
func (h *Hive) RemoveAgent(ctx context.Context, clientID string, id uuid.UUID) error {
	if err := h.gate(h.limiters.API, "api", clientID); err != nil {
		return err
	}

	if _, err := h.registry.Remove(id); err != nil {
		return err
	}
	h.queue.UnregisterAgent(id)
	h.breakers.Remove(id)
	h.caches.InvalidateAgent(id)

	h.logger.Info("agent removed", zap.String("agent_id", id.String()))
	return nil
}

// GetAgent 查询 Agent 快照,优先命中缓存。
func (h *Hive) GetAgent(id uuid.UUID) (types.Agent, error) {
	if a, ok := h.caches.Agents.Get(id); ok {
		h.recordCache("agents", true)
		return a, nil
	}
	h.recordCache("agents", false)

	a, ok := h.registry.Get(id)
	if !ok {
		return types.Agent{}, types.NewError(types.ErrAgentNotFound, "agent not found").WithHTTPStatus(404)
	}
	h.caches.Agents.Put(id, a)
	return a, nil
}

// ListAgents 列出全部 Agent 快照。
func (h *Hive) ListAgents() []types.Agent {
	return h.registry.List()
}

// =============================================================================
// 📋 任务操作
// =============================================================================

// SubmitTask 校验入参并把任务提交给调度器,返回任务 id。
func (h *Hive) SubmitTask(ctx context.Context, clientID string, req SubmitTaskRequest) (uuid.UUID, error) {
	if err := h.gate(h.limiters.TaskCreation, "task_creation", clientID); err != nil {
		return uuid.Nil, err
	}
	if err := validateSubmitTask(&req); err != nil {
		return uuid.Nil, err
	}

	t := types.NewTask(req.Title, req.Description, req.Priority)
	t.RequiredCapabilities = req.RequiredCapabilities
	t.EstimatedDuration = req.EstimatedDuration
	t.Dependencies = req.Dependencies

	if err := h.dispatcher.Submit(t); err != nil {
		return uuid.Nil, err
	}
	if h.collector != nil {
		h.collector.SetQueueDepth(h.queue.Size())
	}
	return t.ID, nil
}

// GetTask 查询任务记录。终态任务写入缓存,可在历史环淘汰后继续命中。
func (h *Hive) GetTask(id uuid.UUID) (dispatch.TaskRecord, error) {
	if rec, ok := h.dispatcher.Get(id); ok {
		if rec.Task.Status.Terminal() {
			h.caches.Tasks.Put(id, rec.Task)
		}
		return rec, nil
	}
	if t, ok := h.caches.Tasks.Get(id); ok {
		h.recordCache("tasks", true)
		return dispatch.TaskRecord{Task: t}, nil
	}
	h.recordCache("tasks", false)
	return dispatch.TaskRecord{}, types.NewError(types.ErrTaskNotFound, "task not found").WithHTTPStatus(404)
}

// CancelTask 取消任务。
func (h *Hive) CancelTask(ctx context.Context, clientID string, id uuid.UUID) error {
	if err := h.gate(h.limiters.API, "api", clientID); err != nil {
		return err
	}
	if err := h.dispatcher.Cancel(id); err != nil {
		return err
	}
	h.caches.InvalidateTask(id)
	return nil
}

// ExecuteTaskWithVerification 同步地把一个排队中的任务交给指定
// Agent 执行并返回执行结果,绕过调度器的候选选择。
func (h *Hive) ExecuteTaskWithVerification(ctx context.Context, clientID string, taskID, agentID uuid.UUID) (types.TaskResult, error) {
	if err := h.gate(h.limiters.API, "api", clientID); err != nil {
		return types.TaskResult{}, err
	}
	result, err := h.dispatcher.ExecuteWith(ctx, taskID, agentID)
	if err != nil {
		return types.TaskResult{}, err
	}
	h.caches.InvalidateTask(taskID)
	return result, nil
}

// ExportMetrics 导出聚合指标,format 取 "json" 或 "prometheus"。
func (h *Hive) ExportMetrics(format string) ([]byte, error) {
	return h.aggregator.Export(format)
}

// =============================================================================
// 🛂 限流与校验
// =============================================================================

// gate 在关停后拒绝变更,并对客户端执行类别限流。
func (h *Hive) gate(l *ratelimit.Limiter, category, clientID string) error {
	if h.closed.Load() {
		return types.NewError(types.ErrSystemOverloaded, "coordinator is shutting down").
			WithHTTPStatus(503).WithRetryable(true)
	}

	res := l.Check(clientID)
	if res.Allowed {
		return nil
	}
	if h.collector != nil {
		h.collector.RecordRateLimitDenial(category)
	}
	return types.NewResourceExhausted("rate:" + category).WithHTTPStatus(429)
}

func (h *Hive) recordCache(cacheType string, hit bool) {
	if h.collector == nil {
		return
	}
	if hit {
		h.collector.RecordCacheHit(cacheType)
	} else {
		h.collector.RecordCacheMiss(cacheType)
	}
}

func validateCreateAgent(req CreateAgentRequest) error {
	var fields []types.FieldError

	if len(req.Name) < 1 || len(req.Name) > maxNameLength {
		fields = append(fields, types.FieldError{Field: "name", Message: fmt.Sprintf("must be 1-%d characters", maxNameLength)})
	} else if !namePattern.MatchString(req.Name) {
		fields = append(fields, types.FieldError{Field: "name", Message: "may only contain letters, digits, spaces, underscores and hyphens"})
	}

	if !types.ValidAgentType(req.Type) {
		fields = append(fields, types.FieldError{Field: "agent_type", Message: fmt.Sprintf("unknown agent type %q", req.Type)})
	}

	for i, c := range req.Capabilities {
		if c.Name == "" {
			fields = append(fields, types.FieldError{Field: fmt.Sprintf("capabilities[%d].name", i), Message: "must not be empty"})
		}
		if c.Proficiency < 0 || c.Proficiency > 1 {
			fields = append(fields, types.FieldError{Field: fmt.Sprintf("capabilities[%d].proficiency", i), Message: "must be in [0, 1]"})
		}
	}

	if req.Limits != nil {
		if req.Limits.MaxConcurrentTasks < 0 {
			fields = append(fields, types.FieldError{Field: "resource_limits.max_concurrent_tasks", Message: "must not be negative"})
		}
		if req.Limits.MaxMemoryMB < 0 {
			fields = append(fields, types.FieldError{Field: "resource_limits.max_memory_mb", Message: "must not be negative"})
		}
	}

	if len(fields) > 0 {
		return types.NewValidationError("invalid agent payload", fields...)
	}
	return nil
}

func validateSubmitTask(req *SubmitTaskRequest) error {
	var fields []types.FieldError

	if len(req.Description) < 1 || len(req.Description) > maxDescriptionLength {
		fields = append(fields, types.FieldError{Field: "description", Message: fmt.Sprintf("must be 1-%d characters", maxDescriptionLength)})
	}

	if req.Priority == "" {
		req.Priority = types.PriorityMedium
	} else if !types.ValidTaskPriority(req.Priority) {
		fields = append(fields, types.FieldError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", req.Priority)})
	}

	for i, c := range req.RequiredCapabilities {
		if c.Name == "" {
			fields = append(fields, types.FieldError{Field: fmt.Sprintf("required_capabilities[%d].name", i), Message: "must not be empty"})
		}
		if c.MinimumProficiency < 0 || c.MinimumProficiency > 1 {
			fields = append(fields, types.FieldError{Field: fmt.Sprintf("required_capabilities[%d].minimum_proficiency", i), Message: "must be in [0, 1]"})
		}
	}

	if req.EstimatedDuration < 0 {
		fields = append(fields, types.FieldError{Field: "estimated_duration", Message: "must not be negative"})
	}

	if req.Title == "" {
		req.Title = req.Description
		if len(req.Title) > 64 {
			req.Title = req.Title[:64]
		}
	}

	if len(fields) > 0 {
		return types.NewValidationError("invalid task payload", fields...)
	}
	return nil
}
