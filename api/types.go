package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	hive "github.com/do-ops885/ai-orchestrator-hub"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// =============================================================================
// 📦 请求载荷
// =============================================================================

// CapabilityPayload Agent 能力载荷
type CapabilityPayload struct {
	Name         string  `json:"name"`
	Proficiency  float64 `json:"proficiency"`
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// ResourceLimitsPayload Agent 资源预算载荷
type ResourceLimitsPayload struct {
	MaxConcurrentTasks int   `json:"max_concurrent_tasks,omitempty"`
	MaxMemoryMB        int   `json:"max_memory_mb,omitempty"`
	TaskTimeoutMS      int64 `json:"task_timeout_ms,omitempty"`
}

// CreateAgentPayload POST /agents 请求体
type CreateAgentPayload struct {
	Name           string                 `json:"name"`
	AgentType      string                 `json:"agent_type"`
	Capabilities   []CapabilityPayload    `json:"capabilities,omitempty"`
	ResourceLimits *ResourceLimitsPayload `json:"resource_limits,omitempty"`
}

// ToRequest 转换为门面入参。
func (p CreateAgentPayload) ToRequest() hive.CreateAgentRequest {
	req := hive.CreateAgentRequest{
		Name: p.Name,
		Type: types.AgentType(p.AgentType),
	}
	for _, c := range p.Capabilities {
		req.Capabilities = append(req.Capabilities, types.Capability{
			Name:         c.Name,
			Proficiency:  c.Proficiency,
			LearningRate: c.LearningRate,
		})
	}
	if p.ResourceLimits != nil {
		limits := types.DefaultResourceLimits()
		if p.ResourceLimits.MaxConcurrentTasks > 0 {
			limits.MaxConcurrentTasks = p.ResourceLimits.MaxConcurrentTasks
		}
		if p.ResourceLimits.MaxMemoryMB > 0 {
			limits.MaxMemoryMB = p.ResourceLimits.MaxMemoryMB
		}
		if p.ResourceLimits.TaskTimeoutMS > 0 {
			limits.TaskTimeout = time.Duration(p.ResourceLimits.TaskTimeoutMS) * time.Millisecond
		}
		req.Limits = &limits
	}
	return req
}

// RequiredCapabilityPayload 任务能力要求载荷
type RequiredCapabilityPayload struct {
	Name               string  `json:"name"`
	MinimumProficiency float64 `json:"minimum_proficiency"`
}

// CreateTaskPayload POST /tasks 请求体
type CreateTaskPayload struct {
	Title                string                      `json:"title,omitempty"`
	Description          string                      `json:"description"`
	Priority             string                      `json:"priority,omitempty"`
	RequiredCapabilities []RequiredCapabilityPayload `json:"required_capabilities,omitempty"`
	EstimatedDurationMS  int64                       `json:"estimated_duration_ms,omitempty"`
	Dependencies         []string                    `json:"dependencies,omitempty"`
}

// ToRequest 转换为门面入参,依赖 id 解析失败返回校验错误。
func (p CreateTaskPayload) ToRequest() (hive.SubmitTaskRequest, error) {
	req := hive.SubmitTaskRequest{
		Title:             p.Title,
		Description:       p.Description,
		Priority:          types.TaskPriority(p.Priority),
		EstimatedDuration: time.Duration(p.EstimatedDurationMS) * time.Millisecond,
	}
	for _, c := range p.RequiredCapabilities {
		req.RequiredCapabilities = append(req.RequiredCapabilities, types.RequiredCapability{
			Name:               c.Name,
			MinimumProficiency: c.MinimumProficiency,
		})
	}

	var fields []types.FieldError
	for i, dep := range p.Dependencies {
		id, err := uuid.Parse(dep)
		if err != nil {
			fields = append(fields, types.FieldError{
				Field:   fmt.Sprintf("dependencies[%d]", i),
				Message: "must be a valid UUID",
			})
			continue
		}
		req.Dependencies = append(req.Dependencies, id)
	}
	if len(fields) > 0 {
		return hive.SubmitTaskRequest{}, types.NewValidationError("invalid task payload", fields...)
	}
	return req, nil
}

// ExecuteTaskPayload POST /tasks/{id}/execute 请求体
type ExecuteTaskPayload struct {
	AgentID string `json:"agent_id"`
}

// =============================================================================
// 📬 响应载荷
// =============================================================================

// AgentCreatedResponse 创建 Agent 成功响应
type AgentCreatedResponse struct {
	AgentID uuid.UUID `json:"agent_id"`
}

// TaskCreatedResponse 创建任务成功响应
type TaskCreatedResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}
