// =============================================================================
// 🏭 测试数据工厂
// =============================================================================
// 提供预置的 Agent 与 Task 样例,Builder 风格的可选调整
//
// 使用方法:
//
//	agent := testutil.WorkerAgent("crawler")
//	task := testutil.TaskWithCapability("index", "index the archive", 0.5)
// =============================================================================
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// WorkerAgent 返回一个空闲的 worker Agent
func WorkerAgent(name string) types.Agent {
	now := time.Now()
	return types.Agent{
		ID:           uuid.New(),
		Name:         name,
		Type:         types.AgentWorker,
		State:        types.AgentIdle,
		Limits:       types.DefaultResourceLimits(),
		RegisteredAt: now,
		LastActivity: now,
	}
}

// SpecialistAgent 返回带单项能力的 specialist Agent
func SpecialistAgent(name, capability string, proficiency float64) types.Agent {
	a := WorkerAgent(name)
	a.Type = types.AgentSpecialist
	a.Capabilities = []types.Capability{{
		Name:        capability,
		Proficiency: proficiency,
	}}
	return a
}

// AgentWithMetrics 返回带执行统计的 Agent
func AgentWithMetrics(name string, completed, failed uint64, score float64) types.Agent {
	a := WorkerAgent(name)
	a.Metrics = types.AgentMetrics{
		TasksCompleted:   completed,
		TasksFailed:      failed,
		PerformanceScore: score,
	}
	return a
}

// PendingTask 返回一个待调度任务
func PendingTask(description string, priority types.TaskPriority) *types.Task {
	return types.NewTask(description, description, priority)
}

// TaskWithCapability 返回带能力要求的任务
func TaskWithCapability(title, description string, minProficiency float64) *types.Task {
	task := types.NewTask(title, description, types.PriorityMedium)
	task.RequiredCapabilities = []types.RequiredCapability{{
		Name:               title,
		MinimumProficiency: minProficiency,
	}}
	return task
}

// TaskChain 返回 n 个串联任务,每个任务依赖前一个
func TaskChain(n int, priority types.TaskPriority) []*types.Task {
	tasks := make([]*types.Task, n)
	for i := range tasks {
		tasks[i] = types.NewTask("chained", "chained task", priority)
		if i > 0 {
			tasks[i].Dependencies = []uuid.UUID{tasks[i-1].ID}
		}
	}
	return tasks
}

// SuccessResult 返回一次成功执行的结果
func SuccessResult(taskID, agentID uuid.UUID, execMS uint64) types.TaskResult {
	return types.TaskResult{
		TaskID:          taskID,
		AgentID:         agentID,
		Success:         true,
		ExecutionTimeMS: execMS,
		QualityScore:    1.0,
		CompletedAt:     time.Now(),
	}
}

// FailureResult 返回一次失败执行的结果
func FailureResult(taskID, agentID uuid.UUID, reason string) types.TaskResult {
	return types.TaskResult{
		TaskID:          taskID,
		AgentID:         agentID,
		Success:         false,
		Error:           reason,
		ExecutionTimeMS: 1,
		CompletedAt:     time.Now(),
	}
}
