package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// Executor 执行分派到某 Agent 的任务。
// 实现必须尊重 ctx 的截止时间与取消。
type Executor interface {
	Execute(ctx context.Context, agent types.Agent, task types.Task) (types.TaskResult, error)
}

// SimulatedExecutor 按任务的预估时长模拟执行。
// 没有外接执行器时作为默认实现，便于联调与压测。
type SimulatedExecutor struct {
	// DefaultDuration 任务未声明预估时长时的模拟耗时
	DefaultDuration time.Duration
}

// Execute 实现 Executor 接口。
func (e *SimulatedExecutor) Execute(ctx context.Context, agent types.Agent, task types.Task) (types.TaskResult, error) {
	d := task.EstimatedDuration
	if d <= 0 {
		d = e.DefaultDuration
	}
	if d <= 0 {
		d = 10 * time.Millisecond
	}

	select {
	case <-ctx.Done():
		return types.TaskResult{}, ctx.Err()
	case <-time.After(d):
	}

	// 质量分按执行 Agent 的最高相关熟练度估算
	quality := 0.5
	for _, req := range task.RequiredCapabilities {
		for _, c := range agent.Capabilities {
			if c.Name == req.Name && c.Proficiency > quality {
				quality = c.Proficiency
			}
		}
	}

	return types.TaskResult{
		TaskID:       task.ID,
		AgentID:      agent.ID,
		Success:      true,
		Output:       fmt.Sprintf("task %q executed by %s", task.Title, agent.Name),
		QualityScore: quality,
		CompletedAt:  time.Now().UTC(),
	}, nil
}
