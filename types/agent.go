package types

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Agent domain model
// =============================================================================
// The types package is the lowest-level package with no internal dependencies;
// every other package shares these definitions, which avoids circular imports
// between the registry, the dispatcher, and the transport layer.
// =============================================================================

// AgentType classifies the role an agent plays inside the hive.
type AgentType string

const (
	// AgentWorker is a general-purpose agent for task execution.
	AgentWorker AgentType = "worker"
	// AgentCoordinator is a leadership agent that manages other agents.
	AgentCoordinator AgentType = "coordinator"
	// AgentSpecialist is a domain-specific agent with specialized capabilities.
	AgentSpecialist AgentType = "specialist"
	// AgentLearner is an agent focused on continuous learning and adaptation.
	AgentLearner AgentType = "learner"
)

// ValidAgentType reports whether t is a member of the closed agent type enum.
func ValidAgentType(t AgentType) bool {
	switch t {
	case AgentWorker, AgentCoordinator, AgentSpecialist, AgentLearner:
		return true
	}
	return false
}

// AgentState is the liveness state of a registered agent.
type AgentState string

const (
	AgentActive   AgentState = "active"
	AgentIdle     AgentState = "idle"
	AgentDraining AgentState = "draining"
	AgentRemoved  AgentState = "removed"
)

// Capability is a named skill with a proficiency in [0, 1].
//
// LearningRate is carried for forward compatibility with capability
// evolution; the coordination core stores it but does not adjust it.
type Capability struct {
	Name         string  `json:"name"`
	Proficiency  float64 `json:"proficiency"`
	LearningRate float64 `json:"learning_rate,omitempty"`
}

// ResourceLimits is the per-agent resource budget.
type ResourceLimits struct {
	// MaxConcurrentTasks caps the number of tasks the dispatcher may run
	// on this agent at once.
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`
	// MaxMemoryMB is the advisory memory cap for the agent's executor.
	MaxMemoryMB int `json:"max_memory_mb"`
	// TaskTimeout bounds a single task execution on this agent.
	TaskTimeout time.Duration `json:"task_timeout"`
}

// DefaultResourceLimits returns the budget applied when a registration
// payload omits resource limits.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxConcurrentTasks: 5,
		MaxMemoryMB:        512,
		TaskTimeout:        5 * time.Minute,
	}
}

// Agent is a registered worker capable of executing tasks matching its
// capabilities. Agent values handed out by the registry are snapshots;
// mutating one never affects registry state.
type Agent struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Type         AgentType      `json:"agent_type"`
	State        AgentState     `json:"state"`
	Capabilities []Capability   `json:"capabilities"`
	Limits       ResourceLimits `json:"resource_limits"`
	Metrics      AgentMetrics   `json:"metrics"`
	RegisteredAt time.Time      `json:"registered_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Clone returns a deep copy of the agent, suitable for handing to callers
// outside the registry.
func (a *Agent) Clone() Agent {
	out := *a
	out.Capabilities = make([]Capability, len(a.Capabilities))
	copy(out.Capabilities, a.Capabilities)
	if a.Metrics.LastActivity != nil {
		t := *a.Metrics.LastActivity
		out.Metrics.LastActivity = &t
	}
	return out
}

// CanHandle reports whether the agent's capability set covers every
// required capability at or above its minimum proficiency.
func (a *Agent) CanHandle(required []RequiredCapability) bool {
	for _, req := range required {
		ok := false
		for _, c := range a.Capabilities {
			if c.Name == req.Name && c.Proficiency >= req.MinimumProficiency {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// AgentMetrics holds per-agent rolling execution statistics.
//
// Invariants maintained by the registry:
//
//	TasksCompleted + TasksFailed == number of TaskCompleted events for the agent
//	AverageExecutionTimeMS == TotalExecutionTimeMS / total   (total > 0)
//	PerformanceScore == successRate × min(1, 1000/AverageExecutionTimeMS)
type AgentMetrics struct {
	TasksCompleted         uint64     `json:"tasks_completed"`
	TasksFailed            uint64     `json:"tasks_failed"`
	TotalExecutionTimeMS   uint64     `json:"total_execution_time_ms"`
	AverageExecutionTimeMS float64    `json:"average_execution_time_ms"`
	LastActivity           *time.Time `json:"last_activity,omitempty"`
	PerformanceScore       float64    `json:"performance_score"`
}

// Recalculate applies one execution outcome and restores the metric
// invariants. now becomes the metrics' last activity instant.
func (m *AgentMetrics) Recalculate(executionTimeMS uint64, success bool, now time.Time) {
	if success {
		m.TasksCompleted++
	} else {
		m.TasksFailed++
	}
	m.TotalExecutionTimeMS += executionTimeMS

	total := m.TasksCompleted + m.TasksFailed
	if total > 0 {
		m.AverageExecutionTimeMS = float64(m.TotalExecutionTimeMS) / float64(total)
	} else {
		m.AverageExecutionTimeMS = 0
	}
	m.PerformanceScore = m.score()
	m.LastActivity = &now
}

// score computes success_rate × speed_bonus. A zero-sample agent scores 0.
func (m *AgentMetrics) score() float64 {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 0
	}
	successRate := float64(m.TasksCompleted) / float64(total)
	speedBonus := 1.0
	if m.AverageExecutionTimeMS > 0 {
		speedBonus = 1000.0 / m.AverageExecutionTimeMS
		if speedBonus > 1.0 {
			speedBonus = 1.0
		}
	}
	return successRate * speedBonus
}
