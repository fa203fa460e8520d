package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	hive "github.com/do-ops885/ai-orchestrator-hub"
	"github.com/do-ops885/ai-orchestrator-hub/types"
)

// mcpClientID 工具调用在限流器中的客户端标识
const mcpClientID = "mcp"

// =============================================================================
// 🤖 create_swarm_agent
// =============================================================================

type createSwarmAgentTool struct {
	hive *hive.Hive
}

func (t *createSwarmAgentTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	agentType := stringParam(params, "agent_type", "worker")

	var typ types.AgentType
	switch strings.ToLower(agentType) {
	case "worker":
		typ = types.AgentWorker
	case "coordinator":
		typ = types.AgentCoordinator
	case "specialist":
		typ = types.AgentSpecialist
	case "learner":
		typ = types.AgentLearner
	default:
		typ = types.AgentWorker
	}

	name := stringParam(params, "name", "")
	if name == "" {
		name = fmt.Sprintf("%s-%d", typ, time.Now().UnixMilli())
	}

	req := hive.CreateAgentRequest{
		Name: name,
		Type: typ,
	}
	if spec := stringParam(params, "specialization", ""); spec != "" {
		req.Capabilities = []types.Capability{{Name: spec, Proficiency: 0.5}}
	}

	id, err := t.hive.CreateAgent(ctx, mcpClientID, req)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":  true,
		"agent_id": id.String(),
		"message":  fmt.Sprintf("Created %s agent with ID: %s", typ, id),
	}, nil
}

func (t *createSwarmAgentTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_type": map[string]any{
				"type":        "string",
				"enum":        []string{"worker", "coordinator", "specialist", "learner"},
				"description": "Type of agent to create",
			},
			"name": map[string]any{
				"type":        "string",
				"description": "Agent name (generated when omitted)",
			},
			"specialization": map[string]any{
				"type":        "string",
				"description": "Capability name for specialist agents",
			},
		},
		"required": []string{"agent_type"},
	}
}

func (t *createSwarmAgentTool) Description() string {
	return "Create a new agent in the swarm with specified type and capabilities"
}

// =============================================================================
// 📋 assign_swarm_task
// =============================================================================

type assignSwarmTaskTool struct {
	hive *hive.Hive
}

func (t *assignSwarmTaskTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	description := stringParam(params, "description", "")
	if description == "" {
		return nil, fmt.Errorf("missing task description")
	}

	priority := types.TaskPriority(strings.ToLower(stringParam(params, "priority", "medium")))
	if !types.ValidTaskPriority(priority) {
		priority = types.PriorityMedium
	}

	id, err := t.hive.SubmitTask(ctx, mcpClientID, hive.SubmitTaskRequest{
		Description: description,
		Priority:    priority,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success": true,
		"task_id": id.String(),
		"message": fmt.Sprintf("Created task with ID: %s", id),
	}, nil
}

func (t *assignSwarmTaskTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{
				"type":        "string",
				"description": "Description of the task to assign",
			},
			"priority": map[string]any{
				"type":        "string",
				"enum":        []string{"low", "medium", "high", "critical"},
				"description": "Priority level of the task",
			},
		},
		"required": []string{"description"},
	}
}

func (t *assignSwarmTaskTool) Description() string {
	return "Assign a new task to the swarm with specified priority"
}

// =============================================================================
// 📊 get_swarm_status
// =============================================================================

type getSwarmStatusTool struct {
	hive *hive.Hive
}

func (t *getSwarmStatusTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	raw, err := t.hive.Status()
	if err != nil {
		return nil, err
	}

	var status map[string]any
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, err
	}
	return status, nil
}

func (t *getSwarmStatusTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func (t *getSwarmStatusTool) Description() string {
	return "Get the current status of the multiagent hive system"
}

// =============================================================================
// 🔤 analyze_with_nlp
// =============================================================================

// Analyzer 文本分析接口。默认实现是词典法情感分析,
// 可在构造时替换为任意外部 NLP 后端。
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

// Analysis 文本分析结果
type Analysis struct {
	Sentiment string   `json:"sentiment"`
	Keywords  []string `json:"keywords"`
	Length    int      `json:"length"`
	WordCount int      `json:"word_count"`
}

// LexiconAnalyzer 基于词典的情感与关键词分析。
type LexiconAnalyzer struct{}

var (
	positiveWords = map[string]struct{}{
		"good": {}, "great": {}, "excellent": {}, "success": {}, "improve": {},
		"fast": {}, "reliable": {}, "efficient": {}, "stable": {}, "happy": {},
	}
	negativeWords = map[string]struct{}{
		"bad": {}, "fail": {}, "failure": {}, "error": {}, "slow": {},
		"broken": {}, "crash": {}, "timeout": {}, "unstable": {}, "sad": {},
	}
)

// Analyze 统计正负词频决定情感极性,取出现频率最高的前 5 个词作为关键词。
func (a *LexiconAnalyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	words := strings.Fields(strings.ToLower(text))

	score := 0
	freq := make(map[string]int)
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" {
			continue
		}
		if _, ok := positiveWords[w]; ok {
			score++
		}
		if _, ok := negativeWords[w]; ok {
			score--
		}
		if len(w) > 3 {
			freq[w]++
		}
	}

	sentiment := "neutral"
	if score > 0 {
		sentiment = "positive"
	} else if score < 0 {
		sentiment = "negative"
	}

	type wordCount struct {
		word  string
		count int
	}
	counts := make([]wordCount, 0, len(freq))
	for w, c := range freq {
		counts = append(counts, wordCount{w, c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].word < counts[j].word
	})

	keywords := make([]string, 0, 5)
	for i := 0; i < len(counts) && i < 5; i++ {
		keywords = append(keywords, counts[i].word)
	}

	return Analysis{
		Sentiment: sentiment,
		Keywords:  keywords,
		Length:    len(text),
		WordCount: len(words),
	}, nil
}

type analyzeWithNLPTool struct {
	analyzer Analyzer
}

func (t *analyzeWithNLPTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	text := stringParam(params, "text", "")
	if text == "" {
		return nil, fmt.Errorf("missing text to analyze")
	}

	analysis, err := t.analyzer.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"analysis":  analysis,
		"text":      text,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (t *analyzeWithNLPTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":        "string",
				"description": "Text to analyze with NLP",
			},
		},
		"required": []string{"text"},
	}
}

func (t *analyzeWithNLPTool) Description() string {
	return "Analyze text using the hive's NLP capabilities"
}

// =============================================================================
// 🧭 coordinate_agents
// =============================================================================

type coordinateAgentsTool struct {
	hive *hive.Hive
}

func (t *coordinateAgentsTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	strategy := stringParam(params, "strategy", "default")

	var recommendations []string
	switch strategy {
	case "aggressive":
		recommendations = []string{"Increase task distribution", "Boost agent communication"}
	case "conservative":
		recommendations = []string{"Maintain current pace", "Focus on quality"}
	case "balanced":
		recommendations = []string{"Optimize resource allocation", "Balance speed and quality"}
	default:
		recommendations = []string{"Standard coordination applied"}
	}

	agents := t.hive.ListAgents()

	return map[string]any{
		"strategy": strategy,
		"result": map[string]any{
			"strategy_applied":   strategy,
			"agents_coordinated": len(agents),
			"recommendations":    recommendations,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (t *coordinateAgentsTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"strategy": map[string]any{
				"type":        "string",
				"enum":        []string{"default", "aggressive", "conservative", "balanced"},
				"description": "Coordination strategy to use",
			},
		},
		"required": []string{},
	}
}

func (t *coordinateAgentsTool) Description() string {
	return "Coordinate agents in the swarm using specified strategy"
}

// =============================================================================
// 🔧 工具类:echo / system_info
// =============================================================================

type echoTool struct{}

func (t *echoTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	message := stringParam(params, "message", "Hello from MCP!")
	return map[string]any{
		"echo":      message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (t *echoTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to echo back",
			},
		},
		"required": []string{},
	}
}

func (t *echoTool) Description() string {
	return "Echo a message back with timestamp"
}

type systemInfoTool struct{}

func (t *systemInfoTool) Execute(ctx context.Context, params map[string]any) (any, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return map[string]any{
		"hostname":     hostname,
		"platform":     runtime.GOOS,
		"architecture": runtime.GOARCH,
		"cpu_count":    runtime.NumCPU(),
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (t *systemInfoTool) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func (t *systemInfoTool) Description() string {
	return "Get system information including platform, architecture, and CPU count"
}

// stringParam 从参数表中读取字符串,缺失或类型不符时返回默认值。
func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}
