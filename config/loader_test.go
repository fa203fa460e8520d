// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 3001, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.Server.WSPushInterval)

	// 验证协调器默认值
	assert.Equal(t, 0, cfg.Hive.MaxAgents)
	assert.Equal(t, 10000, cfg.Hive.TaskQueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.Hive.StatusCacheTTL)

	// 验证缓存默认值
	assert.Equal(t, 5*time.Minute, cfg.Cache.AgentTTL)
	assert.Equal(t, 1000, cfg.Cache.AgentCapacity)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TaskTTL)
	assert.Equal(t, 5000, cfg.Cache.TaskCapacity)
	assert.Equal(t, 30*time.Second, cfg.Cache.StatusTTL)
	assert.Equal(t, 100, cfg.Cache.StatusCapacity)

	// 验证限流默认值
	assert.Equal(t, 100, cfg.RateLimit.APILimit)
	assert.Equal(t, 10, cfg.RateLimit.AgentCreationLimit)
	assert.Equal(t, 50, cfg.RateLimit.TaskCreationLimit)
	assert.Equal(t, 5, cfg.RateLimit.WebSocketLimit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)

	// 验证日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3001, cfg.Server.HTTPPort)
	assert.Equal(t, 10000, cfg.Hive.TaskQueueCapacity)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	// 创建临时配置文件
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hive.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

hive:
  max_agents: 42
  task_queue_capacity: 500

rate_limit:
  agent_creation_limit: 3
  window: 30s

circuit_breaker:
  failure_threshold: 10
  recovery_timeout: 1m

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// 加载配置
	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, 42, cfg.Hive.MaxAgents)
	assert.Equal(t, 500, cfg.Hive.TaskQueueCapacity)

	assert.Equal(t, 3, cfg.RateLimit.AgentCreationLimit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)

	assert.Equal(t, 10, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.CircuitBreaker.RecoveryTimeout)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 未覆盖的键保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 100, cfg.RateLimit.APILimit)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("HIVE_SERVER_HTTP_PORT", "7777")
	t.Setenv("HIVE_HIVE_MAX_AGENTS", "13")
	t.Setenv("HIVE_RATE_LIMIT_WINDOW", "2m")
	t.Setenv("HIVE_LOG_LEVEL", "warn")
	t.Setenv("HIVE_LOG_OUTPUT_PATHS", "stdout, /var/log/hive.log")
	t.Setenv("HIVE_TELEMETRY_ENABLED", "true")
	t.Setenv("HIVE_TELEMETRY_SAMPLE_RATE", "0.5")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 13, cfg.Hive.MaxAgents)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/hive.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "hive.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: 8888\n"), 0644))

	t.Setenv("HIVE_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 环境变量优先级高于 YAML
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/nonexistent/hive.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [not a map"), 0644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return c.Validate()
		}).
		Load()
	require.NoError(t, err)
}

// --- Validate 测试 ---

func TestConfig_ValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 0 }},
		{"negative max agents", func(c *Config) { c.Hive.MaxAgents = -1 }},
		{"zero queue capacity", func(c *Config) { c.Hive.TaskQueueCapacity = 0 }},
		{"zero failure threshold", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }},
		{"zero rate limit window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"cpu threshold out of range", func(c *Config) { c.Resource.CPUStressThreshold = 150 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
