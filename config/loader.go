// =============================================================================
// 📦 Hive 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("hive.yaml").
//	    WithEnvPrefix("HIVE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Hive 协调核心的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Hive 协调器配置
	Hive HiveConfig `yaml:"hive" env:"HIVE"`

	// Cache 缓存配置
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// RateLimit 客户端限流配置
	RateLimit RateLimitConfig `yaml:"rate_limit" env:"RATE_LIMIT"`

	// CircuitBreaker 熔断器配置
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" env:"CIRCUIT_BREAKER"`

	// Resource 资源探测配置
	Resource ResourceConfig `yaml:"resource" env:"RESOURCE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 限流 RPS
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 每 IP 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// WebSocket 状态推送间隔
	WSPushInterval time.Duration `yaml:"ws_push_interval" env:"WS_PUSH_INTERVAL"`
	// CORS 允许的来源(为空则拒绝跨域请求)
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// HiveConfig 协调器配置
type HiveConfig struct {
	// 最大 Agent 数（0 表示由资源探测自动决定）
	MaxAgents int `yaml:"max_agents" env:"MAX_AGENTS"`
	// 任务队列容量上限
	TaskQueueCapacity int `yaml:"task_queue_capacity" env:"TASK_QUEUE_CAPACITY"`
	// 事件积压告警阈值
	WarnBacklog int `yaml:"warn_backlog" env:"WARN_BACKLOG"`
	// 状态快照缓存时长
	StatusCacheTTL time.Duration `yaml:"status_cache_ttl" env:"STATUS_CACHE_TTL"`
	// 终态任务保留条数
	TerminalTaskHistory int `yaml:"terminal_task_history" env:"TERMINAL_TASK_HISTORY"`
	// 指标历史保留条数
	MetricsHistory int `yaml:"metrics_history" env:"METRICS_HISTORY"`
}

// CacheConfig 缓存配置（按类别划分的 TTL 与容量）
type CacheConfig struct {
	AgentTTL       time.Duration `yaml:"agent_ttl" env:"AGENT_TTL"`
	AgentCapacity  int           `yaml:"agent_capacity" env:"AGENT_CAPACITY"`
	TaskTTL        time.Duration `yaml:"task_ttl" env:"TASK_TTL"`
	TaskCapacity   int           `yaml:"task_capacity" env:"TASK_CAPACITY"`
	StatusTTL      time.Duration `yaml:"status_ttl" env:"STATUS_TTL"`
	StatusCapacity int           `yaml:"status_capacity" env:"STATUS_CAPACITY"`
	// 过期清扫间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// RateLimitConfig 客户端限流配置（固定窗口，按操作类别）
type RateLimitConfig struct {
	// API 请求每窗口上限
	APILimit int `yaml:"api_limit" env:"API_LIMIT"`
	// Agent 创建每窗口上限
	AgentCreationLimit int `yaml:"agent_creation_limit" env:"AGENT_CREATION_LIMIT"`
	// 任务创建每窗口上限
	TaskCreationLimit int `yaml:"task_creation_limit" env:"TASK_CREATION_LIMIT"`
	// WebSocket 连接每窗口上限
	WebSocketLimit int `yaml:"websocket_limit" env:"WEBSOCKET_LIMIT"`
	// 窗口长度
	Window time.Duration `yaml:"window" env:"WINDOW"`
	// 空闲客户端回收阈值
	IdleExpiry time.Duration `yaml:"idle_expiry" env:"IDLE_EXPIRY"`
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	// 连续失败多少次后熔断
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// 熔断后多久进入半开
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" env:"RECOVERY_TIMEOUT"`
}

// ResourceConfig 资源探测配置
type ResourceConfig struct {
	// 采样间隔（0 表示按硬件档位自动决定）
	SampleInterval time.Duration `yaml:"sample_interval" env:"SAMPLE_INTERVAL"`
	// CPU 压力阈值（百分比）
	CPUStressThreshold float64 `yaml:"cpu_stress_threshold" env:"CPU_STRESS_THRESHOLD"`
	// 内存压力阈值（百分比）
	MemStressThreshold float64 `yaml:"mem_stress_threshold" env:"MEM_STRESS_THRESHOLD"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "HIVE",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Hive.MaxAgents < 0 {
		errs = append(errs, "max_agents must not be negative")
	}
	if c.Hive.TaskQueueCapacity <= 0 {
		errs = append(errs, "task_queue_capacity must be positive")
	}
	if c.CircuitBreaker.FailureThreshold <= 0 {
		errs = append(errs, "circuit breaker failure_threshold must be positive")
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, "rate limit window must be positive")
	}
	if c.Resource.CPUStressThreshold <= 0 || c.Resource.CPUStressThreshold > 100 {
		errs = append(errs, "cpu_stress_threshold must be in (0, 100]")
	}
	if c.Resource.MemStressThreshold <= 0 || c.Resource.MemStressThreshold > 100 {
		errs = append(errs, "mem_stress_threshold must be in (0, 100]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
