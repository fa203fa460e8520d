// =============================================================================
// 📦 Hive 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:         DefaultServerConfig(),
		Hive:           DefaultHiveConfig(),
		Cache:          DefaultCacheConfig(),
		RateLimit:      DefaultRateLimitConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Resource:       DefaultResourceConfig(),
		Log:            DefaultLogConfig(),
		Telemetry:      DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        3001,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		WSPushInterval:  5 * time.Second,
	}
}

// DefaultHiveConfig 返回默认协调器配置
func DefaultHiveConfig() HiveConfig {
	return HiveConfig{
		MaxAgents:           0, // 由资源探测自动决定
		TaskQueueCapacity:   10000,
		WarnBacklog:         10000,
		StatusCacheTTL:      30 * time.Second,
		TerminalTaskHistory: 10000,
		MetricsHistory:      1000,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		AgentTTL:       5 * time.Minute,
		AgentCapacity:  1000,
		TaskTTL:        10 * time.Minute,
		TaskCapacity:   5000,
		StatusTTL:      30 * time.Second,
		StatusCapacity: 100,
		SweepInterval:  60 * time.Second,
	}
}

// DefaultRateLimitConfig 返回默认客户端限流配置
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		APILimit:           100,
		AgentCreationLimit: 10,
		TaskCreationLimit:  50,
		WebSocketLimit:     5,
		Window:             time.Minute,
		IdleExpiry:         time.Hour,
	}
}

// DefaultCircuitBreakerConfig 返回默认熔断器配置
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// DefaultResourceConfig 返回默认资源探测配置
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		SampleInterval:     0, // 按硬件档位自动决定
		CPUStressThreshold: 80.0,
		MemStressThreshold: 85.0,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "hive-coordinator",
		SampleRate:   0.1,
	}
}
