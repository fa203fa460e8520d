/*
Package main 提供 Hive 服务端程序入口。

# 概述

cmd/hive 是多 Agent 协调服务的可执行入口，提供 HTTP API、WebSocket
实时推送、Prometheus 指标采集以及 MCP stdio 服务模式等子命令。
程序支持 YAML 配置文件加载与 HIVE_ 前缀环境变量覆盖，使用 zap
结构化日志。

# 核心类型

  - Server         — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - WSHub          — WebSocket 连接管理与周期性状态广播
  - Middleware     — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动 HTTP 服务）、mcp（stdio JSON-RPC）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    CORS、RateLimiter（基于 IP）、MetricsMiddleware、OTelTracing
  - WebSocket：/ws 端点，客户端可创建 Agent / 任务、查询状态，
    服务端按配置间隔广播 hive_status 快照
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止推送 → 关闭 HTTP → 关闭 Metrics → 关闭协调器
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
