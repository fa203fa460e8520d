// Package metrics 提供基于 Prometheus 的内部指标收集。
//
// 覆盖 HTTP 请求、任务执行、Agent 状态、缓存命中率、
// 协调事件与资源使用率等维度。
package metrics
