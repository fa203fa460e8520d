// Package hivemetrics 聚合协调总线事件,生成蜂巢级别的运行指标。
//
// Aggregator 是总线的唯一消费者:维护智能体/任务/系统三个维度的滚动计数、
// 每小时任务吞吐的 EWMA 估计,以及用于趋势分析的有界历史环。
// 快照可导出为 JSON 或 Prometheus 文本格式。
package hivemetrics
