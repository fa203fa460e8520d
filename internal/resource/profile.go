// Package resource 提供硬件探测与自适应容量调节。
//
// 启动时按 CPU 核数与内存总量划分硬件档位，得到基础容量配置；
// 运行中按采样到的系统负载在基础配置附近上下调整。
package resource

import "time"

// HardwareClass 硬件档位
type HardwareClass string

const (
	ClassEdge    HardwareClass = "edge"
	ClassDesktop HardwareClass = "desktop"
	ClassServer  HardwareClass = "server"
	ClassCloud   HardwareClass = "cloud"
)

// Profile 某档位下的容量配置
type Profile struct {
	// 最大 Agent 数
	MaxAgents int `json:"max_agents"`
	// 质量系数，影响任务评估的精细程度
	QualityFactor float64 `json:"quality_factor"`
	// 调度并发度
	Parallelism int `json:"parallelism"`
	// 资源采样间隔
	SampleInterval time.Duration `json:"sample_interval"`
}

// Classify 按核数与内存总量划分硬件档位。
// 核数与内存必须同时落在某档位的区间内，否则按云实例处理。
func Classify(cores int, totalMemoryMB uint64) HardwareClass {
	switch {
	case cores >= 1 && cores <= 2 && totalMemoryMB <= 2048:
		return ClassEdge
	case cores >= 3 && cores <= 8 && totalMemoryMB > 2048 && totalMemoryMB <= 16384:
		return ClassDesktop
	case cores >= 9 && cores <= 32 && totalMemoryMB > 16384 && totalMemoryMB <= 65536:
		return ClassServer
	default:
		return ClassCloud
	}
}

// BaseProfile 返回某档位的基础容量配置。
func BaseProfile(class HardwareClass) Profile {
	switch class {
	case ClassEdge:
		return Profile{MaxAgents: 5, QualityFactor: 0.3, Parallelism: 1, SampleInterval: 10 * time.Second}
	case ClassDesktop:
		return Profile{MaxAgents: 20, QualityFactor: 0.7, Parallelism: 4, SampleInterval: 5 * time.Second}
	case ClassServer:
		return Profile{MaxAgents: 100, QualityFactor: 1.0, Parallelism: 16, SampleInterval: time.Second}
	default:
		return Profile{MaxAgents: 500, QualityFactor: 1.0, Parallelism: 32, SampleInterval: 500 * time.Millisecond}
	}
}
