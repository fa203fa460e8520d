package resource

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// fallbackTotalMemoryMB 在无法读取系统内存信息时假定的总内存。
const fallbackTotalMemoryMB = 8192

// Usage 一次资源采样结果
type Usage struct {
	// CPU 使用率（0-100）
	CPUPercent float64 `json:"cpu_percent"`
	// 内存使用率（0-100）
	MemoryPercent float64 `json:"memory_percent"`
	// 内存总量（MB）
	TotalMemoryMB uint64 `json:"total_memory_mb"`
	// 已用内存（MB）
	UsedMemoryMB uint64 `json:"used_memory_mb"`
	// CPU 核数
	Cores int `json:"cores"`
}

// Sampler 采样系统资源使用情况。
type Sampler interface {
	Sample() Usage
}

// ProcSampler 基于 /proc 的采样器。CPU 使用率按两次采样之间
// 的 /proc/stat 计数差值计算，首次采样返回 0。
type ProcSampler struct {
	mu        sync.Mutex
	prevBusy  uint64
	prevTotal uint64
	sampled   bool
}

// NewProcSampler 创建采样器
func NewProcSampler() *ProcSampler {
	return &ProcSampler{}
}

// Sample 实现 Sampler 接口。
func (s *ProcSampler) Sample() Usage {
	u := Usage{Cores: runtime.NumCPU()}

	total, avail, ok := readMemInfo()
	if !ok {
		// 读取失败时退回到固定总量估计
		total = fallbackTotalMemoryMB
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		avail = total - min(total, ms.Sys/1024/1024)
	}
	u.TotalMemoryMB = total
	u.UsedMemoryMB = total - avail
	if total > 0 {
		u.MemoryPercent = float64(u.UsedMemoryMB) / float64(total) * 100
	}

	busy, totalTicks, ok := readCPUStat()
	if ok {
		s.mu.Lock()
		if s.sampled && totalTicks > s.prevTotal {
			dBusy := busy - s.prevBusy
			dTotal := totalTicks - s.prevTotal
			u.CPUPercent = float64(dBusy) / float64(dTotal) * 100
		}
		s.prevBusy, s.prevTotal = busy, totalTicks
		s.sampled = true
		s.mu.Unlock()
	}

	return u
}

// readMemInfo 读取 /proc/meminfo，返回总量与可用量（MB）。
func readMemInfo() (totalMB, availMB uint64, ok bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	var totalKB, availKB uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			totalKB = v
		case "MemAvailable:":
			availKB = v
		}
	}

	if totalKB == 0 {
		return 0, 0, false
	}
	return totalKB / 1024, availKB / 1024, true
}

// readCPUStat 读取 /proc/stat 首行，返回 busy 与总 tick 数。
func readCPUStat() (busy, total uint64, ok bool) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, false
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, false
	}

	ticks := make([]uint64, 0, len(fields)-1)
	for _, f := range fields[1:] {
		v, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		ticks = append(ticks, v)
	}

	for _, t := range ticks {
		total += t
	}
	// idle + iowait 视为空闲
	idle := ticks[3]
	if len(ticks) > 4 {
		idle += ticks[4]
	}
	return total - idle, total, true
}
