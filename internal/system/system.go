// Package system reports host resource usage and sizes the worker pool.
package system

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// MaxAutoWorkers caps the automatically selected worker count. Each
// transcode already uses several threads.
const MaxAutoWorkers = 8

const defaultCacheTTL = 2 * time.Second

// Info is a point-in-time view of host resources.
type Info struct {
	CPUCount      int     `json:"cpu_count"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	LoadAverage   float64 `json:"load_average"`
	DiskFreeGB    float64 `json:"disk_free_gb"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Collector gathers Info through gopsutil and caches it briefly, since the
// job list is polled every second.
type Collector struct {
	diskPath string
	ttl      time.Duration
	logger   hclog.Logger

	mu     sync.Mutex
	last   Info
	lastAt time.Time
}

// NewCollector creates a collector reporting free space for the filesystem
// holding diskPath.
func NewCollector(diskPath string, logger hclog.Logger) *Collector {
	if diskPath == "" {
		diskPath = "."
	}
	return &Collector{diskPath: diskPath, ttl: defaultCacheTTL, logger: logger.Named("system")}
}

// Snapshot returns current resource usage. Individual probes that fail are
// left at zero.
func (c *Collector) Snapshot(ctx context.Context) Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastAt.IsZero() && time.Since(c.lastAt) < c.ttl {
		return c.last
	}

	info := Info{CPUCount: CPUCount(ctx)}

	// A zero interval compares against the previous call instead of blocking.
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	} else if err != nil {
		c.logger.Debug("cpu usage unavailable", "error", err)
	}

	if memStats, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryPercent = memStats.UsedPercent
		info.MemoryUsedMB = float64(memStats.Used) / (1024 * 1024)
	} else {
		c.logger.Debug("memory usage unavailable", "error", err)
	}

	if loadStats, err := load.AvgWithContext(ctx); err == nil {
		info.LoadAverage = loadStats.Load1
	}

	if usage, err := disk.UsageWithContext(ctx, c.diskPath); err == nil {
		info.DiskFreeGB = float64(usage.Free) / (1024 * 1024 * 1024)
		info.DiskPercent = usage.UsedPercent
	} else {
		c.logger.Debug("disk usage unavailable", "path", c.diskPath, "error", err)
	}

	c.last, c.lastAt = info, time.Now()
	return info
}

// CPUCount returns the number of logical CPUs.
func CPUCount(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		return runtime.NumCPU()
	}
	return n
}

// RecommendedWorkers resolves a configured worker count. Zero or less means
// automatic: half the logical CPUs, at least one, at most MaxAutoWorkers.
func RecommendedWorkers(ctx context.Context, configured int) int {
	if configured > 0 {
		return configured
	}
	n := CPUCount(ctx) / 2
	if n < 1 {
		n = 1
	}
	if n > MaxAutoWorkers {
		n = MaxAutoWorkers
	}
	return n
}
