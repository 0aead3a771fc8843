// Package diagnostics reports host and process resource usage for the
// system endpoint of the API.
package diagnostics

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics is a point-in-time view of the host and the server process.
// Host fields stay zero when the platform does not expose them.
type SystemMetrics struct {
	CPUCores   int     `json:"cpu_cores"`
	CPUPercent float64 `json:"cpu_percent"`

	MemTotalMB float64 `json:"mem_total_mb"`
	MemUsedMB  float64 `json:"mem_used_mb"`
	MemPercent float64 `json:"mem_percent"`

	// Disk usage of the filesystem holding the session store.
	DiskPath    string  `json:"disk_path"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskPercent float64 `json:"disk_percent"`

	LoadAvg1  float64 `json:"load_avg_1"`
	LoadAvg5  float64 `json:"load_avg_5"`
	LoadAvg15 float64 `json:"load_avg_15"`

	Goroutines    int     `json:"goroutines"`
	HeapAllocMB   float64 `json:"heap_alloc_mb"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Collector gathers SystemMetrics. CPU usage is the delta between two
// calls, so the first Collect reports zero.
type Collector struct {
	mu           sync.Mutex
	diskPath     string
	started      time.Time
	lastCPUTotal float64
	lastCPUIdle  float64
	cores        int
}

// NewCollector creates a collector reporting disk usage for the filesystem
// that contains path. An empty path selects the root filesystem.
func NewCollector(path string) *Collector {
	return &Collector{
		diskPath: diskPathFor(path),
		started:  time.Now(),
	}
}

// Collect gathers current statistics.
func (c *Collector) Collect() SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := SystemMetrics{DiskPath: c.diskPath}
	c.collectCPU(&stats)
	collectMemory(&stats)
	collectDisk(&stats)
	collectLoad(&stats)

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats.Goroutines = runtime.NumGoroutine()
	stats.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	stats.UptimeSeconds = time.Since(c.started).Seconds()
	return stats
}

func (c *Collector) collectCPU(stats *SystemMetrics) {
	if c.cores == 0 {
		if n, err := cpu.Counts(true); err == nil && n > 0 {
			c.cores = n
		}
	}
	stats.CPUCores = c.cores

	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}
	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		if delta := total - c.lastCPUTotal; delta > 0 {
			stats.CPUPercent = (1 - (idle-c.lastCPUIdle)/delta) * 100
		}
	}
	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func collectMemory(stats *SystemMetrics) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	stats.MemTotalMB = float64(vm.Total) / 1024 / 1024
	stats.MemUsedMB = float64(vm.Used) / 1024 / 1024
	stats.MemPercent = vm.UsedPercent
}

func collectDisk(stats *SystemMetrics) {
	usage, err := disk.Usage(stats.DiskPath)
	if err != nil {
		return
	}
	stats.DiskTotalGB = float64(usage.Total) / 1024 / 1024 / 1024
	stats.DiskUsedGB = float64(usage.Used) / 1024 / 1024 / 1024
	stats.DiskPercent = usage.UsedPercent
}

func collectLoad(stats *SystemMetrics) {
	avg, err := load.Avg()
	if err != nil {
		return
	}
	stats.LoadAvg1 = avg.Load1
	stats.LoadAvg5 = avg.Load5
	stats.LoadAvg15 = avg.Load15
}

// diskPathFor returns the closest existing directory of path, falling back
// to the root filesystem.
func diskPathFor(path string) string {
	if path != "" {
		dir := filepath.Dir(filepath.Clean(path))
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		for {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				return dir
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return rootDiskPath()
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
