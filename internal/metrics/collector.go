package metrics

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

const gib = 1024 * 1024 * 1024

// Sample is one system metrics snapshot
type Sample struct {
	CPUPercent     float64 // System-wide CPU usage (0-100%)
	ProcessCPU     float64 // This process, per core, can exceed 100%
	IOWaitPercent  float64
	ProcessRSS     uint64 // Resident memory of this process in bytes
	MemoryUsed     uint64
	MemoryPercent  float64
	DiskReadBytes  float64 // bytes per second since the previous sample
	DiskWriteBytes float64
	Timestamp      time.Time
}

// Collector periodically samples system load, logs it and publishes it
// as gauges. Planet loading is memory bound, so RSS is the figure to watch.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	lastDisk     map[string]disk.IOCountersStat
	lastDiskTime time.Time
	lastCPU      cpu.TimesStat
	hasCPU       bool

	mu   sync.RWMutex
	last *Sample
}

// NewCollector creates a collector sampling every interval
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start samples until the context is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// first sample sets the disk and CPU baselines
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Last returns the most recent sample, or nil before the first one
func (c *Collector) Last() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Collect takes one sample, logs it and updates the gauges
func (c *Collector) Collect() *Sample {
	s := &Sample{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPU = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSS = info.RSS
		}
	}
	s.IOWaitPercent = c.ioWait()

	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vmem.UsedPercent
		s.MemoryUsed = vmem.Used
	}
	s.DiskReadBytes, s.DiskWriteBytes = c.diskRates(s.Timestamp)

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()

	ProcessCPU.Set(s.ProcessCPU)
	ProcessRSS.Set(float64(s.ProcessRSS))
	SystemMemoryPercent.Set(s.MemoryPercent)

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", s.CPUPercent),
		zap.Float64("proc_cpu", s.ProcessCPU),
		zap.Float64("iowait", s.IOWaitPercent),
		zap.String("rss", formatGB(float64(s.ProcessRSS)/gib)),
		zap.Float64("mem_pct", s.MemoryPercent),
		zap.String("mem_used", formatGB(float64(s.MemoryUsed)/gib)),
		zap.String("disk_r", formatMBps(s.DiskReadBytes/(1024*1024))),
		zap.String("disk_w", formatMBps(s.DiskWriteBytes/(1024*1024))),
	)
	return s
}

// ioWait returns the share of CPU time spent waiting on I/O since the
// previous call
func (c *Collector) ioWait() float64 {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return 0
	}
	cur := times[0]
	if !c.hasCPU {
		c.lastCPU = cur
		c.hasCPU = true
		return 0
	}

	prev := c.lastCPU
	c.lastCPU = cur
	total := (cur.User - prev.User) +
		(cur.System - prev.System) +
		(cur.Idle - prev.Idle) +
		(cur.Iowait - prev.Iowait) +
		(cur.Irq - prev.Irq) +
		(cur.Softirq - prev.Softirq) +
		(cur.Steal - prev.Steal)
	if total <= 0 {
		return 0
	}
	return (cur.Iowait - prev.Iowait) / total * 100
}

// diskRates returns read and write bytes per second across all disks
// since the previous call
func (c *Collector) diskRates(now time.Time) (read, write float64) {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0, 0
	}

	prev, prevTime := c.lastDisk, c.lastDiskTime
	c.lastDisk = counters
	c.lastDiskTime = now
	if prev == nil {
		return 0, 0
	}

	elapsed := now.Sub(prevTime).Seconds()
	if elapsed < 0.1 {
		return 0, 0
	}

	var readDelta, writeDelta uint64
	for name, cur := range counters {
		last, ok := prev[name]
		if !ok {
			continue
		}
		// counters can wrap
		if cur.ReadBytes >= last.ReadBytes {
			readDelta += cur.ReadBytes - last.ReadBytes
		}
		if cur.WriteBytes >= last.WriteBytes {
			writeDelta += cur.WriteBytes - last.WriteBytes
		}
	}
	return float64(readDelta) / elapsed, float64(writeDelta) / elapsed
}

func formatGB(gb float64) string {
	return formatFloat(gb) + " GB"
}

func formatMBps(mbps float64) string {
	return formatFloat(mbps) + " MB/s"
}

// formatFloat truncates to one decimal place
func formatFloat(f float64) string {
	if f < 0.1 {
		return "0.0"
	}
	return strconv.FormatFloat(float64(int64(f*10))/10, 'f', 1, 64)
}
