package server

import (
	"sync"
	"time"

	"github.com/prometheus/procfs"

	"github.com/vpastila/mineserv/internal/models"
)

// Monitor samples CPU and memory usage for one instance's process. Every
// Stats call reads /proc fresh; CPU percentage is computed over the interval
// since the previous sample, so the first call after (re)creation reports 0.
//
// Uptime is measured from monitor creation, not from the true process start.
// The registry attaches a fresh monitor on every transition into running, so
// a recovered instance reports uptime since manager restart.
type Monitor struct {
	mu         sync.Mutex
	startedAt  time.Time
	lastSample time.Time
	lastCPU    float64 // cumulative cpu seconds at lastSample
}

// NewMonitor creates a monitor with the uptime clock starting now.
func NewMonitor() *Monitor {
	return &Monitor{startedAt: time.Now()}
}

// Stats takes a fresh OS-level sample for the pid. Returns ErrProcessNotFound
// when the OS no longer has a process at that id; callers treat that as "no
// stats available", not as a fatal condition.
func (m *Monitor) Stats(pid int) (models.InstanceStats, error) {
	proc, err := procfs.NewProc(pid)
	if err != nil {
		return models.InstanceStats{}, ErrProcessNotFound
	}
	stat, err := proc.Stat()
	if err != nil {
		return models.InstanceStats{}, ErrProcessNotFound
	}

	now := time.Now()
	cpuSeconds := stat.CPUTime()
	memoryMB := uint64(stat.ResidentMemory()) / 1024 / 1024

	m.mu.Lock()
	defer m.mu.Unlock()

	var cpuPercent float64
	if !m.lastSample.IsZero() {
		elapsed := now.Sub(m.lastSample).Seconds()
		if elapsed > 0 && cpuSeconds >= m.lastCPU {
			cpuPercent = (cpuSeconds - m.lastCPU) / elapsed * 100
		}
	}
	m.lastSample = now
	m.lastCPU = cpuSeconds

	return models.InstanceStats{
		CPUPercent:    cpuPercent,
		MemoryMB:      memoryMB,
		UptimeSeconds: uint64(now.Sub(m.startedAt).Seconds()),
	}, nil
}
