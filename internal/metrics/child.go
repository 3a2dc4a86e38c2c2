package metrics

import (
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	childCPU = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "cpu_percent",
			Help:      "CPU usage of the game server since the previous sample.",
		},
	)
	childMemory = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the game server.",
		},
	)
	childThreads = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gsmon",
			Subsystem: "child",
			Name:      "threads",
			Help:      "Thread count of the game server.",
		},
	)

	sampleMu sync.Mutex
	sampled  *process.Process // handle reused so CPUPercent has a previous reading
)

// ChildSample is one resource reading of the supervised process.
type ChildSample struct {
	PID        int32
	CPUPercent float64
	RSS        uint64
	Threads    int32
}

// ObserveChild samples pid and updates the child gauges. Failures are logged
// at debug level; a vanished process leaves the previous values in place.
func ObserveChild(pid int) (ChildSample, bool) {
	if pid <= 0 {
		return ChildSample{}, false
	}
	sampleMu.Lock()
	defer sampleMu.Unlock()

	if sampled == nil || sampled.Pid != int32(pid) {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			slog.Debug("child metrics: open process", "pid", pid, "error", err)
			return ChildSample{}, false
		}
		sampled = p
	}
	s := ChildSample{PID: sampled.Pid}
	mem, err := sampled.MemoryInfo()
	if err != nil {
		slog.Debug("child metrics: memory info", "pid", pid, "error", err)
		return ChildSample{}, false
	}
	s.RSS = mem.RSS
	if cpu, err := sampled.Percent(0); err == nil {
		s.CPUPercent = cpu
	}
	if n, err := sampled.NumThreads(); err == nil {
		s.Threads = n
	}

	if regOK.Load() {
		childCPU.Set(s.CPUPercent)
		childMemory.Set(float64(s.RSS))
		childThreads.Set(float64(s.Threads))
	}
	return s, true
}

func resetChild() {
	sampleMu.Lock()
	sampled = nil
	sampleMu.Unlock()
	childCPU.Set(0)
	childMemory.Set(0)
	childThreads.Set(0)
}
