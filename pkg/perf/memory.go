package perf

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// memorySampler reports the process's resident memory. It prefers the
// OS view (RSS) and falls back to the Go heap when process inspection
// is unavailable, e.g. in restricted sandboxes.
type memorySampler struct {
	proc *process.Process
}

func newMemorySampler() *memorySampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &memorySampler{proc: proc}
}

// sample returns the current memory footprint in bytes.
func (m *memorySampler) sample() uint64 {
	if m.proc != nil {
		if info, err := m.proc.MemoryInfo(); err == nil && info.RSS > 0 {
			return info.RSS
		}
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}
