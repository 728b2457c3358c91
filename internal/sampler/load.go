package sampler

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
)

// SysLoad is the header summary: the three load-average figures plus the
// running/total task counts.
type SysLoad struct {
	Load1, Load5, Load15 float64
	Running, Total       int
}

// ReadLoad is best-effort; missing figures stay zero.
func ReadLoad() SysLoad {
	var sl SysLoad
	if avg, err := load.Avg(); err == nil {
		sl.Load1, sl.Load5, sl.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if misc, err := load.Misc(); err == nil {
		sl.Running = misc.ProcsRunning
		sl.Total = misc.ProcsTotal
	}
	return sl
}

// NumCPU returns the logical CPU count, fixed once at process start.
func NumCPU() (int, error) {
	return cpu.Counts(true)
}
