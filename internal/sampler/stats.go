package sampler

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cfstop/cfstop/internal/model"
)

const (
	usageFile  = "cpuacct.usage_percpu"
	sharesFile = "cpu.shares"
	tasksFile  = "tasks"
)

// Collect fills usage, shares and task counts for every group in the
// tree from the cpuacct and cpu hierarchies. now is a monotonic
// nanosecond stamp for this cycle. Each read is independent: a missing
// or malformed file leaves that one field unknown and collection moves
// on, for this group and all others.
func Collect(t *model.Tree, cpuacctRoot, cpuRoot string, now int64, log *slog.Logger) {
	for _, g := range t.Groups {
		collectUsage(g, cpuacctRoot, now, t.NumCPU, log)
		collectShares(g, cpuRoot, log)
		collectTasks(g, cpuRoot, log)
	}
}

// collectUsage reads cumulative per-CPU busy nanoseconds and converts
// the delta against the previous cycle into percentages. A group seen
// for the first time has no previous stamp, so every usage stays
// unknown; the raw counters are still recorded for the next cycle.
func collectUsage(g *model.TaskGroup, root string, now int64, numCPU int, log *slog.Logger) {
	counters, err := readCounters(filepath.Join(root, g.Path, usageFile), numCPU)
	if err != nil {
		log.Warn("read usage", "group", g.Path, "err", err)
		return
	}

	if g.LastStamp > 0 && len(g.LastPerCPU) == numCPU {
		elapsed := uint64(now - g.LastStamp)
		deltas := make([]uint64, numCPU)
		var sum uint64
		for i := 0; i < numCPU; i++ {
			if counters[i] > g.LastPerCPU[i] {
				deltas[i] = counters[i] - g.LastPerCPU[i]
			}
			sum += deltas[i]
		}
		var total int64
		for i := 0; i < numCPU; i++ {
			pct := model.Percent(deltas[i], elapsed, true)
			g.PCPUUsage[i][0] = pct
			g.PCPUUsage[i][1] = model.Percent(deltas[i], sum, true)
			total += pct.N
		}
		g.Usage = model.Known(total)
	}

	g.LastStamp = now
	g.LastPerCPU = counters
}

func collectShares(g *model.TaskGroup, root string, log *slog.Logger) {
	b, err := os.ReadFile(filepath.Join(root, g.Path, sharesFile))
	if err != nil {
		log.Warn("read shares", "group", g.Path, "err", err)
		return
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		log.Warn("parse shares", "group", g.Path, "err", err)
		return
	}
	g.Shares = model.Known(v)
}

func collectTasks(g *model.TaskGroup, root string, log *slog.Logger) {
	f, err := os.Open(filepath.Join(root, g.Path, tasksFile))
	if err != nil {
		log.Warn("read tasks", "group", g.Path, "err", err)
		return
	}
	defer f.Close()

	var n int64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(strings.TrimSpace(sc.Text())) > 0 {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		log.Warn("scan tasks", "group", g.Path, "err", err)
		return
	}
	g.NTasks = model.Known(n)
}

// readCounters parses a whitespace-separated list of cumulative counters,
// one per logical CPU. Short lists are an error; extra fields (hotplugged
// CPUs beyond the count fixed at startup) are ignored.
func readCounters(path string, numCPU int) ([]uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(string(b))
	if len(fields) < numCPU {
		return nil, fmt.Errorf("want %d counters, got %d", numCPU, len(fields))
	}
	out := make([]uint64, numCPU)
	for i := 0; i < numCPU; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
