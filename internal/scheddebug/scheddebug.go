// Package scheddebug snapshots and parses the kernel scheduler debug
// dump, attributing per-CPU runqueue weights and runnable-task counts to
// task groups. The dump is free text the kernel rewrites continuously;
// parsing it in place can yield incoherent slices, so the file is copied
// to a private snapshot first and the copy is parsed.
package scheddebug

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cfstop/cfstop/internal/model"
)

// ErrSnapshot marks the one environment-tier failure: without a snapshot
// of the scheduler dump no per-CPU data can be attributed this cycle.
var ErrSnapshot = errors.New("cannot snapshot scheduler debug file")

const (
	rqHeader    = "cfs_rq["
	tasksHeader = "runnable tasks:"
	loadKey     = ".load"
	seWeightKey = ".se->load.weight"
)

// RQ is one runqueue-weight section: the total weight of a group's
// runqueue on one CPU, and that group's own scheduling-entity weight on
// it. The root has no entity of its own, so HasSE is false there.
type RQ struct {
	Load     uint64
	SEWeight uint64
	HasLoad  bool
	HasSE    bool
}

// Tasks tallies runnable tasks for one (CPU, group) pair.
type Tasks struct {
	Running int64
	Total   int64
}

// Dump is the structured intermediate: everything the parser extracted,
// keyed by CPU then group path, before any TaskGroup is touched.
type Dump struct {
	RQ    map[int]map[string]RQ
	Tasks map[int]map[string]Tasks
}

// Snapshot copies src to dst wholesale. Any failure is wrapped in
// ErrSnapshot so callers can recognize the environment tier.
func Snapshot(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	return nil
}

// Parse reads a scheduler dump. Sections are blank-line separated; a
// "cfs_rq[N]:path" header opens a runqueue-weight section and sets the
// current CPU, and a "runnable tasks:" header opens the task table for
// that CPU. Unrecognized lines are ignored; the kernel format grows
// fields freely between versions.
func Parse(r io.Reader) *Dump {
	d := &Dump{
		RQ:    make(map[int]map[string]RQ),
		Tasks: make(map[int]map[string]Tasks),
	}

	const (
		modeNone = iota
		modeRQ
		modeTasks
	)
	mode := modeNone
	curCPU := -1
	curPath := ""

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if trimmed == "" {
			mode = modeNone
			continue
		}

		if cpu, path, ok := parseRQHeader(trimmed); ok {
			mode = modeRQ
			curCPU = cpu
			curPath = path
			if d.RQ[curCPU] == nil {
				d.RQ[curCPU] = make(map[string]RQ)
			}
			continue
		}
		if strings.HasPrefix(trimmed, tasksHeader) {
			if curCPU < 0 {
				mode = modeNone
				continue
			}
			mode = modeTasks
			if d.Tasks[curCPU] == nil {
				d.Tasks[curCPU] = make(map[string]Tasks)
			}
			continue
		}

		switch mode {
		case modeRQ:
			fields := strings.Fields(trimmed)
			if len(fields) < 2 {
				continue
			}
			v, err := strconv.ParseUint(fields[len(fields)-1], 10, 64)
			if err != nil {
				continue
			}
			rq := d.RQ[curCPU][curPath]
			switch fields[0] {
			case loadKey:
				rq.Load = v
				rq.HasLoad = true
			case seWeightKey:
				rq.SEWeight = v
				rq.HasSE = true
			default:
				continue
			}
			d.RQ[curCPU][curPath] = rq

		case modeTasks:
			if len(line) < 2 {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			path := fields[len(fields)-1]
			if !strings.HasPrefix(path, "/") {
				continue // column header, separators, groupless tasks
			}
			tc := d.Tasks[curCPU][path]
			tc.Total++
			if line[1] == 'R' {
				tc.Running++
			}
			d.Tasks[curCPU][path] = tc
		}
	}
	return d
}

// parseRQHeader matches "cfs_rq[N]:path". The root's path renders as the
// empty string and is normalized to "/".
func parseRQHeader(line string) (cpu int, path string, ok bool) {
	if !strings.HasPrefix(line, rqHeader) {
		return 0, "", false
	}
	rest := line[len(rqHeader):]
	end := strings.IndexByte(rest, ']')
	if end < 0 || end+1 >= len(rest) || rest[end+1] != ':' {
		return 0, "", false
	}
	cpu, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, "", false
	}
	path = rest[end+2:]
	if path == "" {
		path = "/"
	}
	return cpu, path, true
}

// Apply distributes the parsed dump onto this cycle's tree: runqueue
// totals first, then each group's entity weight as a percentage of its
// parent's runqueue total and of its own configured weight scaled by the
// kernel's 1024-per-share constant. That second ratio assumes the fixed
// constant and is an approximation on kernels that scale differently.
// Paths not present in the tree are discarded.
func Apply(t *model.Tree, d *Dump) {
	for cpu, groups := range d.RQ {
		if cpu < 0 || cpu >= t.NumCPU {
			continue
		}
		for path, rq := range groups {
			g := t.Lookup(path)
			if g == nil || !rq.HasLoad {
				continue
			}
			g.CFSLoad[cpu] = model.Known(int64(rq.Load))
		}
	}

	for cpu, groups := range d.RQ {
		if cpu < 0 || cpu >= t.NumCPU {
			continue
		}
		for path, rq := range groups {
			g := t.Lookup(path)
			if g == nil || g.Parent == nil || !rq.HasSE {
				continue
			}
			pl := g.Parent.CFSLoad[cpu]
			g.PCPUShares[cpu][0] = model.Percent(rq.SEWeight, uint64(pl.N), pl.Known)
			g.PCPUShares[cpu][1] = model.Percent(rq.SEWeight, uint64(g.Shares.N)*1024, g.Shares.Known)
		}
	}

	for cpu, groups := range d.Tasks {
		if cpu < 0 || cpu >= t.NumCPU {
			continue
		}
		for path, tc := range groups {
			g := t.Lookup(path)
			if g == nil {
				continue
			}
			g.PCPUNTasks[cpu] = [2]model.Val{model.Known(tc.Running), model.Known(tc.Total)}
		}
	}
}

// Collect runs the full snapshot-parse-apply cycle against src, parsing
// through a private copy under the system temp directory.
func Collect(t *model.Tree, src string) error {
	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("cfstop-sched-%d", os.Getpid()))
	if err := Snapshot(src, tmp); err != nil {
		return err
	}
	defer os.Remove(tmp)

	f, err := os.Open(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshot, err)
	}
	defer f.Close()

	Apply(t, Parse(f))
	return nil
}
