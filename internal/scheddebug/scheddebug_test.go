package scheddebug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfstop/cfstop/internal/model"
)

const fixture = `Sched Debug Version: v0.11, 4.19.0
ktime                                   : 123456.789

cpu#0, 2400.000 MHz
  .nr_running                    : 2
  .load                          : 2048

cfs_rq[0]:/
  .exec_clock                    : 0.000000
  .load                          : 3072
  .nr_running                    : 2

cfs_rq[0]:/docker
  .exec_clock                    : 0.000000
  .load                          : 2048
  .se->load.weight               : 1024
  .nr_running                    : 1

cfs_rq[0]:/docker/abc
  .load                          : 1024
  .se->load.weight               : 512

runnable tasks:
 S           task   PID         tree-key  switches  prio     wait-time  group
-----------------------------------------------------------------------------
 S        systemd     1        23.444444       120   120      0.000000  /
>R           java   201        99.000000      4000   120      0.000000  /docker/abc
 S           java   202        98.000000      3000   120      0.000000  /docker/abc
 S           init   300        10.000000        50   120      0.000000  /ghost

cpu#1, 2400.000 MHz
  .nr_running                    : 0

cfs_rq[1]:/
  .load                          : 1024

cfs_rq[1]:/docker
  .load                          : 0
  .se->load.weight               : 256

runnable tasks:
 S           task   PID         tree-key  switches  prio     wait-time  group
-----------------------------------------------------------------------------
 S           sshd    50        11.000000        10   120      0.000000  /
`

func TestParse(t *testing.T) {
	d := Parse(strings.NewReader(fixture))

	t.Run("runqueue_weights", func(t *testing.T) {
		rq := d.RQ[0]["/"]
		assert.True(t, rq.HasLoad)
		assert.Equal(t, uint64(3072), rq.Load)
		assert.False(t, rq.HasSE, "root has no scheduling entity")

		rq = d.RQ[0]["/docker"]
		assert.Equal(t, uint64(2048), rq.Load)
		require.True(t, rq.HasSE)
		assert.Equal(t, uint64(1024), rq.SEWeight)

		rq = d.RQ[1]["/docker"]
		assert.Equal(t, uint64(0), rq.Load)
		assert.Equal(t, uint64(256), rq.SEWeight)
	})

	t.Run("task_tallies_per_cpu", func(t *testing.T) {
		tc := d.Tasks[0]["/docker/abc"]
		assert.Equal(t, int64(1), tc.Running)
		assert.Equal(t, int64(2), tc.Total)

		tc = d.Tasks[0]["/"]
		assert.Equal(t, int64(0), tc.Running)
		assert.Equal(t, int64(1), tc.Total)

		tc = d.Tasks[1]["/"]
		assert.Equal(t, int64(1), tc.Total)
	})

	t.Run("ghost_paths_kept_in_dump", func(t *testing.T) {
		// The parser records everything; Apply drops what the tree lacks.
		assert.Equal(t, int64(1), d.Tasks[0]["/ghost"].Total)
	})
}

func TestParseRQHeader(t *testing.T) {
	cpu, path, ok := parseRQHeader("cfs_rq[3]:/docker/abc")
	require.True(t, ok)
	assert.Equal(t, 3, cpu)
	assert.Equal(t, "/docker/abc", path)

	t.Run("empty_path_is_root", func(t *testing.T) {
		_, path, ok := parseRQHeader("cfs_rq[0]:")
		require.True(t, ok)
		assert.Equal(t, "/", path)
	})

	t.Run("rejects_garbage", func(t *testing.T) {
		_, _, ok := parseRQHeader("cfs_rq[x]:/a")
		assert.False(t, ok)
		_, _, ok = parseRQHeader("cpu#0, 2400.000 MHz")
		assert.False(t, ok)
	})
}

func TestApply(t *testing.T) {
	tr := model.NewTree(2)
	docker, ok := tr.Insert("/docker", nil)
	require.True(t, ok)
	abc, ok := tr.Insert("/docker/abc", nil)
	require.True(t, ok)
	docker.Shares = model.Known(1024)

	Apply(tr, Parse(strings.NewReader(fixture)))

	t.Run("cfs_load", func(t *testing.T) {
		assert.Equal(t, model.Known(3072), tr.Root.CFSLoad[0])
		assert.Equal(t, model.Known(2048), docker.CFSLoad[0])
		assert.Equal(t, model.Known(1024), tr.Root.CFSLoad[1])
	})

	t.Run("shares_vs_parent_runqueue", func(t *testing.T) {
		// docker: 1024 of root's 3072 on cpu0, 256 of 1024 on cpu1.
		assert.Equal(t, model.Known(33), docker.PCPUShares[0][0])
		assert.Equal(t, model.Known(25), docker.PCPUShares[1][0])
		// abc: 512 of docker's 2048 on cpu0.
		assert.Equal(t, model.Known(25), abc.PCPUShares[0][0])
	})

	t.Run("shares_vs_configured_weight", func(t *testing.T) {
		// docker has shares=1024, so the ideal denominator is 1024*1024.
		assert.Equal(t, model.Known(0), docker.PCPUShares[0][1])
		// abc's shares were never read this cycle.
		assert.False(t, abc.PCPUShares[0][1].Known)
	})

	t.Run("root_shares_unknown", func(t *testing.T) {
		assert.False(t, tr.Root.PCPUShares[0][0].Known)
		assert.False(t, tr.Root.PCPUShares[0][1].Known)
	})

	t.Run("task_counts", func(t *testing.T) {
		assert.Equal(t, [2]model.Val{model.Known(1), model.Known(2)}, abc.PCPUNTasks[0])
		assert.Equal(t, [2]model.Val{model.Known(0), model.Known(1)}, tr.Root.PCPUNTasks[0])
		assert.False(t, abc.PCPUNTasks[1][0].Known, "no tasks seen for abc on cpu1")
	})
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte(fixture), 0o644))

	require.NoError(t, Snapshot(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, fixture, string(got))

	t.Run("missing_source_is_environment_failure", func(t *testing.T) {
		err := Snapshot(filepath.Join(dir, "nope"), dst)
		assert.ErrorIs(t, err, ErrSnapshot)
	})
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sched_debug")
	require.NoError(t, os.WriteFile(src, []byte(fixture), 0o644))

	tr := model.NewTree(2)
	_, ok := tr.Insert("/docker", nil)
	require.True(t, ok)

	require.NoError(t, Collect(tr, src))
	assert.Equal(t, model.Known(2048), tr.Lookup("/docker").CFSLoad[0])

	t.Run("missing_dump_escalates", func(t *testing.T) {
		err := Collect(tr, filepath.Join(dir, "nope"))
		assert.ErrorIs(t, err, ErrSnapshot)
	})
}
