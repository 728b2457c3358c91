package model

import "path"

// MaxDepth caps the task-group tree. Groups discovered deeper than this
// are not linked, and neither is anything below them.
const MaxDepth = 36

// TaskGroup is one node of the kernel's CPU-scheduling hierarchy, keyed
// by its cgroup path ("/" for the root). Rate-tracking fields survive a
// rebuild when the path survives; derived fields are reset to unknown at
// the start of every cycle and refilled from this cycle's reads only.
type TaskGroup struct {
	Path  string
	Name  string
	Level int

	Parent   *TaskGroup
	Children []*TaskGroup

	// Fold hides the subtree from the projected line list. UI-only,
	// carried across rebuilds by path.
	Fold bool

	// Rate-tracking state, carried across rebuilds by path.
	LastStamp  int64 // ns
	LastPerCPU []uint64

	// Derived per-cycle metrics.
	Usage      Val      // aggregate busy %, sum over CPUs
	PCPUUsage  [][2]Val // per CPU: (busy %, share of group total %)
	Shares     Val      // configured weight, raw integer
	PCPUShares [][2]Val // per CPU: (weight/cfs_rq total %, weight/(shares*1024) %)
	NTasks     Val      // direct task count
	PCPUNTasks [][2]Val // per CPU: (running, total)

	// CFSLoad is the total runqueue weight per CPU, kept only so that
	// children can divide their entity weight by it.
	CFSLoad []Val
}

// ResetDerived clears everything except identity, links, fold state and
// rate history, sizing the per-CPU slices for numCPU.
func (g *TaskGroup) ResetDerived(numCPU int) {
	g.Usage = Unknown
	g.Shares = Unknown
	g.NTasks = Unknown
	g.PCPUUsage = make([][2]Val, numCPU)
	g.PCPUShares = make([][2]Val, numCPU)
	g.PCPUNTasks = make([][2]Val, numCPU)
	g.CFSLoad = make([]Val, numCPU)
}

// Tree is one cycle's complete task-group mapping. It is built in full
// and then swapped in as a unit; consumers never see a partial tree.
type Tree struct {
	Root   *TaskGroup
	Groups map[string]*TaskGroup
	NumCPU int
}

// NewTree returns a tree holding only the root group.
func NewTree(numCPU int) *Tree {
	root := &TaskGroup{Path: "/", Name: "/"}
	root.ResetDerived(numCPU)
	return &Tree{
		Root:   root,
		Groups: map[string]*TaskGroup{"/": root},
		NumCPU: numCPU,
	}
}

// Lookup returns the group at p, or nil.
func (t *Tree) Lookup(p string) *TaskGroup {
	return t.Groups[p]
}

// Insert links a new group at p under its parent, carrying fold state and
// rate history over from prev if the path existed there. The parent must
// already be present (the builder walks parent before child). Insert
// reports false when the parent is missing or the depth cap is reached.
func (t *Tree) Insert(p string, prev *Tree) (*TaskGroup, bool) {
	if p == "/" {
		if prev != nil {
			t.Root.carryOver(prev.Lookup("/"))
		}
		return t.Root, true
	}
	parent := t.Groups[path.Dir(p)]
	if parent == nil {
		return nil, false
	}
	if parent.Level+1 > MaxDepth {
		return nil, false
	}
	g := &TaskGroup{
		Path:   p,
		Name:   path.Base(p),
		Level:  parent.Level + 1,
		Parent: parent,
	}
	g.ResetDerived(t.NumCPU)
	if prev != nil {
		g.carryOver(prev.Lookup(p))
	}
	parent.Children = append(parent.Children, g)
	t.Groups[p] = g
	return g, true
}

func (g *TaskGroup) carryOver(old *TaskGroup) {
	if old == nil {
		return
	}
	g.Fold = old.Fold
	g.LastStamp = old.LastStamp
	g.LastPerCPU = old.LastPerCPU
}
