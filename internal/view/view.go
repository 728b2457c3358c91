// Package view turns one cycle's task-group tree into an ordered,
// foldable line list and tracks the scrolling window over it.
package view

import "github.com/cfstop/cfstop/internal/model"

// Metric selects which family of fields the display and sort read.
type Metric int

const (
	MetricUsage Metric = iota
	MetricShares
	MetricTasks
	metricCount
)

func (m Metric) String() string {
	switch m {
	case MetricUsage:
		return "usage"
	case MetricShares:
		return "shares"
	case MetricTasks:
		return "tasks"
	default:
		return "?"
	}
}

// Next and Prev cycle through the metrics.
func (m Metric) Next() Metric { return (m + 1) % metricCount }
func (m Metric) Prev() Metric { return (m + metricCount - 1) % metricCount }

// Accessors are the two behaviors a metric contributes: the aggregate
// value of a group and one per-CPU tuple. They are picked once per
// redraw rather than dispatched per node.
type Accessors struct {
	Total  func(g *model.TaskGroup) model.Val
	PerCPU func(g *model.TaskGroup, cpu int) [2]model.Val
}

func (m Metric) Accessors() Accessors {
	switch m {
	case MetricShares:
		return Accessors{
			Total:  func(g *model.TaskGroup) model.Val { return g.Shares },
			PerCPU: func(g *model.TaskGroup, cpu int) [2]model.Val { return g.PCPUShares[cpu] },
		}
	case MetricTasks:
		return Accessors{
			Total:  func(g *model.TaskGroup) model.Val { return g.NTasks },
			PerCPU: func(g *model.TaskGroup, cpu int) [2]model.Val { return g.PCPUNTasks[cpu] },
		}
	default:
		return Accessors{
			Total:  func(g *model.TaskGroup) model.Val { return g.Usage },
			PerCPU: func(g *model.TaskGroup, cpu int) [2]model.Val { return g.PCPUUsage[cpu] },
		}
	}
}

// Sort columns: 0 sorts by name, 1 by the aggregate metric, 2+i by the
// per-CPU column i of the current metric.
const (
	SortName  = 0
	SortTotal = 1
	SortCPU0  = 2
)
