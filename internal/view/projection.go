package view

import (
	"sort"
	"strings"

	"github.com/cfstop/cfstop/internal/model"
)

// Line is one row of the projected document.
type Line struct {
	Group *model.TaskGroup
}

// Project emits the tree in pre-order. At every level the children are
// sorted descending and stable by the selected column of the metric;
// unknown values rank below any known value. A folded node is emitted
// but its subtree is omitted entirely.
func Project(t *model.Tree, m Metric, col int) []Line {
	acc := m.Accessors()
	var lines []Line

	var emit func(g *model.TaskGroup)
	emit = func(g *model.TaskGroup) {
		lines = append(lines, Line{Group: g})
		if g.Fold {
			return
		}
		cs := make([]*model.TaskGroup, len(g.Children))
		copy(cs, g.Children)
		sort.SliceStable(cs, func(i, j int) bool {
			return less(cs[j], cs[i], acc, col) // descending
		})
		for _, c := range cs {
			emit(c)
		}
	}
	emit(t.Root)
	return lines
}

func less(a, b *model.TaskGroup, acc Accessors, col int) bool {
	switch {
	case col == SortName:
		return strings.Compare(a.Name, b.Name) < 0
	case col == SortTotal:
		return acc.Total(a).Less(acc.Total(b))
	default:
		cpu := col - SortCPU0
		return acc.PerCPU(a, cpu)[0].Less(acc.PerCPU(b, cpu)[0])
	}
}
