package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cfstop/cfstop/internal/config"
	"github.com/cfstop/cfstop/internal/model"
	"github.com/cfstop/cfstop/internal/sampler"
	"github.com/cfstop/cfstop/internal/scheddebug"
	"github.com/cfstop/cfstop/internal/view"
)

// headerRows is the fixed chrome above the scrolling line list.
const headerRows = 3

// Model is the single-threaded state machine: key events and refresh
// ticks all arrive through Update, so a refresh cycle and key handling
// never overlap and the tree is swapped only as a complete unit.
type Model struct {
	cfg config.Config
	log *slog.Logger

	numCPU  int
	tree    *model.Tree
	lines   []view.Line
	win     view.Window
	metric  view.Metric
	sortCol int
	sysload sampler.SysLoad

	frozen bool
	help   bool

	lastRefresh time.Time
	fatal       error

	width  int
	height int
}

func New(cfg config.Config, numCPU int, log *slog.Logger) *Model {
	m := &Model{
		cfg:     cfg,
		log:     log,
		numCPU:  numCPU,
		sortCol: view.SortTotal,
		width:   120,
		height:  40,
	}
	m.win.Resize(m.height - headerRows)
	return m
}

// Fatal reports the environment or internal error that ended the loop,
// if any.
func (m *Model) Fatal() error { return m.fatal }

type tickMsg time.Time

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.cfg.PollTimeout(), func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd {
	if err := m.refresh(); err != nil {
		m.fatal = err
		return tea.Quit
	}
	return m.tickCmd()
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.win.Resize(m.height - headerRows)
		m.win.Fit(len(m.lines))

	case tickMsg:
		if !m.frozen && time.Since(m.lastRefresh) >= m.cfg.Interval {
			if err := m.refresh(); err != nil {
				m.fatal = err
				return m, tea.Quit
			}
		}
		return m, m.tickCmd()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.help {
		m.help = false
		return m, nil
	}

	doc := len(m.lines)
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.win.Up(doc)
		m.win.Select(m.lines)
	case "down", "j":
		m.win.Down(doc)
		m.win.Select(m.lines)
	case "pgup":
		m.win.PageUp(doc)
		m.win.Select(m.lines)
	case "pgdown":
		m.win.PageDown(doc)
		m.win.Select(m.lines)
	case "home":
		m.win.Home(doc)
		m.win.Select(m.lines)
	case "end":
		m.win.End(doc)
		m.win.Select(m.lines)
	case "<":
		m.shiftSort(-1)
	case ">":
		m.shiftSort(+1)
	case "f", "enter":
		if g := m.selected(); g != nil {
			g.Fold = !g.Fold
			m.reproject()
		}
	case "F", "u":
		if m.tree != nil {
			for _, g := range m.tree.Groups {
				g.Fold = false
			}
			m.reproject()
		}
	case "v", "tab":
		m.setMetric(m.metric.Next())
	case "V", "shift+tab":
		m.setMetric(m.metric.Prev())
	case "1":
		m.setMetric(view.MetricUsage)
	case "2":
		m.setMetric(view.MetricShares)
	case "3":
		m.setMetric(view.MetricTasks)
	case "s", " ":
		m.frozen = !m.frozen
	case "h", "?":
		m.help = true
	}
	return m, nil
}

func (m *Model) setMetric(mt view.Metric) {
	m.metric = mt
	m.reproject()
}

func (m *Model) shiftSort(d int) {
	maxCol := view.SortCPU0 + m.numCPU - 1
	c := m.sortCol + d
	if c < view.SortName {
		c = view.SortName
	}
	if c > maxCol {
		c = maxCol
	}
	m.sortCol = c
	m.reproject()
}

func (m *Model) selected() *model.TaskGroup {
	if m.win.Mark < 0 || m.win.Mark >= len(m.lines) {
		return nil
	}
	return m.lines[m.win.Mark].Group
}

// refresh runs one full cycle: rebuild the tree, fill per-group stats,
// attribute per-CPU detail from a sched_debug snapshot, then reproject.
// The new tree replaces the old one only once fully built.
func (m *Model) refresh() error {
	now := time.Now().UnixNano()
	t, err := sampler.BuildTree(m.cfg.CPUAcctRoot, m.numCPU, m.tree, m.log)
	if err != nil {
		return err
	}
	sampler.Collect(t, m.cfg.CPUAcctRoot, m.cfg.CPURoot, now, m.log)
	if err := scheddebug.Collect(t, m.cfg.SchedDebug); err != nil {
		return err
	}
	m.tree = t
	m.sysload = sampler.ReadLoad()
	m.reproject()
	m.lastRefresh = time.Now()
	return nil
}

func (m *Model) reproject() {
	if m.tree == nil {
		return
	}
	m.lines = view.Project(m.tree, m.metric, m.sortCol)
	m.win.Rebind(m.lines)
}

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
	markStyle   = lipgloss.NewStyle().Reverse(true)
	frozenStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 2)
)

const nameWidth = 32

func (m *Model) View() string {
	if m.fatal != nil {
		return ""
	}
	if m.help {
		return m.viewHelp()
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewColumns())
	b.WriteString("\n")

	end := m.win.Top + m.win.Height
	if end > len(m.lines) {
		end = len(m.lines)
	}
	for i := m.win.Top; i < end; i++ {
		row := m.renderLine(m.lines[i])
		if i == m.win.Mark {
			row = markStyle.Render(row)
		}
		b.WriteString(row)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) viewHeader() string {
	state := ""
	if m.frozen {
		state = "  " + frozenStyle.Render("FROZEN")
	}
	load := fmt.Sprintf("load %.2f %.2f %.2f  %d/%d tasks  %d cpus",
		m.sysload.Load1, m.sysload.Load5, m.sysload.Load15,
		m.sysload.Running, m.sysload.Total, m.numCPU)
	return titleStyle.Render("cfstop") + "  " +
		subtleStyle.Render(load) + "  " +
		subtleStyle.Render("view:"+m.metric.String()+" sort:"+m.sortName()) +
		state + "\n" +
		subtleStyle.Render(time.Now().Format("Mon Jan 2 15:04:05"))
}

func (m *Model) sortName() string {
	switch {
	case m.sortCol == view.SortName:
		return "name"
	case m.sortCol == view.SortTotal:
		return m.metric.String()
	default:
		return fmt.Sprintf("cpu%d", m.sortCol-view.SortCPU0)
	}
}

func (m *Model) viewColumns() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %8s", nameWidth, "NAME", strings.ToUpper(m.metric.String()))
	for i := 0; i < m.numCPU; i++ {
		fmt.Fprintf(&b, " %9s", fmt.Sprintf("CPU%d", i))
	}
	return headStyle.Render(b.String())
}

func (m *Model) renderLine(ln view.Line) string {
	g := ln.Group
	acc := m.metric.Accessors()

	marker := " "
	if g.Fold && len(g.Children) > 0 {
		marker = "+"
	}
	name := strings.Repeat(" ", g.Level) + marker + g.Name

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s %8s", nameWidth, truncate(name, nameWidth), acc.Total(g))
	for i := 0; i < m.numCPU; i++ {
		t := acc.PerCPU(g, i)
		fmt.Fprintf(&b, " %9s", t[0].String()+":"+t[1].String())
	}
	return b.String()
}

func (m *Model) viewHelp() string {
	rows := []string{
		headStyle.Render("cfstop keys"),
		"",
		"up/down, j/k      move selection",
		"pgup/pgdn         page",
		"home/end          first/last line",
		"< >               shift sort column",
		"f, enter          fold/unfold selected group",
		"F, u              unfold all",
		"v/V, tab          next/previous view",
		"1 2 3             usage / shares / tasks view",
		"s, space          freeze refresh",
		"h, ?              this help",
		"q                 quit",
		"",
		subtleStyle.Render("any key to dismiss"),
	}
	return helpStyle.Render(strings.Join(rows, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Run starts the Bubble Tea program and reports the first fatal error
// the loop hit, if any. Cancelling ctx (the interrupt path) kills the
// program, which restores the terminal before returning.
func Run(ctx context.Context, cfg config.Config, numCPU int, log *slog.Logger) error {
	m := New(cfg, numCPU, log)
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if fm, ok := final.(*Model); ok && fm.Fatal() != nil {
		return fm.Fatal()
	}
	return nil
}
