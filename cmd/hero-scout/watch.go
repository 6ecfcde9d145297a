// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/confighub/hero-scout/internal/config"
	"github.com/confighub/hero-scout/internal/metrics"
	"github.com/confighub/hero-scout/internal/poller"
	"github.com/confighub/hero-scout/internal/tree"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the resource tree in a terminal UI",
	Long: `Watch the resource tree update live.

The tree is polled within api.calls_per_minute: each tick refreshes only the
parts marked stale, and every poll.resync_every ticks the whole account is
re-listed. Editing the config file while watching re-budgets the poller and
the API client.

Keys:
  ↑/k ↓/j   move
  r         refresh the selected subtree
  R         refresh everything
  q         quit

Examples:
  hero-scout watch
  hero-scout watch --demo
  hero-scout watch --metrics-addr :9090
`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var m *metrics.Metrics
	if watchMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := &http.Server{Addr: watchMetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fmt.Fprintf(cmd.ErrOrStderr(), "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
	}

	// Log records would corrupt the UI; they only go to the log file, when configured.
	s, err := openSession("watch", io.Discard, m)
	if err != nil {
		return err
	}
	defer s.close()

	p, err := poller.New(s.cache, s.cfg.API.CallsPerMinute,
		poller.WithLogger(s.log.Logger),
		poller.WithResyncEvery(s.cfg.ResyncEvery()),
	)
	if err != nil {
		return err
	}
	p.Start(ctx)
	defer p.Stop()

	model := newWatchModel(ctx, s.cache, p.Interval())
	defer model.close()
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := config.Watch(ctx, configPath, func(cfg *config.Config, err error) {
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				s.log.Warn("ignoring config reload", "path", configPath, "error", err)
				return
			}
			if err := p.SetBudget(cfg.API.CallsPerMinute); err != nil {
				s.log.Warn("ignoring new call budget", "error", err)
				return
			}
			s.setBudget(cfg.API.CallsPerMinute)
			prog.Send(intervalMsg(p.Interval()))
		})
		if err != nil && ctx.Err() == nil {
			s.log.Warn("config watch stopped", "path", configPath, "error", err)
		}
	}()

	_, err = prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type watchKeyMap struct {
	Up         key.Binding
	Down       key.Binding
	Refresh    key.Binding
	RefreshAll key.Binding
	Quit       key.Binding
}

func defaultWatchKeyMap() watchKeyMap {
	return watchKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		RefreshAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh all"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k watchKeyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Refresh, k.RefreshAll, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// row is one visible line of the flattened tree.
type row struct {
	node  *treeNode
	depth int
}

type (
	// treeChangedMsg reports that the cache emitted a change event.
	treeChangedMsg struct{}

	// rowsMsg carries a freshly walked tree.
	rowsMsg struct {
		rows []row
		err  error
	}

	// refreshDoneMsg reports the end of a user-requested refresh.
	refreshDoneMsg struct {
		label string
		err   error
	}

	// intervalMsg carries the poll interval after a config reload.
	intervalMsg time.Duration
)

type watchModel struct {
	ctx      context.Context
	cache    *tree.Cache
	interval time.Duration

	keymap   watchKeyMap
	spinner  spinner.Model
	viewport viewport.Model

	changes chan struct{}
	walking atomic.Bool
	missed  atomic.Bool
	cancel  func()

	rows        []row
	cursor      int
	loading     bool
	err         error
	status      string
	lastLoad    time.Time
	width       int
	height      int
	quitting    bool
	initialized bool
}

func newWatchModel(ctx context.Context, c *tree.Cache, interval time.Duration) *watchModel {
	vp := viewport.New(80, 20)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	m := &watchModel{
		ctx:      ctx,
		cache:    c,
		interval: interval,
		keymap:   defaultWatchKeyMap(),
		spinner:  s,
		viewport: vp,
		changes:  make(chan struct{}, 1),
		loading:  true,
	}
	// Bursts of events collapse into one pending reload. A failure seen during our own
	// walk is not a reload, or a node that keeps failing would be fetched in a loop; a
	// successful commit during the walk may land in a part already rendered, so one
	// more walk follows.
	m.cancel = c.Subscribe(func(ev tree.Event) {
		if m.walking.Load() {
			if ev.Err == nil {
				m.missed.Store(true)
			}
			return
		}
		select {
		case m.changes <- struct{}{}:
		default:
		}
	})
	return m
}

func (m *watchModel) close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load(), m.waitForChange())
}

func (m *watchModel) load() tea.Cmd {
	return func() tea.Msg {
		m.walking.Store(true)
		defer m.walking.Store(false)
		roots, err := walkTree(m.ctx, m.cache)
		return rowsMsg{rows: flatten(roots, 0, nil), err: err}
	}
}

func (m *watchModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changes:
			return treeChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *watchModel) refresh(n *treeNode) tea.Cmd {
	return func() tea.Msg {
		if n == nil {
			return refreshDoneMsg{label: "everything", err: m.cache.Refresh(m.ctx, nil)}
		}
		return refreshDoneMsg{label: n.Label, err: m.cache.Refresh(m.ctx, n.node)}
	}
}

func flatten(nodes []*treeNode, depth int, out []row) []row {
	for _, n := range nodes {
		out = append(out, row{node: n, depth: depth})
		out = flatten(n.Children, depth+1, out)
	}
	return out
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keymap.Down):
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keymap.Refresh):
			if m.cursor < len(m.rows) {
				m.loading = true
				m.status = "Refreshing " + m.rows[m.cursor].node.Label + "..."
				return m, m.refresh(m.rows[m.cursor].node)
			}
		case key.Matches(msg, m.keymap.RefreshAll):
			m.loading = true
			m.status = "Refreshing everything..."
			return m, m.refresh(nil)
		}
		m.syncViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-4, 1)
		m.syncViewport()
		return m, nil

	case treeChangedMsg:
		m.loading = true
		return m, tea.Batch(m.load(), m.waitForChange())

	case rowsMsg:
		m.loading = false
		m.initialized = true
		m.lastLoad = time.Now()
		m.err = msg.err
		selected := ""
		if m.cursor < len(m.rows) {
			selected = m.rows[m.cursor].node.ID
		}
		m.rows = msg.rows
		m.cursor = min(m.cursor, max(len(m.rows)-1, 0))
		for i, r := range m.rows {
			if r.node.ID == selected {
				m.cursor = i
				break
			}
		}
		m.syncViewport()
		if m.missed.Swap(false) {
			m.loading = true
			return m, m.load()
		}
		return m, nil

	case intervalMsg:
		m.interval = time.Duration(msg)
		m.status = "Polling every " + formatDuration(m.interval)
		return m, nil

	case refreshDoneMsg:
		m.loading = false
		m.err = msg.err
		m.status = ""
		if msg.err == nil {
			m.status = "Refreshed " + msg.label
		}
		return m, m.load()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// syncViewport re-renders the rows and scrolls the cursor into view.
func (m *watchModel) syncViewport() {
	var b strings.Builder
	for i, r := range m.rows {
		marker := "  "
		if i == m.cursor {
			marker = titleStyle.Render("▸ ")
		}
		b.WriteString(marker + strings.Repeat("  ", r.depth) + textLine(r.node))
		if i < len(m.rows)-1 {
			b.WriteString("\n")
		}
	}
	m.viewport.SetContent(b.String())

	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if bottom := m.viewport.YOffset + m.viewport.Height - 1; m.cursor > bottom {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

func (m *watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	header := titleStyle.Render("hero-scout") + dimStyle.Render(fmt.Sprintf("  polling every %s", formatDuration(m.interval)))
	if m.loading {
		header += " " + m.spinner.View()
	}
	b.WriteString(header + "\n\n")

	if !m.initialized {
		b.WriteString(dimStyle.Render("Loading resources...") + "\n")
	} else {
		b.WriteString(m.viewport.View() + "\n")
	}

	footer := dimStyle.Render(m.keymap.help())
	switch {
	case m.err != nil:
		first, _, _ := strings.Cut(m.err.Error(), "\n")
		footer = errStyle.Render("! "+first) + "\n" + footer
	case m.status != "":
		footer = dimStyle.Render(m.status) + "\n" + footer
	}
	if !m.lastLoad.IsZero() {
		footer += dimStyle.Render(fmt.Sprintf("  • updated %s ago", formatDuration(time.Since(m.lastLoad))))
	}
	b.WriteString(footer)
	return b.String()
}
