package viz

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/particlesim/internal/metrics"
	"github.com/san-kum/particlesim/internal/particle"
	"github.com/san-kum/particlesim/internal/sim"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 300
)

type TickMsg time.Time

type styles struct {
	canvas lipgloss.Style
	stats  lipgloss.Style
	header lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	graph  lipgloss.Style
	help   lipgloss.Style
	warn   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		canvas: lipgloss.NewStyle().Padding(1, 2),
		stats:  lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(t.Border).Padding(1, 2).Width(42),
		header: lipgloss.NewStyle().Foreground(t.Primary).Bold(true).MarginBottom(1),
		label:  lipgloss.NewStyle().Foreground(t.Muted).Width(12),
		value:  lipgloss.NewStyle().Foreground(t.Text),
		graph:  lipgloss.NewStyle().Foreground(t.Accent).Padding(1, 0),
		help:   lipgloss.NewStyle().Foreground(t.Muted).MarginTop(1),
		warn:   lipgloss.NewStyle().Foreground(t.Warning).Bold(true),
	}
}

// Model is the live Bubble Tea view. Ticks step the runner on the UI
// goroutine, so the particle view is never read while the solver runs.
type Model struct {
	runner        *sim.Runner
	dt            float64
	title         string
	canvas        *Canvas
	theme         Theme
	styles        styles
	running       bool
	energyHistory []float64
	lastStep      time.Duration
	err           error
	logger        *slog.Logger
}

func NewModel(r *sim.Runner, dt float64, title string) Model {
	theme := Themes[0]
	return Model{
		runner:        r,
		dt:            dt,
		title:         title,
		canvas:        NewCanvas(width, height),
		theme:         theme,
		styles:        newStyles(theme),
		running:       true,
		energyHistory: make([]float64, 0, historyCapacity),
		logger:        slog.Default(),
	}
}

func (m Model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "e":
			if e := m.runner.Emitter(); e != nil {
				on := e.Toggle()
				m.logger.Debug("emitter_toggled", "enabled", on)
			}
		case "t":
			m.theme = NextTheme(m.theme)
			m.styles = newStyles(m.theme)
		case "n":
			if !m.running {
				m.step()
			}
		}
	case TickMsg:
		if m.running && m.err == nil {
			m.step()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) step() {
	start := time.Now()
	f, err := m.runner.Step(m.dt)
	m.lastStep = time.Since(start)
	if err != nil {
		m.err = err
		m.running = false
		m.logger.Error("live_step_failed", "tick", m.runner.Tick(), "error", err)
		return
	}

	m.energyHistory = append(m.energyHistory, metrics.Kinetic(f.Particles, f.SubDt))
	if len(m.energyHistory) > historyCapacity {
		m.energyHistory = m.energyHistory[1:]
	}
}

// View renders the TUI interface.
func (m Model) View() string {
	s := m.runner.Solver()
	cfg := s.Config()

	m.canvas.Clear()
	m.canvas.Box()
	m.canvas.Plot(s.Particles(), cfg.Width, cfg.Height)
	canvasView := m.styles.canvas.Render(m.colorize())

	status := "RUNNING"
	switch {
	case m.err != nil:
		status = m.styles.warn.Render("STOPPED: " + m.err.Error())
	case !m.running:
		status = "PAUSED"
	}

	emitting := "off"
	if e := m.runner.Emitter(); e != nil && e.Enabled() {
		emitting = "on"
	}
	if s.Full() {
		emitting = "full"
	}

	stats := s.Stats()
	var b strings.Builder
	b.WriteString(m.styles.header.Render(strings.ToUpper(m.title)) + "\n")
	b.WriteString(status + "\n\n")
	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("Kinetic energy"))
		b.WriteString(m.styles.graph.Render(chart) + "\n\n")
	}
	m.row(&b, "Time", fmt.Sprintf("%.2fs", m.runner.Time()))
	m.row(&b, "Particles", fmt.Sprintf("%d", s.Len()))
	m.row(&b, "Model", cfg.Model.String())
	m.row(&b, "Emitter", emitting)
	m.row(&b, "Step", fmt.Sprintf("%.2fms", float64(m.lastStep.Microseconds())/1000))
	m.row(&b, "Dropped", fmt.Sprintf("%d", stats.Dropped))
	m.row(&b, "Theme", m.theme.Name)
	b.WriteString(m.styles.help.Render("─────────────────────\nSP:Pause  N:Step  E:Emitter\nT:Theme   Q:Quit"))

	statsView := m.styles.stats.Render(b.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
}

func (m Model) row(b *strings.Builder, label, value string) {
	b.WriteString(m.styles.label.Render(label) + m.styles.value.Render(value) + "\n")
}

// colorize renders the canvas with each cell in the colour of the last
// particle plotted there.
func (m Model) colorize() string {
	var b strings.Builder
	for row := range m.canvas.Grid {
		for col, r := range m.canvas.Grid[row] {
			if m.canvas.Hits(col, row) == 0 || m.canvas.Tint[row][col] == (particle.Color{}) {
				b.WriteRune(r)
				continue
			}
			style := lipgloss.NewStyle().Foreground(hexColor(m.canvas.Tint[row][col]))
			b.WriteString(style.Render(string(r)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func hexColor(c particle.Color) lipgloss.Color {
	to8 := func(v float32) int { return int(v*255 + 0.5) }
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B)))
}

// Run starts the live view in the alternate screen and blocks until quit.
func Run(r *sim.Runner, dt float64, title string) error {
	_, err := tea.NewProgram(NewModel(r, dt, title), tea.WithAltScreen()).Run()
	return err
}
