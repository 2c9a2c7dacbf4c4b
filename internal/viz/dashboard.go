package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/rtimpc/internal/control"
	"github.com/san-kum/rtimpc/internal/dynamo"
	"github.com/san-kum/rtimpc/internal/sim"
)

const (
	width           = 80
	height          = 24
	historyCapacity = 600
	minPeriod       = time.Second / 60
)

// Source builds a fresh closed loop. The dashboard calls it on start and
// on every reset. mpc is nil for controllers without cycle diagnostics.
type Source func() (session *sim.Session, mpc *control.MPC, err error)

type TickMsg time.Time

// Model drives one closed-loop session per tick and renders the plant next
// to the controller diagnostics.
type Model struct {
	plant  string
	ref    dynamo.State
	source Source
	period time.Duration

	session *sim.Session
	mpc     *control.MPC
	err     error

	x        dynamo.State
	u        dynamo.Control
	kkt      []float64
	feedback []float64
	prep     []float64
	degraded int

	canvas   *Canvas
	theme    int
	styles   styles
	running  bool
	showHelp bool
}

// NewModel opens the first session. dt is the sampling period; the
// dashboard never ticks faster than 60 Hz.
func NewModel(plant string, ref dynamo.State, dt float64, source Source) (Model, error) {
	period := time.Duration(dt * float64(time.Second))
	if period < minPeriod {
		period = minPeriod
	}
	m := Model{
		plant:   plant,
		ref:     ref,
		source:  source,
		period:  period,
		canvas:  NewCanvas(width, height),
		styles:  newStyles(Themes[0]),
		running: true,
	}
	if err := m.reset(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.period, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "n":
			if !m.running {
				m.step()
			}
		case "r":
			if err := m.reset(); err != nil {
				m.err = err
			}
		case "t":
			m.theme = (m.theme + 1) % len(Themes)
			m.styles = newStyles(Themes[m.theme])
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) reset() error {
	session, mpc, err := m.source()
	if err != nil {
		return err
	}
	m.session, m.mpc, m.err = session, mpc, nil
	m.x = session.State()
	m.u = nil
	m.kkt = m.kkt[:0]
	m.feedback = m.feedback[:0]
	m.prep = m.prep[:0]
	m.degraded = 0
	return nil
}

// step advances the session by one sample. A finished or failed session is
// left alone until reset.
func (m *Model) step() {
	if m.session == nil || m.err != nil || m.session.Done() {
		return
	}
	x, u, err := m.session.Step()
	if err != nil {
		m.err = err
		m.running = false
		return
	}
	m.x, m.u = x, u
	if m.mpc == nil {
		return
	}

	out := m.mpc.Outcome()
	kkt := out.KKT
	if math.IsInf(kkt, 0) || math.IsNaN(kkt) {
		kkt = 1
	}
	m.kkt = push(m.kkt, math.Log10(math.Max(kkt, 1e-16)))
	m.prep = push(m.prep, millis(out.Timing.Preparation))
	m.feedback = push(m.feedback, millis(out.Timing.Feedback))
	if out.Degraded {
		m.degraded++
	}
}

func push(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historyCapacity {
		h = h[1:]
	}
	return h
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func (m Model) status() string {
	switch {
	case m.err != nil:
		return m.styles.fail.Render("FAILED")
	case m.session != nil && m.session.Done():
		return m.styles.ok.Render("DONE")
	case !m.running:
		return m.styles.warn.Render("PAUSED")
	default:
		return m.styles.ok.Render("RUNNING")
	}
}

func (m Model) row(label, value string) string {
	return m.styles.label.Render(label) + m.styles.value.Render(value) + "\n"
}

func (m Model) View() string {
	drawPlant(m.canvas, m.plant, m.x, m.ref)
	canvasView := m.styles.canvas.Render(m.canvas.String())

	var s strings.Builder
	s.WriteString(m.styles.header.Render(strings.ToUpper(m.plant)) + "\n")
	s.WriteString(m.status() + "\n\n")

	if m.session != nil {
		frac := 0.0
		if m.session.Total() > 0 {
			frac = float64(m.session.Steps()) / float64(m.session.Total())
		}
		s.WriteString(m.row("Time", fmt.Sprintf("%.2fs", m.session.Time())))
		s.WriteString(m.row("Progress", progressBar(frac, 20)))
	}
	s.WriteString(m.row("State", formatVec(m.x)))
	s.WriteString(m.row("Control", formatVec(m.u)))

	if m.mpc != nil {
		ctrl := m.mpc.Controller()
		out := m.mpc.Outcome()
		s.WriteString("\nRTI\n")
		s.WriteString(m.row("Iteration", fmt.Sprintf("%d", ctrl.Iteration())))
		s.WriteString(m.row("Phase", ctrl.Phase().String()))
		s.WriteString(m.row("KKT", fmt.Sprintf("%.3e", ctrl.KKT())))
		status := m.styles.ok.Render(out.Status.String())
		if !out.Status.OK() && ctrl.Iteration() > 0 {
			status = m.styles.fail.Render(out.Status.String())
		}
		s.WriteString(m.row("QP status", status))
		s.WriteString(m.row("Preparation", out.Timing.Preparation.String()))
		s.WriteString(m.row("Feedback", out.Timing.Feedback.String()))
		s.WriteString(m.row("Failures", fmt.Sprintf("%d", m.mpc.Failures())))
		s.WriteString(m.row("Degraded", fmt.Sprintf("%d", m.degraded)))

		if len(m.kkt) > 1 {
			chart := asciigraph.Plot(m.kkt, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("log10 KKT"))
			s.WriteString(m.styles.graph.Render(chart) + "\n")
		}
		if len(m.feedback) > 1 {
			chart := asciigraph.PlotMany([][]float64{m.prep, m.feedback},
				asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("prep / feedback ms"))
			s.WriteString(m.styles.graph.Render(chart) + "\n")
		}
	}

	if m.err != nil {
		s.WriteString("\n" + m.styles.fail.Render(m.err.Error()) + "\n")
	}
	s.WriteString(m.styles.help.Render("SP:Pause N:Step R:Reset T:Theme ?:Help Q:Quit"))

	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, m.styles.stats.Render(s.String()))
	if m.showHelp {
		return helpText + "\n\n" + main
	}
	return main
}

const helpText = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space  - Pause/Resume the loop      ║
║  N      - Single cycle while paused  ║
║  R      - Restart with a fresh guess ║
║  T      - Cycle themes               ║
║  ?      - Toggle this help           ║
║  Q      - Quit                       ║
╚══════════════════════════════════════╝`

func formatVec(v []float64) string {
	if len(v) == 0 {
		return "-"
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%+.3f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Run shows the dashboard until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
