package sim

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ternreader/tern/pkg/app"
	"github.com/ternreader/tern/pkg/input"
)

// tickEvery is the simulated device tick, a little slower than the
// hardware loop so terminals keep up.
const tickEvery = 50 * time.Millisecond

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// keymap maps terminal keys to device buttons.
var keymap = map[string]input.Button{
	"up":        input.Up,
	"k":         input.Up,
	"down":      input.Down,
	"j":         input.Down,
	"left":      input.Left,
	"h":         input.Left,
	"right":     input.Right,
	"l":         input.Right,
	"enter":     input.Confirm,
	" ":         input.Confirm,
	"esc":       input.Back,
	"backspace": input.Back,
	"p":         input.Power,
}

var (
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#6B7280"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
)

// Model is the bubbletea program wrapping the device loop.
type Model struct {
	a       *app.App
	screen  *Screen
	watcher *Watcher
	port    *TcpPort
	last    time.Time
	err     error
}

// NewModel assembles the simulator around an already-constructed
// App. watcher and port may be nil.
func NewModel(a *app.App, screen *Screen, watcher *Watcher, port *TcpPort) Model {
	return Model{a: a, screen: screen, watcher: watcher, port: port, last: time.Now()}
}

func (m Model) Init() tea.Cmd {
	m.a.Start()
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if key == "q" || key == "ctrl+c" {
			return m, tea.Quit
		}
		if btn, ok := keymap[key]; ok {
			m.a.HandleInput([]input.Event{
				{Button: btn, Down: true},
				{Button: btn, Down: false},
			})
		}
		return m, nil

	case tickMsg:
		now := time.Time(msg)
		elapsed := int(now.Sub(m.last) / time.Millisecond)
		if elapsed < 1 {
			elapsed = 1
		}
		m.last = now

		if m.watcher != nil && m.watcher.Changed() {
			m.a.RefreshLibrary()
		}
		m.a.Tick(elapsed)
		if _, err := m.a.Render(); err != nil {
			m.err = err
			return m, tea.Quit
		}
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	panel := frameStyle.Render(m.screen.Render())
	status := fmt.Sprintf("mode:%s  flashes:%d", modeName(m.a.Mode()), m.screen.Flashes)
	if m.screen.Asleep() {
		status += "  [sleeping]"
	}
	if m.port != nil {
		status += "  serial:" + m.port.Addr()
	}
	status += "  |  arrows/hjkl move · enter confirm · esc back · p power · q quit"
	return panel + "\n" + statusStyle.Render(status) + "\n"
}

// Err reports a render failure that terminated the program.
func (m Model) Err() error {
	return m.err
}

func modeName(mode app.Mode) string {
	switch mode {
	case app.ModeHome:
		return "home"
	case app.ModeBrowser:
		return "browser"
	case app.ModeImageViewer:
		return "image"
	case app.ModeBookReader:
		return "book"
	case app.ModeSleeping:
		return "sleep"
	}
	return "?"
}
