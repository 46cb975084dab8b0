// Package sim runs the reader in a terminal: the panel renders as
// half-block cells in a bubbletea program, buttons come from the
// keyboard, the library is a host directory watched for changes, and
// the transfer protocol listens on a TCP loopback.
package sim

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ternreader/tern/pkg/display"
	"github.com/ternreader/tern/pkg/trim"
)

// Screen implements display.Display against an in-memory copy of the
// last flushed planes, rendered to text on demand.
type Screen struct {
	w, h   int
	plane  []byte
	lsb    []byte
	msb    []byte
	gray   bool
	asleep bool

	// Flashes counts full refreshes, surfaced in the status bar so
	// ghosting-heavy UI flows are visible during development.
	Flashes int
}

func NewScreen(w, h int) *Screen {
	return &Screen{
		w:     w,
		h:     h,
		plane: make([]byte, w*h/8),
		lsb:   make([]byte, w*h/8),
		msb:   make([]byte, w*h/8),
	}
}

func (s *Screen) Size() (int, int) { return s.w, s.h }

func (s *Screen) Flush(plane []byte, mode display.RefreshMode) error {
	copy(s.plane, plane)
	s.gray = false
	if mode == display.Full {
		s.Flashes++
	}
	return nil
}

func (s *Screen) FlushGray(bw, lsb, msb []byte) error {
	copy(s.plane, bw)
	copy(s.lsb, lsb)
	copy(s.msb, msb)
	s.gray = true
	s.Flashes++
	return nil
}

func (s *Screen) Sleep() error { s.asleep = true; return nil }
func (s *Screen) Wake() error  { s.asleep = false; return nil }

func (s *Screen) Asleep() bool { return s.asleep }

// bit reads pixel (x, y) of a packed plane.
func (s *Screen) bit(plane []byte, x, y int) bool {
	idx := y*s.w + x
	return plane[idx/8]&(0x80>>(idx%8)) != 0
}

// luma reconstructs the panel tone at (x, y), 0 black to 255 white.
func (s *Screen) luma(x, y int) uint8 {
	if !s.gray {
		if s.bit(s.plane, x, y) {
			return 0
		}
		return 255
	}
	return trim.GrayLuma(s.bit(s.plane, x, y), s.bit(s.lsb, x, y), s.bit(s.msb, x, y))
}

// paperTones maps reconstructed luma to terminal grays with a slight
// paper tint.
var paperTones = []struct {
	max   uint8
	color lipgloss.Color
}{
	{32, lipgloss.Color("#1a1a1a")},
	{96, lipgloss.Color("#555550")},
	{160, lipgloss.Color("#999990")},
	{224, lipgloss.Color("#ccccc2")},
	{255, lipgloss.Color("#f2f1e8")},
}

func toneFor(l uint8) lipgloss.Color {
	for _, t := range paperTones {
		if l <= t.max {
			return t.color
		}
	}
	return paperTones[len(paperTones)-1].color
}

// Render draws the panel as half-block rows: each terminal cell
// covers two vertical pixels, upper in the foreground and lower in
// the background.
func (s *Screen) Render() string {
	if s.asleep {
		// The wallpaper stays visible on real e-paper; dim it so the
		// sleeping state is obvious in the terminal.
		return s.renderDimmed()
	}
	return s.render(func(l uint8) lipgloss.Color { return toneFor(l) })
}

func (s *Screen) renderDimmed() string {
	return s.render(func(l uint8) lipgloss.Color {
		return toneFor(l/2 + 32)
	})
}

func (s *Screen) render(tone func(uint8) lipgloss.Color) string {
	var b strings.Builder
	for y := 0; y < s.h; y += 2 {
		var run strings.Builder
		var runUpper, runLower lipgloss.Color
		flush := func() {
			if run.Len() == 0 {
				return
			}
			st := lipgloss.NewStyle().Foreground(runUpper).Background(runLower)
			b.WriteString(st.Render(run.String()))
			run.Reset()
		}
		for x := 0; x < s.w; x++ {
			upper := tone(s.luma(x, y))
			lower := upper
			if y+1 < s.h {
				lower = tone(s.luma(x, y+1))
			}
			// Escape codes dominate the output; batch equal-styled
			// cells into one styled run.
			if run.Len() > 0 && (upper != runUpper || lower != runLower) {
				flush()
			}
			runUpper, runLower = upper, lower
			run.WriteString("▀")
		}
		flush()
		b.WriteByte('\n')
	}
	return b.String()
}
