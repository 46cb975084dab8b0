package app

import (
	"fmt"
	"runtime"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/ui"
)

// settingsState is the about/settings screen reached from the start
// menu's actions row. Display-only; Back returns.
type settingsState struct {
	active bool
}

func (s *settingsState) tick(a *App) {
	if a.in.Pressed(input.Back) || a.in.Pressed(input.Confirm) {
		s.active = false
		a.markDirty()
	}
}

func (s *settingsState) draw(a *App, buf *fb.Buffer) {
	_, h := buf.Size()
	ui.Logo(buf, "tern", a.version)
	y := h/2 + 70
	for _, line := range []string{
		fmt.Sprintf("Runtime    %s/%s", runtime.GOOS, runtime.GOARCH),
		fmt.Sprintf("Panel      %dx%d rot %s", a.cfg.Display.Width, a.cfg.Display.Height, a.cfg.Display.Rotation),
		fmt.Sprintf("Library    %s", a.cfg.Library),
		fmt.Sprintf("Idle sleep %d s", a.cfg.IdleTimeoutMs/1000),
		fmt.Sprintf("Battery    %s", a.batteryLabel()),
	} {
		ui.DrawText(buf, 24, y, line, false)
		y += ui.LineHeight
	}
}
