package app

import (
	"image"
	"log/slog"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/render"
	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/ui"
)

// homeShown is how many recents the start menu displays; the store
// keeps more, the menu shows the freshest few.
const homeShown = 5

// homeState is the start menu: a recents section above an actions row
// (Files / Settings / battery readout).
type homeState struct {
	recents []string
	titles  []string

	inActions bool
	recSel    int
	actSel    int

	settings settingsState
}

func (h *homeState) open(a *App) error {
	h.refresh(a)
	return nil
}

// refresh rebuilds the recents section, dropping entries whose files
// vanished (deleted over USB, card swapped).
func (h *homeState) refresh(a *App) {
	h.recents = h.recents[:0]
	h.titles = h.titles[:0]
	for _, p := range a.st.Recents() {
		if len(h.recents) == homeShown {
			break
		}
		if _, err := a.src.FS().Stat(p); err != nil {
			continue
		}
		h.recents = append(h.recents, p)
		h.titles = append(h.titles, a.st.Title(p))
	}
	if h.recSel >= len(h.recents) {
		h.recSel = 0
	}
	if len(h.recents) == 0 {
		h.inActions = true
	}
}

var homeActions = []string{"Files", "Settings", ""}

func (a *App) tickHome() {
	h := &a.home
	if h.settings.active {
		h.settings.tick(a)
		return
	}
	switch {
	case a.in.Pressed(input.Up):
		if h.inActions && len(h.recents) > 0 {
			h.inActions = false
			h.recSel = len(h.recents) - 1
		} else if !h.inActions && h.recSel > 0 {
			h.recSel--
		} else if !h.inActions {
			// Wrap from the top of recents to the end of the
			// actions row.
			h.inActions = true
			h.actSel = len(homeActions) - 1
		}
		a.markDirty()
	case a.in.Pressed(input.Down):
		if !h.inActions && h.recSel < len(h.recents)-1 {
			h.recSel++
		} else if !h.inActions {
			h.inActions = true
			h.actSel = 0
		}
		a.markDirty()
	case a.in.Pressed(input.Left):
		if h.inActions && h.actSel > 0 {
			h.actSel--
			a.markDirty()
		}
	case a.in.Pressed(input.Right):
		if h.inActions && h.actSel < len(homeActions)-1 {
			h.actSel++
			a.markDirty()
		}
	case a.in.Pressed(input.Confirm):
		if !h.inActions {
			if h.recSel < len(h.recents) {
				a.openMedia(h.recents[h.recSel])
			}
			return
		}
		switch h.actSel {
		case 0:
			if err := a.transition(ModeBrowser, "/"); err != nil {
				a.showError("Could not open files", err)
			}
		case 1:
			h.settings.active = true
			a.markDirty()
		case 2:
			// Battery readout is display-only.
		}
	}
}

const (
	homeThumbPitch = trim.ThumbSize + 12
	homeTopMargin  = 48
)

func (h *homeState) draw(a *App, buf *fb.Buffer) {
	if h.settings.active {
		h.settings.draw(a, buf)
		return
	}
	w, ht := buf.Size()
	buf.Clear()
	ui.DrawTextCentered(buf, 28, "tern", true)

	y := homeTopMargin
	if len(h.recents) == 0 {
		ui.DrawTextCentered(buf, y+40, "No recent items", false)
	}
	for i, p := range h.recents {
		if th, ok := a.st.Thumb(p); ok {
			render.DrawMono(buf, th, image.Rect(16, y, 16+trim.ThumbSize, y+trim.ThumbSize))
		} else {
			buf.Fill(image.Rect(16, y, 16+trim.ThumbSize, y+trim.ThumbSize), true)
			buf.Fill(image.Rect(18, y+2, 14+trim.ThumbSize, y-2+trim.ThumbSize), false)
		}
		tx := 16 + trim.ThumbSize + 12
		ui.DrawText(buf, tx, y+trim.ThumbSize/2+6, ui.Truncate(h.titles[i], w-tx-16), false)
		if !h.inActions && i == h.recSel {
			buf.Invert(image.Rect(8, y-4, w-8, y+trim.ThumbSize+4))
		}
		y += homeThumbPitch
	}

	ay := ht - 40
	labels := []string{homeActions[0], homeActions[1], a.batteryLabel()}
	slot := w / len(labels)
	for i, label := range labels {
		x := i*slot + slot/2 - ui.TextWidth(label)/2
		ui.DrawText(buf, x, ay, label, h.inActions && i == h.actSel)
		if h.inActions && i == h.actSel {
			buf.Invert(image.Rect(x-6, ay-ui.LineHeight+2, x+ui.TextWidth(label)+6, ay+6))
		}
	}
}

// touchRecent records a successful open: MRU position, thumbnail and
// title sidecar for the start menu.
func (a *App) touchRecent(path string, art trim.LumaSource, title string) {
	a.st.Touch(path)
	if art != nil {
		a.st.PutThumb(path, trim.Thumbnail(art, trim.ThumbSize), title)
	}
	a.home.refresh(a)
	slog.Debug("Recent touched", "path", path)
}
