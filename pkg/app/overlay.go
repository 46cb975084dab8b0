package app

import (
	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/ui"
)

// overlayState is a dismissable error modal shown above the active
// mode. Back or Confirm dismisses it; the mode underneath never
// changed.
type overlayState struct {
	title string
	lines []string
}

func newOverlay(title string, err error) *overlayState {
	return &overlayState{
		title: title,
		lines: ui.WrapText(err.Error(), 380),
	}
}

func (o *overlayState) draw(buf *fb.Buffer) {
	ui.Message(buf, o.title, o.lines)
}
