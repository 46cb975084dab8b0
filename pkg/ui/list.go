package ui

import (
	"image"

	"github.com/ternreader/tern/pkg/fb"
)

// List is a scrolling menu: a title bar, one row per item, the
// selected row inverted. Selection state lives here; what the items
// mean is the caller's business.
type List struct {
	Title string
	Items []string

	selected int
	top      int
}

func (l *List) SetItems(items []string) {
	l.Items = items
	if l.selected >= len(items) {
		l.selected = len(items) - 1
	}
	if l.selected < 0 {
		l.selected = 0
	}
	if l.top > l.selected {
		l.top = l.selected
	}
}

func (l *List) Selected() int {
	return l.selected
}

func (l *List) Select(i int) {
	if i < 0 {
		i = 0
	}
	if i >= len(l.Items) {
		i = len(l.Items) - 1
	}
	if i < 0 {
		i = 0
	}
	l.selected = i
}

// Up moves the selection, clamped. Reports whether it moved.
func (l *List) Up() bool {
	if l.selected == 0 {
		return false
	}
	l.selected--
	return true
}

func (l *List) Down() bool {
	if l.selected >= len(l.Items)-1 {
		return false
	}
	l.selected++
	return true
}

const (
	listMargin   = 8
	listRowPitch = LineHeight + 6
	titleBar     = 30
)

// Draw paints the list over the whole buffer.
func (l *List) Draw(buf *fb.Buffer) {
	w, h := buf.Size()
	buf.Clear()
	buf.Fill(image.Rect(0, 0, w, titleBar), true)
	// Title text knocked out of the bar.
	DrawText(buf, listMargin, titleBar-9, l.Title, true)
	buf.Invert(image.Rect(0, 0, w, titleBar))

	rows := (h - titleBar) / listRowPitch
	if rows < 1 {
		rows = 1
	}
	if l.selected < l.top {
		l.top = l.selected
	}
	if l.selected >= l.top+rows {
		l.top = l.selected - rows + 1
	}
	for i := 0; i < rows && l.top+i < len(l.Items); i++ {
		idx := l.top + i
		y := titleBar + i*listRowPitch
		DrawText(buf, listMargin, y+LineHeight, Truncate(l.Items[idx], w-2*listMargin), false)
		if idx == l.selected {
			buf.Invert(image.Rect(0, y+3, w, y+listRowPitch))
		}
	}
	if len(l.Items) == 0 {
		DrawTextCentered(buf, h/2, "(empty)", false)
	}
}
