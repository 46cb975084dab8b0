// Package ui draws the reader's chrome: menu lists, modal overlays and
// captions. Content rendering (pages, pictures) lives in pkg/render;
// this package only ever paints 1-bit text and boxes with the fixed
// UI font faces.
package ui

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"github.com/ternreader/tern/pkg/fb"
)

const (
	// LineHeight is the row pitch of UI text.
	LineHeight = 18
	// GlyphWidth is the fixed advance of the UI faces.
	GlyphWidth = 8
)

func face(bold bool) font.Face {
	if bold {
		return inconsolata.Bold8x16
	}
	return inconsolata.Regular8x16
}

// DrawText paints s with its baseline at (x, y).
func DrawText(buf *fb.Buffer, x, y int, s string, bold bool) {
	d := font.Drawer{
		Dst:  buf.Canvas(),
		Src:  image.Black,
		Face: face(bold),
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// TextWidth measures s in pixels.
func TextWidth(s string) int {
	return len([]rune(s)) * GlyphWidth
}

// DrawTextCentered paints s horizontally centered with baseline y.
func DrawTextCentered(buf *fb.Buffer, y int, s string, bold bool) {
	w, _ := buf.Size()
	DrawText(buf, (w-TextWidth(s))/2, y, s, bold)
}

// Truncate cuts s to fit maxPx pixels, appending an ellipsis when cut.
func Truncate(s string, maxPx int) string {
	max := maxPx / GlyphWidth
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max < 1 {
		return ""
	}
	return string(r[:max-1]) + "…"
}
