package ui

import (
	"image"

	"github.com/ternreader/tern/pkg/fb"
)

// box paints a bordered modal and returns its inner rectangle.
func box(buf *fb.Buffer, w, h int) image.Rectangle {
	bw, bh := buf.Size()
	r := image.Rect((bw-w)/2, (bh-h)/2, (bw+w)/2, (bh+h)/2)
	buf.Fill(r.Inset(-2), true)
	buf.Fill(r, false)
	return r
}

// Message draws a modal with a bold title and wrapped body lines over
// whatever is on screen.
func Message(buf *fb.Buffer, title string, lines []string) {
	bw, _ := buf.Size()
	w := bw - 60
	h := (len(lines)+2)*LineHeight + 24
	r := box(buf, w, h)
	y := r.Min.Y + LineHeight + 6
	DrawTextCentered(buf, y, Truncate(title, w-16), true)
	y += LineHeight + 6
	for _, line := range lines {
		DrawText(buf, r.Min.X+8, y, Truncate(line, w-16), false)
		y += LineHeight
	}
}

// WrapText splits s into lines of at most maxPx pixels, breaking on
// spaces where possible.
func WrapText(s string, maxPx int) []string {
	max := maxPx / GlyphWidth
	if max < 1 {
		max = 1
	}
	var lines []string
	for len(s) > 0 {
		r := []rune(s)
		if len(r) <= max {
			lines = append(lines, s)
			break
		}
		cut := max
		for i := max; i > 0; i-- {
			if r[i] == ' ' {
				cut = i
				break
			}
		}
		lines = append(lines, string(r[:cut]))
		for cut < len(r) && r[cut] == ' ' {
			cut++
		}
		s = string(r[cut:])
	}
	return lines
}

// Prompt draws a two-button modal. confirmSelected highlights the
// confirm button.
func Prompt(buf *fb.Buffer, title string, lines []string, confirm, cancel string, confirmSelected bool) {
	bw, _ := buf.Size()
	w := bw - 60
	h := (len(lines)+3)*LineHeight + 40
	r := box(buf, w, h)
	y := r.Min.Y + LineHeight + 6
	DrawTextCentered(buf, y, Truncate(title, w-16), true)
	y += LineHeight + 6
	for _, line := range lines {
		DrawText(buf, r.Min.X+8, y, Truncate(line, w-16), false)
		y += LineHeight
	}
	by := r.Max.Y - 10
	bxl := r.Min.X + w/4 - TextWidth(confirm)/2
	bxr := r.Min.X + 3*w/4 - TextWidth(cancel)/2
	DrawText(buf, bxl, by, confirm, confirmSelected)
	DrawText(buf, bxr, by, cancel, !confirmSelected)
	if confirmSelected {
		buf.Invert(image.Rect(bxl-4, by-LineHeight+2, bxl+TextWidth(confirm)+4, by+4))
	} else {
		buf.Invert(image.Rect(bxr-4, by-LineHeight+2, bxr+TextWidth(cancel)+4, by+4))
	}
}

// Logo paints the built-in wallpaper used when nothing better is
// available: device name over a ruled backdrop.
func Logo(buf *fb.Buffer, name, version string) {
	w, h := buf.Size()
	buf.Clear()
	for y := 0; y < h; y += 24 {
		buf.Fill(image.Rect(0, y, w, y+1), true)
	}
	buf.Fill(image.Rect(0, h/2-40, w, h/2+40), false)
	buf.Fill(image.Rect(0, h/2-40, w, h/2-38), true)
	buf.Fill(image.Rect(0, h/2+38, w, h/2+40), true)
	DrawTextCentered(buf, h/2-8, name, true)
	if version != "" {
		DrawTextCentered(buf, h/2+16, version, false)
	}
}
