// Package fb implements the in-memory framebuffer for the eInk panel:
// one bit per pixel, MSB-first within each byte, rows packed top to
// bottom in panel orientation. Drawing happens in logical coordinates,
// which the configured rotation maps onto the panel. The buffer is
// double: draws land in the back plane, the display flushes it, and
// Swap promotes it to front.
//
// Set bits are ink (black). Panel drivers that want white-high invert
// during transfer.
package fb

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
)

type Rotation uint8

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

func (r Rotation) String() string {
	switch r {
	case Rotate0:
		return "0"
	case Rotate90:
		return "90"
	case Rotate180:
		return "180"
	case Rotate270:
		return "270"
	}
	return "unknown"
}

// ParseRotation accepts the degree spellings used in config files.
func ParseRotation(s string) (Rotation, error) {
	switch s {
	case "", "0":
		return Rotate0, nil
	case "90":
		return Rotate90, nil
	case "180":
		return Rotate180, nil
	case "270":
		return Rotate270, nil
	}
	return Rotate0, fmt.Errorf("invalid rotation %q", s)
}

type Buffer struct {
	panelW, panelH int
	rot            Rotation
	front, back    []byte
}

// New allocates both planes for a panelW x panelH panel. The panel
// width must be a multiple of 8 so rows stay byte aligned.
func New(panelW, panelH int, rot Rotation) (*Buffer, error) {
	if panelW <= 0 || panelH <= 0 {
		return nil, fmt.Errorf("invalid panel size %dx%d", panelW, panelH)
	}
	if panelW%8 != 0 {
		return nil, fmt.Errorf("panel width %d not byte aligned", panelW)
	}
	size := panelW * panelH / 8
	return &Buffer{
		panelW: panelW,
		panelH: panelH,
		rot:    rot,
		front:  make([]byte, size),
		back:   make([]byte, size),
	}, nil
}

// Size returns the logical dimensions, with rotation applied.
func (b *Buffer) Size() (int, int) {
	if b.rot == Rotate90 || b.rot == Rotate270 {
		return b.panelH, b.panelW
	}
	return b.panelW, b.panelH
}

func (b *Buffer) PanelSize() (int, int) {
	return b.panelW, b.panelH
}

func (b *Buffer) Rotation() Rotation {
	return b.rot
}

// PlaneSize is the byte length of one packed plane.
func (b *Buffer) PlaneSize() int {
	return b.panelW * b.panelH / 8
}

func (b *Buffer) panelXY(x, y int) (int, int) {
	switch b.rot {
	case Rotate90:
		return y, b.panelH - 1 - x
	case Rotate180:
		return b.panelW - 1 - x, b.panelH - 1 - y
	case Rotate270:
		return b.panelW - 1 - y, x
	}
	return x, y
}

// Set paints one logical pixel in the back plane. Out of bounds
// coordinates are dropped.
func (b *Buffer) Set(x, y int, black bool) {
	w, h := b.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	px, py := b.panelXY(x, y)
	idx := py*b.panelW + px
	mask := byte(0x80) >> (idx % 8)
	if black {
		b.back[idx/8] |= mask
	} else {
		b.back[idx/8] &^= mask
	}
}

// Get reads one logical pixel from the back plane.
func (b *Buffer) Get(x, y int) bool {
	w, h := b.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return false
	}
	px, py := b.panelXY(x, y)
	idx := py*b.panelW + px
	return b.back[idx/8]&(byte(0x80)>>(idx%8)) != 0
}

// PanelIndex maps a logical pixel to its bit index in a packed panel
// plane. Callers maintaining side planes (the gray LSB/MSB pair) use
// this so their bits land next to the back buffer's. Not ok when out
// of bounds.
func (b *Buffer) PanelIndex(x, y int) (int, bool) {
	w, h := b.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0, false
	}
	px, py := b.panelXY(x, y)
	return py*b.panelW + px, true
}

// Clear whitens the whole back plane.
func (b *Buffer) Clear() {
	for i := range b.back {
		b.back[i] = 0
	}
}

func (b *Buffer) Fill(r image.Rectangle, black bool) {
	w, h := b.Size()
	r = r.Intersect(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			b.Set(x, y, black)
		}
	}
}

func (b *Buffer) Invert(r image.Rectangle) {
	w, h := b.Size()
	r = r.Intersect(image.Rect(0, 0, w, h))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			b.Set(x, y, !b.Get(x, y))
		}
	}
}

// Back is the plane being drawn, in panel orientation. Flush this.
func (b *Buffer) Back() []byte {
	return b.back
}

// Front is the plane last promoted by Swap: what the panel shows.
func (b *Buffer) Front() []byte {
	return b.front
}

// Swap copies the back plane over the front after a successful flush.
func (b *Buffer) Swap() {
	copy(b.front, b.back)
}

// Restore copies the front plane back, undoing undisplayed draws.
func (b *Buffer) Restore() {
	copy(b.back, b.front)
}

// Canvas exposes the back plane as a draw.Image in logical
// coordinates, for text rendering with x/image font drawers. Colors
// darker than mid gray become ink.
func (b *Buffer) Canvas() draw.Image {
	return canvas{b}
}

type canvas struct {
	b *Buffer
}

func (c canvas) ColorModel() color.Model {
	return color.GrayModel
}

func (c canvas) Bounds() image.Rectangle {
	w, h := c.b.Size()
	return image.Rect(0, 0, w, h)
}

func (c canvas) At(x, y int) color.Color {
	if c.b.Get(x, y) {
		return color.Gray{Y: 0}
	}
	return color.Gray{Y: 255}
}

func (c canvas) Set(x, y int, col color.Color) {
	gray := color.GrayModel.Convert(col).(color.Gray)
	c.b.Set(x, y, gray.Y < 128)
}
