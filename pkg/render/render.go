// Package render blits decoded images and book glyphs into the
// framebuffer. Sources are luma rasters (full decodes or streams from
// pkg/trim); sinks are the 1-bit back buffer, optionally paired with
// the leased gray planes for 2-bit output.
//
// The gray plane encoding used with display.FlushGray: per pixel a
// level g in [0, 3], 0 white and 3 black, with the low bit in the LSB
// plane and the high bit in the MSB plane. The base ink plane carries
// g >= 2, so drivers without gray waveforms degrade to mono.
package render

import (
	"fmt"
	"image"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/planes"
	"github.com/ternreader/tern/pkg/trim"
)

// FitMode selects how a source raster maps onto the target.
type FitMode uint8

const (
	// Contain scales to fit entirely, letterboxing the rest.
	Contain FitMode = iota
	// Cover scales to fill the target, cropping the overflow.
	Cover
	// Stretch ignores aspect ratio.
	Stretch
	// Integer scales by the largest whole factor that fits, pixel
	// exact; falls back to Contain when the source is too big.
	Integer
	// WidthFit matches widths and letterboxes or crops vertically.
	WidthFit
)

func (m FitMode) String() string {
	switch m {
	case Contain:
		return "contain"
	case Cover:
		return "cover"
	case Stretch:
		return "stretch"
	case Integer:
		return "integer"
	case WidthFit:
		return "width"
	}
	return "unknown"
}

func ParseFitMode(s string) (FitMode, error) {
	switch s {
	case "", "contain":
		return Contain, nil
	case "cover":
		return Cover, nil
	case "stretch":
		return Stretch, nil
	case "integer":
		return Integer, nil
	case "width":
		return WidthFit, nil
	}
	return Contain, fmt.Errorf("invalid fit mode %q", s)
}

// FitRect computes the destination rectangle for a srcW x srcH source
// on a dstW x dstH target. The result may exceed the target (Cover,
// WidthFit); blits clip.
func FitRect(srcW, srcH, dstW, dstH int, mode FitMode) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}
	var w, h int
	switch mode {
	case Stretch:
		return image.Rect(0, 0, dstW, dstH)
	case Cover:
		w = dstW
		h = srcH * dstW / srcW
		if h < dstH {
			h = dstH
			w = srcW * dstH / srcH
		}
	case Integer:
		k := dstW / srcW
		if k2 := dstH / srcH; k2 < k {
			k = k2
		}
		if k < 1 {
			return FitRect(srcW, srcH, dstW, dstH, Contain)
		}
		w = srcW * k
		h = srcH * k
	case WidthFit:
		w = dstW
		h = srcH * dstW / srcW
	default: // Contain
		w = dstW
		h = srcH * dstW / srcW
		if h > dstH {
			h = dstH
			w = srcW * dstH / srcH
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// bayer4 is the 4x4 ordered dither matrix used for gray sources on a
// 1-bit sink.
var bayer4 = [4][4]uint8{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

func clipToBuffer(buf *fb.Buffer, dst image.Rectangle) image.Rectangle {
	w, h := buf.Size()
	return dst.Intersect(image.Rect(0, 0, w, h))
}

func sampleXY(dst, clip image.Rectangle, x, y, sw, sh int) (int, int) {
	sx := (x - dst.Min.X) * sw / dst.Dx()
	sy := (y - dst.Min.Y) * sh / dst.Dy()
	if sx >= sw {
		sx = sw - 1
	}
	if sy >= sh {
		sy = sh - 1
	}
	return sx, sy
}

// DrawMono blits src into dst with nearest-neighbor scaling and a
// fixed mid-gray threshold. The right call for 1-bit sources.
func DrawMono(buf *fb.Buffer, src trim.LumaSource, dst image.Rectangle) {
	sw, sh := src.Size()
	clip := clipToBuffer(buf, dst)
	if clip.Empty() || sw <= 0 || sh <= 0 {
		return
	}
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			sx, sy := sampleXY(dst, clip, x, y, sw, sh)
			buf.Set(x, y, src.Luma(sx, sy) < 128)
		}
	}
}

// DrawDithered blits a gray source onto the 1-bit sink with 4x4
// ordered dithering.
func DrawDithered(buf *fb.Buffer, src trim.LumaSource, dst image.Rectangle) {
	sw, sh := src.Size()
	clip := clipToBuffer(buf, dst)
	if clip.Empty() || sw <= 0 || sh <= 0 {
		return
	}
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			sx, sy := sampleXY(dst, clip, x, y, sw, sh)
			threshold := bayer4[y%4][x%4]*16 + 8
			buf.Set(x, y, src.Luma(sx, sy) < threshold)
		}
	}
}

// grayLevel quantizes luma to the 2-bit level of the plane encoding.
func grayLevel(l uint8) uint8 {
	switch {
	case l >= 224:
		return 0
	case l >= 160:
		return 1
	case l >= 96:
		return 2
	}
	return 3
}

func setGray(buf *fb.Buffer, lease *planes.Lease, x, y int, g uint8) {
	idx, ok := buf.PanelIndex(x, y)
	if !ok {
		return
	}
	mask := byte(0x80) >> (idx % 8)
	if g&1 != 0 {
		lease.LSB[idx/8] |= mask
	} else {
		lease.LSB[idx/8] &^= mask
	}
	if g&2 != 0 {
		lease.MSB[idx/8] |= mask
	} else {
		lease.MSB[idx/8] &^= mask
	}
	buf.Set(x, y, g >= 2)
}

// DrawGray blits a gray source as 2-bit output: base bits into the
// back buffer, level bits into the leased planes.
func DrawGray(buf *fb.Buffer, lease *planes.Lease, src trim.LumaSource, dst image.Rectangle) {
	sw, sh := src.Size()
	clip := clipToBuffer(buf, dst)
	if clip.Empty() || sw <= 0 || sh <= 0 {
		return
	}
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			sx, sy := sampleXY(dst, clip, x, y, sw, sh)
			setGray(buf, lease, x, y, grayLevel(src.Luma(sx, sy)))
		}
	}
}

// StreamGray composes a Gray2 stream into the back buffer and leased
// planes, scanline by scanline, placed unscaled at origin. The stream
// path exists because a full-screen gray image cannot be materialized
// in RAM; scaling it would need neighbor rows, so it is not offered.
func StreamGray(buf *fb.Buffer, lease *planes.Lease, s *trim.Stream, origin image.Point) error {
	_, sh := s.Size()
	bw, bh := buf.Size()
	for y := 0; y < sh; y++ {
		dy := origin.Y + y
		if dy < 0 || dy >= bh {
			continue
		}
		err := s.Row(y, func(x int, b, l, m bool) {
			dx := origin.X + x
			if dx < 0 || dx >= bw {
				return
			}
			setGray(buf, lease, dx, dy, grayLevel(trim.GrayLuma(b, l, m)))
		})
		if err != nil {
			return err
		}
	}
	return nil
}
