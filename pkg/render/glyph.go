package render

import (
	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/planes"
	"github.com/ternreader/tern/pkg/trbk"
)

func glyphBit(plane []byte, w, x, y int) bool {
	idx := y*w + x
	if idx/8 >= len(plane) {
		return false
	}
	return plane[idx/8]&(byte(0x80)>>(idx%8)) != 0
}

// DrawGlyph blits one pre-rasterized glyph with its pen position at
// (x, y) on the baseline. Mono glyphs paint ink bits; gray glyphs
// additionally write antialiasing levels into the leased planes when
// one is supplied.
func DrawGlyph(buf *fb.Buffer, lease *planes.Lease, g *trbk.Glyph, x, y int) {
	gw, gh := int(g.Width), int(g.Height)
	ox := x + int(g.XOffset)
	oy := y + int(g.YOffset)
	gray := lease != nil && g.LSB != nil && g.MSB != nil
	for gy := 0; gy < gh; gy++ {
		for gx := 0; gx < gw; gx++ {
			ink := glyphBit(g.BW, gw, gx, gy)
			if gray {
				lvl := uint8(0)
				if glyphBit(g.LSB, gw, gx, gy) {
					lvl |= 1
				}
				if glyphBit(g.MSB, gw, gx, gy) {
					lvl |= 2
				}
				if ink {
					lvl = 3
				}
				if lvl > 0 {
					setGray(buf, lease, ox+gx, oy+gy, lvl)
				}
				continue
			}
			if ink {
				buf.Set(ox+gx, oy+gy, true)
			}
		}
	}
}

// GlyphAdvance is the pen movement after drawing g.
func GlyphAdvance(g *trbk.Glyph) int {
	return int(g.XAdvance)
}
