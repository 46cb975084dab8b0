package trim

// ThumbSize is the edge length of start menu thumbnails.
const ThumbSize = 74

// Thumbnail downsamples src into a size x size Mono1 image,
// contain-fit and centered. Gray sources first get a contrast bend
// around mid gray so the 1-bit threshold does not wash them out.
func Thumbnail(src LumaSource, size int) *Image {
	sw, sh := src.Size()
	out := NewImage(Mono1, size, size)
	if sw <= 0 || sh <= 0 {
		return out
	}
	dw := size
	dh := size * sh / sw
	if dh > size {
		dh = size
		dw = size * sw / sh
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}
	ox := (size - dw) / 2
	oy := (size - dh) / 2
	for y := 0; y < dh; y++ {
		sy := y * sh / dh
		for x := 0; x < dw; x++ {
			sx := x * sw / dw
			l := bendLuma(src.Luma(sx, sy))
			if l >= 128 {
				setPlaneBit(out.BW, size, ox+x, oy+y)
			}
		}
	}
	return out
}

// bendLuma stretches contrast by 30% around mid gray, clamped.
func bendLuma(l uint8) uint8 {
	v := (int(l)-128)*13/10 + 128
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
