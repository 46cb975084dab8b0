package trim

import (
	"fmt"
	"io"
)

// LumaSource is a readable grayscale raster. Image satisfies it; the
// renderer consumes it so full decodes and streams draw the same way.
type LumaSource interface {
	Size() (int, int)
	Luma(x, y int) uint8
}

// Stream reads a Gray2 payload row by row straight from storage.
// Full-screen gray images are three planes of panel size; holding all
// of them plus a decode buffer does not fit, so the renderer walks the
// image one scanline at a time through here.
//
// Planes are contiguous bit streams, so a row does not necessarily
// start on a byte boundary; Row reads the covering byte span of each
// plane and indexes by bit.
type Stream struct {
	r      io.ReaderAt
	base   int64
	w, h   int
	pbytes int

	rows [3][]byte
}

// NewStream wraps the payload of a Gray2 image whose header was
// already validated. base is the file offset of the first plane.
func NewStream(r io.ReaderAt, base int64, w, h int) (*Stream, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("degenerate size %dx%d", w, h)
	}
	s := Stream{
		r:      r,
		base:   base,
		w:      w,
		h:      h,
		pbytes: PlaneSize(w, h),
	}
	for i := range s.rows {
		// Worst case a row spans one extra byte on each side.
		s.rows[i] = make([]byte, w/8+2)
	}
	return &s, nil
}

func (s *Stream) Size() (int, int) {
	return s.w, s.h
}

// Row loads scanline y of all three planes and calls fn once per
// pixel with the plane bits.
func (s *Stream) Row(y int, fn func(x int, bw, lsb, msb bool)) error {
	if y < 0 || y >= s.h {
		return fmt.Errorf("row %d out of range [0, %d)", y, s.h)
	}
	bitOff := y * s.w
	byteOff := bitOff / 8
	span := (bitOff%8 + s.w + 7) / 8
	for p := 0; p < 3; p++ {
		buf := s.rows[p][:span]
		off := s.base + int64(p*s.pbytes) + int64(byteOff)
		if _, err := s.r.ReadAt(buf, off); err != nil {
			return fmt.Errorf("could not read plane %d row %d: %w", p, y, err)
		}
	}
	shift := bitOff % 8
	bit := func(p, x int) bool {
		idx := shift + x
		return s.rows[p][idx/8]&(byte(0x80)>>(idx%8)) != 0
	}
	for x := 0; x < s.w; x++ {
		fn(x, bit(0, x), bit(1, x), bit(2, x))
	}
	return nil
}

// Luma implements LumaSource by reading a single pixel. Fine for
// scattered samples (thumbnails); page rendering should use Row.
func (s *Stream) Luma(x, y int) uint8 {
	if x < 0 || y < 0 || x >= s.w || y >= s.h {
		return 0
	}
	idx := y*s.w + x
	var bits [3]bool
	var one [1]byte
	for p := 0; p < 3; p++ {
		off := s.base + int64(p*s.pbytes) + int64(idx/8)
		if _, err := s.r.ReadAt(one[:], off); err != nil {
			return 0
		}
		bits[p] = one[0]&(byte(0x80)>>(idx%8)) != 0
	}
	return GrayLuma(bits[0], bits[1], bits[2])
}
