// Package trim implements parsing and unparsing of 'TRIM' raster
// images, the native picture format of the reader.
//
// A file is a 16 byte header followed by packed bit planes. Mono1
// files (version 1) carry a single plane; Gray2 files (version 2)
// carry three: the base plane plus the low and high bits of a two bit
// gray level. Planes are a contiguous bit stream, MSB first, row major,
// (width*height+7)/8 bytes each. A set base bit means a lighter pixel,
// which matches what eInk controllers want on the wire.
package trim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

type Format uint8

const (
	Mono1 Format = 1
	Gray2 Format = 2
)

func (f Format) String() string {
	switch f {
	case Mono1:
		return "mono1"
	case Gray2:
		return "gray2"
	}
	return "unknown"
}

// HeaderSize is the fixed size of the on-disk header.
const HeaderSize = 16

var magic = [4]byte{'T', 'R', 'I', 'M'}

type Header struct {
	Magic    [4]byte
	Version  uint8
	Format   uint8
	Width    uint16
	Height   uint16
	Reserved [6]byte
}

func (h *Header) check() error {
	if h.Magic != magic {
		return fmt.Errorf("bad magic %q", h.Magic[:])
	}
	switch {
	case h.Version == 1 && Format(h.Format) == Mono1:
	case h.Version == 2 && Format(h.Format) == Gray2:
	default:
		return fmt.Errorf("unsupported version/format combination %d/%d", h.Version, h.Format)
	}
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("degenerate size %dx%d", h.Width, h.Height)
	}
	return nil
}

// Planes is the number of bit planes the payload carries.
func (h *Header) Planes() int {
	if Format(h.Format) == Gray2 {
		return 3
	}
	return 1
}

func (h *Header) PlaneSize() int {
	return PlaneSize(int(h.Width), int(h.Height))
}

func (h *Header) PayloadSize() int {
	return h.PlaneSize() * h.Planes()
}

// PlaneSize returns the byte length of one packed plane.
func PlaneSize(w, h int) int {
	return (w*h + 7) / 8
}

// Image is a fully decoded picture. These should only be constructed
// directly by encoders; use Parse for files.
type Image struct {
	Format Format
	Width  int
	Height int

	// BW is the base plane. For Mono1 it is the whole image.
	BW []byte
	// LSB and MSB hold the gray bits for Gray2 images, nil otherwise.
	LSB []byte
	MSB []byte
}

// ParseHeader reads and validates just the fixed header.
func ParseHeader(r io.Reader) (*Header, error) {
	var h Header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	if err := h.check(); err != nil {
		return nil, err
	}
	return &h, nil
}

func Parse(r io.Reader) (*Image, error) {
	h, err := ParseHeader(r)
	if err != nil {
		return nil, err
	}
	img := Image{
		Format: Format(h.Format),
		Width:  int(h.Width),
		Height: int(h.Height),
	}
	ps := h.PlaneSize()
	img.BW = make([]byte, ps)
	if _, err := io.ReadFull(r, img.BW); err != nil {
		return nil, fmt.Errorf("could not read base plane: %w", err)
	}
	if img.Format == Gray2 {
		img.LSB = make([]byte, ps)
		img.MSB = make([]byte, ps)
		if _, err := io.ReadFull(r, img.LSB); err != nil {
			return nil, fmt.Errorf("could not read lsb plane: %w", err)
		}
		if _, err := io.ReadFull(r, img.MSB); err != nil {
			return nil, fmt.Errorf("could not read msb plane: %w", err)
		}
	}
	return &img, nil
}

func (i *Image) header() Header {
	h := Header{
		Magic:   magic,
		Version: 1,
		Format:  uint8(i.Format),
		Width:   uint16(i.Width),
		Height:  uint16(i.Height),
	}
	if i.Format == Gray2 {
		h.Version = 2
	}
	return h
}

func (i *Image) Serialize() ([]byte, error) {
	ps := PlaneSize(i.Width, i.Height)
	if len(i.BW) != ps {
		return nil, fmt.Errorf("base plane is %d bytes, want %d", len(i.BW), ps)
	}
	if i.Format == Gray2 && (len(i.LSB) != ps || len(i.MSB) != ps) {
		return nil, fmt.Errorf("gray planes are %d/%d bytes, want %d", len(i.LSB), len(i.MSB), ps)
	}
	buf := bytes.NewBuffer(nil)
	h := i.header()
	binary.Write(buf, binary.LittleEndian, &h)
	buf.Write(i.BW)
	if i.Format == Gray2 {
		buf.Write(i.LSB)
		buf.Write(i.MSB)
	}
	return buf.Bytes(), nil
}

func planeBit(plane []byte, w, x, y int) bool {
	idx := y*w + x
	return plane[idx/8]&(byte(0x80)>>(idx%8)) != 0
}

func setPlaneBit(plane []byte, w, x, y int) {
	idx := y*w + x
	plane[idx/8] |= byte(0x80) >> (idx % 8)
}

// SetLevel writes one pixel from a 0..255 luminance, quantizing to the
// format's levels. For Mono1 anything at or above mid gray is white.
func (i *Image) SetLevel(x, y int, lum uint8) {
	if x < 0 || y < 0 || x >= i.Width || y >= i.Height {
		return
	}
	if i.Format == Mono1 {
		if lum >= 128 {
			setPlaneBit(i.BW, i.Width, x, y)
		}
		return
	}
	switch {
	case lum >= 205:
		setPlaneBit(i.BW, i.Width, x, y)
	case lum >= 154:
		setPlaneBit(i.BW, i.Width, x, y)
		setPlaneBit(i.LSB, i.Width, x, y)
	case lum >= 103:
		setPlaneBit(i.MSB, i.Width, x, y)
	case lum >= 52:
		setPlaneBit(i.MSB, i.Width, x, y)
		setPlaneBit(i.LSB, i.Width, x, y)
	}
}

// Size implements the luma source contract used by the renderer.
func (i *Image) Size() (int, int) {
	return i.Width, i.Height
}

// Luma reads one pixel back as 0..255 luminance. The gray mapping is
// the one the panel waveforms approximate, so round trips through
// SetLevel land on the same level.
func (i *Image) Luma(x, y int) uint8 {
	if x < 0 || y < 0 || x >= i.Width || y >= i.Height {
		return 0
	}
	bw := planeBit(i.BW, i.Width, x, y)
	if i.Format == Mono1 {
		if bw {
			return 255
		}
		return 0
	}
	l := planeBit(i.LSB, i.Width, x, y)
	m := planeBit(i.MSB, i.Width, x, y)
	return GrayLuma(bw, l, m)
}

// GrayLuma maps one Gray2 pixel's three bits to luminance.
func GrayLuma(bw, lsb, msb bool) uint8 {
	switch {
	case !msb && !lsb && bw:
		return 255
	case !msb && lsb && bw:
		return 192
	case msb && !lsb && !bw:
		return 128
	case msb && lsb && !bw:
		return 64
	}
	return 0
}

// NewImage allocates an all-black image.
func NewImage(format Format, w, h int) *Image {
	img := Image{
		Format: format,
		Width:  w,
		Height: h,
		BW:     make([]byte, PlaneSize(w, h)),
	}
	if format == Gray2 {
		img.LSB = make([]byte, PlaneSize(w, h))
		img.MSB = make([]byte, PlaneSize(w, h))
	}
	return &img
}
