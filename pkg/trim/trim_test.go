package trim

import (
	"bytes"
	"testing"
)

// The header layout is a wire contract; check it against known bytes.
func TestHeaderGolden(t *testing.T) {
	golden := []byte{
		0x54, 0x52, 0x49, 0x4D, // "TRIM"
		0x01, 0x01, // version 1, mono1
		0xE0, 0x01, // width 480
		0x20, 0x03, // height 800
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	h, err := ParseHeader(bytes.NewReader(append(golden, make([]byte, PlaneSize(480, 800))...)))
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Width != 480 || h.Height != 800 {
		t.Errorf("size: %dx%d", h.Width, h.Height)
	}
	if Format(h.Format) != Mono1 || h.Version != 1 {
		t.Errorf("format/version: %d/%d", h.Format, h.Version)
	}
	if h.PayloadSize() != 48000 {
		t.Errorf("payload size: wanted 48000, got %d", h.PayloadSize())
	}
}

func TestRoundTrip(t *testing.T) {
	for _, format := range []Format{Mono1, Gray2} {
		img := NewImage(format, 33, 7)
		img.SetLevel(0, 0, 255)
		img.SetLevel(32, 6, 192)
		img.SetLevel(16, 3, 128)
		img.SetLevel(1, 1, 64)
		raw, err := img.Serialize()
		if err != nil {
			t.Fatalf("%s: Serialize: %v", format, err)
		}
		back, err := Parse(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("%s: Parse: %v", format, err)
		}
		if back.Format != format || back.Width != 33 || back.Height != 7 {
			t.Errorf("%s: header mismatch: %+v", format, back)
		}
		if !bytes.Equal(back.BW, img.BW) || !bytes.Equal(back.LSB, img.LSB) || !bytes.Equal(back.MSB, img.MSB) {
			t.Errorf("%s: planes not identical after round trip", format)
		}
	}
}

func TestParseTruncated(t *testing.T) {
	img := NewImage(Gray2, 16, 16)
	raw, err := img.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	for _, n := range []int{3, HeaderSize, HeaderSize + 10, len(raw) - 1} {
		if _, err := Parse(bytes.NewReader(raw[:n])); err == nil {
			t.Errorf("Parse of %d-byte prefix: wanted error", n)
		}
	}
}

func TestParseBadMagic(t *testing.T) {
	img := NewImage(Mono1, 8, 8)
	raw, _ := img.Serialize()
	raw[0] = 'X'
	if _, err := Parse(bytes.NewReader(raw)); err == nil {
		t.Errorf("Parse: wanted error for bad magic")
	}
}

func TestGrayLevels(t *testing.T) {
	img := NewImage(Gray2, 5, 1)
	for i, lum := range []uint8{255, 192, 128, 64, 0} {
		img.SetLevel(i, 0, lum)
	}
	for i, want := range []uint8{255, 192, 128, 64, 0} {
		if got := img.Luma(i, 0); got != want {
			t.Errorf("pixel %d: wanted luma %d, got %d", i, want, got)
		}
	}
}

func TestStreamMatchesParse(t *testing.T) {
	img := NewImage(Gray2, 21, 9)
	for y := 0; y < 9; y++ {
		for x := 0; x < 21; x++ {
			img.SetLevel(x, y, uint8((x*31+y*77)%256))
		}
	}
	raw, err := img.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	s, err := NewStream(bytes.NewReader(raw), HeaderSize, 21, 9)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	for y := 0; y < 9; y++ {
		err := s.Row(y, func(x int, bw, lsb, msb bool) {
			if got, want := GrayLuma(bw, lsb, msb), img.Luma(x, y); got != want {
				t.Errorf("pixel %d,%d: stream %d, image %d", x, y, got, want)
			}
		})
		if err != nil {
			t.Fatalf("Row(%d): %v", y, err)
		}
		for x := 0; x < 21; x += 5 {
			if got, want := s.Luma(x, y), img.Luma(x, y); got != want {
				t.Errorf("Luma(%d,%d): stream %d, image %d", x, y, got, want)
			}
		}
	}
}

func TestThumbnailContain(t *testing.T) {
	img := NewImage(Mono1, 200, 100)
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.SetLevel(x, y, 255)
		}
	}
	th := Thumbnail(img, ThumbSize)
	if th.Width != ThumbSize || th.Height != ThumbSize || th.Format != Mono1 {
		t.Fatalf("thumbnail shape: %+v", th)
	}
	// 200x100 contained in 74x74 is 74x37, centered vertically:
	// letterbox rows stay black, content rows are white.
	if th.Luma(37, 0) != 0 {
		t.Errorf("top letterbox not black")
	}
	if th.Luma(37, 37) != 255 {
		t.Errorf("content center not white")
	}
	if th.Luma(37, 73) != 0 {
		t.Errorf("bottom letterbox not black")
	}
}
