package convert

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/ternreader/tern/pkg/trim"
)

func gradient(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / (w - 1))})
		}
	}
	return img
}

func TestToTRIMMono(t *testing.T) {
	out, err := ToTRIM(gradient(64, 32), Options{Width: 64, Height: 32, Algorithm: Threshold})
	if err != nil {
		t.Fatalf("ToTRIM: %v", err)
	}
	if out.Format != trim.Mono1 {
		t.Errorf("format = %v, want mono", out.Format)
	}
	w, h := out.Size()
	if w != 64 || h != 32 {
		t.Fatalf("size = %dx%d, want 64x32", w, h)
	}
	// Hard threshold on a horizontal gradient: left side black,
	// right side white.
	if out.Luma(0, 16) != 0 {
		t.Errorf("left edge luma = %d, want 0", out.Luma(0, 16))
	}
	if out.Luma(63, 16) != 255 {
		t.Errorf("right edge luma = %d, want 255", out.Luma(63, 16))
	}
}

func TestToTRIMGrayLevels(t *testing.T) {
	out, err := ToTRIM(gradient(64, 32), Options{Width: 64, Height: 32, Gray: true, Algorithm: Threshold})
	if err != nil {
		t.Fatalf("ToTRIM: %v", err)
	}
	if out.Format != trim.Gray2 {
		t.Errorf("format = %v, want gray", out.Format)
	}
	// All four levels should appear across the gradient.
	seen := map[uint8]bool{}
	for x := 0; x < 64; x++ {
		seen[out.Luma(x, 16)] = true
	}
	if len(seen) != 4 {
		t.Errorf("distinct levels = %d, want 4 (%v)", len(seen), seen)
	}
}

func TestToTRIMFitPreservesAspect(t *testing.T) {
	// 2:1 source into a square box lands at box width, half height.
	out, err := ToTRIM(gradient(128, 64), Options{Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("ToTRIM: %v", err)
	}
	w, h := out.Size()
	if w != 64 || h != 32 {
		t.Errorf("size = %dx%d, want 64x32", w, h)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(16, 16)); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	img, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("decoded width = %d, want 16", img.Bounds().Dx())
	}
}

func TestParseAlgorithm(t *testing.T) {
	if _, err := ParseAlgorithm("nope"); err == nil {
		t.Error("unknown algorithm should be rejected")
	}
	a, err := ParseAlgorithm("")
	if err != nil || a != FloydSteinberg {
		t.Errorf("default algorithm = %v, %v", a, err)
	}
}
