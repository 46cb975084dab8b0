package render

import (
	"bytes"
	"image"
	"testing"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/planes"
	"github.com/ternreader/tern/pkg/trim"
)

func TestFitRect(t *testing.T) {
	for _, te := range []struct {
		name   string
		sw, sh int
		mode   FitMode
		want   image.Rectangle
	}{
		{"contain-wide", 960, 800, Contain, image.Rect(0, 200, 480, 600)},
		{"contain-tall", 240, 800, Contain, image.Rect(120, 0, 360, 800)},
		{"stretch", 100, 100, Stretch, image.Rect(0, 0, 480, 800)},
		{"integer", 100, 100, Integer, image.Rect(40, 200, 440, 600)},
		{"integer-too-big", 960, 1600, Integer, image.Rect(0, 0, 480, 800)},
		{"width", 960, 960, WidthFit, image.Rect(0, 160, 480, 640)},
		// Cover overflows the target; the blit clips.
		{"cover", 960, 800, Cover, image.Rect(-240, 0, 720, 800)},
	} {
		got := FitRect(te.sw, te.sh, 480, 800, te.mode)
		if got != te.want {
			t.Errorf("%s: wanted %v, got %v", te.name, te.want, got)
		}
	}
}

func TestFitModeParse(t *testing.T) {
	for _, s := range []string{"contain", "cover", "stretch", "integer", "width"} {
		m, err := ParseFitMode(s)
		if err != nil {
			t.Errorf("ParseFitMode(%q): %v", s, err)
		}
		if m.String() != s {
			t.Errorf("round trip %q: got %q", s, m.String())
		}
	}
	if _, err := ParseFitMode("bogus"); err == nil {
		t.Errorf("ParseFitMode(bogus): wanted error")
	}
}

func TestDrawMonoScale(t *testing.T) {
	buf, err := fb.New(32, 16, fb.Rotate0)
	if err != nil {
		t.Fatalf("fb.New: %v", err)
	}
	src := trim.NewImage(trim.Mono1, 2, 2)
	src.SetLevel(0, 0, 255)
	src.SetLevel(1, 1, 255)
	// 2x2 stretched over 16x16: each source pixel covers an 8x8 block.
	DrawMono(buf, src, image.Rect(0, 0, 16, 16))
	if buf.Get(4, 4) {
		t.Errorf("white source pixel drew ink")
	}
	if !buf.Get(12, 4) {
		t.Errorf("black source pixel did not draw ink")
	}
	if !buf.Get(4, 12) {
		t.Errorf("black source pixel did not draw ink")
	}
	if buf.Get(12, 12) {
		t.Errorf("white source pixel drew ink")
	}
}

func TestDrawGrayPlanes(t *testing.T) {
	buf, err := fb.New(16, 4, fb.Rotate0)
	if err != nil {
		t.Fatalf("fb.New: %v", err)
	}
	pool, err := planes.NewPool(buf.PlaneSize())
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	lease, err := pool.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	src := trim.NewImage(trim.Gray2, 4, 1)
	for i, lum := range []uint8{255, 192, 128, 0} {
		src.SetLevel(i, 0, lum)
	}
	DrawGray(buf, lease, src, image.Rect(0, 0, 4, 1))
	wantLevels := []uint8{0, 1, 2, 3}
	for x, want := range wantLevels {
		idx, ok := buf.PanelIndex(x, 0)
		if !ok {
			t.Fatalf("PanelIndex(%d,0) out of bounds", x)
		}
		mask := byte(0x80) >> (idx % 8)
		var got uint8
		if lease.LSB[idx/8]&mask != 0 {
			got |= 1
		}
		if lease.MSB[idx/8]&mask != 0 {
			got |= 2
		}
		if got != want {
			t.Errorf("pixel %d: wanted level %d, got %d", x, want, got)
		}
		if ink := buf.Get(x, 0); ink != (want >= 2) {
			t.Errorf("pixel %d: base ink %v for level %d", x, ink, want)
		}
	}
}

func TestStreamGrayMatchesDrawGray(t *testing.T) {
	img := trim.NewImage(trim.Gray2, 16, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			img.SetLevel(x, y, uint8((x*67+y*29)%256))
		}
	}
	raw, err := img.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	mk := func() (*fb.Buffer, *planes.Lease) {
		buf, err := fb.New(16, 4, fb.Rotate0)
		if err != nil {
			t.Fatalf("fb.New: %v", err)
		}
		pool, err := planes.NewPool(buf.PlaneSize())
		if err != nil {
			t.Fatalf("NewPool: %v", err)
		}
		lease, err := pool.Acquire()
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		return buf, lease
	}

	bufA, leaseA := mk()
	DrawGray(bufA, leaseA, img, image.Rect(0, 0, 16, 4))

	bufB, leaseB := mk()
	s, err := trim.NewStream(bytes.NewReader(raw), trim.HeaderSize, 16, 4)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if err := StreamGray(bufB, leaseB, s, image.Point{}); err != nil {
		t.Fatalf("StreamGray: %v", err)
	}

	for i := range leaseA.LSB {
		if leaseA.LSB[i] != leaseB.LSB[i] || leaseA.MSB[i] != leaseB.MSB[i] {
			t.Fatalf("plane byte %d differs between full and streamed draw", i)
		}
	}
	for i := range bufA.Back() {
		if bufA.Back()[i] != bufB.Back()[i] {
			t.Fatalf("base byte %d differs between full and streamed draw", i)
		}
	}
}
