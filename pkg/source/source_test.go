package source

import (
	"errors"
	"strings"
	"testing"

	"github.com/ternreader/tern/pkg/trbk"
	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/vfs"
)

func testSource(t *testing.T) (*Source, vfs.FS) {
	t.Helper()
	fsys, err := vfs.NewOsFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewOsFS: %v", err)
	}
	s, err := New(fsys, nil, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, fsys
}

func writeImage(t *testing.T, fsys vfs.FS, path string, format trim.Format, w, h int) *trim.Image {
	t.Helper()
	img := trim.NewImage(format, w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetLevel(x, y, uint8((x+y)%256))
		}
	}
	raw, err := img.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := fsys.WriteFile(path, raw); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return img
}

func TestListFiltering(t *testing.T) {
	s, fsys := testSource(t)
	for _, f := range []string{"/Zebra.tri", "/alpha.trbk", "/notes.txt", "/.hidden.tri", "/TRRESUME"} {
		if err := fsys.WriteFile(f, []byte("x")); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	for _, d := range []string{"/books", "/Art", "/TRCACHE"} {
		if err := fsys.Mkdir(d); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
	}
	entries, err := s.List("/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	want := "Art books alpha.trbk Zebra.tri"
	if got := strings.Join(names, " "); got != want {
		t.Errorf("List order: wanted %q, got %q", want, got)
	}
	if entries[0].Kind != KindDir || entries[2].Kind != KindBook || entries[3].Kind != KindImage {
		t.Errorf("kinds: %+v", entries)
	}
}

func TestOpenImageMono(t *testing.T) {
	s, fsys := testSource(t)
	writeImage(t, fsys, "/pic.tri", trim.Mono1, 40, 30)
	res, err := s.OpenImage("/pic.tri")
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	defer res.Close()
	if res.Streaming() {
		t.Errorf("mono image came back streaming")
	}
	if w, h := res.Source().Size(); w != 40 || h != 30 {
		t.Errorf("size: %dx%d", w, h)
	}
}

func TestOpenImageStreamThreshold(t *testing.T) {
	fsys, err := vfs.NewOsFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewOsFS: %v", err)
	}
	// Threshold below this image's payload: must stream.
	s, err := New(fsys, nil, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img := writeImage(t, fsys, "/big.tri", trim.Gray2, 64, 64)
	res, err := s.OpenImage("/big.tri")
	if err != nil {
		t.Fatalf("OpenImage: %v", err)
	}
	defer res.Close()
	if !res.Streaming() {
		t.Fatalf("gray image above threshold not streaming")
	}
	if got, want := res.Source().Luma(63, 63), img.Luma(63, 63); got != want {
		t.Errorf("streamed luma: wanted %d, got %d", want, got)
	}
}

func TestOpenImageTruncated(t *testing.T) {
	s, fsys := testSource(t)
	img := trim.NewImage(trim.Mono1, 64, 64)
	raw, _ := img.Serialize()
	if err := fsys.WriteFile("/cut.tri", raw[:len(raw)-10]); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.OpenImage("/cut.tri"); err == nil {
		t.Errorf("OpenImage of truncated file: wanted error")
	}
}

func TestOpenEpubGuard(t *testing.T) {
	s, fsys := testSource(t)
	if err := fsys.WriteFile("/b.epub", []byte("PK")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.OpenBook("/b.epub"); !errors.Is(err, ErrMustConvert) {
		t.Errorf("OpenBook(.epub): wanted ErrMustConvert, got %v", err)
	}
	if _, err := s.OpenImage("/b.epub"); !errors.Is(err, ErrMustConvert) {
		t.Errorf("OpenImage(.epub): wanted ErrMustConvert, got %v", err)
	}
}

func TestOpenBook(t *testing.T) {
	s, fsys := testSource(t)
	cover := trim.NewImage(trim.Mono1, 32, 48)
	coverRaw, _ := cover.Serialize()
	w := trbk.Writer{
		Meta:         trbk.Metadata{Title: "T", FontName: "fontdue"},
		ScreenWidth:  480,
		ScreenHeight: 800,
		Pages: [][]trbk.Op{
			{trbk.TextOp{X: 1, Y: 2, Text: "hi"}},
		},
		Images: []trbk.ImageAsset{{Width: 32, Height: 48, Data: coverRaw}},
	}
	raw, err := w.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := fsys.WriteFile("/b.trbk", raw); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res, err := s.OpenBook("/b.trbk")
	if err != nil {
		t.Fatalf("OpenBook: %v", err)
	}
	defer res.Close()
	if res.Book.PageCount() != 1 {
		t.Errorf("page count: %d", res.Book.PageCount())
	}
	cv := s.Cover(res)
	if cv == nil {
		t.Fatalf("Cover: nil")
	}
	if w, h := cv.Source().Size(); w != 32 || h != 48 {
		t.Errorf("cover size: %dx%d", w, h)
	}
}

func TestOpenBookBadMagic(t *testing.T) {
	s, fsys := testSource(t)
	if err := fsys.WriteFile("/x.trbk", append([]byte("NOPE"), make([]byte, 100)...)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := s.OpenBook("/x.trbk"); !errors.Is(err, trbk.ErrNotBook) {
		t.Errorf("OpenBook: wanted ErrNotBook, got %v", err)
	}
}
