package store

import (
	"testing"

	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/vfs"
)

func testFS(t *testing.T) vfs.FS {
	t.Helper()
	fs, err := vfs.NewOsFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewOsFS: %v", err)
	}
	return fs
}

func TestFreshCard(t *testing.T) {
	s := Load(testFS(t))
	if got := s.Resume(); got != ResumeHome {
		t.Errorf("Resume: wanted %q, got %q", ResumeHome, got)
	}
	if got := s.BookPage("/b.trbk"); got != 0 {
		t.Errorf("BookPage: wanted 0, got %d", got)
	}
	if got := s.Recents(); len(got) != 0 {
		t.Errorf("Recents: wanted empty, got %v", got)
	}
	if s.Dirty() {
		t.Errorf("fresh store is dirty")
	}
}

func TestFlushLoadRoundTrip(t *testing.T) {
	fs := testFS(t)
	s := Load(fs)
	s.SetResume("/books/a.trbk")
	s.SetBookPage("/books/a.trbk", 41)
	s.SetBookPage("/books/b.trbk", 7)
	s.Touch("/books/b.trbk")
	s.Touch("/images/c.tri")
	s.Touch("/books/a.trbk")
	if !s.Dirty() {
		t.Fatalf("store not dirty after mutations")
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if s.Dirty() {
		t.Errorf("store dirty after flush")
	}

	back := Load(fs)
	if got := back.Resume(); got != "/books/a.trbk" {
		t.Errorf("Resume: got %q", got)
	}
	if got := back.BookPage("/books/a.trbk"); got != 41 {
		t.Errorf("BookPage a: got %d", got)
	}
	if got := back.BookPage("/books/b.trbk"); got != 7 {
		t.Errorf("BookPage b: got %d", got)
	}
	want := []string{"/books/a.trbk", "/images/c.tri", "/books/b.trbk"}
	got := back.Recents()
	if len(got) != len(want) {
		t.Fatalf("Recents: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Recents[%d]: wanted %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRecentsEviction(t *testing.T) {
	s := Load(testFS(t))
	for i := 0; i < RecentsCap+5; i++ {
		s.Touch("/f" + string(rune('a'+i)))
	}
	if got := len(s.Recents()); got != RecentsCap {
		t.Errorf("recents length: wanted %d, got %d", RecentsCap, got)
	}
	// Re-touching an existing entry must not grow the list.
	s.Touch(s.Recents()[3])
	if got := len(s.Recents()); got != RecentsCap {
		t.Errorf("recents length after re-touch: wanted %d, got %d", RecentsCap, got)
	}
	if got := s.Recents()[0]; got != s.recents[0] {
		t.Errorf("re-touched entry not at front")
	}
}

func TestForget(t *testing.T) {
	s := Load(testFS(t))
	s.Touch("/x.trbk")
	s.SetBookPage("/x.trbk", 3)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	s.Forget("/x.trbk")
	if len(s.Recents()) != 0 || s.BookPage("/x.trbk") != 0 {
		t.Errorf("Forget left state behind")
	}
	if !s.Dirty() {
		t.Errorf("Forget did not mark dirty")
	}
}

func TestThumbCache(t *testing.T) {
	fs := testFS(t)
	s := Load(fs)
	if _, ok := s.Thumb("/a.tri"); ok {
		t.Fatalf("Thumb on empty cache returned an image")
	}
	img := trim.NewImage(trim.Mono1, trim.ThumbSize, trim.ThumbSize)
	img.SetLevel(10, 10, 255)
	s.PutThumb("/a.tri", img, "A Picture")
	back, ok := s.Thumb("/a.tri")
	if !ok {
		t.Fatalf("Thumb after PutThumb: not found")
	}
	if back.Luma(10, 10) != 255 {
		t.Errorf("thumbnail pixel lost")
	}
	if got := s.Title("/a.tri"); got != "A Picture" {
		t.Errorf("Title: got %q", got)
	}
	if got := s.Title("/other.tri"); got != "other.tri" {
		t.Errorf("Title fallback: got %q", got)
	}
}

func TestStateFilesHidden(t *testing.T) {
	for _, name := range []string{"TRRESUME", "TRBOOKS", "TRRECENT", "TRCACHE"} {
		if !IsStateFile(name) {
			t.Errorf("IsStateFile(%q): wanted true", name)
		}
	}
	if IsStateFile("book.trbk") {
		t.Errorf("IsStateFile(book.trbk): wanted false")
	}
}
