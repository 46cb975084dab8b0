package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClean(t *testing.T) {
	for _, te := range []struct {
		in   string
		want string
		ok   bool
	}{
		{"/", "/", true},
		{"/books/a.trbk", "/books/a.trbk", true},
		{"", "", false},
		{"relative", "", false},
		{"/a/../b", "", false},
		{"/a//b", "", false},
		{"/a/./b", "", false},
		{"/..", "", false},
	} {
		got, err := Clean(te.in)
		if te.ok && (err != nil || got != te.want) {
			t.Errorf("Clean(%q): wanted %q, got %q err %v", te.in, te.want, got, err)
		}
		if !te.ok && !errors.Is(err, ErrBadPath) {
			t.Errorf("Clean(%q): wanted ErrBadPath, got %v", te.in, err)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	if got := Base("/books/a.trbk"); got != "a.trbk" {
		t.Errorf("Base: got %q", got)
	}
	if got := Dir("/books/a.trbk"); got != "/books" {
		t.Errorf("Dir: got %q", got)
	}
	if got := Dir("/a"); got != "/" {
		t.Errorf("Dir top: got %q", got)
	}
	if got := Join("/", "x"); got != "/x" {
		t.Errorf("Join root: got %q", got)
	}
	if got := Ext("/a/B.TRBK"); got != ".trbk" {
		t.Errorf("Ext: got %q", got)
	}
}

func TestOsFSConfinement(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewOsFS(dir)
	if err != nil {
		t.Fatalf("NewOsFS: %v", err)
	}
	if _, err := fs.Open("/../etc/passwd"); !errors.Is(err, ErrBadPath) {
		t.Errorf("traversal open: wanted ErrBadPath, got %v", err)
	}
	if err := fs.Rmdir("/", true); !errors.Is(err, ErrNotPermitted) {
		t.Errorf("rmdir root: wanted ErrNotPermitted, got %v", err)
	}
}

func TestOsFSRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewOsFS(dir)
	if err != nil {
		t.Fatalf("NewOsFS: %v", err)
	}
	if err := fs.Mkdir("/books"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.WriteFile("/books/x.bin", []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// The temp sibling must not linger.
	if _, err := os.Stat(filepath.Join(dir, "books", "x.bin.tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	ent, err := fs.Stat("/books/x.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if ent.Size != 5 || ent.Dir {
		t.Errorf("Stat: %+v", ent)
	}
	entries, err := fs.List("/books")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "x.bin" {
		t.Errorf("List: %+v", entries)
	}
	if err := fs.Rename("/books/x.bin", "/books/y.bin"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := fs.Remove("/books/y.bin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := fs.Stat("/books/y.bin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat removed: wanted ErrNotFound, got %v", err)
	}
	if err := fs.Rmdir("/books", false); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
}
