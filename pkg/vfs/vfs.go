// Package vfs is the narrow filesystem capability handed to the
// engines and the USB session. Paths are absolute, slash-separated and
// rooted at the media root ("/books/a.trbk"); implementations confine
// every operation under their root so a hostile path in a protocol
// frame cannot escape the card.
package vfs

import (
	"errors"
	"io"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBadPath      = errors.New("bad path")
	ErrNotPermitted = errors.New("not permitted")
)

// Entry is one directory listing element.
type Entry struct {
	Name string
	Dir  bool
	Size int64
}

// File is an open file for reading. Seekable so codecs can stream
// sections on demand.
type File interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// WFile is an open file for writing, used by the USB write path.
type WFile interface {
	io.Writer
	io.Seeker
	io.Closer
}

// FS is the filesystem capability. All paths go through Clean before
// reaching the backing store.
type FS interface {
	List(path string) ([]Entry, error)
	Stat(path string) (Entry, error)
	Open(path string) (File, error)

	// Create opens path for writing, truncating. Missing parents are
	// an error.
	Create(path string) (WFile, error)
	// OpenWrite opens an existing file for in-place writes, creating
	// it if absent.
	OpenWrite(path string) (WFile, error)
	// WriteFile replaces path atomically: the data lands in a
	// temporary sibling which is renamed over the target, so a power
	// cut mid-write leaves the old contents intact.
	WriteFile(path string, data []byte) error

	Remove(path string) error
	Mkdir(path string) error
	Rmdir(path string, recursive bool) error
	Rename(from, to string) error
}

// Clean validates and canonicalizes a protocol or config path.
// Accepted paths are absolute, contain no empty or dot segments, and
// never traverse upward.
func Clean(p string) (string, error) {
	if p == "" || p[0] != '/' {
		return "", ErrBadPath
	}
	if p == "/" {
		return "/", nil
	}
	var parts []string
	for _, seg := range strings.Split(p[1:], "/") {
		switch seg {
		case "", ".", "..":
			return "", ErrBadPath
		}
		if strings.ContainsRune(seg, 0) {
			return "", ErrBadPath
		}
		parts = append(parts, seg)
	}
	return "/" + strings.Join(parts, "/"), nil
}

// Base returns the last segment of a cleaned path.
func Base(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Dir returns the parent of a cleaned path, "/" at the top.
func Dir(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

// Join appends name to a cleaned directory path.
func Join(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Ext returns the lowercased extension including the dot, or "".
func Ext(p string) string {
	name := Base(p)
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return strings.ToLower(name[i:])
	}
	return ""
}
