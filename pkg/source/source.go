// Package source is the SD card seen as a media library: directory
// listings filtered down to what the reader can open, plus open
// operations that hand back decoded TRIM images (or streams, when the
// image is too big to decode whole) and parsed TRBK books.
package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/ternreader/tern/pkg/store"
	"github.com/ternreader/tern/pkg/vfs"
)

// ErrMustConvert is raised for EPUB files, which the device cannot
// lay out itself.
var ErrMustConvert = errors.New("EPUB books must be converted on the desktop first")

// DefaultFilters is the extension allowlist shown in the browser.
var DefaultFilters = []string{"*.tri", "*.trbk", "*.tbk", "*.epub", "*.epb"}

// Kind classifies a library entry.
type Kind uint8

const (
	KindOther Kind = iota
	KindDir
	KindImage
	KindBook
	KindEpub
)

// KindOf classifies a path by extension.
func KindOf(path string) Kind {
	switch vfs.Ext(path) {
	case ".tri":
		return KindImage
	case ".trbk", ".tbk":
		return KindBook
	case ".epub", ".epb":
		return KindEpub
	}
	return KindOther
}

// Entry is one listed library item.
type Entry struct {
	Name string
	Path string
	Kind Kind
	Size int64
}

// Source wraps the filesystem with the library policy. streamBytes is
// the size above which a Gray2 payload is streamed instead of decoded;
// 0 applies no limit.
type Source struct {
	fs          vfs.FS
	filters     []glob.Glob
	streamBytes int
}

func New(fsys vfs.FS, patterns []string, streamBytes int) (*Source, error) {
	if len(patterns) == 0 {
		patterns = DefaultFilters
	}
	var gs []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("invalid filter %q: %w", p, err)
		}
		gs = append(gs, g)
	}
	return &Source{fs: fsys, filters: gs, streamBytes: streamBytes}, nil
}

func (s *Source) FS() vfs.FS {
	return s.fs
}

func (s *Source) shown(name string) bool {
	for _, g := range s.filters {
		if g.Match(strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// List returns the browsable entries of dir: directories always,
// files only when a filter matches, dotfiles and state files never.
// Directories sort before files, both case-insensitively.
func (s *Source) List(dir string) ([]Entry, error) {
	raw, err := s.fs.List(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range raw {
		if strings.HasPrefix(e.Name, ".") || store.IsStateFile(e.Name) {
			continue
		}
		path := vfs.Join(dir, e.Name)
		if e.Dir {
			out = append(out, Entry{Name: e.Name, Path: path, Kind: KindDir})
			continue
		}
		if !s.shown(e.Name) {
			continue
		}
		out = append(out, Entry{Name: e.Name, Path: path, Kind: KindOf(path), Size: e.Size})
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].Kind == KindDir, out[j].Kind == KindDir
		if di != dj {
			return di
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}
