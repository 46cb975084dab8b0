// Package store persists the reader's small state onto the card:
// the resume target, per-book page positions, the recents list, and
// the thumbnail cache. Everything is plain files at the media root so
// a host mounting the card can inspect or delete them; every write
// goes through the filesystem's atomic replace so a power cut never
// leaves a half-written state file.
//
// State is dirty-flagged per file and flushed on demand: engines mark
// positions on every page turn, the coordinator flushes on mode exit
// and before sleep.
package store

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/exp/maps"

	"github.com/ternreader/tern/pkg/vfs"
)

const (
	resumeFile  = "/TRRESUME"
	booksFile   = "/TRBOOKS"
	recentsFile = "/TRRECENT"

	// ResumeHome is the resume sentinel meaning nothing was open.
	ResumeHome = "HOME"

	// RecentsCap bounds the MRU list.
	RecentsCap = 10
)

// IsStateFile reports whether name is one of ours, so the browser can
// hide it.
func IsStateFile(name string) bool {
	switch name {
	case "TRRESUME", "TRBOOKS", "TRRECENT", thumbDir:
		return true
	}
	return false
}

// Store is the loaded state plus its backing filesystem.
type Store struct {
	fs vfs.FS

	resume  string
	books   map[string]int
	recents []string

	dirtyResume  bool
	dirtyBooks   bool
	dirtyRecents bool
}

// Load reads all state files, tolerating their absence: a fresh card
// simply starts with empty state.
func Load(fsys vfs.FS) *Store {
	s := Store{
		fs:     fsys,
		resume: ResumeHome,
		books:  make(map[string]int),
	}
	if data, err := readAll(fsys, resumeFile); err == nil {
		if line := strings.TrimSpace(string(data)); line != "" {
			s.resume = line
		}
	}
	if data, err := readAll(fsys, booksFile); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			path, pageStr, ok := strings.Cut(sc.Text(), "\t")
			if !ok {
				continue
			}
			page, err := strconv.Atoi(pageStr)
			if err != nil || page < 0 {
				continue
			}
			s.books[path] = page
		}
	}
	if data, err := readAll(fsys, recentsFile); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				s.recents = append(s.recents, line)
			}
		}
		if len(s.recents) > RecentsCap {
			s.recents = s.recents[:RecentsCap]
		}
	}
	return &s
}

func readAll(fsys vfs.FS, path string) ([]byte, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Resume returns the path to reopen at startup, or ResumeHome.
func (s *Store) Resume() string {
	return s.resume
}

func (s *Store) SetResume(path string) {
	if path == "" {
		path = ResumeHome
	}
	if s.resume == path {
		return
	}
	s.resume = path
	s.dirtyResume = true
}

// BookPage returns the saved position for a book, 0 if none.
func (s *Store) BookPage(path string) int {
	return s.books[path]
}

func (s *Store) SetBookPage(path string, page int) {
	if s.books[path] == page {
		return
	}
	s.books[path] = page
	s.dirtyBooks = true
}

// Recents returns the MRU list, most recent first.
func (s *Store) Recents() []string {
	out := make([]string, len(s.recents))
	copy(out, s.recents)
	return out
}

// Touch moves path to the front of the recents, evicting beyond
// capacity.
func (s *Store) Touch(path string) {
	out := make([]string, 0, len(s.recents)+1)
	out = append(out, path)
	for _, p := range s.recents {
		if p != path {
			out = append(out, p)
		}
	}
	if len(out) > RecentsCap {
		out = out[:RecentsCap]
	}
	s.recents = out
	s.dirtyRecents = true
}

// Forget drops path from recents and its book position, for files
// deleted over USB.
func (s *Store) Forget(path string) {
	for i, p := range s.recents {
		if p == path {
			s.recents = append(s.recents[:i], s.recents[i+1:]...)
			s.dirtyRecents = true
			break
		}
	}
	if _, ok := s.books[path]; ok {
		delete(s.books, path)
		s.dirtyBooks = true
	}
}

// Dirty reports whether any state file needs flushing.
func (s *Store) Dirty() bool {
	return s.dirtyResume || s.dirtyBooks || s.dirtyRecents
}

// Flush writes all dirty state files. Independent failures are
// accumulated; a failed file stays dirty for the next attempt.
func (s *Store) Flush() error {
	var result *multierror.Error
	if s.dirtyResume {
		if err := s.fs.WriteFile(resumeFile, []byte(s.resume+"\n")); err != nil {
			result = multierror.Append(result, fmt.Errorf("resume: %w", err))
		} else {
			s.dirtyResume = false
		}
	}
	if s.dirtyBooks {
		var buf bytes.Buffer
		paths := maps.Keys(s.books)
		sort.Strings(paths)
		for _, p := range paths {
			fmt.Fprintf(&buf, "%s\t%d\n", p, s.books[p])
		}
		if err := s.fs.WriteFile(booksFile, buf.Bytes()); err != nil {
			result = multierror.Append(result, fmt.Errorf("book positions: %w", err))
		} else {
			s.dirtyBooks = false
		}
	}
	if s.dirtyRecents {
		var buf bytes.Buffer
		for _, p := range s.recents {
			fmt.Fprintf(&buf, "%s\n", p)
		}
		if err := s.fs.WriteFile(recentsFile, buf.Bytes()); err != nil {
			result = multierror.Append(result, fmt.Errorf("recents: %w", err))
		} else {
			s.dirtyRecents = false
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		slog.Warn("State flush incomplete", "err", err)
		return err
	}
	return nil
}
