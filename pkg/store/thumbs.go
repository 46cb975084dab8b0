package store

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/vfs"
)

const thumbDir = "TRCACHE"

// thumbKey is a 24-bit FNV-1a of the media path, printed as six hex
// digits to stay inside 8.3 filename land.
func thumbKey(path string) string {
	h := fnv.New32a()
	h.Write([]byte(path))
	return fmt.Sprintf("%06X", h.Sum32()&0xFFFFFF)
}

func thumbPath(path string) string {
	return "/" + thumbDir + "/TH" + thumbKey(path) + ".TRI"
}

func titlePath(path string) string {
	return "/" + thumbDir + "/TT" + thumbKey(path) + ".TXT"
}

// Thumb loads the cached thumbnail for a media path, if present.
func (s *Store) Thumb(path string) (*trim.Image, bool) {
	f, err := s.fs.Open(thumbPath(path))
	if err != nil {
		return nil, false
	}
	defer f.Close()
	img, err := trim.Parse(f)
	if err != nil {
		slog.Warn("Corrupt thumbnail dropped", "path", path, "err", err)
		s.fs.Remove(thumbPath(path))
		return nil, false
	}
	return img, true
}

// Title loads the cached display title for a media path, falling back
// to the filename.
func (s *Store) Title(path string) string {
	if data, err := readAll(s.fs, titlePath(path)); err == nil {
		if t := strings.TrimSpace(string(data)); t != "" {
			return t
		}
	}
	return vfs.Base(path)
}

// PutThumb caches a thumbnail and title for a media path. Best
// effort: the cache directory is created on demand and failures are
// only logged, a missing thumbnail just renders as a placeholder.
func (s *Store) PutThumb(path string, img *trim.Image, title string) {
	raw, err := img.Serialize()
	if err != nil {
		slog.Warn("Could not serialize thumbnail", "path", path, "err", err)
		return
	}
	if err := s.fs.WriteFile(thumbPath(path), raw); err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			if err := s.fs.Mkdir("/" + thumbDir); err != nil {
				slog.Warn("Could not create thumbnail cache", "err", err)
				return
			}
			err = s.fs.WriteFile(thumbPath(path), raw)
		}
		if err != nil {
			slog.Warn("Could not write thumbnail", "path", path, "err", err)
			return
		}
	}
	if title != "" {
		if err := s.fs.WriteFile(titlePath(path), []byte(title+"\n")); err != nil {
			slog.Warn("Could not write title sidecar", "path", path, "err", err)
		}
	}
}
