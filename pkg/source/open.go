package source

import (
	"fmt"
	"io"

	"github.com/ternreader/tern/pkg/trbk"
	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/vfs"
)

// ImageResource is an opened TRIM file: either fully decoded (Img) or,
// for Gray2 payloads past the stream threshold, left on storage behind
// a scanline stream. Close releases the underlying file; the engine
// owning the mode does that on exit.
type ImageResource struct {
	Path   string
	Header trim.Header
	Img    *trim.Image
	Stream *trim.Stream

	f vfs.File
}

func (r *ImageResource) Streaming() bool {
	return r.Stream != nil
}

// Source returns the luma raster regardless of representation.
func (r *ImageResource) Source() trim.LumaSource {
	if r.Img != nil {
		return r.Img
	}
	return r.Stream
}

func (r *ImageResource) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// OpenImage opens and validates a TRIM file. The payload length is
// checked against the file size up front so a truncated file fails
// here, not mid-render. EPUBs get ErrMustConvert.
func (s *Source) OpenImage(path string) (*ImageResource, error) {
	switch KindOf(path) {
	case KindEpub:
		return nil, ErrMustConvert
	case KindImage:
	default:
		return nil, fmt.Errorf("not an image file: %s", vfs.Base(path))
	}
	st, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", vfs.Base(path), err)
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", vfs.Base(path), err)
	}
	hdr, err := trim.ParseHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", vfs.Base(path), err)
	}
	if want := int64(trim.HeaderSize + hdr.PayloadSize()); st.Size < want {
		f.Close()
		return nil, fmt.Errorf("%s: truncated payload (%d of %d bytes)", vfs.Base(path), st.Size, want)
	}
	res := ImageResource{Path: path, Header: *hdr, f: f}
	if trim.Format(hdr.Format) == trim.Gray2 && s.streamBytes > 0 && hdr.PayloadSize() >= s.streamBytes {
		stream, err := trim.NewStream(f, trim.HeaderSize, int(hdr.Width), int(hdr.Height))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", vfs.Base(path), err)
		}
		res.Stream = stream
		return &res, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not rewind %s: %w", vfs.Base(path), err)
	}
	img, err := trim.Parse(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", vfs.Base(path), err)
	}
	res.Img = img
	f.Close()
	res.f = nil
	return &res, nil
}

// BookResource is an opened TRBK file. The file stays open for the
// life of the mode: pages and embedded images are read on demand.
type BookResource struct {
	Path string
	Book *trbk.Book

	f vfs.File
}

func (r *BookResource) Close() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// OpenBook opens and parses a TRBK file's structure.
func (s *Source) OpenBook(path string) (*BookResource, error) {
	switch KindOf(path) {
	case KindEpub:
		return nil, ErrMustConvert
	case KindBook:
	default:
		return nil, fmt.Errorf("not a book file: %s", vfs.Base(path))
	}
	st, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", vfs.Base(path), err)
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", vfs.Base(path), err)
	}
	book, err := trbk.Open(f, st.Size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", vfs.Base(path), err)
	}
	return &BookResource{Path: path, Book: book, f: f}, nil
}

// BookImage resolves an embedded image of an open book, streaming
// large Gray2 payloads the same way OpenImage does.
func (s *Source) BookImage(r *BookResource, idx int) (*ImageResource, error) {
	entry, sr, err := r.Book.Image(idx)
	if err != nil {
		return nil, err
	}
	hdr, err := trim.ParseHeader(sr)
	if err != nil {
		return nil, fmt.Errorf("embedded image %d: %w", idx, err)
	}
	if want := int64(trim.HeaderSize + hdr.PayloadSize()); int64(entry.Length) < want {
		return nil, fmt.Errorf("embedded image %d: truncated payload (%d of %d bytes)", idx, entry.Length, want)
	}
	res := ImageResource{Path: fmt.Sprintf("%s#%d", r.Path, idx), Header: *hdr}
	if trim.Format(hdr.Format) == trim.Gray2 && s.streamBytes > 0 && hdr.PayloadSize() >= s.streamBytes {
		stream, err := trim.NewStream(sr, trim.HeaderSize, int(hdr.Width), int(hdr.Height))
		if err != nil {
			return nil, fmt.Errorf("embedded image %d: %w", idx, err)
		}
		res.Stream = stream
		return &res, nil
	}
	if _, err := sr.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, err := trim.Parse(sr)
	if err != nil {
		return nil, fmt.Errorf("embedded image %d: %w", idx, err)
	}
	res.Img = img
	return &res, nil
}

// Cover returns a book's cover art (embedded image 0), or nil when
// the book has none.
func (s *Source) Cover(r *BookResource) *ImageResource {
	if r.Book.ImageCount() == 0 {
		return nil
	}
	res, err := s.BookImage(r, 0)
	if err != nil {
		return nil
	}
	return res
}
