package app

import (
	"image"
	"log/slog"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/planes"
	"github.com/ternreader/tern/pkg/render"
	"github.com/ternreader/tern/pkg/source"
	"github.com/ternreader/tern/pkg/store"
	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/vfs"
)

// imageEngine shows one TRIM picture. Gray pictures borrow the plane
// pair; pictures too large for RAM stay on the card behind a
// scanline stream.
type imageEngine struct {
	res   *source.ImageResource
	lease *planes.Lease
	fit   render.FitMode
	gray  bool
}

func (e *imageEngine) open(a *App, path string) error {
	res, err := a.src.OpenImage(path)
	if err != nil {
		return err
	}
	e.res = res
	e.fit = a.cfg.Fit()
	e.gray = false
	if trim.Format(res.Header.Format) == trim.Gray2 {
		lease, err := a.pool.Acquire()
		if err != nil {
			// Transient: render dithered mono this time around.
			slog.Warn("Gray planes unavailable, dithering", "err", err)
		} else {
			e.lease = lease
		}
	}
	a.st.SetResume(path)
	a.touchRecent(path, res.Source(), vfs.Base(path))
	return nil
}

func (e *imageEngine) close(a *App) {
	if e.res == nil {
		return
	}
	if err := e.res.Close(); err != nil {
		slog.Warn("Image close failed", "err", err)
	}
	e.res = nil
	if e.lease != nil {
		e.lease.Release()
		e.lease = nil
	}
	a.st.SetResume(store.ResumeHome)
}

func (a *App) tickImage() {
	e := &a.image
	if e.res == nil {
		a.goHome()
		return
	}
	switch {
	case a.in.Pressed(input.Back):
		a.goHome()
	case a.in.Pressed(input.Confirm):
		// Cycle through the fit policies in place.
		e.fit = render.FitMode((uint8(e.fit) + 1) % 5)
		a.markDirty()
	}
}

func (e *imageEngine) draw(a *App, buf *fb.Buffer) {
	buf.Clear()
	e.gray = false
	if e.res == nil {
		return
	}
	bw, bh := buf.Size()
	sw, sh := e.res.Source().Size()

	if e.res.Streaming() {
		// Streams compose unscaled; center and clip.
		if e.lease == nil {
			render.DrawDithered(buf, e.res.Source(), image.Rect((bw-sw)/2, (bh-sh)/2, (bw+sw)/2, (bh+sh)/2))
			return
		}
		e.lease.Clear()
		origin := image.Pt((bw-sw)/2, (bh-sh)/2)
		if err := render.StreamGray(buf, e.lease, e.res.Stream, origin); err != nil {
			slog.Warn("Gray stream failed", "path", e.res.Path, "err", err)
			return
		}
		e.gray = true
		return
	}

	dst := render.FitRect(sw, sh, bw, bh, e.fit)
	switch {
	case trim.Format(e.res.Header.Format) == trim.Mono1:
		render.DrawMono(buf, e.res.Source(), dst)
	case e.lease != nil:
		e.lease.Clear()
		render.DrawGray(buf, e.lease, e.res.Source(), dst)
		e.gray = true
	default:
		render.DrawDithered(buf, e.res.Source(), dst)
	}
}
