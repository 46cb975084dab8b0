package app

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/planes"
	"github.com/ternreader/tern/pkg/render"
	"github.com/ternreader/tern/pkg/source"
	"github.com/ternreader/tern/pkg/store"
	"github.com/ternreader/tern/pkg/trbk"
	"github.com/ternreader/tern/pkg/trim"
	"github.com/ternreader/tern/pkg/ui"
	"github.com/ternreader/tern/pkg/vfs"
)

// fullRefreshEvery forces a full panel refresh after this many page
// turns to clear accumulated ghosting.
const fullRefreshEvery = 10

type bookEngine struct {
	res   *source.BookResource
	lease *planes.Lease

	current    int
	cachedPage int
	cachedOps  []trbk.Op

	// Next-page ops decoded ahead of time, one page per tick, so a
	// forward turn usually draws without touching the card.
	// prefetched is -1 when nothing is staged, otherwise current+1.
	prefetched     int
	prefetchedOps  []trbk.Op
	prefetchFailed bool

	turns int
	gray  bool

	inToc bool
	toc   ui.List
}

func (e *bookEngine) open(a *App, path string) error {
	res, err := a.src.OpenBook(path)
	if err != nil {
		return err
	}
	e.res = res
	e.cachedPage = -1
	e.cachedOps = nil
	e.prefetched = -1
	e.prefetchedOps = nil
	e.prefetchFailed = false
	e.turns = 0
	e.inToc = false
	e.gray = false

	pc := res.Book.PageCount()
	e.current = a.st.BookPage(path)
	if e.current < 0 {
		e.current = 0
	}
	if pc > 0 && e.current >= pc {
		e.current = pc - 1
	}

	lease, err := a.pool.Acquire()
	if err != nil {
		slog.Warn("Gray planes unavailable, book renders mono", "err", err)
	} else {
		e.lease = lease
	}

	a.st.SetResume(path)
	a.st.SetBookPage(path, e.current)

	title := res.Book.Meta.Title
	if title == "" {
		title = vfs.Base(path)
	}
	if cover := a.src.Cover(res); cover != nil {
		a.touchRecent(path, cover.Source(), title)
		cover.Close()
	} else {
		a.touchRecent(path, nil, title)
	}
	return nil
}

func (e *bookEngine) close(a *App) {
	if e.res == nil {
		return
	}
	a.st.SetBookPage(e.res.Path, e.current)
	a.st.SetResume(store.ResumeHome)
	if err := e.res.Close(); err != nil {
		slog.Warn("Book close failed", "err", err)
	}
	e.res = nil
	if e.lease != nil {
		e.lease.Release()
		e.lease = nil
	}
	e.cachedOps = nil
	e.prefetchedOps = nil
}

// goTo moves to page n, clamped to the book's range. Returns true if
// the current page changed.
func (e *bookEngine) goTo(a *App, n int) bool {
	pc := e.res.Book.PageCount()
	if n < 0 {
		n = 0
	}
	if n >= pc {
		n = pc - 1
	}
	if n == e.current || n < 0 {
		return false
	}
	e.current = n
	e.turns++
	if e.prefetched == n {
		e.cachedPage = n
		e.cachedOps = e.prefetchedOps
	}
	e.prefetched = -1
	e.prefetchedOps = nil
	e.prefetchFailed = false
	a.st.SetBookPage(e.res.Path, n)
	a.markDirty()
	return true
}

// prefetch decodes the page after the current one. Runs from the tick
// loop only after the current page has been rendered.
func (e *bookEngine) prefetch(a *App) {
	if e.res == nil || a.dirty || e.prefetched >= 0 || e.prefetchFailed {
		return
	}
	next := e.current + 1
	if next >= e.res.Book.PageCount() {
		return
	}
	ops, err := e.res.Book.Page(next)
	if err != nil {
		slog.Warn("Page prefetch failed", "page", next, "err", err)
		// Latched until the next turn so a bad page is not re-read
		// every tick.
		e.prefetchFailed = true
		return
	}
	e.prefetched = next
	e.prefetchedOps = ops
}

func (a *App) tickBook() {
	e := &a.book
	if e.res == nil {
		a.goHome()
		return
	}
	if e.inToc {
		switch {
		case a.in.Pressed(input.Up):
			if e.toc.Up() {
				a.markDirty()
			}
		case a.in.Pressed(input.Down):
			if e.toc.Down() {
				a.markDirty()
			}
		case a.in.Pressed(input.Confirm):
			sel := e.toc.Selected()
			e.inToc = false
			if sel >= 0 && sel < len(e.res.Book.Toc) {
				e.goTo(a, int(e.res.Book.Toc[sel].PageIndex))
			}
			a.markDirty()
		case a.in.Pressed(input.Back):
			e.inToc = false
			a.markDirty()
		}
		return
	}
	switch {
	case a.in.Pressed(input.Right) || a.in.Pressed(input.Down):
		e.goTo(a, e.current+1)
	case a.in.Pressed(input.Left) || a.in.Pressed(input.Up):
		e.goTo(a, e.current-1)
	case a.in.Pressed(input.Confirm):
		if len(e.res.Book.Toc) == 0 {
			return
		}
		items := make([]string, len(e.res.Book.Toc))
		for i, t := range e.res.Book.Toc {
			pad := int(t.Level)
			if pad > 3 {
				pad = 3
			}
			items[i] = fmt.Sprintf("%*s%s", pad*2, "", t.Title)
		}
		e.toc.Title = "Contents"
		e.toc.SetItems(items)
		e.toc.Select(e.res.Book.TocSelection(e.current))
		e.inToc = true
		a.markDirty()
	case a.in.Pressed(input.Back):
		a.goHome()
	}
}

// refreshMode picks a full refresh on every tenth turn, partial
// otherwise.
func (e *bookEngine) refreshMode() bool {
	return e.turns > 0 && e.turns%fullRefreshEvery == 0
}

func (e *bookEngine) draw(a *App, buf *fb.Buffer) {
	buf.Clear()
	e.gray = false
	if e.res == nil {
		return
	}
	if e.inToc {
		e.toc.Draw(buf)
		return
	}
	if e.lease != nil {
		e.lease.Clear()
	}

	ops := e.cachedOps
	if e.cachedPage != e.current {
		var err error
		ops, err = e.res.Book.Page(e.current)
		if err != nil {
			slog.Warn("Page load failed", "page", e.current, "err", err)
			ui.Message(buf, "Read error", []string{err.Error()})
			return
		}
		e.cachedPage = e.current
		e.cachedOps = ops
	}

	for _, op := range ops {
		switch op := op.(type) {
		case *trbk.TextOp:
			e.drawText(buf, op)
		case *trbk.ImageOp:
			e.drawImage(a, buf, op)
		}
	}

	bw, bh := buf.Size()
	label := fmt.Sprintf("%d/%d", e.current+1, e.res.Book.PageCount())
	ui.DrawText(buf, bw-ui.TextWidth(label)-4, bh-ui.LineHeight, label, false)
}

func (e *bookEngine) drawText(buf *fb.Buffer, op *trbk.TextOp) {
	x, y := int(op.X), int(op.Y)
	for i, r := range op.Text {
		g := e.res.Book.Glyph(r, op.Style)
		if g == nil {
			// No prerendered glyph: finish the run in the builtin face.
			ui.DrawText(buf, x, y, op.Text[i:], op.Style&trbk.StyleBold != 0)
			return
		}
		render.DrawGlyph(buf, e.lease, g, x, y)
		if e.lease != nil && len(g.LSB) > 0 {
			e.gray = true
		}
		x += render.GlyphAdvance(g)
	}
}

func (e *bookEngine) drawImage(a *App, buf *fb.Buffer, op *trbk.ImageOp) {
	res, err := a.src.BookImage(e.res, int(op.Index))
	if err != nil {
		slog.Warn("Book image load failed", "index", op.Index, "err", err)
		return
	}
	defer res.Close()

	dst := image.Rect(int(op.X), int(op.Y), int(op.X)+int(op.Width), int(op.Y)+int(op.Height))
	sw, sh := res.Source().Size()

	if res.Streaming() {
		if e.lease == nil || sw != dst.Dx() || sh != dst.Dy() {
			render.DrawDithered(buf, res.Source(), dst)
			return
		}
		if err := render.StreamGray(buf, e.lease, res.Stream, dst.Min); err != nil {
			slog.Warn("Gray stream failed", "index", op.Index, "err", err)
			return
		}
		e.gray = true
		return
	}
	switch {
	case trim.Format(res.Header.Format) == trim.Mono1:
		render.DrawMono(buf, res.Source(), dst)
	case e.lease != nil:
		render.DrawGray(buf, e.lease, res.Source(), dst)
		e.gray = true
	default:
		render.DrawDithered(buf, res.Source(), dst)
	}
}
