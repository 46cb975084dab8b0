package app

import (
	"log/slog"

	"github.com/ternreader/tern/pkg/display"
	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/render"
	"github.com/ternreader/tern/pkg/ui"
)

type sleepStage uint8

const (
	stageAwake sleepStage = iota
	stageEntering
	stageSleeping
	stageWaking
)

// sleepController tracks where the device is along the sleep/wake
// cycle. Stage changes happen in the tick; the panel work happens in
// the render pass so the wallpaper and the restored screen go through
// the ordinary draw path.
type sleepController struct {
	stage sleepStage
}

// tickSleep advances the sleep state machine. Returns true when the
// device is not awake, in which case the per-mode tick is skipped.
// The caller guarantees this is never reached while a transfer
// session is active.
func (a *App) tickSleep(elapsedMs int) bool {
	s := &a.sleep
	switch s.stage {
	case stageAwake:
		if a.in.Pressed(input.Power) || (a.cfg.IdleTimeoutMs > 0 && a.idleMs >= a.cfg.IdleTimeoutMs) {
			slog.Info("Entering sleep", "idleMs", a.idleMs)
			s.stage = stageEntering
			a.markDirty()
			return true
		}
		return false
	case stageSleeping:
		if a.in.Pressed(input.Power) {
			slog.Info("Waking")
			s.stage = stageWaking
			a.markDirty()
		}
		return true
	default:
		// Entering and Waking resolve in the render pass.
		return true
	}
}

// renderSleepEntry draws the wallpaper, pushes it with a full refresh,
// persists state and powers the panel down.
func (a *App) renderSleepEntry() error {
	a.drawWallpaper(a.buf)
	var err error
	if a.mode == ModeImageViewer && a.image.gray {
		err = a.disp.FlushGray(a.buf.Back(), a.image.lease.LSB, a.image.lease.MSB)
	} else {
		err = a.disp.Flush(a.buf.Back(), display.Full)
	}
	if err != nil {
		return err
	}
	a.buf.Swap()
	if err := a.st.Flush(); err != nil {
		slog.Warn("State flush on sleep failed", "err", err)
	}
	if err := a.disp.Sleep(); err != nil {
		return err
	}
	a.sleep.stage = stageSleeping
	a.dirty = false
	return nil
}

// renderWake powers the panel back up and restores the screen the
// device slept on.
func (a *App) renderWake() error {
	if err := a.disp.Wake(); err != nil {
		return err
	}
	a.sleep.stage = stageAwake
	a.idleMs = 0
	if a.mode == ModeImageViewer && a.cfg.WakeRestoreOnly {
		// The panel keeps its contents through sleep; restoring the
		// pre-wallpaper frame avoids a full redraw of a large image.
		a.buf.Restore()
		if err := a.disp.Flush(a.buf.Back(), display.Restore); err != nil {
			return err
		}
		a.buf.Swap()
		a.dirty = false
		return nil
	}
	// Books and menus redraw from scratch with a full refresh.
	a.markDirty()
	return a.renderFrame(true)
}

// drawWallpaper composes the sleep screen: the open image, else the
// open book's cover, else the newest recent's thumbnail, else the
// device logo.
func (a *App) drawWallpaper(buf *fb.Buffer) {
	switch a.mode {
	case ModeImageViewer:
		if a.image.res != nil {
			a.image.draw(a, buf)
			return
		}
	case ModeBookReader:
		if a.book.res != nil {
			if cover := a.src.Cover(a.book.res); cover != nil {
				buf.Clear()
				bw, bh := buf.Size()
				sw, sh := cover.Source().Size()
				render.DrawDithered(buf, cover.Source(), render.FitRect(sw, sh, bw, bh, render.Contain))
				cover.Close()
				return
			}
		}
	}
	if rec := a.st.Recents(); len(rec) > 0 {
		if th, ok := a.st.Thumb(rec[0]); ok {
			buf.Clear()
			bw, bh := buf.Size()
			sw, sh := th.Size()
			render.DrawMono(buf, th, render.FitRect(sw, sh, bw, bh, render.Contain))
			return
		}
	}
	buf.Clear()
	ui.Logo(buf, "tern", a.version)
}
