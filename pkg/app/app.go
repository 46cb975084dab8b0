// Package app is the reader's application core: a cooperative,
// single-threaded coordinator that arbitrates between the operating
// modes (start menu, file browser, image viewer, book reader, sleep,
// USB transfer), owns the shared card and display resources, tracks
// render dirtiness and persists resume state across power cycles.
//
// One tick processes at most one input edge per button plus any
// pending continuation work (book prefetch, queued USB response
// chunks); nothing blocks the loop. Engines never touch storage
// without the arbiter token held by the coordinator for their mode.
package app

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/ternreader/tern/pkg/arbiter"
	"github.com/ternreader/tern/pkg/display"
	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/planes"
	"github.com/ternreader/tern/pkg/source"
	"github.com/ternreader/tern/pkg/store"
	"github.com/ternreader/tern/pkg/vfs"
)

// Mode is the top-level state tag. Exactly one is active.
type Mode uint8

const (
	ModeHome Mode = iota
	ModeBrowser
	ModeImageViewer
	ModeBookReader
	ModeSleeping
)

func (m Mode) String() string {
	switch m {
	case ModeHome:
		return "home"
	case ModeBrowser:
		return "browser"
	case ModeImageViewer:
		return "image-viewer"
	case ModeBookReader:
		return "book-reader"
	case ModeSleeping:
		return "sleeping"
	}
	return "unknown"
}

func (m Mode) owner() arbiter.Owner {
	switch m {
	case ModeHome:
		return arbiter.OwnerHome
	case ModeBrowser:
		return arbiter.OwnerBrowser
	case ModeImageViewer:
		return arbiter.OwnerImageViewer
	case ModeBookReader:
		return arbiter.OwnerBookReader
	case ModeSleeping:
		return arbiter.OwnerSleep
	}
	return arbiter.OwnerNone
}

// PowerSource reports battery charge. Hardware reads sysfs, the
// simulator makes numbers up.
type PowerSource interface {
	BatteryPercent() (int, bool)
}

const batteryPollMs = 30000

// App is the coordinator. Not safe for concurrent use; everything
// runs on the tick loop's goroutine.
type App struct {
	cfg     Config
	disp    display.Display
	buf     *fb.Buffer
	src     *source.Source
	st      *store.Store
	arb     *arbiter.Arbiter
	pool    *planes.Pool
	power   PowerSource
	version string

	in input.State

	mode  Mode
	token *arbiter.Token

	home    homeState
	browser browserState
	image   imageEngine
	book    bookEngine

	sleep sleepController
	usb   *UsbController

	overlay *overlayState
	dirty   bool

	idleMs int

	battery struct {
		pct     int
		known   bool
		agoMs   int
		primed  bool
	}
}

// New wires the coordinator. port may be nil when no serial transport
// exists (then USB transfer is unavailable).
func New(cfg Config, disp display.Display, fsys vfs.FS, port Port, power PowerSource, version string) (*App, error) {
	buf, err := fb.New(cfg.Display.Width, cfg.Display.Height, cfg.Rotation())
	if err != nil {
		return nil, fmt.Errorf("could not allocate framebuffer: %w", err)
	}
	pool, err := planes.NewPool(buf.PlaneSize())
	if err != nil {
		return nil, err
	}
	// Gray payloads that would not fit next to the pool's pair get
	// streamed from the card instead of decoded.
	src, err := source.New(fsys, cfg.Filters, buf.PlaneSize()*3)
	if err != nil {
		return nil, err
	}
	a := App{
		cfg:     cfg,
		disp:    disp,
		buf:     buf,
		src:     src,
		st:      store.Load(fsys),
		arb:     arbiter.New(),
		pool:    pool,
		power:   power,
		version: version,
		dirty:   true,
	}
	if port != nil {
		a.usb = newUsbController(port, fsys, a.arb)
	}
	a.battery.agoMs = batteryPollMs
	return &a, nil
}

// Start restores the persisted resume target: the last open book or
// image, or the start menu. A failed reopen degrades to the start
// menu under an error overlay instead of wedging boot.
func (a *App) Start() {
	a.enterHome()
	resume := a.st.Resume()
	if resume == store.ResumeHome {
		return
	}
	var err error
	switch source.KindOf(resume) {
	case source.KindBook:
		err = a.transition(ModeBookReader, resume)
	case source.KindImage:
		err = a.transition(ModeImageViewer, resume)
	default:
		err = fmt.Errorf("unopenable resume target %s", resume)
	}
	if err != nil {
		slog.Warn("Could not restore resume target", "path", resume, "err", err)
		a.st.SetResume(store.ResumeHome)
		a.showError("Could not resume", err)
	}
}

// HandleInput feeds raw button transitions into the per-tick edge
// state. Any edge resets the idle clock.
func (a *App) HandleInput(evs []input.Event) {
	if len(evs) == 0 {
		return
	}
	a.in.Feed(evs)
	if a.in.Any() {
		a.idleMs = 0
	}
}

// Mode reports the active top-level state.
func (a *App) Mode() Mode {
	return a.mode
}

// RefreshLibrary reloads directory-derived UI after the card's
// contents changed underneath us (simulator file watcher, host
// tooling). Open books and images keep their handles.
func (a *App) RefreshLibrary() {
	switch a.mode {
	case ModeHome:
		a.home.refresh(a)
		a.markDirty()
	case ModeBrowser:
		if err := a.browser.load(a, a.browser.dir); err != nil {
			slog.Warn("Could not refresh library view", "err", err)
			return
		}
		a.markDirty()
	}
}

// Dirty reports whether a render pass is needed.
func (a *App) Dirty() bool {
	return a.dirty
}

func (a *App) markDirty() {
	a.dirty = true
}

// Tick advances the coordinator by elapsedMs. Routing priority: USB
// traffic preempts everything, then sleep/wake, then the active mode.
func (a *App) Tick(elapsedMs int) {
	defer a.in.Reset()

	usbActive := a.usb != nil && a.usb.State() == UsbActive
	if a.usb != nil {
		a.tickUsb(elapsedMs)
		// tickUsb may have ended or started a session.
		usbActive = a.usb.State() == UsbActive
	}

	// The idle clock is frozen during an active transfer session:
	// the host being busy is not the user being away.
	if !usbActive && a.sleep.stage == stageAwake {
		a.idleMs += elapsedMs
	}

	if a.usb != nil && a.usb.State() == UsbPrompt {
		a.tickUsbPrompt()
		return
	}
	if usbActive {
		// UI input is not forwarded while the host owns the card.
		return
	}

	if a.tickSleep(elapsedMs) {
		return
	}

	if a.overlay != nil {
		if a.in.Pressed(input.Back) || a.in.Pressed(input.Confirm) {
			a.overlay = nil
			a.markDirty()
		}
		return
	}

	switch a.mode {
	case ModeHome:
		a.tickHome()
	case ModeBrowser:
		a.tickBrowser()
	case ModeImageViewer:
		a.tickImage()
	case ModeBookReader:
		a.tickBook()
	}

	// Continuations: best-effort prefetch of the next book page.
	if a.mode == ModeBookReader {
		a.book.prefetch(a)
	}

	a.tickBattery(elapsedMs)
}

func (a *App) tickBattery(elapsedMs int) {
	if a.power == nil {
		return
	}
	a.battery.agoMs += elapsedMs
	if a.battery.agoMs < batteryPollMs && a.battery.primed {
		return
	}
	a.battery.agoMs = 0
	pct, known := a.power.BatteryPercent()
	if pct != a.battery.pct || known != a.battery.known || !a.battery.primed {
		a.battery.pct = pct
		a.battery.known = known
		if a.mode == ModeHome {
			a.markDirty()
		}
	}
	a.battery.primed = true
}

func (a *App) batteryLabel() string {
	if !a.battery.known {
		return "--%"
	}
	return fmt.Sprintf("%d%%", a.battery.pct)
}

// transition switches to mode, opening path where the mode takes one.
// The outgoing engine is fully closed first: persistence flushed,
// resources and token released. On an open failure home and browser
// stay in place; a viewer or reader whose engine was already torn
// down falls back to the start menu.
func (a *App) transition(to Mode, path string) error {
	tore := false
	tok, err := a.arb.Acquire(to.owner())
	if err != nil {
		// Current holder must release first.
		a.releaseCurrent()
		tore = true
		tok, err = a.arb.Acquire(to.owner())
		if err != nil {
			return err
		}
	}

	var openErr error
	switch to {
	case ModeHome:
		openErr = a.home.open(a)
	case ModeBrowser:
		openErr = a.browser.open(a, path)
	case ModeImageViewer:
		openErr = a.image.open(a, path)
	case ModeBookReader:
		openErr = a.book.open(a, path)
	}
	if openErr != nil {
		a.arb.Release(tok)
		if !tore {
			return openErr
		}
		switch a.mode {
		case ModeImageViewer, ModeBookReader:
			// The outgoing engine was already closed and cannot be
			// resumed; fall back to the start menu.
			a.enterHome()
		default:
			// Home/browser state survived; only the token needs
			// restoring.
			a.reopenCurrent()
		}
		return openErr
	}

	a.closeCurrentEngine()
	a.token = tok
	a.mode = to
	a.markDirty()
	return nil
}

// releaseCurrent closes the active engine and releases the token,
// flushing dirty persistence on the way out.
func (a *App) releaseCurrent() {
	a.closeCurrentEngine()
	if a.token != nil {
		a.arb.Release(a.token)
		a.token = nil
	}
	if a.st.Dirty() {
		if err := a.st.Flush(); err != nil {
			slog.Warn("State flush failed on mode exit", "err", err)
		}
	}
}

func (a *App) closeCurrentEngine() {
	switch a.mode {
	case ModeImageViewer:
		a.image.close(a)
	case ModeBookReader:
		a.book.close(a)
	}
}

// reopenCurrent re-acquires the token for the current mode after a
// failed transition released it.
func (a *App) reopenCurrent() {
	tok, err := a.arb.Acquire(a.mode.owner())
	if err != nil {
		slog.Error("Could not re-acquire token", "mode", a.mode, "err", err)
		return
	}
	a.token = tok
}

// enterHome is the boot path: nothing to close yet.
func (a *App) enterHome() {
	tok, err := a.arb.Acquire(arbiter.OwnerHome)
	if err == nil {
		a.token = tok
	}
	a.mode = ModeHome
	if err := a.home.open(a); err != nil {
		slog.Warn("Could not open start menu", "err", err)
	}
	a.markDirty()
}

// openMedia routes a confirmed library entry to the right mode.
func (a *App) openMedia(path string) {
	var err error
	switch source.KindOf(path) {
	case source.KindImage:
		err = a.transition(ModeImageViewer, path)
	case source.KindBook:
		err = a.transition(ModeBookReader, path)
	case source.KindEpub:
		err = source.ErrMustConvert
	default:
		err = fmt.Errorf("cannot open %s", vfs.Base(path))
	}
	if err != nil {
		a.showError("Could not open", err)
	}
}

func (a *App) showError(title string, err error) {
	slog.Warn("Error overlay", "title", title, "err", err)
	a.overlay = newOverlay(title, err)
	a.markDirty()
}

// goHome returns to the start menu; failures here are terminal for
// the mode switch, so they only log.
func (a *App) goHome() {
	if err := a.transition(ModeHome, ""); err != nil {
		slog.Error("Could not return to start menu", "err", err)
	}
}

// Close shuts the coordinator down, flushing state.
func (a *App) Close() error {
	var errs *multierror.Error
	a.releaseCurrent()
	if a.usb != nil {
		if err := a.usb.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
