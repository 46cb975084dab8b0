// Package display defines the panel contract the application draws
// against: a packed monochrome plane flush with a refresh mode, plus an
// absolute grayscale flush for image viewing. Hardware lives in
// pkg/platform/epd, the simulator in pkg/sim.
package display

type RefreshMode uint8

const (
	// Full is the flashing refresh that clears ghosting.
	Full RefreshMode = iota
	// Partial is the fast update used for page turns and menus.
	Partial
	// Restore repaints the panel after wake without an inverting
	// flash, for content that is already on screen.
	Restore
)

func (m RefreshMode) String() string {
	switch m {
	case Full:
		return "full"
	case Partial:
		return "partial"
	case Restore:
		return "restore"
	}
	return "unknown"
}

type Display interface {
	// Size returns the panel dimensions in pixels.
	Size() (int, int)
	// Flush pushes a packed 1-bit plane in panel orientation. Set
	// bits are ink.
	Flush(plane []byte, mode RefreshMode) error
	// FlushGray pushes a 2-bit image as three packed planes: base
	// ink, gray low bit, gray high bit. Implementations without
	// grayscale waveforms may approximate with the base plane.
	FlushGray(bw, lsb, msb []byte) error
	// Sleep puts the panel controller into deep sleep. Wake
	// reinitializes it; the next Flush should use Restore or Full.
	Sleep() error
	Wake() error
}
