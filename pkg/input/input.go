// Package input models the reader's physical controls: six face buttons
// and the power switch. Platform sources (evdev on hardware, the
// simulator's keymap) deliver transitions, and State turns them into
// per-tick press edges for the application loop.
package input

type Button uint8

const (
	Up Button = iota
	Down
	Left
	Right
	Confirm
	Back
	Power

	numButtons
)

func (b Button) String() string {
	switch b {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case Confirm:
		return "confirm"
	case Back:
		return "back"
	case Power:
		return "power"
	}
	return "unknown"
}

// Event is a single button transition.
type Event struct {
	Button Button
	Down   bool
}

// Source delivers pending button transitions. Poll must not block; an
// empty slice means no new input this tick.
type Source interface {
	Poll() ([]Event, error)
	Close() error
}

// State folds transitions into levels and press edges. Owned by the
// tick loop, not safe for concurrent use.
type State struct {
	down    [numButtons]bool
	pressed [numButtons]bool
}

// Feed applies transitions. A down transition on a button that was up
// records a press edge which sticks until Reset.
func (s *State) Feed(evs []Event) {
	for _, ev := range evs {
		if ev.Button >= numButtons {
			continue
		}
		if ev.Down && !s.down[ev.Button] {
			s.pressed[ev.Button] = true
		}
		s.down[ev.Button] = ev.Down
	}
}

// Pressed reports whether b saw a press edge since the last Reset.
func (s *State) Pressed(b Button) bool {
	if b >= numButtons {
		return false
	}
	return s.pressed[b]
}

// Down reports the current level of b.
func (s *State) Down(b Button) bool {
	if b >= numButtons {
		return false
	}
	return s.down[b]
}

// Any reports whether any button saw a press edge since the last Reset.
func (s *State) Any() bool {
	for _, p := range s.pressed {
		if p {
			return true
		}
	}
	return false
}

// Reset clears press edges at the end of a tick. Levels persist.
func (s *State) Reset() {
	for i := range s.pressed {
		s.pressed[i] = false
	}
}
