package platform

import (
	"fmt"
	"log/slog"

	evdev "github.com/holoplot/go-evdev"

	"github.com/ternreader/tern/pkg/input"
)

// defaultKeymap maps evdev key codes to buttons. Overridable from
// the config's [input.keymap] table.
var defaultKeymap = map[evdev.EvCode]input.Button{
	evdev.KEY_UP:    input.Up,
	evdev.KEY_DOWN:  input.Down,
	evdev.KEY_LEFT:  input.Left,
	evdev.KEY_RIGHT: input.Right,
	evdev.KEY_ENTER: input.Confirm,
	evdev.KEY_ESC:   input.Back,
	evdev.KEY_POWER: input.Power,
}

// keyNames resolves the config's key names for keymap overrides.
var keyNames = map[string]evdev.EvCode{
	"up":    evdev.KEY_UP,
	"down":  evdev.KEY_DOWN,
	"left":  evdev.KEY_LEFT,
	"right": evdev.KEY_RIGHT,
	"enter": evdev.KEY_ENTER,
	"esc":   evdev.KEY_ESC,
	"power": evdev.KEY_POWER,
	"home":  evdev.KEY_HOME,
	"back":  evdev.KEY_BACK,
	"ok":    evdev.KEY_OK,
}

var buttonNames = map[string]input.Button{
	"up":      input.Up,
	"down":    input.Down,
	"left":    input.Left,
	"right":   input.Right,
	"confirm": input.Confirm,
	"back":    input.Back,
	"power":   input.Power,
}

// Buttons reads the reader's keys from an evdev device. Implements
// input.Source; events are pumped on an internal goroutine since
// evdev reads block.
type Buttons struct {
	dev    *evdev.InputDevice
	keymap map[evdev.EvCode]input.Button
	events chan input.Event
	done   chan struct{}
}

// OpenButtons opens the evdev node at path and grabs it. keymap
// entries (key name to button name) override the defaults.
func OpenButtons(path string, keymap map[string]string) (*Buttons, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open input device %q: %w", path, err)
	}
	if err := dev.Grab(); err != nil {
		slog.Warn("Could not grab input device", "path", path, "err", err)
	}

	km := make(map[evdev.EvCode]input.Button, len(defaultKeymap))
	for k, v := range defaultKeymap {
		km[k] = v
	}
	for key, btn := range keymap {
		code, ok := keyNames[key]
		if !ok {
			dev.Ungrab()
			return nil, fmt.Errorf("unknown key name %q in keymap", key)
		}
		b, ok := buttonNames[btn]
		if !ok {
			dev.Ungrab()
			return nil, fmt.Errorf("unknown button name %q in keymap", btn)
		}
		km[code] = b
	}

	b := &Buttons{
		dev:    dev,
		keymap: km,
		events: make(chan input.Event, 64),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *Buttons) pump() {
	defer close(b.events)
	for {
		select {
		case <-b.done:
			return
		default:
		}
		ev, err := b.dev.ReadOne()
		if err != nil {
			slog.Warn("Input read failed", "err", err)
			return
		}
		if ev.Type != evdev.EV_KEY || ev.Value > 1 {
			// Value 2 is autorepeat; edges come from 0 and 1.
			continue
		}
		btn, ok := b.keymap[ev.Code]
		if !ok {
			continue
		}
		select {
		case b.events <- input.Event{Button: btn, Down: ev.Value == 1}:
		default:
			slog.Warn("Input queue overflow, dropping event")
		}
	}
}

// Poll drains queued transitions without blocking.
func (b *Buttons) Poll() ([]input.Event, error) {
	var out []input.Event
	for {
		select {
		case ev, ok := <-b.events:
			if !ok {
				return out, fmt.Errorf("input device gone")
			}
			out = append(out, ev)
		default:
			return out, nil
		}
	}
}

func (b *Buttons) Close() error {
	close(b.done)
	b.dev.Ungrab()
	return b.dev.Close()
}
