// Package arbiter hands out the single ownership token that guards the
// SD card and the display back buffer. The application is cooperatively
// scheduled, so the token is not a lock; it exists to turn two actors
// touching storage in the same tick into a detectable bug instead of a
// silent race.
package arbiter

import (
	"errors"
	"fmt"
)

// Owner identifies who may hold the token.
type Owner uint8

const (
	OwnerNone Owner = iota
	OwnerHome
	OwnerBrowser
	OwnerImageViewer
	OwnerBookReader
	OwnerSleep
	OwnerUsb
)

func (o Owner) String() string {
	switch o {
	case OwnerNone:
		return "none"
	case OwnerHome:
		return "home"
	case OwnerBrowser:
		return "browser"
	case OwnerImageViewer:
		return "image-viewer"
	case OwnerBookReader:
		return "book-reader"
	case OwnerSleep:
		return "sleep"
	case OwnerUsb:
		return "usb"
	}
	return "unknown"
}

// ErrBusy means another owner holds the token. Transient: retry on a
// later tick.
var ErrBusy = errors.New("resource busy")

// Token proves ownership. Only the arbiter constructs these.
type Token struct {
	owner Owner
	gen   uint64
}

func (t *Token) Owner() Owner {
	if t == nil {
		return OwnerNone
	}
	return t.owner
}

// Arbiter is the single instance guarding SD and display access.
type Arbiter struct {
	holder *Token
	gen    uint64
}

func New() *Arbiter {
	return &Arbiter{}
}

// Acquire grants the token to owner, or fails with ErrBusy if someone
// else holds it.
func (a *Arbiter) Acquire(owner Owner) (*Token, error) {
	if owner == OwnerNone {
		return nil, fmt.Errorf("cannot acquire for %s", owner)
	}
	if a.holder != nil {
		return nil, fmt.Errorf("%w (held by %s)", ErrBusy, a.holder.owner)
	}
	a.gen++
	a.holder = &Token{owner: owner, gen: a.gen}
	return a.holder, nil
}

// Release returns the token. Releasing a stale or foreign token is a
// programming error and panics.
func (a *Arbiter) Release(t *Token) {
	if t == nil {
		return
	}
	if a.holder == nil || a.holder.gen != t.gen {
		panic(fmt.Sprintf("release of stale token (owner %s)", t.owner))
	}
	a.holder = nil
}

// Holder reports who currently owns the token.
func (a *Arbiter) Holder() Owner {
	return a.holder.Owner()
}

// Check verifies t is the live token, for use at I/O entry points.
func (a *Arbiter) Check(t *Token) error {
	if t == nil || a.holder == nil || a.holder.gen != t.gen {
		return fmt.Errorf("stale resource token")
	}
	return nil
}
