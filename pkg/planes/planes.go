// Package planes leases the pair of gray bit-plane buffers that both
// the image viewer and the book reader need for 2-bit rendering. The
// device cannot afford one pair per engine, so a single pair lives in
// a pool and is leased like the SD token: one lessee at a time, given
// back on mode exit.
package planes

import (
	"errors"
	"fmt"
)

// ErrLeased means the pair is already out. Transient, like
// arbiter.ErrBusy.
var ErrLeased = errors.New("plane buffers leased")

// Pool owns one LSB+MSB pair sized for the panel.
type Pool struct {
	planeBytes int
	lease      *Lease
}

// Lease is the borrowed pair. LSB and MSB hold one packed bit plane
// each, in panel orientation.
type Lease struct {
	LSB []byte
	MSB []byte

	pool *Pool
}

// NewPool allocates the pair for a planeBytes-sized panel plane.
func NewPool(planeBytes int) (*Pool, error) {
	if planeBytes <= 0 {
		return nil, fmt.Errorf("invalid plane size %d", planeBytes)
	}
	return &Pool{planeBytes: planeBytes}, nil
}

func (p *Pool) PlaneBytes() int {
	return p.planeBytes
}

// Acquire hands out the pair, zeroed.
func (p *Pool) Acquire() (*Lease, error) {
	if p.lease != nil {
		return nil, ErrLeased
	}
	l := &Lease{
		LSB:  make([]byte, p.planeBytes),
		MSB:  make([]byte, p.planeBytes),
		pool: p,
	}
	p.lease = l
	return l, nil
}

// Clear zeroes both planes without giving them back.
func (l *Lease) Clear() {
	for i := range l.LSB {
		l.LSB[i] = 0
	}
	for i := range l.MSB {
		l.MSB[i] = 0
	}
}

// Release returns the pair to the pool. Safe to call twice.
func (l *Lease) Release() {
	if l.pool == nil {
		return
	}
	if l.pool.lease == l {
		l.pool.lease = nil
	}
	l.pool = nil
	l.LSB = nil
	l.MSB = nil
}
