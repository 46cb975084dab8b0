package arbiter

import (
	"errors"
	"testing"
)

func TestExclusive(t *testing.T) {
	a := New()
	tok, err := a.Acquire(OwnerBookReader)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := a.Acquire(OwnerUsb); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire: wanted ErrBusy, got %v", err)
	}
	if got := a.Holder(); got != OwnerBookReader {
		t.Errorf("Holder: wanted %s, got %s", OwnerBookReader, got)
	}
	a.Release(tok)
	if got := a.Holder(); got != OwnerNone {
		t.Errorf("Holder after release: wanted %s, got %s", OwnerNone, got)
	}
	if _, err := a.Acquire(OwnerUsb); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestStaleToken(t *testing.T) {
	a := New()
	tok, err := a.Acquire(OwnerImageViewer)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := a.Check(tok); err != nil {
		t.Errorf("Check live token: %v", err)
	}
	a.Release(tok)
	if err := a.Check(tok); err == nil {
		t.Errorf("Check released token: wanted error, got nil")
	}
}
