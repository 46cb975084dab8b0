package input

import "testing"

func TestPressEdges(t *testing.T) {
	for i, te := range []struct {
		events  []Event
		button  Button
		pressed bool
		down    bool
	}{
		{[]Event{{Confirm, true}}, Confirm, true, true},
		{[]Event{{Confirm, true}, {Confirm, false}}, Confirm, true, false},
		{[]Event{{Confirm, false}}, Confirm, false, false},
		{[]Event{{Up, true}}, Down, false, false},
		{[]Event{{Back, true}, {Back, false}, {Back, true}}, Back, true, true},
	} {
		var s State
		s.Feed(te.events)
		if want, got := te.pressed, s.Pressed(te.button); want != got {
			t.Errorf("%d: Pressed(%s): wanted %v, got %v", i, te.button, want, got)
		}
		if want, got := te.down, s.Down(te.button); want != got {
			t.Errorf("%d: Down(%s): wanted %v, got %v", i, te.button, want, got)
		}
	}
}

func TestEdgeSticksUntilReset(t *testing.T) {
	var s State
	s.Feed([]Event{{Power, true}})
	if !s.Pressed(Power) {
		t.Fatalf("press edge not recorded")
	}
	if !s.Any() {
		t.Errorf("Any should see the edge")
	}
	s.Reset()
	if s.Pressed(Power) {
		t.Errorf("edge survived Reset")
	}
	if !s.Down(Power) {
		t.Errorf("level should survive Reset")
	}
	// Held button must not re-edge.
	s.Feed([]Event{{Power, true}})
	if s.Pressed(Power) {
		t.Errorf("held button re-edged")
	}
}
