package fmp

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for _, te := range []Frame{
		{Command: CmdPing, RequestID: 1},
		{Flags: FlagResp, Command: CmdPing, RequestID: 1, Payload: []byte{0x30, 0x34, 0x54, 0x58}},
		{Flags: FlagResp | FlagCont, Command: CmdRead, RequestID: 0xBEEF, Payload: bytes.Repeat([]byte{0xA5}, 512)},
		{Flags: FlagResp | FlagErr, Command: CmdDelete, RequestID: 7, Payload: ErrorPayload(ErrNotFound, "no such file")},
	} {
		p := NewParser(DefaultMaxPayload)
		p.Feed(te.Serialize())
		got, err := p.Next()
		if err != nil {
			t.Errorf("%s: Next: %v", te.Command, err)
			continue
		}
		if got == nil {
			t.Errorf("%s: Next returned no frame", te.Command)
			continue
		}
		if got.Flags != te.Flags || got.Command != te.Command || got.RequestID != te.RequestID {
			t.Errorf("%s: header mismatch: %+v", te.Command, got)
		}
		if !bytes.Equal(got.Payload, te.Payload) {
			t.Errorf("%s: payload mismatch", te.Command)
		}
	}
}

// Flipping any single bit of a frame must yield a CRC error (or, for
// bits in the magic/version/length area, a resync), never a frame
// with different content.
func TestSingleBitCorruption(t *testing.T) {
	orig := Frame{Command: CmdList, RequestID: 42, Payload: []byte("/images")}
	wire := orig.Serialize()
	for i := 0; i < len(wire)*8; i++ {
		mutated := make([]byte, len(wire))
		copy(mutated, wire)
		mutated[i/8] ^= byte(1) << (i % 8)

		p := NewParser(DefaultMaxPayload)
		p.Feed(mutated)
		for {
			f, err := p.Next()
			if f == nil && err == nil {
				break
			}
			if err != nil {
				var fe *FrameError
				if !errors.As(err, &fe) {
					t.Fatalf("bit %d: unexpected error type %v", i, err)
				}
				continue
			}
			t.Errorf("bit %d: corrupted frame was accepted", i)
			break
		}
	}
}

func TestResync(t *testing.T) {
	orig := Frame{Command: CmdPing, RequestID: 3}
	p := NewParser(DefaultMaxPayload)
	p.Feed([]byte{0x00, 0xFF, 0x52})
	p.Feed(orig.Serialize())
	f, err := p.Next()
	if err != nil || f == nil {
		t.Fatalf("Next after garbage: frame=%v err=%v", f, err)
	}
	if f.Command != CmdPing || f.RequestID != 3 {
		t.Errorf("resynced frame mismatch: %+v", f)
	}
}

func TestCRCMismatchReported(t *testing.T) {
	orig := Frame{Command: CmdRead, RequestID: 9, Payload: []byte("/a")}
	wire := orig.Serialize()
	wire[len(wire)-1] ^= 0xFF
	p := NewParser(DefaultMaxPayload)
	p.Feed(wire)
	_, err := p.Next()
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("Next: wanted FrameError, got %v", err)
	}
	if fe.Code != ErrCrcMismatch {
		t.Errorf("code: wanted %s, got %s", ErrCrcMismatch, fe.Code)
	}
	if fe.RequestID != 9 {
		t.Errorf("request id: wanted 9, got %d", fe.RequestID)
	}
	if f, err := p.Next(); f != nil || err != nil {
		t.Errorf("buffer not drained after CRC error: frame=%v err=%v", f, err)
	}
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	payload := ErrorPayload(ErrBusy, "session not active")
	code, msg, err := ParseError(payload)
	if err != nil {
		t.Fatalf("ParseError: %v", err)
	}
	if code != ErrBusy || msg != "session not active" {
		t.Errorf("got %s/%q", code, msg)
	}
}

func TestReadFrame(t *testing.T) {
	orig := Frame{Flags: FlagResp | FlagEOF, Command: CmdList, RequestID: 5, Payload: []byte{0, 0, 0, 0}}
	f, err := ReadFrame(bytes.NewReader(orig.Serialize()), DefaultMaxPayload)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !f.IsEOF() || f.Command != CmdList {
		t.Errorf("frame mismatch: %+v", f)
	}
}
