package app

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ternreader/tern/pkg/arbiter"
	"github.com/ternreader/tern/pkg/fmp"
	"github.com/ternreader/tern/pkg/input"
)

// activeTransfer drives the prompt to an accepted session.
func activeTransfer(t *testing.T, a *App, port *fakePort) {
	t.Helper()
	first := &fmp.Frame{Command: fmp.CmdInfo, RequestID: 1}
	port.inbox = first.Serialize()
	a.Tick(16)
	if a.usb.State() != UsbPrompt {
		t.Fatalf("state = %v, want prompt", a.usb.State())
	}
	port.frames(t) // drop the busy reply
	press(a, input.Right)
	a.Tick(16)
	press(a, input.Confirm)
	a.Tick(16)
	if a.usb.State() != UsbActive {
		t.Fatalf("state = %v, want active", a.usb.State())
	}
}

// exchange feeds one frame and ticks until replies stop coming.
func exchange(t *testing.T, a *App, port *fakePort, f *fmp.Frame) []*fmp.Frame {
	t.Helper()
	port.inbox = f.Serialize()
	var out []*fmp.Frame
	for i := 0; i < 100; i++ {
		a.Tick(16)
		got := port.frames(t)
		out = append(out, got...)
		if len(got) == 0 && i > 0 {
			break
		}
	}
	return out
}

func TestUsbPingBeforeConsent(t *testing.T) {
	port := &fakePort{}
	a, _, _ := newTestApp(t, port)

	// The first ping raises the prompt and is refused like any other
	// pre-consent traffic.
	ping := &fmp.Frame{Command: fmp.CmdPing, RequestID: 7}
	port.inbox = ping.Serialize()
	a.Tick(16)
	if a.usb.State() != UsbPrompt {
		t.Fatalf("ping should raise the prompt, state = %v", a.usb.State())
	}
	replies := port.frames(t)
	if len(replies) != 1 || !replies[0].IsErr() {
		t.Fatalf("pre-consent ping should be refused, got %+v", replies)
	}
	code, _, err := fmp.ParseError(replies[0].Payload)
	if err != nil {
		t.Fatalf("ParseError: %v", err)
	}
	if code != fmp.ErrBusy {
		t.Errorf("code = %v, want busy", code)
	}

	press(a, input.Right) // select Allow
	a.Tick(16)
	press(a, input.Confirm)
	a.Tick(16)
	if a.usb.State() != UsbActive {
		t.Fatalf("state = %v, want active", a.usb.State())
	}

	replies = exchange(t, a, port, ping)
	if len(replies) != 1 || replies[0].IsErr() {
		t.Fatalf("bad ping reply: %+v", replies)
	}
	r := replies[0]
	if !r.IsResp() || r.RequestID != 7 {
		t.Errorf("bad ping reply: %+v", r)
	}
	if binary.LittleEndian.Uint32(r.Payload) != fmp.PingCookie {
		t.Errorf("cookie = %08x, want %08x", binary.LittleEndian.Uint32(r.Payload), fmp.PingCookie)
	}
}

func TestTransportLossDuringPromptKeepsMode(t *testing.T) {
	port := &fakePort{}
	a, _, _ := newTestApp(t, port)
	if err := a.transition(ModeBookReader, "/story.trbk"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	port.inbox = (&fmp.Frame{Command: fmp.CmdInfo, RequestID: 1}).Serialize()
	a.Tick(16)
	if a.usb.State() != UsbPrompt {
		t.Fatalf("state = %v, want prompt", a.usb.State())
	}

	// The cable goes away before the user answers: no session ever
	// started, so the reader keeps its token and its open book.
	port.pollErr = errors.New("transport gone")
	a.Tick(16)
	if a.usb.State() != UsbIdle {
		t.Errorf("state = %v, want idle after transport loss", a.usb.State())
	}
	if a.Mode() != ModeBookReader {
		t.Errorf("mode = %v, want book reader", a.Mode())
	}
	if a.arb.Holder() != arbiter.OwnerBookReader {
		t.Errorf("holder = %v, want book reader", a.arb.Holder())
	}
	if a.book.res == nil {
		t.Error("book should remain open")
	}
}

func TestTransportLossDuringActiveEndsSession(t *testing.T) {
	port := &fakePort{}
	a, _, _ := newTestApp(t, port)
	activeTransfer(t, a, port)

	port.pollErr = errors.New("transport gone")
	a.Tick(16)
	if a.usb.State() != UsbIdle {
		t.Errorf("state = %v, want idle", a.usb.State())
	}
	if a.Mode() != ModeHome {
		t.Errorf("mode = %v, want home after a lost session", a.Mode())
	}
	if a.arb.Holder() != arbiter.OwnerHome {
		t.Errorf("holder = %v, want home", a.arb.Holder())
	}
}

func TestUsbListAndRead(t *testing.T) {
	port := &fakePort{}
	a, _, dir := newTestApp(t, port)
	payload := []byte("hello from the card")
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), payload, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	activeTransfer(t, a, port)

	replies := exchange(t, a, port, &fmp.Frame{
		Command: fmp.CmdList, RequestID: 2, Payload: listPayload("/"),
	})
	if len(replies) == 0 {
		t.Fatal("no list reply")
	}
	last := replies[len(replies)-1]
	if !last.IsEOF() || last.IsErr() {
		t.Fatalf("list should end with a clean EOF frame: %+v", last)
	}
	count := binary.LittleEndian.Uint32(replies[0].Payload[0:4])
	if count != 3 {
		t.Errorf("entry count = %d, want 3", count)
	}

	// An empty directory lists as a single EOF frame with a zero count.
	if err := os.Mkdir(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	replies = exchange(t, a, port, &fmp.Frame{
		Command: fmp.CmdList, RequestID: 7, Payload: listPayload("/empty"),
	})
	if len(replies) != 1 || !replies[0].IsEOF() {
		t.Fatalf("empty list should be one EOF frame, got %d", len(replies))
	}
	if n := binary.LittleEndian.Uint32(replies[0].Payload[0:4]); n != 0 {
		t.Errorf("empty dir entry count = %d, want 0", n)
	}

	// Read the whole file back.
	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, "/note.txt")
	binary.Write(req, binary.LittleEndian, uint32(0)) // offset
	binary.Write(req, binary.LittleEndian, uint32(0)) // to EOF
	replies = exchange(t, a, port, &fmp.Frame{
		Command: fmp.CmdRead, RequestID: 3, Payload: req.Bytes(),
	})
	var got []byte
	for _, r := range replies {
		if r.IsErr() {
			t.Fatalf("read error frame: %+v", r)
		}
		got = append(got, r.Payload...)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read back %q, want %q", got, payload)
	}
	if !replies[len(replies)-1].IsEOF() {
		t.Error("final read frame should carry EOF")
	}
}

func TestUsbWriteThenEject(t *testing.T) {
	port := &fakePort{}
	a, _, dir := newTestApp(t, port)
	activeTransfer(t, a, port)

	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, "/upload.txt")
	binary.Write(req, binary.LittleEndian, uint32(0))
	req.WriteString("part one ")
	replies := exchange(t, a, port, &fmp.Frame{
		Flags: fmp.FlagCont, Command: fmp.CmdWrite, RequestID: 4, Payload: req.Bytes(),
	})
	if len(replies) != 1 || replies[0].IsErr() {
		t.Fatalf("bad write ack: %+v", replies)
	}
	replies = exchange(t, a, port, &fmp.Frame{
		Flags: fmp.FlagEOF, Command: fmp.CmdWrite, RequestID: 4, Payload: []byte("part two"),
	})
	if len(replies) != 1 || replies[0].IsErr() {
		t.Fatalf("bad final write ack: %+v", replies)
	}
	data, err := os.ReadFile(filepath.Join(dir, "upload.txt"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "part one part two" {
		t.Errorf("uploaded = %q", data)
	}

	replies = exchange(t, a, port, &fmp.Frame{Command: fmp.CmdEject, RequestID: 5})
	if len(replies) != 1 || replies[0].IsErr() {
		t.Fatalf("bad eject ack: %+v", replies)
	}
	if a.usb.State() != UsbIdle {
		t.Errorf("state = %v after eject, want idle", a.usb.State())
	}
	if a.Mode() != ModeHome {
		t.Errorf("mode = %v after eject, want home", a.Mode())
	}
}

func TestUsbCrcReportDuringSession(t *testing.T) {
	port := &fakePort{}
	a, _, _ := newTestApp(t, port)
	activeTransfer(t, a, port)

	raw := (&fmp.Frame{Command: fmp.CmdInfo, RequestID: 9}).Serialize()
	raw[len(raw)-1] ^= 0xFF
	port.inbox = raw
	a.Tick(16)
	replies := port.frames(t)
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	r := replies[0]
	if !r.IsErr() || r.RequestID != 9 {
		t.Fatalf("want an error reply for request 9, got %+v", r)
	}
	code, _, err := fmp.ParseError(r.Payload)
	if err != nil {
		t.Fatalf("ParseError: %v", err)
	}
	if code != fmp.ErrCrcMismatch {
		t.Errorf("code = %v, want CRC mismatch", code)
	}
}

func TestUsbBusyWhileRejected(t *testing.T) {
	port := &fakePort{}
	a, _, _ := newTestApp(t, port)

	port.inbox = (&fmp.Frame{Command: fmp.CmdInfo, RequestID: 1}).Serialize()
	a.Tick(16)
	port.frames(t)
	press(a, input.Confirm) // Reject is the default selection
	a.Tick(16)

	replies := exchange(t, a, port, &fmp.Frame{Command: fmp.CmdList, RequestID: 2, Payload: listPayload("/")})
	if len(replies) != 1 || !replies[0].IsErr() {
		t.Fatalf("want one error reply, got %+v", replies)
	}
	code, _, err := fmp.ParseError(replies[0].Payload)
	if err != nil {
		t.Fatalf("ParseError: %v", err)
	}
	if code != fmp.ErrBusy {
		t.Errorf("code = %v, want busy", code)
	}
}
