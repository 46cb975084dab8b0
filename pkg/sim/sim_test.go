package sim

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/ternreader/tern/pkg/display"
)

func TestScreenLuma(t *testing.T) {
	s := NewScreen(16, 8)
	plane := make([]byte, 16*8/8)
	plane[0] = 0x80 // pixel (0,0) inked
	if err := s.Flush(plane, display.Full); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := s.luma(0, 0); got != 0 {
		t.Errorf("luma(0,0) = %d, want 0", got)
	}
	if got := s.luma(1, 0); got != 255 {
		t.Errorf("luma(1,0) = %d, want 255", got)
	}
	if s.Flashes != 1 {
		t.Errorf("Flashes = %d, want 1", s.Flashes)
	}
}

func TestScreenRenderShape(t *testing.T) {
	s := NewScreen(16, 8)
	out := s.Render()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("render lines = %d, want 4 (two pixels per cell)", len(lines))
	}
}

func TestTcpPortRoundTrip(t *testing.T) {
	p, err := ListenTcp("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTcp: %v", err)
	}
	defer p.Close()

	conn, err := net.Dial("tcp", p.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	var got []byte
	for len(got) < 5 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for polled bytes")
		}
		data, err := p.Poll()
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		got = append(got, data...)
		time.Sleep(5 * time.Millisecond)
	}
	if string(got) != "hello" {
		t.Errorf("polled %q, want hello", got)
	}

	// Device to host.
	if _, err := p.Write([]byte("pong")); err != nil {
		t.Fatalf("device Write: %v", err)
	}
	buf := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("host read: %v", err)
	}
	if string(buf) != "pong" {
		t.Errorf("host read %q, want pong", buf)
	}
}
