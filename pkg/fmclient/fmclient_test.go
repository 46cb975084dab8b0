package fmclient_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ternreader/tern/pkg/app"
	"github.com/ternreader/tern/pkg/display"
	"github.com/ternreader/tern/pkg/fmclient"
	"github.com/ternreader/tern/pkg/fmp"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/vfs"
)

type nullDisplay struct{}

func (nullDisplay) Size() (int, int)                              { return 80, 64 }
func (nullDisplay) Flush([]byte, display.RefreshMode) error      { return nil }
func (nullDisplay) FlushGray(bw, lsb, msb []byte) error          { return nil }
func (nullDisplay) Sleep() error                                 { return nil }
func (nullDisplay) Wake() error                                  { return nil }

// loopPort is both ends of the link: the device side (app.Port) and
// the host side (io.ReadWriter). Host reads tick the device until it
// produces output, so the whole exchange runs on one goroutine.
type loopPort struct {
	a        *app.App
	toDevice bytes.Buffer
	toHost   bytes.Buffer
}

func (p *loopPort) Poll() ([]byte, error) {
	data := append([]byte(nil), p.toDevice.Bytes()...)
	p.toDevice.Reset()
	return data, nil
}

// Write is the device side of the port; output heads to the host.
func (p *loopPort) Write(b []byte) (int, error) {
	return p.toHost.Write(b)
}

func (p *loopPort) Close() error { return nil }

// hostSide is the client's view of the transport.
type hostSide struct {
	p *loopPort
}

func (h *hostSide) Write(b []byte) (int, error) {
	h.p.toDevice.Write(b)
	return len(b), nil
}

func (h *hostSide) Read(b []byte) (int, error) {
	for i := 0; i < 1000 && h.p.toHost.Len() == 0; i++ {
		h.p.a.Tick(16)
	}
	if h.p.toHost.Len() == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	return h.p.toHost.Read(b)
}

func newLoopback(t *testing.T) (*fmclient.Client, *app.App, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "seed.txt"), []byte("seed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fsys, err := vfs.NewOsFS(dir)
	if err != nil {
		t.Fatalf("NewOsFS: %v", err)
	}
	cfg := app.DefaultConfig()
	cfg.Library = dir
	cfg.Display.Width = 80
	cfg.Display.Height = 64
	cfg.Display.Rotation = "0"

	port := &loopPort{}
	a, err := app.New(cfg, nullDisplay{}, fsys, port, nil, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	port.a = a
	t.Cleanup(func() { a.Close() })
	a.Start()

	// Accept the transfer prompt: the first traffic raises it and is
	// refused, then the user allows.
	c := fmclient.New(&hostSide{p: port})
	if err := c.Ping(); !errIsBusy(err) {
		t.Fatalf("pre-consent ping should be refused, got %v", err)
	}
	a.HandleInput([]input.Event{{Button: input.Right, Down: true}, {Button: input.Right, Down: false}})
	a.Tick(16)
	a.HandleInput([]input.Event{{Button: input.Confirm, Down: true}, {Button: input.Confirm, Down: false}})
	a.Tick(16)
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	return c, a, dir
}

func errIsBusy(err error) bool {
	re, ok := err.(*fmp.RemoteError)
	return ok && re.Code == fmp.ErrBusy
}

func TestLoopbackSession(t *testing.T) {
	c, _, dir := newLoopback(t)

	info, err := c.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.MaxPayload != fmp.DefaultMaxPayload {
		t.Errorf("MaxPayload = %d, want %d", info.MaxPayload, fmp.DefaultMaxPayload)
	}

	// Push a file large enough to need several frames.
	big := bytes.Repeat([]byte("0123456789abcdef"), 1024)
	if err := c.Write("/big.bin", big); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := c.Read("/big.bin", 0, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, big) {
		t.Fatalf("read back %d bytes, want %d", len(got), len(big))
	}

	// Partial read.
	part, err := c.Read("/big.bin", 16, 32)
	if err != nil {
		t.Fatalf("partial Read: %v", err)
	}
	if !bytes.Equal(part, big[16:48]) {
		t.Errorf("partial read mismatch")
	}

	if err := c.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := c.Rename("/big.bin", "/sub/big.bin"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	entries, err := c.List("/sub")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "big.bin" || entries[0].Size != uint64(len(big)) {
		t.Errorf("unexpected listing: %+v", entries)
	}
	if err := c.Delete("/sub/big.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Rmdir("/sub", false); err != nil {
		t.Fatalf("Rmdir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub")); !os.IsNotExist(err) {
		t.Error("directory should be gone from the card")
	}

	if err := c.Eject(); err != nil {
		t.Fatalf("Eject: %v", err)
	}
	if _, err := c.Info(); !errIsBusy(err) {
		t.Errorf("post-eject Info should be refused, got %v", err)
	}
}

func TestLoopbackErrors(t *testing.T) {
	c, _, _ := newLoopback(t)

	if _, err := c.Read("/missing.txt", 0, 0); err == nil {
		t.Error("reading a missing file should fail")
	} else if re, ok := err.(*fmp.RemoteError); !ok || re.Code != fmp.ErrNotFound {
		t.Errorf("err = %v, want remote NotFound", err)
	}

	if _, err := c.List("/../etc"); err == nil {
		t.Error("traversal should be refused")
	} else if re, ok := err.(*fmp.RemoteError); !ok || re.Code != fmp.ErrBadPath {
		t.Errorf("err = %v, want remote BadPath", err)
	}
}
