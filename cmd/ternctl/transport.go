package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/gousb"
	"golang.org/x/sys/unix"

	"github.com/ternreader/tern/pkg/fmclient"
)

// The reader's USB serial function enumerates under the pid.codes
// test VID.
const (
	usbVID gousb.ID = 0x1209
	usbPID gousb.ID = 0x7440
)

type transportKind uint8

const (
	transportTcp transportKind = iota
	transportTty
	transportUsb
)

type deviceAddr struct {
	kind transportKind
	addr string
}

func parseDeviceSpec(spec string) (deviceAddr, error) {
	switch {
	case strings.HasPrefix(spec, "tcp:"):
		return deviceAddr{transportTcp, spec[len("tcp:"):]}, nil
	case strings.HasPrefix(spec, "tty:"):
		return deviceAddr{transportTty, spec[len("tty:"):]}, nil
	case spec == "usb":
		return deviceAddr{kind: transportUsb}, nil
	}
	return deviceAddr{}, fmt.Errorf("unknown device spec %q (want tcp:<addr>, tty:<path> or usb)", spec)
}

// connect opens the transport and returns a protocol client plus a
// close function.
func connect() (*fmclient.Client, func(), error) {
	spec, err := deviceSpec()
	if err != nil {
		return nil, nil, err
	}
	da, err := parseDeviceSpec(spec)
	if err != nil {
		return nil, nil, err
	}
	switch da.kind {
	case transportTcp:
		conn, err := net.DialTimeout("tcp", da.addr, 5*time.Second)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to simulator at %s: %w", da.addr, err)
		}
		glog.V(1).Infof("Connected to %s", da.addr)
		return fmclient.New(conn), func() { conn.Close() }, nil
	case transportTty:
		f, err := openTty(da.addr)
		if err != nil {
			return nil, nil, err
		}
		return fmclient.New(f), func() { f.Close() }, nil
	default:
		t, err := openUsb()
		if err != nil {
			return nil, nil, err
		}
		return fmclient.New(t), t.close, nil
	}
}

// openTty puts the tty into raw 8N1 at 115200 for the host side of
// the link.
func openTty(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open %q: %w", path, err)
	}
	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not read termios: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | unix.B115200
	t.Ispeed = unix.B115200
	t.Ospeed = unix.B115200
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not set termios: %w", err)
	}
	return f, nil
}

// usbTransport is an io.ReadWriter over the reader's bulk endpoints.
type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

func openUsb() (*usbTransport, error) {
	ctx := gousb.NewContext()
	dev, err := ctx.OpenDeviceWithVIDPID(usbVID, usbPID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("could not open USB device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("no reader found on USB (%s:%s)", usbVID, usbPID)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		glog.Warningf("Could not enable auto-detach: %v", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("could not claim interface: %w", err)
	}
	t := &usbTransport{ctx: ctx, dev: dev, done: done}
	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			t.in, err = intf.InEndpoint(ep.Number)
		case gousb.EndpointDirectionOut:
			t.out, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			t.close()
			return nil, fmt.Errorf("could not open endpoint %d: %w", ep.Number, err)
		}
	}
	if t.in == nil || t.out == nil {
		t.close()
		return nil, fmt.Errorf("device exposes no bulk endpoint pair")
	}
	return t, nil
}

func (t *usbTransport) Read(b []byte) (int, error) {
	return t.in.Read(b)
}

func (t *usbTransport) Write(b []byte) (int, error) {
	return t.out.Write(b)
}

func (t *usbTransport) close() {
	if t.done != nil {
		t.done()
	}
	t.dev.Close()
	t.ctx.Close()
}

var _ io.ReadWriter = (*usbTransport)(nil)
