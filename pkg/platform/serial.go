package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Serial is a raw non-blocking tty used for the file transfer
// protocol. Implements app.Port.
type Serial struct {
	f *os.File
}

// OpenSerial opens the tty at path in raw 8N1 mode at 115200 baud.
func OpenSerial(path string) (*Serial, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %q: %w", path, err)
	}
	fd := int(f.Fd())

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not read termios: %w", err)
	}
	// Raw mode: no echo, no signals, no translation, 8 data bits.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cflag &^= unix.CBAUD
	t.Cflag |= unix.B115200
	t.Ispeed = unix.B115200
	t.Ospeed = unix.B115200
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not set termios: %w", err)
	}
	return &Serial{f: f}, nil
}

// Poll drains whatever bytes are waiting. A short deadline turns the
// blocking file read into a drain.
func (s *Serial) Poll() ([]byte, error) {
	var out []byte
	buf := make([]byte, 512)
	s.f.SetReadDeadline(time.Now().Add(time.Millisecond))
	for {
		n, err := s.f.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		if n < len(buf) {
			return out, nil
		}
	}
}

func (s *Serial) Write(b []byte) (int, error) {
	return s.f.Write(b)
}

func (s *Serial) Close() error {
	return s.f.Close()
}
