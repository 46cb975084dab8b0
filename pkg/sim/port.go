package sim

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// TcpPort exposes the transfer protocol on a loopback listener so
// ternctl can talk to the simulator. One host connection at a time;
// a new connection replaces a dead one. Implements app.Port.
type TcpPort struct {
	ln net.Listener

	mu   sync.Mutex
	conn net.Conn
}

func ListenTcp(addr string) (*TcpPort, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %q: %w", addr, err)
	}
	p := &TcpPort{ln: ln}
	go p.accept()
	return p, nil
}

// Addr is the bound address, for the status bar.
func (p *TcpPort) Addr() string {
	return p.ln.Addr().String()
}

func (p *TcpPort) accept() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}
		p.conn = conn
		p.mu.Unlock()
	}
}

func (p *TcpPort) Poll() ([]byte, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil, nil
	}

	var out []byte
	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return out, nil
			}
			// Peer gone; drop the connection but keep listening.
			p.mu.Lock()
			if p.conn == conn {
				p.conn = nil
			}
			p.mu.Unlock()
			conn.Close()
			return out, nil
		}
		if n < len(buf) {
			return out, nil
		}
	}
}

func (p *TcpPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return 0, fmt.Errorf("no host connected")
	}
	return conn.Write(b)
}

func (p *TcpPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return p.ln.Close()
}
