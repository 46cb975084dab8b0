// Package fmclient implements the host side of the reader's file
// transfer protocol: framed requests over any byte transport (tty,
// TCP loopback to the simulator, or USB serial).
package fmclient

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/ternreader/tern/pkg/fmp"
)

// Entry is one directory listing record as reported by the device.
type Entry struct {
	Name string
	Dir  bool
	Size uint64
}

// DeviceInfo is the INFO response.
type DeviceInfo struct {
	MaxPayload   uint32
	Capabilities uint32
}

// Client speaks the protocol over a transport. Not safe for
// concurrent use; the protocol is strictly request/response.
type Client struct {
	t          io.ReadWriter
	nextReq    uint16
	maxPayload uint32
}

func New(t io.ReadWriter) *Client {
	return &Client{t: t, nextReq: 1, maxPayload: fmp.DefaultMaxPayload}
}

func (c *Client) reqID() uint16 {
	id := c.nextReq
	c.nextReq++
	if c.nextReq == 0 {
		c.nextReq = 1
	}
	return id
}

func (c *Client) sendFrame(f *fmp.Frame) error {
	if _, err := c.t.Write(f.Serialize()); err != nil {
		return fmt.Errorf("could not write frame: %w", err)
	}
	return nil
}

// recvFrame reads the next reply for id, skipping unrelated traffic.
func (c *Client) recvFrame(id uint16) (*fmp.Frame, error) {
	for {
		f, err := fmp.ReadFrame(c.t, int(c.maxPayload))
		if err != nil {
			return nil, err
		}
		if !f.IsResp() || f.RequestID != id {
			glog.V(1).Infof("Skipping stray frame (cmd %s, req %d)", f.Command, f.RequestID)
			continue
		}
		if f.IsErr() {
			code, msg, perr := fmp.ParseError(f.Payload)
			if perr != nil {
				return nil, fmt.Errorf("undecodable error reply: %w", perr)
			}
			return nil, &fmp.RemoteError{Code: code, Message: msg}
		}
		return f, nil
	}
}

// roundTrip sends one request frame and returns its single reply.
func (c *Client) roundTrip(cmd fmp.Command, flags uint8, payload []byte) (*fmp.Frame, error) {
	id := c.reqID()
	if err := c.sendFrame(&fmp.Frame{Flags: flags, Command: cmd, RequestID: id, Payload: payload}); err != nil {
		return nil, err
	}
	return c.recvFrame(id)
}

// collect sends one request and concatenates a chunked reply until
// EOF.
func (c *Client) collect(cmd fmp.Command, payload []byte) ([]byte, error) {
	id := c.reqID()
	if err := c.sendFrame(&fmp.Frame{Command: cmd, RequestID: id, Payload: payload}); err != nil {
		return nil, err
	}
	var out []byte
	for {
		f, err := c.recvFrame(id)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Payload...)
		if f.IsEOF() {
			return out, nil
		}
	}
}

// Ping verifies the link and the device code.
func (c *Client) Ping() error {
	f, err := c.roundTrip(fmp.CmdPing, 0, nil)
	if err != nil {
		return err
	}
	if len(f.Payload) < 4 {
		return fmt.Errorf("short ping reply (%d bytes)", len(f.Payload))
	}
	if cookie := binary.LittleEndian.Uint32(f.Payload); cookie != fmp.PingCookie {
		return fmt.Errorf("unexpected device code %08x", cookie)
	}
	return nil
}

func (c *Client) Info() (*DeviceInfo, error) {
	f, err := c.roundTrip(fmp.CmdInfo, 0, nil)
	if err != nil {
		return nil, err
	}
	if len(f.Payload) < 8 {
		return nil, fmt.Errorf("short info reply (%d bytes)", len(f.Payload))
	}
	info := &DeviceInfo{
		MaxPayload:   binary.LittleEndian.Uint32(f.Payload[0:4]),
		Capabilities: binary.LittleEndian.Uint32(f.Payload[4:8]),
	}
	if info.MaxPayload > 0 {
		c.maxPayload = info.MaxPayload
	}
	return info, nil
}

func (c *Client) List(path string) ([]Entry, error) {
	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, path)
	data, err := c.collect(fmp.CmdList, req.Bytes())
	if err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("short list reply (%d bytes)", len(data))
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	rest := data[4:]
	entries := make([]Entry, 0, count)
	for i := uint32(0); i < count; i++ {
		name, r, err := fmp.ReadString(rest)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(r) < 10 {
			return nil, fmt.Errorf("entry %d: truncated record", i)
		}
		entries = append(entries, Entry{
			Name: name,
			Dir:  r[0]&1 != 0,
			Size: binary.LittleEndian.Uint64(r[2:10]),
		})
		rest = r[10:]
	}
	return entries, nil
}

// Read fetches length bytes of path from offset; length 0 reads to
// EOF.
func (c *Client) Read(path string, offset, length uint32) ([]byte, error) {
	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, path)
	binary.Write(req, binary.LittleEndian, offset)
	binary.Write(req, binary.LittleEndian, length)
	return c.collect(fmp.CmdRead, req.Bytes())
}

// Write uploads data to path, chunked to the device's payload bound.
// Every frame is acked before the next goes out.
func (c *Client) Write(path string, data []byte) error {
	max := int(c.maxPayload)

	head := bytes.NewBuffer(nil)
	fmp.WriteString(head, path)
	binary.Write(head, binary.LittleEndian, uint32(0))
	first := max - head.Len()
	if first > len(data) {
		first = len(data)
	}
	head.Write(data[:first])
	data = data[first:]

	id := c.reqID()
	flags := uint8(fmp.FlagCont)
	if len(data) == 0 {
		flags = fmp.FlagEOF
	}
	if err := c.sendFrame(&fmp.Frame{Flags: flags, Command: fmp.CmdWrite, RequestID: id, Payload: head.Bytes()}); err != nil {
		return err
	}
	if _, err := c.recvFrame(id); err != nil {
		return err
	}

	for len(data) > 0 {
		n := max
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]
		flags := uint8(fmp.FlagCont)
		if len(data) == 0 {
			flags = fmp.FlagEOF
		}
		if err := c.sendFrame(&fmp.Frame{Flags: flags, Command: fmp.CmdWrite, RequestID: id, Payload: chunk}); err != nil {
			return err
		}
		if _, err := c.recvFrame(id); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) pathRequest(cmd fmp.Command, path string) error {
	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, path)
	_, err := c.roundTrip(cmd, 0, req.Bytes())
	return err
}

func (c *Client) Delete(path string) error {
	return c.pathRequest(fmp.CmdDelete, path)
}

func (c *Client) Mkdir(path string) error {
	return c.pathRequest(fmp.CmdMkdir, path)
}

func (c *Client) Rmdir(path string, recursive bool) error {
	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, path)
	var r uint8
	if recursive {
		r = 1
	}
	req.WriteByte(r)
	_, err := c.roundTrip(fmp.CmdRmdir, 0, req.Bytes())
	return err
}

func (c *Client) Rename(from, to string) error {
	req := bytes.NewBuffer(nil)
	fmp.WriteString(req, from)
	fmp.WriteString(req, to)
	_, err := c.roundTrip(fmp.CmdRename, 0, req.Bytes())
	return err
}

// Eject asks the device to end the transfer session and rescan the
// card.
func (c *Client) Eject() error {
	_, err := c.roundTrip(fmp.CmdEject, 0, nil)
	return err
}
