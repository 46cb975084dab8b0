// Package fmp implements parsing and unparsing of the reader's serial
// file-management protocol, the framing spoken between the device and a
// host over USB CDC or a plain tty.
//
// A frame is an 11 byte little-endian header (u16 magic "TR", u8
// version, u8 flags, u8 command, u16 request id, u32 payload length)
// followed by the payload and a u32 CRC32 (IEEE) computed over header
// plus payload. Responses echo the command and request id of the
// request they answer; long results are split across frames tied
// together with the continuation and EOF flags.
package fmp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

const (
	Magic   uint16 = 0x5452 // "TR"
	Version uint8  = 0x01

	// HeaderSize is the fixed frame header length, CRC not included.
	HeaderSize = 11

	// DefaultMaxPayload bounds a single frame's payload. Advertised
	// in the INFO response; larger transfers are chunked.
	DefaultMaxPayload = 2048
)

// Frame flags.
const (
	FlagResp uint8 = 1 << 0
	FlagErr  uint8 = 1 << 1
	FlagEOF  uint8 = 1 << 2
	FlagCont uint8 = 1 << 3
)

type Command uint8

const (
	CmdPing   Command = 0x01
	CmdInfo   Command = 0x02
	CmdList   Command = 0x10
	CmdRead   Command = 0x11
	CmdWrite  Command = 0x12
	CmdDelete Command = 0x13
	CmdMkdir  Command = 0x14
	CmdRmdir  Command = 0x15
	CmdRename Command = 0x16
	CmdEject  Command = 0x20
)

func (c Command) String() string {
	switch c {
	case CmdPing:
		return "PING"
	case CmdInfo:
		return "INFO"
	case CmdList:
		return "LIST"
	case CmdRead:
		return "READ"
	case CmdWrite:
		return "WRITE"
	case CmdDelete:
		return "DELETE"
	case CmdMkdir:
		return "MKDIR"
	case CmdRmdir:
		return "RMDIR"
	case CmdRename:
		return "RENAME"
	case CmdEject:
		return "EJECT"
	}
	return fmt.Sprintf("0x%02x", uint8(c))
}

type ErrorCode uint16

const (
	ErrInvalidCommand ErrorCode = 1
	ErrBadPath        ErrorCode = 2
	ErrIo             ErrorCode = 3
	ErrNotFound       ErrorCode = 4
	ErrNotPermitted   ErrorCode = 5
	ErrCrcMismatch    ErrorCode = 6
	ErrInvalidArgs    ErrorCode = 7
	ErrBusy           ErrorCode = 8
)

func (e ErrorCode) String() string {
	switch e {
	case ErrInvalidCommand:
		return "invalid command"
	case ErrBadPath:
		return "bad path"
	case ErrIo:
		return "I/O error"
	case ErrNotFound:
		return "not found"
	case ErrNotPermitted:
		return "not permitted"
	case ErrCrcMismatch:
		return "CRC mismatch"
	case ErrInvalidArgs:
		return "invalid arguments"
	case ErrBusy:
		return "busy"
	}
	return fmt.Sprintf("error %d", uint16(e))
}

// PingCookie is the device identity returned in a PING response
// payload ("XT40").
const PingCookie uint32 = 0x58543430

// Frame is one decoded protocol frame.
type Frame struct {
	Flags     uint8
	Command   Command
	RequestID uint16
	Payload   []byte
}

func (f *Frame) IsResp() bool {
	return f.Flags&FlagResp != 0
}

func (f *Frame) IsErr() bool {
	return f.Flags&FlagErr != 0
}

func (f *Frame) IsEOF() bool {
	return f.Flags&FlagEOF != 0
}

func (f *Frame) IsCont() bool {
	return f.Flags&FlagCont != 0
}

// Serialize emits the wire form of the frame, CRC included.
func (f *Frame) Serialize() []byte {
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, Magic)
	buf.WriteByte(Version)
	buf.WriteByte(f.Flags)
	buf.WriteByte(uint8(f.Command))
	binary.Write(buf, binary.LittleEndian, f.RequestID)
	binary.Write(buf, binary.LittleEndian, uint32(len(f.Payload)))
	buf.Write(f.Payload)
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes()
}

// ErrorPayload builds the payload of an error response: u16 code,
// u16 message length, UTF-8 message.
func ErrorPayload(code ErrorCode, msg string) []byte {
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, uint16(code))
	binary.Write(buf, binary.LittleEndian, uint16(len(msg)))
	buf.WriteString(msg)
	return buf.Bytes()
}

// ParseError decodes an error response payload.
func ParseError(payload []byte) (ErrorCode, string, error) {
	if len(payload) < 4 {
		return 0, "", fmt.Errorf("error payload too short (%d bytes)", len(payload))
	}
	code := ErrorCode(binary.LittleEndian.Uint16(payload[0:2]))
	mlen := int(binary.LittleEndian.Uint16(payload[2:4]))
	if len(payload) < 4+mlen {
		return 0, "", fmt.Errorf("error message truncated")
	}
	return code, string(payload[4 : 4+mlen]), nil
}

// RemoteError is an ERR frame surfaced as a Go error on the host side.
type RemoteError struct {
	Code    ErrorCode
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device: %s", e.Code)
	}
	return fmt.Sprintf("device: %s: %s", e.Code, e.Message)
}

// FrameError is a framing-level failure the parser consumed a frame
// (or a byte) over. Code 6 failures carry the request id so the
// session can answer them.
type FrameError struct {
	Code      ErrorCode
	RequestID uint16
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame error: %s", e.Code)
}

// Parser accumulates raw bytes and produces frames. Resynchronization
// is byte-wise: anything that does not look like a header start is
// dropped one byte at a time until a frame parses.
type Parser struct {
	buf        bytes.Buffer
	maxPayload int
}

func NewParser(maxPayload int) *Parser {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Parser{maxPayload: maxPayload}
}

// Feed appends raw bytes from the transport.
func (p *Parser) Feed(data []byte) {
	p.buf.Write(data)
}

// Pending reports buffered byte count, for activity detection.
func (p *Parser) Pending() int {
	return p.buf.Len()
}

// Next extracts one frame. Returns (nil, nil) when more bytes are
// needed. Bytes that do not start a valid header are discarded one at
// a time without comment; that is how the stream resynchronizes after
// line noise. A *FrameError return means a whole frame was consumed:
// CRC mismatches eat the frame and report code 6, an oversized
// declared length drains the buffer.
func (p *Parser) Next() (*Frame, error) {
	b := p.buf.Bytes()
	for len(b) >= 3 && (binary.LittleEndian.Uint16(b[0:2]) != Magic || b[2] != Version) {
		p.buf.Next(1)
		b = p.buf.Bytes()
	}
	if len(b) < HeaderSize+4 {
		return nil, nil
	}
	flags := b[3]
	cmd := Command(b[4])
	reqID := binary.LittleEndian.Uint16(b[5:7])
	plen := int(binary.LittleEndian.Uint32(b[7:11]))
	if plen > p.maxPayload {
		p.buf.Reset()
		return nil, &FrameError{Code: ErrInvalidArgs, RequestID: reqID}
	}
	total := HeaderSize + plen + 4
	if len(b) < total {
		return nil, nil
	}
	want := binary.LittleEndian.Uint32(b[HeaderSize+plen : total])
	got := crc32.ChecksumIEEE(b[:HeaderSize+plen])
	if want != got {
		p.buf.Next(total)
		return nil, &FrameError{Code: ErrCrcMismatch, RequestID: reqID}
	}
	payload := make([]byte, plen)
	copy(payload, b[HeaderSize:HeaderSize+plen])
	p.buf.Next(total)
	return &Frame{
		Flags:     flags,
		Command:   cmd,
		RequestID: reqID,
		Payload:   payload,
	}, nil
}

// ReadFrame reads exactly one frame from r, blocking. Used by hosts,
// where the transport is a stream and a reply is expected.
func ReadFrame(r io.Reader, maxPayload int) (*Frame, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("could not read header: %w", err)
	}
	if binary.LittleEndian.Uint16(hdr[0:2]) != Magic {
		return nil, fmt.Errorf("bad magic %04x", binary.LittleEndian.Uint16(hdr[0:2]))
	}
	if hdr[2] != Version {
		return nil, fmt.Errorf("unsupported version %d", hdr[2])
	}
	plen := int(binary.LittleEndian.Uint32(hdr[7:11]))
	if plen > maxPayload {
		return nil, fmt.Errorf("oversized payload (%d bytes)", plen)
	}
	rest := make([]byte, plen+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, fmt.Errorf("could not read payload: %w", err)
	}
	want := binary.LittleEndian.Uint32(rest[plen:])
	full := append(hdr, rest[:plen]...)
	if got := crc32.ChecksumIEEE(full); got != want {
		return nil, fmt.Errorf("CRC mismatch (%08x != %08x)", got, want)
	}
	return &Frame{
		Flags:     hdr[3],
		Command:   Command(hdr[4]),
		RequestID: binary.LittleEndian.Uint16(hdr[5:7]),
		Payload:   rest[:plen],
	}, nil
}

// String helpers used by both sides for payload encoding: strings on
// the wire are u16 length-prefixed UTF-8.

func WriteString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func ReadString(b []byte) (string, []byte, error) {
	if len(b) < 2 {
		return "", nil, fmt.Errorf("truncated string length")
	}
	n := int(binary.LittleEndian.Uint16(b[0:2]))
	if len(b) < 2+n {
		return "", nil, fmt.Errorf("truncated string (%d of %d bytes)", len(b)-2, n)
	}
	return string(b[2 : 2+n]), b[2+n:], nil
}
