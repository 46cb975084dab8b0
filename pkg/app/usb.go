package app

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"

	"github.com/ternreader/tern/pkg/arbiter"
	"github.com/ternreader/tern/pkg/fmp"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/store"
	"github.com/ternreader/tern/pkg/vfs"
)

// Port is a byte transport to the host. Poll drains whatever bytes
// have arrived without blocking; an empty slice means no traffic.
type Port interface {
	io.Writer
	Poll() ([]byte, error)
	Close() error
}

type UsbState uint8

const (
	// UsbIdle: no host traffic.
	UsbIdle UsbState = iota
	// UsbPrompt: traffic arrived, the user is being asked.
	UsbPrompt
	// UsbActive: the host owns the card; UI input is suppressed.
	UsbActive
	// UsbRejected: the user declined; requests get Busy until the
	// host goes quiet.
	UsbRejected
)

func (s UsbState) String() string {
	switch s {
	case UsbIdle:
		return "idle"
	case UsbPrompt:
		return "prompt"
	case UsbActive:
		return "active"
	case UsbRejected:
		return "rejected"
	}
	return "unknown"
}

const (
	// usbFramesPerTick bounds outbound work per tick so a large read
	// never starves the loop.
	usbFramesPerTick = 4
	// rejectedQuietMs returns Rejected to Idle after this long
	// without host traffic.
	rejectedQuietMs = 30000
)

// readSession streams one file to the host, a few frames per tick.
type readSession struct {
	req       uint16
	f         vfs.File
	remaining int64
	sent      bool
}

// writeSession receives one file from the host across frames sharing
// a request id.
type writeSession struct {
	req  uint16
	path string
	f    vfs.WFile
}

// UsbController runs the file transfer protocol over a serial port.
// It owns the SD token for the whole Active session.
type UsbController struct {
	port Port
	fsys vfs.FS
	arb  *arbiter.Arbiter

	state   UsbState
	token   *arbiter.Token
	parser  *fmp.Parser
	outbox  [][]byte
	read    *readSession
	write   *writeSession
	quietMs int

	// promptAllow is the modal selection, Allow vs Reject.
	promptAllow bool
	// eject is latched when the host asks to end the session.
	eject bool
}

func newUsbController(port Port, fsys vfs.FS, arb *arbiter.Arbiter) *UsbController {
	return &UsbController{
		port:   port,
		fsys:   fsys,
		arb:    arb,
		parser: fmp.NewParser(fmp.DefaultMaxPayload),
	}
}

func (u *UsbController) State() UsbState {
	return u.state
}

func (u *UsbController) Close() error {
	u.closeSessions()
	if u.token != nil {
		u.arb.Release(u.token)
		u.token = nil
	}
	return u.port.Close()
}

func (u *UsbController) closeSessions() {
	if u.read != nil {
		u.read.f.Close()
		u.read = nil
	}
	if u.write != nil {
		u.write.f.Close()
		u.write = nil
	}
}

func (u *UsbController) send(f *fmp.Frame) {
	u.outbox = append(u.outbox, f.Serialize())
}

func (u *UsbController) reply(req *fmp.Frame, flags uint8, payload []byte) {
	u.send(&fmp.Frame{
		Flags:     fmp.FlagResp | flags,
		Command:   req.Command,
		RequestID: req.RequestID,
		Payload:   payload,
	})
}

func (u *UsbController) replyErr(req *fmp.Frame, code fmp.ErrorCode, msg string) {
	u.reply(req, fmp.FlagErr|fmp.FlagEOF, fmp.ErrorPayload(code, msg))
}

// tickUsb pumps the serial port: ingest frames, advance transfer
// sessions, drain the outbox.
func (a *App) tickUsb(elapsedMs int) {
	u := a.usb
	data, err := u.port.Poll()
	if err != nil {
		switch u.state {
		case UsbActive:
			// Transport gone mid-session: end it as if ejected.
			slog.Warn("Serial transport lost", "err", err)
			a.endUsbSession()
			u.state = UsbIdle
			a.markDirty()
		case UsbPrompt, UsbRejected:
			// No session was begun; the UI mode still owns the card
			// and its engine. Just drop the prompt.
			slog.Warn("Serial transport lost", "err", err)
			u.state = UsbIdle
			u.quietMs = 0
			a.markDirty()
		}
		return
	}

	if len(data) > 0 {
		u.parser.Feed(data)
		u.quietMs = 0
	} else {
		u.quietMs += elapsedMs
	}

	for {
		f, err := u.parser.Next()
		if err != nil {
			var fe *fmp.FrameError
			if errors.As(err, &fe) && u.state == UsbActive {
				u.send(&fmp.Frame{
					Flags:     fmp.FlagResp | fmp.FlagErr | fmp.FlagEOF,
					RequestID: fe.RequestID,
					Payload:   fmp.ErrorPayload(fe.Code, fe.Code.String()),
				})
			}
			continue
		}
		if f == nil {
			break
		}
		a.handleFrame(f)
	}

	if u.state == UsbRejected && u.quietMs >= rejectedQuietMs {
		slog.Info("Host quiet, leaving rejected state")
		u.state = UsbIdle
	}

	u.pumpRead()
	u.drainOutbox()

	if u.eject {
		u.eject = false
		u.drainOutbox() // flush the eject ack first
		a.endUsbSession()
		u.state = UsbIdle
		a.markDirty()
	}
}

func (u *UsbController) drainOutbox() {
	n := 0
	for len(u.outbox) > 0 && n < usbFramesPerTick {
		if _, err := u.port.Write(u.outbox[0]); err != nil {
			slog.Warn("Serial write failed", "err", err)
			u.outbox = nil
			return
		}
		u.outbox = u.outbox[1:]
		n++
	}
}

// tickUsbPrompt runs the Allow/Reject modal.
func (a *App) tickUsbPrompt() {
	u := a.usb
	switch {
	case a.in.Pressed(input.Left) || a.in.Pressed(input.Right):
		u.promptAllow = !u.promptAllow
		a.markDirty()
	case a.in.Pressed(input.Confirm):
		if u.promptAllow {
			a.beginUsbSession()
		} else {
			u.state = UsbRejected
			u.quietMs = 0
		}
		a.markDirty()
	case a.in.Pressed(input.Back):
		u.state = UsbRejected
		u.quietMs = 0
		a.markDirty()
	}
}

// beginUsbSession hands the card to the host: the active engine is
// closed, state flushed and the token moves to the transfer session.
func (a *App) beginUsbSession() {
	u := a.usb
	a.releaseCurrent()
	tok, err := a.arb.Acquire(arbiter.OwnerUsb)
	if err != nil {
		slog.Error("Could not acquire token for transfer", "err", err)
		u.state = UsbRejected
		return
	}
	u.token = tok
	u.state = UsbActive
	// The idle clock was ticking while the prompt was up; pin it so
	// the session starts frozen at zero.
	a.idleMs = 0
	slog.Info("Transfer session started")
}

// endUsbSession releases the card and rebuilds in-memory state from
// it, since the host may have changed anything.
func (a *App) endUsbSession() {
	u := a.usb
	u.closeSessions()
	u.outbox = nil
	if u.token != nil {
		u.arb.Release(u.token)
		u.token = nil
	}
	a.st = store.Load(a.src.FS())
	a.enterHome()
	slog.Info("Transfer session ended")
}

func (a *App) handleFrame(f *fmp.Frame) {
	u := a.usb

	// Any traffic before consent, ping included, is refused; the
	// first frame raises the prompt.
	switch u.state {
	case UsbIdle:
		slog.Info("Host traffic, prompting", "cmd", f.Command)
		u.state = UsbPrompt
		u.promptAllow = false
		u.replyErr(f, fmp.ErrBusy, "awaiting user consent")
		a.markDirty()
		return
	case UsbPrompt, UsbRejected:
		u.replyErr(f, fmp.ErrBusy, "transfer not accepted")
		return
	}

	switch f.Command {
	case fmp.CmdPing:
		var p [4]byte
		binary.LittleEndian.PutUint32(p[:], fmp.PingCookie)
		u.reply(f, fmp.FlagEOF, p[:])
	case fmp.CmdInfo:
		var p [8]byte
		binary.LittleEndian.PutUint32(p[0:4], uint32(fmp.DefaultMaxPayload))
		binary.LittleEndian.PutUint32(p[4:8], 0) // capability bits
		u.reply(f, fmp.FlagEOF, p[:])
	case fmp.CmdList:
		u.handleList(f)
	case fmp.CmdRead:
		u.handleRead(f)
	case fmp.CmdWrite:
		u.handleWrite(f)
	case fmp.CmdDelete:
		u.handlePath(f, u.fsys.Remove)
	case fmp.CmdMkdir:
		u.handlePath(f, u.fsys.Mkdir)
	case fmp.CmdRmdir:
		u.handleRmdir(f)
	case fmp.CmdRename:
		u.handleRename(f)
	case fmp.CmdEject:
		u.reply(f, fmp.FlagEOF, nil)
		u.eject = true
	default:
		u.replyErr(f, fmp.ErrInvalidCommand, "")
	}
}

// fsCode maps a filesystem error to a protocol error code.
func fsCode(err error) fmp.ErrorCode {
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		return fmp.ErrNotFound
	case errors.Is(err, vfs.ErrBadPath):
		return fmp.ErrBadPath
	case errors.Is(err, vfs.ErrNotPermitted):
		return fmp.ErrNotPermitted
	default:
		return fmp.ErrIo
	}
}

func (u *UsbController) handleList(f *fmp.Frame) {
	path, rest, err := fmp.ReadString(f.Payload)
	if err != nil || len(rest) != 0 {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed list request")
		return
	}
	entries, err := u.fsys.List(path)
	if err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}

	// Entries pack into frames up to the payload bound; only the
	// first frame carries the count.
	buf := bytes.NewBuffer(nil)
	binary.Write(buf, binary.LittleEndian, uint32(len(entries)))
	flush := func(last bool) {
		flags := uint8(fmp.FlagCont)
		if last {
			flags = fmp.FlagEOF
		}
		u.reply(f, flags, append([]byte(nil), buf.Bytes()...))
		buf.Reset()
	}
	for _, e := range entries {
		rec := bytes.NewBuffer(nil)
		fmp.WriteString(rec, e.Name)
		var dir uint8
		if e.Dir {
			dir = 1
		}
		rec.WriteByte(dir)
		rec.WriteByte(0)
		binary.Write(rec, binary.LittleEndian, uint64(e.Size))
		if buf.Len()+rec.Len() > fmp.DefaultMaxPayload {
			flush(false)
		}
		buf.Write(rec.Bytes())
	}
	flush(true)
}

func (u *UsbController) handleRead(f *fmp.Frame) {
	path, rest, err := fmp.ReadString(f.Payload)
	if err != nil || len(rest) != 8 {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed read request")
		return
	}
	offset := binary.LittleEndian.Uint32(rest[0:4])
	length := binary.LittleEndian.Uint32(rest[4:8])

	st, err := u.fsys.Stat(path)
	if err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}
	if st.Dir {
		u.replyErr(f, fmp.ErrNotPermitted, "is a directory")
		return
	}
	fh, err := u.fsys.Open(path)
	if err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}
	if _, err := fh.Seek(int64(offset), io.SeekStart); err != nil {
		fh.Close()
		u.replyErr(f, fmp.ErrIo, err.Error())
		return
	}
	remaining := st.Size - int64(offset)
	if remaining < 0 {
		remaining = 0
	}
	if length != 0 && int64(length) < remaining {
		remaining = int64(length)
	}
	if u.read != nil {
		u.read.f.Close()
	}
	u.read = &readSession{req: f.RequestID, f: fh, remaining: remaining}
}

// pumpRead feeds the outbox from the open read session, chunk by
// chunk, without letting the queue grow beyond a tick's worth.
func (u *UsbController) pumpRead() {
	r := u.read
	if r == nil {
		return
	}
	for len(u.outbox) < usbFramesPerTick {
		n := int64(fmp.DefaultMaxPayload)
		if r.remaining < n {
			n = r.remaining
		}
		chunk := make([]byte, n)
		if n > 0 {
			got, err := io.ReadFull(r.f, chunk)
			if err != nil && got == 0 {
				u.send(&fmp.Frame{
					Flags:     fmp.FlagResp | fmp.FlagErr | fmp.FlagEOF,
					Command:   fmp.CmdRead,
					RequestID: r.req,
					Payload:   fmp.ErrorPayload(fmp.ErrIo, err.Error()),
				})
				r.f.Close()
				u.read = nil
				return
			}
			chunk = chunk[:got]
			r.remaining -= int64(got)
		}
		last := r.remaining == 0 || int64(len(chunk)) < n
		flags := uint8(fmp.FlagResp | fmp.FlagCont)
		if last {
			flags = fmp.FlagResp | fmp.FlagEOF
		}
		u.send(&fmp.Frame{
			Flags:     flags,
			Command:   fmp.CmdRead,
			RequestID: r.req,
			Payload:   chunk,
		})
		r.sent = true
		if last {
			r.f.Close()
			u.read = nil
			return
		}
	}
}

func (u *UsbController) handleWrite(f *fmp.Frame) {
	// Follow-up frames of an open session carry raw data.
	if u.write != nil && f.RequestID == u.write.req {
		if _, err := u.write.f.Write(f.Payload); err != nil {
			u.replyErr(f, fmp.ErrIo, err.Error())
			u.write.f.Close()
			u.write = nil
			return
		}
		if f.IsEOF() {
			err := u.write.f.Close()
			path := u.write.path
			u.write = nil
			if err != nil {
				u.replyErr(f, fmp.ErrIo, err.Error())
				return
			}
			slog.Info("File received", "path", path)
		}
		u.reply(f, fmp.FlagEOF, nil)
		return
	}

	path, rest, err := fmp.ReadString(f.Payload)
	if err != nil || len(rest) < 4 {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed write request")
		return
	}
	offset := binary.LittleEndian.Uint32(rest[0:4])
	data := rest[4:]

	var fh vfs.WFile
	if offset == 0 {
		fh, err = u.fsys.Create(path)
	} else {
		fh, err = u.fsys.OpenWrite(path)
		if err == nil {
			_, err = fh.Seek(int64(offset), io.SeekStart)
		}
	}
	if err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		u.replyErr(f, fmp.ErrIo, err.Error())
		return
	}
	if f.IsEOF() {
		if err := fh.Close(); err != nil {
			u.replyErr(f, fmp.ErrIo, err.Error())
			return
		}
		slog.Info("File received", "path", path)
	} else {
		if u.write != nil {
			u.write.f.Close()
		}
		u.write = &writeSession{req: f.RequestID, path: path, f: fh}
	}
	u.reply(f, fmp.FlagEOF, nil)
}

func (u *UsbController) handlePath(f *fmp.Frame, op func(string) error) {
	path, rest, err := fmp.ReadString(f.Payload)
	if err != nil || len(rest) != 0 {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed request")
		return
	}
	if err := op(path); err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}
	u.reply(f, fmp.FlagEOF, nil)
}

func (u *UsbController) handleRmdir(f *fmp.Frame) {
	path, rest, err := fmp.ReadString(f.Payload)
	if err != nil || len(rest) != 1 {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed rmdir request")
		return
	}
	if err := u.fsys.Rmdir(path, rest[0] != 0); err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}
	u.reply(f, fmp.FlagEOF, nil)
}

func (u *UsbController) handleRename(f *fmp.Frame) {
	from, rest, err := fmp.ReadString(f.Payload)
	if err != nil {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed rename request")
		return
	}
	to, rest, err := fmp.ReadString(rest)
	if err != nil || len(rest) != 0 {
		u.replyErr(f, fmp.ErrInvalidArgs, "malformed rename request")
		return
	}
	if err := u.fsys.Rename(from, to); err != nil {
		u.replyErr(f, fsCode(err), err.Error())
		return
	}
	u.reply(f, fmp.FlagEOF, nil)
}
