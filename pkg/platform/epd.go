// Package platform binds the reader to Linux device interfaces: the
// SPI e-paper panel, evdev buttons, a termios serial port and the
// sysfs battery supply.
package platform

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ternreader/tern/pkg/display"
)

// UC8176-class controller commands.
const (
	epdPanelSetting  = 0x00
	epdPowerOff      = 0x02
	epdPowerOn       = 0x04
	epdBoosterSoft   = 0x06
	epdDeepSleep     = 0x07
	epdDataOld       = 0x10
	epdRefresh       = 0x12
	epdDataNew       = 0x13
	epdVcomSetting   = 0x50
	epdResolution    = 0x61
	epdPartialWindow = 0x90
	epdPartialIn     = 0x91
	epdPartialOut    = 0x92
	epdCheckCode     = 0xA5
)

// EpdConfig names the wiring of the panel.
type EpdConfig struct {
	SpiPort string // e.g. "SPI0.0"
	DcPin   string
	RstPin  string
	BusyPin string
	Width   int
	Height  int
	Hz      physic.Frequency
}

// Epd drives the e-paper panel over SPI. Implements display.Display.
// Panel geometry is the panel's native orientation; rotation happens
// in the framebuffer.
type Epd struct {
	conn   spi.Conn
	port   spi.PortCloser
	dc     gpio.PinOut
	rst    gpio.PinOut
	busy   gpio.PinIn
	w, h   int
	asleep bool
}

// NewEpd initializes the host, opens the SPI port and resets the
// panel.
func NewEpd(cfg EpdConfig) (*Epd, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init periph host: %w", err)
	}
	port, err := spireg.Open(cfg.SpiPort)
	if err != nil {
		return nil, fmt.Errorf("could not open SPI port %q: %w", cfg.SpiPort, err)
	}
	hz := cfg.Hz
	if hz == 0 {
		hz = 8 * physic.MegaHertz
	}
	conn, err := port.Connect(hz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("could not connect SPI: %w", err)
	}
	e := &Epd{
		conn: conn,
		port: port,
		dc:   gpioreg.ByName(cfg.DcPin),
		rst:  gpioreg.ByName(cfg.RstPin),
		busy: gpioreg.ByName(cfg.BusyPin),
		w:    cfg.Width,
		h:    cfg.Height,
	}
	if e.dc == nil || e.rst == nil || e.busy == nil {
		port.Close()
		return nil, fmt.Errorf("could not resolve panel GPIO pins (%s, %s, %s)", cfg.DcPin, cfg.RstPin, cfg.BusyPin)
	}
	if err := e.reset(); err != nil {
		port.Close()
		return nil, err
	}
	if err := e.initPanel(); err != nil {
		port.Close()
		return nil, err
	}
	return e, nil
}

func (e *Epd) Size() (int, int) {
	return e.w, e.h
}

func (e *Epd) command(cmd byte, data ...byte) error {
	if err := e.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := e.conn.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("command %02x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	return e.data(data)
}

func (e *Epd) data(data []byte) error {
	if err := e.dc.Out(gpio.High); err != nil {
		return err
	}
	// SPI transfers are bounded by the kernel's bufsiz.
	const chunk = 4096
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		if err := e.conn.Tx(data[:n], nil); err != nil {
			return fmt.Errorf("data write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

func (e *Epd) reset() error {
	for _, lv := range []gpio.Level{gpio.Low, gpio.High} {
		if err := e.rst.Out(lv); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

func (e *Epd) initPanel() error {
	steps := []struct {
		cmd  byte
		data []byte
	}{
		{epdBoosterSoft, []byte{0x17, 0x17, 0x17}},
		{epdPowerOn, nil},
	}
	for _, s := range steps {
		if err := e.command(s.cmd, s.data...); err != nil {
			return err
		}
	}
	e.waitIdle()
	if err := e.command(epdPanelSetting, 0x1F); err != nil {
		return err
	}
	return e.command(epdResolution,
		byte(e.w>>8), byte(e.w), byte(e.h>>8), byte(e.h))
}

// waitIdle blocks until the controller releases the busy line.
func (e *Epd) waitIdle() {
	deadline := time.Now().Add(5 * time.Second)
	for e.busy.Read() == gpio.Low {
		if time.Now().After(deadline) {
			slog.Warn("Panel busy wait timed out")
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Flush pushes one packed plane. Set bits are ink; the controller
// wants 0 for black, so the plane is inverted on the way out.
func (e *Epd) Flush(plane []byte, mode display.RefreshMode) error {
	if e.asleep {
		if err := e.Wake(); err != nil {
			return err
		}
	}
	inv := invertPlane(plane)
	if mode == display.Partial {
		if err := e.command(epdPartialIn); err != nil {
			return err
		}
		if err := e.command(epdPartialWindow,
			0, 0, byte((e.w-1)>>8), byte(e.w-1),
			0, 0, byte((e.h-1)>>8), byte(e.h-1), 0x01); err != nil {
			return err
		}
	}
	if err := e.command(epdDataNew, inv...); err != nil {
		return err
	}
	if err := e.command(epdRefresh); err != nil {
		return err
	}
	e.waitIdle()
	if mode == display.Partial {
		return e.command(epdPartialOut)
	}
	return nil
}

// FlushGray drives a 2-bit image: the gray planes run through the
// old/new data registers with the panel's grayscale waveform, then
// the base plane settles the final state.
func (e *Epd) FlushGray(bw, lsb, msb []byte) error {
	if e.asleep {
		if err := e.Wake(); err != nil {
			return err
		}
	}
	if err := e.command(epdDataOld, invertPlane(msb)...); err != nil {
		return err
	}
	if err := e.command(epdDataNew, invertPlane(lsb)...); err != nil {
		return err
	}
	if err := e.command(epdRefresh); err != nil {
		return err
	}
	e.waitIdle()
	if err := e.command(epdDataNew, invertPlane(bw)...); err != nil {
		return err
	}
	return nil
}

func (e *Epd) Sleep() error {
	if e.asleep {
		return nil
	}
	if err := e.command(epdVcomSetting, 0xF7); err != nil {
		return err
	}
	if err := e.command(epdPowerOff); err != nil {
		return err
	}
	e.waitIdle()
	if err := e.command(epdDeepSleep, epdCheckCode); err != nil {
		return err
	}
	e.asleep = true
	return nil
}

func (e *Epd) Wake() error {
	if !e.asleep {
		return nil
	}
	if err := e.reset(); err != nil {
		return err
	}
	if err := e.initPanel(); err != nil {
		return err
	}
	e.asleep = false
	return nil
}

func (e *Epd) Close() error {
	err := e.Sleep()
	if cerr := e.port.Close(); err == nil {
		err = cerr
	}
	return err
}

func invertPlane(p []byte) []byte {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = ^b
	}
	return out
}
