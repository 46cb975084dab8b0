package app

import (
	"github.com/ternreader/tern/pkg/display"
	"github.com/ternreader/tern/pkg/ui"
)

// Render performs one render pass if one is due. Returns whether the
// panel was touched.
func (a *App) Render() (bool, error) {
	switch a.sleep.stage {
	case stageEntering:
		return true, a.renderSleepEntry()
	case stageWaking:
		return true, a.renderWake()
	case stageSleeping:
		return false, nil
	}
	if !a.dirty {
		return false, nil
	}
	return true, a.renderFrame(false)
}

// renderFrame draws the active screen and pushes it to the panel.
// forceFull requests a full refresh regardless of content.
func (a *App) renderFrame(forceFull bool) error {
	mode := display.Partial
	gray := false

	if a.usb != nil && a.usb.State() == UsbActive {
		a.buf.Clear()
		ui.Message(a.buf, "USB transfer", []string{
			"The card is connected to the host.",
			"Eject from the host to continue.",
		})
	} else {
		switch a.mode {
		case ModeHome:
			a.home.draw(a, a.buf)
		case ModeBrowser:
			a.browser.draw(a.buf)
		case ModeImageViewer:
			a.image.draw(a, a.buf)
			gray = a.image.gray
			mode = display.Full
		case ModeBookReader:
			a.book.draw(a, a.buf)
			gray = a.book.gray
			if a.book.refreshMode() {
				mode = display.Full
			}
		}
		if a.overlay != nil {
			a.overlay.draw(a.buf)
		}
		if a.usb != nil && a.usb.State() == UsbPrompt {
			ui.Prompt(a.buf, "USB transfer",
				[]string{"A host wants access to the card."},
				"Allow", "Reject", a.usb.promptAllow)
		}
	}
	if forceFull {
		mode = display.Full
	}

	var err error
	if gray {
		var lsb, msb []byte
		if a.mode == ModeImageViewer && a.image.lease != nil {
			lsb, msb = a.image.lease.LSB, a.image.lease.MSB
		} else if a.mode == ModeBookReader && a.book.lease != nil {
			lsb, msb = a.book.lease.LSB, a.book.lease.MSB
		}
		err = a.disp.FlushGray(a.buf.Back(), lsb, msb)
	} else {
		err = a.disp.Flush(a.buf.Back(), mode)
	}
	if err != nil {
		return err
	}
	a.buf.Swap()
	a.dirty = false
	return nil
}
