package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternreader/tern/pkg/app"
	"github.com/ternreader/tern/pkg/platform"
	"github.com/ternreader/tern/pkg/vfs"
)

var (
	runSpiPort = "SPI0.0"
	runDcPin   = "GPIO25"
	runRstPin  = "GPIO17"
	runBusyPin = "GPIO24"
	runBattery = "battery"
)

// tickEvery is the hardware loop period. E-paper refreshes dominate
// frame time; the loop just has to stay responsive to buttons.
const tickEvery = 30 * time.Millisecond

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run on device hardware (SPI panel, evdev buttons)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		disp, err := platform.NewEpd(platform.EpdConfig{
			SpiPort: runSpiPort,
			DcPin:   runDcPin,
			RstPin:  runRstPin,
			BusyPin: runBusyPin,
			Width:   cfg.Display.Width,
			Height:  cfg.Display.Height,
		})
		if err != nil {
			return fmt.Errorf("could not open panel: %w", err)
		}
		defer disp.Close()

		fsys, err := vfs.NewOsFS(cfg.Library)
		if err != nil {
			return fmt.Errorf("could not open library %q: %w", cfg.Library, err)
		}

		buttons, err := platform.OpenButtons(cfg.Input.Device, cfg.Input.Keymap)
		if err != nil {
			return fmt.Errorf("could not open buttons: %w", err)
		}
		defer buttons.Close()

		var port app.Port
		if cfg.Serial.Port != "" {
			serial, err := platform.OpenSerial(cfg.Serial.Port)
			if err != nil {
				return fmt.Errorf("could not open serial port: %w", err)
			}
			port = serial
		}

		a, err := app.New(cfg, disp, fsys, port, platform.NewBattery(runBattery), version)
		if err != nil {
			return err
		}
		defer a.Close()
		a.Start()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		slog.Info("Reader up", "version", version, "library", cfg.Library)
		ticker := time.NewTicker(tickEvery)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-stop:
				slog.Info("Shutting down")
				return nil
			case now := <-ticker.C:
				evs, err := buttons.Poll()
				if err != nil {
					return fmt.Errorf("input device lost: %w", err)
				}
				a.HandleInput(evs)
				elapsed := int(now.Sub(last) / time.Millisecond)
				last = now
				a.Tick(elapsed)
				if _, err := a.Render(); err != nil {
					return fmt.Errorf("render failed: %w", err)
				}
			}
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runSpiPort, "spi", runSpiPort, "SPI port of the panel")
	runCmd.Flags().StringVar(&runDcPin, "dc", runDcPin, "Panel data/command GPIO")
	runCmd.Flags().StringVar(&runRstPin, "rst", runRstPin, "Panel reset GPIO")
	runCmd.Flags().StringVar(&runBusyPin, "busy", runBusyPin, "Panel busy GPIO")
	runCmd.Flags().StringVar(&runBattery, "battery", runBattery, "sysfs power supply name")
}
