package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ternreader/tern/pkg/app"
	"github.com/ternreader/tern/pkg/sim"
	"github.com/ternreader/tern/pkg/vfs"
)

var (
	simLibrary string
	simListen  string
	simWidth   int
	simHeight  int
)

// simPower fakes a battery for the start menu readout.
type simPower struct{}

func (simPower) BatteryPercent() (int, bool) { return 82, true }

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the reader in a terminal simulator",
	Long: `Renders the panel as half-block cells, takes buttons from the
keyboard and serves the transfer protocol on a TCP loopback so
ternctl can connect with --device tcp:<addr>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if simLibrary != "" {
			cfg.Library = simLibrary
		}
		// Terminal cells are coarse; default to a scaled-down panel
		// unless the config insists otherwise.
		cfg.Display.Width = simWidth
		cfg.Display.Height = simHeight
		cfg.Display.Rotation = "0"
		if err := cfg.Validate(); err != nil {
			return err
		}

		fsys, err := vfs.NewOsFS(cfg.Library)
		if err != nil {
			return fmt.Errorf("could not open library %q: %w", cfg.Library, err)
		}

		screen := sim.NewScreen(cfg.Display.Width, cfg.Display.Height)

		port, err := sim.ListenTcp(simListen)
		if err != nil {
			return err
		}
		defer port.Close()

		watcher, err := sim.NewWatcher(cfg.Library)
		if err != nil {
			return fmt.Errorf("could not watch library: %w", err)
		}
		defer watcher.Close()

		a, err := app.New(cfg, screen, fsys, port, simPower{}, version)
		if err != nil {
			return err
		}
		defer a.Close()

		model := sim.NewModel(a, screen, watcher, port)
		final, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
		if err != nil {
			return err
		}
		if m, ok := final.(sim.Model); ok && m.Err() != nil {
			return m.Err()
		}
		return nil
	},
}

func init() {
	simCmd.Flags().StringVarP(&simLibrary, "library", "l", "", "Library directory (default: config)")
	simCmd.Flags().StringVar(&simListen, "listen", "127.0.0.1:9178", "TCP address for the transfer protocol")
	simCmd.Flags().IntVar(&simWidth, "width", 160, "Simulated panel width")
	simCmd.Flags().IntVar(&simHeight, "height", 120, "Simulated panel height")
}
