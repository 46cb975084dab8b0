// ternd is the reader's application processor daemon. It runs the
// same coordinator on device hardware (run) or inside a terminal
// simulator (sim).
package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ternreader/tern/pkg/app"
)

var version = "0.3.0-dev"

var rootCmd = &cobra.Command{
	Use:          "ternd",
	Short:        "ternd drives the tern e-paper reader",
	SilenceUsage: true,
}

var (
	flagConfig  string
	flagVerbose bool
)

// loadConfig reads the configured (or default) TOML file; absence of
// the default file falls back to built-in defaults.
func loadConfig() (app.Config, error) {
	path := flagConfig
	explicit := path != ""
	if !explicit {
		path, _ = xdg.ConfigFile("tern/ternd.toml")
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return app.DefaultConfig(), nil
		}
		return cfg, err
	}
	return cfg, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to ternd.toml (default: XDG config dir)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	cobra.OnInitialize(func() {
		if flagVerbose {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	})
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}
