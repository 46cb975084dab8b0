// ternctl talks to a tern reader over its file transfer protocol:
// directly to hardware (USB serial or a tty) or to a running
// simulator (TCP loopback).
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/adrg/xdg"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.3.0-dev"

var rootCmd = &cobra.Command{
	Use:          "ternctl",
	Short:        "ternctl manages books and images on a tern reader",
	SilenceUsage: true,
}

var flagDevice string

// deviceSpec resolves the transport to use: the --device flag, else
// the address saved by a previous `ternctl use`.
func deviceSpec() (string, error) {
	if flagDevice != "" {
		return flagDevice, nil
	}
	path, err := xdg.ConfigFile("tern/device")
	if err == nil {
		if data, err := os.ReadFile(path); err == nil {
			if spec := strings.TrimSpace(string(data)); spec != "" {
				glog.V(1).Infof("Using saved device %q", spec)
				return spec, nil
			}
		}
	}
	return "", fmt.Errorf("no device given; pass --device or run `ternctl use <device>`")
}

var useCmd = &cobra.Command{
	Use:   "use [device]",
	Short: "Save a default device (tcp:<addr>, tty:<path> or usb)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseDeviceSpec(args[0]); err != nil {
			return err
		}
		path, err := xdg.ConfigFile("tern/device")
		if err != nil {
			return fmt.Errorf("could not resolve config path: %w", err)
		}
		if err := os.WriteFile(path, []byte(args[0]+"\n"), 0o644); err != nil {
			return fmt.Errorf("could not save device: %w", err)
		}
		fmt.Printf("Default device set to %s\n", args[0])
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagDevice, "device", "d", "", "Device transport: tcp:<addr>, tty:<path> or usb")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(useCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(ejectCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(imageCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}
