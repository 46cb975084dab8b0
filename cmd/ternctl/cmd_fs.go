package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check the link to the reader",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Println("Reader is alive.")
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show device transfer parameters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		info, err := c.Info()
		if err != nil {
			return err
		}
		fmt.Printf("max payload:  %d bytes\n", info.MaxPayload)
		fmt.Printf("capabilities: %08x\n", info.Capabilities)
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory on the card",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "/"
		if len(args) == 1 {
			dir = args[0]
		}
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		entries, err := c.List(dir)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].Dir != entries[j].Dir {
				return entries[i].Dir
			}
			return entries[i].Name < entries[j].Name
		})
		for _, e := range entries {
			if e.Dir {
				fmt.Printf("%12s  %s/\n", "", e.Name)
			} else {
				fmt.Printf("%12d  %s\n", e.Size, e.Name)
			}
		}
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull [remote] [local]",
	Short: "Copy a file from the card",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := args[0]
		local := path.Base(remote)
		if len(args) == 2 {
			local = args[1]
		}
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		glog.Infof("Reading %s...", remote)
		data, err := c.Read(remote, 0, 0)
		if err != nil {
			return err
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			return fmt.Errorf("could not write %q: %w", local, err)
		}
		fmt.Printf("%s -> %s (%d bytes)\n", remote, local, len(data))
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push [local] [remote]",
	Short: "Copy a file to the card",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		local := args[0]
		remote := "/" + filepath.Base(local)
		if len(args) == 2 {
			remote = args[1]
		}
		data, err := os.ReadFile(local)
		if err != nil {
			return fmt.Errorf("could not read %q: %w", local, err)
		}
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		glog.Infof("Writing %s...", remote)
		if err := c.Write(remote, data); err != nil {
			return err
		}
		fmt.Printf("%s -> %s (%d bytes)\n", local, remote, len(data))
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [path]",
	Short: "Delete a file on the card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		return c.Delete(args[0])
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv [from] [to]",
	Short: "Rename a file or directory on the card",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		return c.Rename(args[0], args[1])
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir [path]",
	Short: "Create a directory on the card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		return c.Mkdir(args[0])
	},
}

var rmdirRecursive bool

var rmdirCmd = &cobra.Command{
	Use:   "rmdir [path]",
	Short: "Remove a directory on the card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		return c.Rmdir(args[0], rmdirRecursive)
	},
}

var ejectCmd = &cobra.Command{
	Use:   "eject",
	Short: "End the transfer session and let the reader rescan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()
		return c.Eject()
	},
}

func init() {
	rmdirCmd.Flags().BoolVarP(&rmdirRecursive, "recursive", "r", false, "Remove contents too")
}
