package main

import (
	"archive/tar"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"

	"github.com/ternreader/tern/pkg/fmclient"
)

var backupOut string

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Download the whole card into a .tar.xz archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := backupOut
		if out == "" {
			out = fmt.Sprintf("tern-backup-%s.tar.xz", time.Now().Format("20060102-150405"))
		}
		c, closeFn, err := connect()
		if err != nil {
			return err
		}
		defer closeFn()

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("could not create %q: %w", out, err)
		}
		defer f.Close()
		xw, err := xz.NewWriter(f)
		if err != nil {
			return fmt.Errorf("could not start xz stream: %w", err)
		}
		tw := tar.NewWriter(xw)

		files, bytes, err := backupDir(c, tw, "/")
		if err != nil {
			return err
		}
		if err := tw.Close(); err != nil {
			return err
		}
		if err := xw.Close(); err != nil {
			return err
		}
		fmt.Printf("Backed up %d files (%d bytes) to %s\n", files, bytes, out)
		return nil
	},
}

// backupDir walks the card recursively, streaming every file into
// the archive.
func backupDir(c *fmclient.Client, tw *tar.Writer, dir string) (int, int64, error) {
	entries, err := c.List(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("could not list %q: %w", dir, err)
	}
	files := 0
	var total int64
	for _, e := range entries {
		full := path.Join(dir, e.Name)
		if e.Dir {
			if err := tw.WriteHeader(&tar.Header{
				Name:     full[1:] + "/",
				Typeflag: tar.TypeDir,
				Mode:     0o755,
				ModTime:  time.Now(),
			}); err != nil {
				return files, total, err
			}
			f, b, err := backupDir(c, tw, full)
			files += f
			total += b
			if err != nil {
				return files, total, err
			}
			continue
		}
		glog.Infof("Reading %s...", full)
		data, err := c.Read(full, 0, 0)
		if err != nil {
			return files, total, fmt.Errorf("could not read %q: %w", full, err)
		}
		if err := tw.WriteHeader(&tar.Header{
			Name:    full[1:],
			Size:    int64(len(data)),
			Mode:    0o644,
			ModTime: time.Now(),
		}); err != nil {
			return files, total, err
		}
		if _, err := tw.Write(data); err != nil {
			return files, total, err
		}
		files++
		total += int64(len(data))
	}
	return files, total, nil
}

func init() {
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Archive path (default: tern-backup-<timestamp>.tar.xz)")
}
