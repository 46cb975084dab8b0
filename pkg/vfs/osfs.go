package vfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// OsFS exposes one OS directory as the media root. On the device this
// is the mounted SD card; in the simulator it is the library dir.
type OsFS struct {
	root string
}

func NewOsFS(root string) (*OsFS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve root: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("could not stat root: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", abs)
	}
	return &OsFS{root: abs}, nil
}

func (o *OsFS) Root() string {
	return o.root
}

// resolve maps a protocol path onto the host filesystem, refusing
// anything Clean rejects.
func (o *OsFS) resolve(p string) (string, error) {
	cp, err := Clean(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(o.root, filepath.FromSlash(cp)), nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrNotPermitted, err)
	}
	return err
}

func (o *OsFS) List(path string) ([]Entry, error) {
	hp, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	des, err := os.ReadDir(hp)
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([]Entry, 0, len(des))
	for _, de := range des {
		e := Entry{Name: de.Name(), Dir: de.IsDir()}
		if !e.Dir {
			if fi, err := de.Info(); err == nil {
				e.Size = fi.Size()
			}
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (o *OsFS) Stat(path string) (Entry, error) {
	hp, err := o.resolve(path)
	if err != nil {
		return Entry{}, err
	}
	fi, err := os.Stat(hp)
	if err != nil {
		return Entry{}, mapErr(err)
	}
	return Entry{Name: fi.Name(), Dir: fi.IsDir(), Size: fi.Size()}, nil
}

func (o *OsFS) Open(path string) (File, error) {
	hp, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(hp)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (o *OsFS) Create(path string) (WFile, error) {
	hp, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(hp)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (o *OsFS) OpenWrite(path string) (WFile, error) {
	hp, err := o.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(hp, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (o *OsFS) WriteFile(path string, data []byte) error {
	hp, err := o.resolve(path)
	if err != nil {
		return err
	}
	tmp := hp + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return mapErr(err)
	}
	if err := os.Rename(tmp, hp); err != nil {
		os.Remove(tmp)
		return mapErr(err)
	}
	return nil
}

func (o *OsFS) Remove(path string) error {
	hp, err := o.resolve(path)
	if err != nil {
		return err
	}
	fi, err := os.Stat(hp)
	if err != nil {
		return mapErr(err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: is a directory", ErrNotPermitted)
	}
	return mapErr(os.Remove(hp))
}

func (o *OsFS) Mkdir(path string) error {
	hp, err := o.resolve(path)
	if err != nil {
		return err
	}
	return mapErr(os.Mkdir(hp, 0755))
}

func (o *OsFS) Rmdir(path string, recursive bool) error {
	hp, err := o.resolve(path)
	if err != nil {
		return err
	}
	cp, _ := Clean(path)
	if cp == "/" {
		return fmt.Errorf("%w: cannot remove root", ErrNotPermitted)
	}
	fi, err := os.Stat(hp)
	if err != nil {
		return mapErr(err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: not a directory", ErrBadPath)
	}
	if recursive {
		return mapErr(os.RemoveAll(hp))
	}
	return mapErr(os.Remove(hp))
}

func (o *OsFS) Rename(from, to string) error {
	hf, err := o.resolve(from)
	if err != nil {
		return err
	}
	ht, err := o.resolve(to)
	if err != nil {
		return err
	}
	return mapErr(os.Rename(hf, ht))
}
