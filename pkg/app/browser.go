package app

import (
	"fmt"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/input"
	"github.com/ternreader/tern/pkg/source"
	"github.com/ternreader/tern/pkg/ui"
	"github.com/ternreader/tern/pkg/vfs"
)

// browserState walks the library. Only recognized media files and
// directories are listed; Back pops one level, or exits to the start
// menu at the root.
type browserState struct {
	dir     string
	entries []source.Entry
	list    ui.List
}

func (b *browserState) open(a *App, dir string) error {
	if dir == "" {
		dir = "/"
	}
	return b.load(a, dir)
}

func (b *browserState) load(a *App, dir string) error {
	entries, err := a.src.List(dir)
	if err != nil {
		return fmt.Errorf("could not list %s: %w", dir, err)
	}
	b.dir = dir
	b.entries = entries
	items := make([]string, len(entries))
	for i, e := range entries {
		if e.Kind == source.KindDir {
			items[i] = e.Name + "/"
		} else {
			items[i] = e.Name
		}
	}
	b.list.Title = "Library " + dir
	b.list.SetItems(items)
	b.list.Select(0)
	return nil
}

func (a *App) tickBrowser() {
	b := &a.browser
	switch {
	case a.in.Pressed(input.Up):
		if b.list.Up() {
			a.markDirty()
		}
	case a.in.Pressed(input.Down):
		if b.list.Down() {
			a.markDirty()
		}
	case a.in.Pressed(input.Confirm):
		if len(b.entries) == 0 {
			return
		}
		e := b.entries[b.list.Selected()]
		if e.Kind == source.KindDir {
			if err := b.load(a, e.Path); err != nil {
				a.showError("Could not open folder", err)
				return
			}
			a.markDirty()
			return
		}
		a.openMedia(e.Path)
	case a.in.Pressed(input.Back):
		if b.dir == "/" {
			a.goHome()
			return
		}
		parent := vfs.Dir(b.dir)
		if err := b.load(a, parent); err != nil {
			a.showError("Could not open folder", err)
			return
		}
		a.markDirty()
	}
}

func (b *browserState) draw(buf *fb.Buffer) {
	b.list.Draw(buf)
}
