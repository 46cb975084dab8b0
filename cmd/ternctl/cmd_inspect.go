package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ternreader/tern/pkg/trbk"
	"github.com/ternreader/tern/pkg/trim"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Inspect book files",
}

// bookInfo is the YAML shape of `book info`.
type bookInfo struct {
	Title      string `yaml:"title"`
	Author     string `yaml:"author,omitempty"`
	Language   string `yaml:"language,omitempty"`
	Identifier string `yaml:"identifier,omitempty"`
	Version    uint8  `yaml:"version"`
	Screen     string `yaml:"screen"`
	Pages      int    `yaml:"pages"`
	TocEntries int    `yaml:"toc_entries"`
	Glyphs     int    `yaml:"glyphs"`
	Images     int    `yaml:"images"`
	Font       string `yaml:"font,omitempty"`
	LineHeight uint16 `yaml:"line_height"`
}

var bookInfoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show a book's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		st, err := f.Stat()
		if err != nil {
			return err
		}
		b, err := trbk.Open(f, st.Size())
		if err != nil {
			return err
		}
		info := bookInfo{
			Title:      b.Meta.Title,
			Author:     b.Meta.Author,
			Language:   b.Meta.Language,
			Identifier: b.Meta.Identifier,
			Version:    b.Header.Version,
			Screen:     fmt.Sprintf("%dx%d", b.Header.ScreenWidth, b.Header.ScreenHeight),
			Pages:      b.PageCount(),
			TocEntries: len(b.Toc),
			Glyphs:     b.GlyphCount(),
			Images:     b.ImageCount(),
			Font:       b.Meta.FontName,
			LineHeight: b.Meta.LineHeight,
		}
		out, err := yaml.Marshal(&info)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	},
}

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Inspect image files",
}

type imageInfo struct {
	Format  string `yaml:"format"`
	Version uint8  `yaml:"version"`
	Size    string `yaml:"size"`
	Planes  int    `yaml:"planes"`
	Bytes   int    `yaml:"bytes"`
}

var imageInfoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Show an image's header",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		h, err := trim.ParseHeader(f)
		if err != nil {
			return err
		}
		info := imageInfo{
			Format:  trim.Format(h.Format).String(),
			Version: h.Version,
			Size:    fmt.Sprintf("%dx%d", h.Width, h.Height),
			Planes:  h.Planes(),
			Bytes:   trim.HeaderSize + h.PayloadSize(),
		}
		out, err := yaml.Marshal(&info)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		return nil
	},
}

func init() {
	bookCmd.AddCommand(bookInfoCmd)
	imageCmd.AddCommand(imageInfoCmd)
}
