package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternreader/tern/pkg/convert"
)

var (
	convertOut     string
	convertWidth   int
	convertHeight  int
	convertGray    bool
	convertAlgo    string
	convertStretch bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [image]",
	Short: "Convert a PNG/JPEG into the reader's TRIM format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := args[0]
		out := convertOut
		if out == "" {
			base := in
			if i := strings.LastIndexByte(base, '.'); i > 0 {
				base = base[:i]
			}
			out = base + ".tri"
		}

		f, err := os.Open(in)
		if err != nil {
			return fmt.Errorf("could not open %q: %w", in, err)
		}
		defer f.Close()
		src, err := convert.Decode(f)
		if err != nil {
			return err
		}

		algo, err := convert.ParseAlgorithm(convertAlgo)
		if err != nil {
			return err
		}
		img, err := convert.ToTRIM(src, convert.Options{
			Width:     convertWidth,
			Height:    convertHeight,
			Gray:      convertGray,
			Algorithm: algo,
			Stretch:   convertStretch,
		})
		if err != nil {
			return err
		}
		data, err := img.Serialize()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("could not write %q: %w", out, err)
		}
		w, h := img.Size()
		fmt.Printf("%s -> %s (%dx%d, %d bytes)\n", in, out, w, h, len(data))
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", "", "Output path (default: input with .tri)")
	convertCmd.Flags().IntVar(&convertWidth, "width", 480, "Target width")
	convertCmd.Flags().IntVar(&convertHeight, "height", 800, "Target height")
	convertCmd.Flags().BoolVarP(&convertGray, "gray", "g", false, "Produce a 2-bit grayscale image")
	convertCmd.Flags().StringVarP(&convertAlgo, "dither", "D", string(convert.FloydSteinberg), "Dithering: floyd-steinberg, bayer or threshold")
	convertCmd.Flags().BoolVar(&convertStretch, "stretch", false, "Stretch instead of aspect-preserving fit")
}
