// Package convert turns host-side raster images (PNG, JPEG) into the
// reader's TRIM format, resizing to the panel and reducing to one or
// two bits per pixel.
package convert

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"

	"github.com/ternreader/tern/pkg/trim"
)

// Algorithm selects the tone reduction method.
type Algorithm string

const (
	// FloydSteinberg error diffusion, the default for photos.
	FloydSteinberg Algorithm = "floyd-steinberg"
	// Bayer 4x4 ordered dithering, stable across frames.
	Bayer Algorithm = "bayer"
	// Threshold hard cut at mid-gray, for line art.
	Threshold Algorithm = "threshold"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case FloydSteinberg, Bayer, Threshold:
		return Algorithm(s), nil
	case "":
		return FloydSteinberg, nil
	}
	return "", fmt.Errorf("unknown dithering algorithm %q", s)
}

// Options controls one conversion.
type Options struct {
	// Width and Height of the output. Zero means the 480x800 panel.
	Width  int
	Height int
	// Gray selects the 2-bit format; otherwise monochrome.
	Gray bool
	// Algorithm for tone reduction.
	Algorithm Algorithm
	// Stretch skips aspect-preserving fit.
	Stretch bool
}

// panel defaults, portrait.
const (
	defaultWidth  = 480
	defaultHeight = 800
)

// monoPalette and grayPalette are chosen so each entry lands on a
// distinct quantizer level of trim.Image.SetLevel.
var (
	monoPalette = []color.Color{color.Black, color.White}
	grayPalette = []color.Color{
		color.Gray{Y: 0},
		color.Gray{Y: 128},
		color.Gray{Y: 192},
		color.Gray{Y: 255},
	}
)

// Decode reads a PNG, JPEG or GIF.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("could not decode image: %w", err)
	}
	return img, nil
}

// ToTRIM converts src into a TRIM image per o.
func ToTRIM(src image.Image, o Options) (*trim.Image, error) {
	w, h := o.Width, o.Height
	if w == 0 {
		w = defaultWidth
	}
	if h == 0 {
		h = defaultHeight
	}
	algo, err := ParseAlgorithm(string(o.Algorithm))
	if err != nil {
		return nil, err
	}

	var scaled image.Image
	if o.Stretch {
		scaled = imaging.Resize(src, w, h, imaging.Lanczos)
	} else {
		scaled = imaging.Fit(src, w, h, imaging.Lanczos)
	}
	scaled = imaging.Grayscale(scaled)

	palette := monoPalette
	format := trim.Mono1
	if o.Gray {
		palette = grayPalette
		format = trim.Gray2
	}
	reduced := reduce(scaled, palette, algo)

	b := reduced.Bounds()
	out := trim.NewImage(format, b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g := color.GrayModel.Convert(reduced.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
			out.SetLevel(x, y, g.Y)
		}
	}
	return out, nil
}

func reduce(img image.Image, palette []color.Color, algo Algorithm) image.Image {
	switch algo {
	case Threshold:
		return thresholdReduce(img, palette)
	case Bayer:
		d := dither.NewDitherer(palette)
		d.Mapper = dither.Bayer(4, 4, 1.0)
		return d.Dither(img)
	default:
		d := dither.NewDitherer(palette)
		d.Matrix = dither.FloydSteinberg
		return d.Dither(img)
	}
}

// thresholdReduce snaps each pixel to the nearest palette entry
// without diffusion.
func thresholdReduce(img image.Image, palette []color.Color) image.Image {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			out.SetGray(x, y, nearestGray(g, palette))
		}
	}
	return out
}

func nearestGray(g color.Gray, palette []color.Color) color.Gray {
	best := color.Gray{}
	bestDist := 1 << 30
	for _, c := range palette {
		p := color.GrayModel.Convert(c).(color.Gray)
		d := int(p.Y) - int(g.Y)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = p
		}
	}
	return best
}
