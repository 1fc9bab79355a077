package imageproc

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	blurSigma    = 2.0
	sharpenSigma = 1.0
)

func applyFilter(src image.Image, name string) (image.Image, error) {
	switch name {
	case "grayscale":
		return imaging.Grayscale(src), nil
	case "sepia":
		return imaging.AdjustFunc(src, sepia), nil
	case "blur":
		return imaging.Blur(src, blurSigma), nil
	case "invert":
		return imaging.Invert(src), nil
	case "sharpen":
		return imaging.Sharpen(src, sharpenSigma), nil
	}
	return nil, fmt.Errorf("unknown filter %q", name)
}

// sepia applies the standard sepia tone matrix.
func sepia(c color.NRGBA) color.NRGBA {
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	return color.NRGBA{
		R: clamp(0.393*r + 0.769*g + 0.189*b),
		G: clamp(0.349*r + 0.686*g + 0.168*b),
		B: clamp(0.272*r + 0.534*g + 0.131*b),
		A: c.A,
	}
}

func clamp(v float64) uint8 {
	return uint8(math.Min(255, math.Round(v)))
}
