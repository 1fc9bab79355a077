package imageproc

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// watermarkColor is white at half opacity.
var watermarkColor = color.NRGBA{R: 255, G: 255, B: 255, A: 128}

var (
	boldOnce sync.Once
	boldFont *opentype.Font
	boldErr  error
)

func loadBold() (*opentype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = opentype.Parse(gobold.TTF)
	})
	return boldFont, boldErr
}

// drawWatermark renders text centered on a copy of src. The font size
// scales with the image width so the mark stays legible on large photos.
func drawWatermark(src image.Image, text string) (image.Image, error) {
	f, err := loadBold()
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	dst := imaging.Clone(src)
	b := dst.Bounds()

	size := float64(b.Dx()) / 15
	if size < 12 {
		size = 12
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("create face: %w", err)
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(watermarkColor),
		Face: face,
	}
	width := d.MeasureString(text)
	metrics := face.Metrics()
	height := metrics.Ascent + metrics.Descent

	x := fixed.I(b.Min.X+b.Dx()/2) - width/2
	y := fixed.I(b.Min.Y+b.Dy()/2) - height/2 + metrics.Ascent
	d.Dot = fixed.Point26_6{X: x, Y: y}
	d.DrawString(text)

	return dst, nil
}
