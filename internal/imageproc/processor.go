// Package imageproc is the image engine: thumbnail, resize, watermark, color
// filters and format conversion over in-memory image bytes.
//
// Decoding goes through disintegration/imaging, which honors EXIF
// orientation and registers JPEG, PNG, GIF, BMP and TIFF. WebP sources are
// accepted through golang.org/x/image/webp.
package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

// DefaultJPEGQuality is used for every JPEG the engine writes.
const DefaultJPEGQuality = 85

// Processor implements engine.Engine for image processing types.
type Processor struct {
	JPEGQuality int
}

var _ engine.Engine = (*Processor)(nil)

// New returns a Processor with default settings.
func New() *Processor {
	return &Processor{JPEGQuality: DefaultJPEGQuality}
}

// Apply decodes data, applies the plan's transform, and encodes the result.
func (p *Processor) Apply(ctx context.Context, data []byte, plan router.Plan) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, engine.Failed(plan.Type, "decode", err)
	}

	var out image.Image
	switch plan.Type {
	case request.Thumbnail, request.Resize:
		w, h := fitBox(src.Bounds().Dx(), src.Bounds().Dy(), plan.Params.Int(router.ParamWidth), plan.Params.Int(router.ParamHeight))
		out = imaging.Resize(src, w, h, imaging.Lanczos)
	case request.Watermark:
		out, err = drawWatermark(src, plan.Params.Get(router.ParamText))
	case request.Filter:
		out, err = applyFilter(src, plan.Params.Get(router.ParamFilterType))
	case request.FormatConversion:
		out = src
	default:
		return nil, engine.Failed(plan.Type, "dispatch", fmt.Errorf("not an image processing type"))
	}
	if err != nil {
		return nil, engine.Failed(plan.Type, "transform", err)
	}

	format := imaging.JPEG
	if plan.Type == request.FormatConversion {
		format, err = imaging.FormatFromExtension(plan.Params.Get(router.ParamFormat))
		if err != nil {
			return nil, engine.Failed(plan.Type, "format", err)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(p.quality())); err != nil {
		return nil, engine.Failed(plan.Type, "encode", err)
	}

	b := out.Bounds()
	log.Debug().
		Str("processingType", plan.Type.String()).
		Int("input_bytes", len(data)).
		Int("output_bytes", buf.Len()).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Dur("elapsed", time.Since(start)).
		Msg("Image transform complete")
	return buf.Bytes(), nil
}

func (p *Processor) quality() int {
	if p.JPEGQuality <= 0 || p.JPEGQuality > 100 {
		return DefaultJPEGQuality
	}
	return p.JPEGQuality
}

// fitBox scales srcW x srcH up or down to the largest size that fits in
// boxW x boxH with the aspect ratio kept. Neither side drops below 1.
func fitBox(srcW, srcH, boxW, boxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return boxW, boxH
	}
	if srcW*boxH <= srcH*boxW {
		// Height is the binding side.
		return max(1, int(math.Round(float64(srcW)*float64(boxH)/float64(srcH)))), boxH
	}
	return boxW, max(1, int(math.Round(float64(srcH)*float64(boxW)/float64(srcW))))
}
