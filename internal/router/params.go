package router

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/fpang/media-pipeline/internal/request"
)

// Recognized parameter keys.
const (
	ParamWidth      = "width"
	ParamHeight     = "height"
	ParamText       = "text"
	ParamFilterType = "type"
	ParamFormat     = "format"
	ParamQuality    = "quality"
	ParamDuration   = "duration"
)

// Params is a resolved parameter set. Values are already validated, so the
// accessors do not return errors.
type Params map[string]string

func (p Params) clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Int returns the integer value of key, or 0 when absent.
func (p Params) Int(key string) int {
	n, _ := strconv.Atoi(p[key])
	return n
}

// Get returns the value of key.
func (p Params) Get(key string) string {
	return p[key]
}

// Filters supported by the image engine.
var Filters = []string{"grayscale", "sepia", "blur", "invert", "sharpen"}

// Qualities supported by the video compressor.
var Qualities = []string{"low", "medium", "high"}

// imageFormats maps a conversion target to its content type.
var imageFormats = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
}

// Formats lists the accepted FORMAT_CONVERSION targets.
func Formats() []string {
	return slices.Sorted(maps.Keys(imageFormats))
}

const maxDimension = 10000

// keys each route reads; anything else in the request is ignored.
var routeKeys = map[request.ProcessingType][]string{
	request.Thumbnail:        {ParamWidth, ParamHeight},
	request.Resize:           {ParamWidth, ParamHeight},
	request.Watermark:        {ParamText},
	request.VideoWatermark:   {ParamText},
	request.Filter:           {ParamFilterType},
	request.FormatConversion: {ParamFormat},
	request.VideoCompress:    {ParamQuality},
	request.VideoPreview:     {ParamDuration},
}

func resolveParams(route Route, in map[string]string) (Params, error) {
	out := route.defaults.clone()
	for _, key := range routeKeys[route.Type] {
		raw, ok := in[key]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := normalize(key, raw)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func normalize(key, raw string) (string, error) {
	v := strings.TrimSpace(raw)
	switch key {
	case ParamWidth, ParamHeight:
		return positiveInt(key, v, maxDimension)
	case ParamDuration:
		return positiveInt(key, v, 3600)
	case ParamFilterType:
		return oneOf(key, strings.ToLower(v), Filters)
	case ParamQuality:
		return oneOf(key, strings.ToLower(v), Qualities)
	case ParamFormat:
		return oneOf(key, strings.ToLower(v), Formats())
	case ParamText:
		return raw, nil
	}
	return v, nil
}

func positiveInt(key, v string, limit int) (string, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > limit {
		return "", fmt.Errorf("%w: parameter %s=%q must be an integer in 1..%d", request.ErrMalformedRequest, key, v, limit)
	}
	return strconv.Itoa(n), nil
}

func oneOf(key, v string, allowed []string) (string, error) {
	if !slices.Contains(allowed, v) {
		return "", fmt.Errorf("%w: parameter %s=%q must be one of %s", request.ErrMalformedRequest, key, v, strings.Join(allowed, ", "))
	}
	return v, nil
}
