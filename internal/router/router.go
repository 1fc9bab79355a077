// Package router maps a processing type to the engine that performs it, the
// namespace and content type of its output, and the suffix that names the
// derived artifact. Everything here is pure: no I/O, no clocks, no globals
// that change after init.
package router

import (
	"fmt"

	"github.com/fpang/media-pipeline/internal/request"
)

// EngineKind selects one of the three transform backends.
type EngineKind string

const (
	EngineImage    EngineKind = "image"
	EngineVideo    EngineKind = "video"
	EngineAnalysis EngineKind = "analysis"
)

// Content store namespaces.
const (
	NamespaceOriginals  = "originals"
	NamespaceThumbnails = "thumbnails"
	NamespaceProcessed  = "processed"
	NamespaceTemp       = "temp"
)

// Content types produced by the engines.
const (
	ContentTypeJPEG = "image/jpeg"
	ContentTypeMP4  = "video/mp4"
	ContentTypeMP3  = "audio/mpeg"
	ContentTypeJSON = "application/json"
)

// Route is the static routing entry for one processing type.
type Route struct {
	Type      request.ProcessingType
	Engine    EngineKind
	Namespace string

	defaults    Params
	suffix      func(Params) string
	contentType func(Params) string
}

// Defaults returns a copy of the parameter defaults for this route.
func (r Route) Defaults() Params {
	return r.defaults.clone()
}

// Plan is a fully resolved route: defaults applied, parameters validated and
// normalized, suffix and content type computed.
type Plan struct {
	Route
	Params      Params
	Suffix      string
	ContentType string
}

// DerivedKey names the artifact this plan produces from sourceKey.
func (p Plan) DerivedKey(sourceKey string) string {
	return p.Suffix + "-" + sourceKey
}

func fixed(s string) func(Params) string {
	return func(Params) string { return s }
}

var table = map[request.ProcessingType]Route{
	request.Thumbnail: {
		Engine:      EngineImage,
		defaults:    Params{ParamWidth: "200", ParamHeight: "200"},
		suffix:      fixed("thumb"),
		contentType: fixed(ContentTypeJPEG),
	},
	request.Watermark: {
		Engine:      EngineImage,
		defaults:    Params{ParamText: "Copyright"},
		suffix:      fixed("watermark"),
		contentType: fixed(ContentTypeJPEG),
	},
	request.Resize: {
		Engine:      EngineImage,
		defaults:    Params{ParamWidth: "800", ParamHeight: "600"},
		suffix:      fixed("resize"),
		contentType: fixed(ContentTypeJPEG),
	},
	request.Filter: {
		Engine:      EngineImage,
		defaults:    Params{ParamFilterType: "grayscale"},
		suffix:      func(p Params) string { return "filter-" + p[ParamFilterType] },
		contentType: fixed(ContentTypeJPEG),
	},
	request.FormatConversion: {
		Engine:      EngineImage,
		defaults:    Params{ParamFormat: "jpg"},
		suffix:      func(p Params) string { return "convert-" + p[ParamFormat] },
		contentType: func(p Params) string { return imageFormats[p[ParamFormat]] },
	},
	request.VideoThumbnail: {
		Engine:      EngineVideo,
		defaults:    Params{},
		suffix:      fixed("thumb"),
		contentType: fixed(ContentTypeJPEG),
	},
	request.VideoWatermark: {
		Engine:      EngineVideo,
		defaults:    Params{ParamText: "Copyright"},
		suffix:      fixed("watermark"),
		contentType: fixed(ContentTypeMP4),
	},
	request.VideoCompress: {
		Engine:      EngineVideo,
		defaults:    Params{ParamQuality: "medium"},
		suffix:      func(p Params) string { return "compress-" + p[ParamQuality] },
		contentType: fixed(ContentTypeMP4),
	},
	request.AudioExtract: {
		Engine:      EngineVideo,
		defaults:    Params{},
		suffix:      fixed("audio"),
		contentType: fixed(ContentTypeMP3),
	},
	request.VideoPreview: {
		Engine:      EngineVideo,
		defaults:    Params{ParamDuration: "10"},
		suffix:      func(p Params) string { return "preview-" + p[ParamDuration] + "s" },
		contentType: fixed(ContentTypeMP4),
	},
	request.ImageAnalysis: {
		Engine:      EngineAnalysis,
		defaults:    Params{},
		suffix:      fixed("analysis"),
		contentType: fixed(ContentTypeJSON),
	},
	// Shares the general image analysis call; only the artifact name differs.
	request.ObjectRecognition: {
		Engine:      EngineAnalysis,
		defaults:    Params{},
		suffix:      fixed("objects"),
		contentType: fixed(ContentTypeJSON),
	},
	request.FaceDetection: {
		Engine:      EngineAnalysis,
		defaults:    Params{},
		suffix:      fixed("faces"),
		contentType: fixed(ContentTypeJSON),
	},
	request.TextExtraction: {
		Engine:      EngineAnalysis,
		defaults:    Params{},
		suffix:      fixed("text"),
		contentType: fixed(ContentTypeJSON),
	},
	request.ContentModeration: {
		Engine:      EngineAnalysis,
		defaults:    Params{},
		suffix:      fixed("moderation"),
		contentType: fixed(ContentTypeJSON),
	},
}

func init() {
	for t, r := range table {
		r.Type = t
		r.Namespace = NamespaceProcessed
		table[t] = r
	}
}

// Lookup returns the routing entry for t, or ErrUnsupportedType.
func Lookup(t request.ProcessingType) (Route, error) {
	r, ok := table[t]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", request.ErrUnsupportedType, string(t))
	}
	return r, nil
}

// Resolve applies defaults to params, validates the recognized keys, and
// computes the suffix and content type. Unrecognized keys are dropped.
func Resolve(t request.ProcessingType, params map[string]string) (Plan, error) {
	route, err := Lookup(t)
	if err != nil {
		return Plan{}, err
	}
	resolved, err := resolveParams(route, params)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", t, err)
	}
	return Plan{
		Route:       route,
		Params:      resolved,
		Suffix:      route.suffix(resolved),
		ContentType: route.contentType(resolved),
	}, nil
}

// ResolveRequest is Resolve for a decoded request.
func ResolveRequest(r request.Request) (Plan, error) {
	return Resolve(r.Type, r.Parameters)
}

// DerivedKey computes suffix + "-" + sourceKey for the given inputs.
func DerivedKey(sourceKey string, t request.ProcessingType, params map[string]string) (string, error) {
	plan, err := Resolve(t, params)
	if err != nil {
		return "", err
	}
	return plan.DerivedKey(sourceKey), nil
}

// ThumbnailKey names the intake fast-path thumbnail in the thumbnails namespace.
func ThumbnailKey(sourceKey string) string {
	return "thumb-" + sourceKey
}
