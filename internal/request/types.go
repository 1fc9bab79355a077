// Package request defines the Processing Request, the unit of work carried on
// the work queue, along with the error taxonomy the pipeline uses to decide
// whether a failed message is dropped or handed back for redelivery.
package request

import (
	"fmt"
	"strings"
)

// ProcessingType names one transformation from the closed set the pipeline
// knows how to route.
type ProcessingType string

// Image transformations.
const (
	Thumbnail        ProcessingType = "THUMBNAIL"
	Watermark        ProcessingType = "WATERMARK"
	Resize           ProcessingType = "RESIZE"
	Filter           ProcessingType = "FILTER"
	FormatConversion ProcessingType = "FORMAT_CONVERSION"
)

// Video transformations.
const (
	VideoThumbnail ProcessingType = "VIDEO_THUMBNAIL"
	VideoWatermark ProcessingType = "VIDEO_WATERMARK"
	VideoCompress  ProcessingType = "VIDEO_COMPRESS"
	AudioExtract   ProcessingType = "AUDIO_EXTRACT"
	VideoPreview   ProcessingType = "VIDEO_PREVIEW"
)

// AI analysis.
const (
	ImageAnalysis     ProcessingType = "IMAGE_ANALYSIS"
	FaceDetection     ProcessingType = "FACE_DETECTION"
	ObjectRecognition ProcessingType = "OBJECT_RECOGNITION"
	TextExtraction    ProcessingType = "TEXT_EXTRACTION"
	ContentModeration ProcessingType = "CONTENT_MODERATION"
)

var allTypes = []ProcessingType{
	Thumbnail, Watermark, Resize, Filter, FormatConversion,
	VideoThumbnail, VideoWatermark, VideoCompress, AudioExtract, VideoPreview,
	ImageAnalysis, FaceDetection, ObjectRecognition, TextExtraction, ContentModeration,
}

// AllTypes returns every supported processing type in declaration order.
func AllTypes() []ProcessingType {
	out := make([]ProcessingType, len(allTypes))
	copy(out, allTypes)
	return out
}

// Valid reports whether t is a member of the enumeration.
func (t ProcessingType) Valid() bool {
	for _, v := range allTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (t ProcessingType) String() string { return string(t) }

// ParseType converts a user- or wire-supplied string into a ProcessingType.
// Matching ignores surrounding whitespace and case.
func ParseType(s string) (ProcessingType, error) {
	t := ProcessingType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
	}
	return t, nil
}
