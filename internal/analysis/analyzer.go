// Package analysis is the AI analysis engine. It asks a vision model about an
// image and returns a structured result. A failed feature never fails the
// request: its message is collected in the result's "error" field next to
// whatever other features succeeded.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

// Result is a structured analysis keyed by feature name.
type Result map[string]any

// Result keys.
const (
	FieldType       = "processingType"
	FieldTags       = "tags"
	FieldCaption    = "caption"
	FieldObjects    = "objects"
	FieldFaces      = "faces"
	FieldFaceCount  = "faceCount"
	FieldText       = "text"
	FieldLines      = "lines"
	FieldModeration = "moderation"
	FieldMessage    = "message"
	FieldError      = "error"
)

// Analyzer implements engine.Engine for analysis processing types.
type Analyzer struct {
	Model Model
	// Moderation enables CONTENT_MODERATION through Model. When false the
	// result carries an explanatory message instead.
	Moderation bool
}

var _ engine.Engine = (*Analyzer)(nil)

// New returns an Analyzer over model. model may be nil, in which case every
// feature reports an error field.
func New(model Model, moderation bool) *Analyzer {
	return &Analyzer{Model: model, Moderation: moderation}
}

// Apply runs Analyze and encodes the result as JSON. Map keys are sorted by
// encoding/json, so equal results encode to equal bytes. Only cancellation
// is returned as an error.
func (a *Analyzer) Apply(ctx context.Context, data []byte, plan router.Plan) ([]byte, error) {
	result := a.Analyze(ctx, data, plan.Type)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis interrupted: %w", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, engine.Failed(plan.Type, "encode", err)
	}
	return out, nil
}

// Analyze runs the features for t against data.
func (a *Analyzer) Analyze(ctx context.Context, data []byte, t request.ProcessingType) Result {
	start := time.Now()
	result := Result{FieldType: string(t)}
	var errs []string
	run := func(name string, fn func(context.Context, []byte, string, Result) error) {
		if err := a.feature(ctx, data, result, fn); err != nil {
			errs = append(errs, name+": "+err.Error())
		}
	}

	switch t {
	case request.ImageAnalysis, request.ObjectRecognition:
		run(FieldTags, a.tags)
		run(FieldCaption, a.caption)
		run(FieldObjects, a.objects)
	case request.FaceDetection:
		run(FieldFaces, a.faces)
	case request.TextExtraction:
		run(FieldText, a.text)
	case request.ContentModeration:
		if !a.Moderation {
			result[FieldMessage] = "Content moderation is not enabled for this deployment"
			break
		}
		run(FieldModeration, a.moderate)
	default:
		errs = append(errs, fmt.Sprintf("%s is not an analysis type", t))
	}

	if len(errs) > 0 {
		result[FieldError] = strings.Join(errs, "; ")
	}
	log.Info().
		Str("processingType", t.String()).
		Int("input_bytes", len(data)).
		Int("failed_features", len(errs)).
		Dur("elapsed", time.Since(start)).
		Msg("Analysis complete")
	return result
}

func (a *Analyzer) feature(ctx context.Context, data []byte, result Result, fn func(context.Context, []byte, string, Result) error) (err error) {
	if a.Model == nil {
		return fmt.Errorf("no analysis backend configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis backend panic: %v", r)
		}
	}()
	return fn(ctx, data, http.DetectContentType(data), result)
}

func (a *Analyzer) ask(ctx context.Context, data []byte, mimeType, prompt string) (string, error) {
	return a.Model.Generate(ctx, systemPrompt, prompt, data, mimeType)
}
