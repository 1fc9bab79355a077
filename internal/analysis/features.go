package analysis

import (
	"context"
	"strings"
)

const systemPrompt = `You are an image analysis service. Answer only with a single JSON object matching the requested schema. Confidence values are between 0 and 1. Bounding boxes use pixel coordinates of the supplied image.`

const (
	tagsPrompt = `List descriptive tags for this image.
Schema: {"tags": [{"name": string, "confidence": number}]}`

	captionPrompt = `Write a one-sentence caption describing this image.
Schema: {"caption": string, "confidence": number}`

	objectsPrompt = `Detect the distinct physical objects in this image.
Schema: {"objects": [{"name": string, "confidence": number, "box": {"x": int, "y": int, "width": int, "height": int}}]}`

	facesPrompt = `Detect every human face in this image.
Schema: {"faces": [{"box": {"x": int, "y": int, "width": int, "height": int}, "confidence": number, "ageRange": string, "emotion": string}]}`

	textPrompt = `Extract all legible text from this image, preserving reading order.
Schema: {"text": string, "lines": [string]}`

	moderationPrompt = `Assess this image for unsafe content.
Schema: {"flagged": boolean, "categories": {"adult": number, "racy": number, "violence": number, "hate": number, "selfHarm": number}}`
)

// Box is a pixel-space bounding box.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Tag is one descriptive label.
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// DetectedObject is one recognized object.
type DetectedObject struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Box        *Box    `json:"box,omitempty"`
}

// Face is one detected face.
type Face struct {
	Box        Box     `json:"box"`
	Confidence float64 `json:"confidence"`
	AgeRange   string  `json:"ageRange,omitempty"`
	Emotion    string  `json:"emotion,omitempty"`
}

// Moderation is a safety assessment.
type Moderation struct {
	Flagged    bool               `json:"flagged"`
	Categories map[string]float64 `json:"categories"`
}

func (a *Analyzer) tags(ctx context.Context, data []byte, mimeType string, result Result) error {
	raw, err := a.ask(ctx, data, mimeType, tagsPrompt)
	if err != nil {
		return err
	}
	reply, err := parseReply[struct {
		Tags []Tag `json:"tags"`
	}](raw)
	if err != nil {
		return err
	}
	if reply.Tags == nil {
		reply.Tags = []Tag{}
	}
	result[FieldTags] = reply.Tags
	return nil
}

func (a *Analyzer) caption(ctx context.Context, data []byte, mimeType string, result Result) error {
	raw, err := a.ask(ctx, data, mimeType, captionPrompt)
	if err != nil {
		return err
	}
	reply, err := parseReply[struct {
		Caption    string  `json:"caption"`
		Confidence float64 `json:"confidence"`
	}](raw)
	if err != nil {
		return err
	}
	result[FieldCaption] = strings.TrimSpace(reply.Caption)
	return nil
}

func (a *Analyzer) objects(ctx context.Context, data []byte, mimeType string, result Result) error {
	raw, err := a.ask(ctx, data, mimeType, objectsPrompt)
	if err != nil {
		return err
	}
	reply, err := parseReply[struct {
		Objects []DetectedObject `json:"objects"`
	}](raw)
	if err != nil {
		return err
	}
	if reply.Objects == nil {
		reply.Objects = []DetectedObject{}
	}
	result[FieldObjects] = reply.Objects
	return nil
}

func (a *Analyzer) faces(ctx context.Context, data []byte, mimeType string, result Result) error {
	raw, err := a.ask(ctx, data, mimeType, facesPrompt)
	if err != nil {
		return err
	}
	reply, err := parseReply[struct {
		Faces []Face `json:"faces"`
	}](raw)
	if err != nil {
		return err
	}
	if reply.Faces == nil {
		reply.Faces = []Face{}
	}
	result[FieldFaces] = reply.Faces
	result[FieldFaceCount] = len(reply.Faces)
	return nil
}

func (a *Analyzer) text(ctx context.Context, data []byte, mimeType string, result Result) error {
	raw, err := a.ask(ctx, data, mimeType, textPrompt)
	if err != nil {
		return err
	}
	reply, err := parseReply[struct {
		Text  string   `json:"text"`
		Lines []string `json:"lines"`
	}](raw)
	if err != nil {
		return err
	}
	if reply.Lines == nil {
		reply.Lines = []string{}
	}
	result[FieldText] = reply.Text
	result[FieldLines] = reply.Lines
	return nil
}

func (a *Analyzer) moderate(ctx context.Context, data []byte, mimeType string, result Result) error {
	raw, err := a.ask(ctx, data, mimeType, moderationPrompt)
	if err != nil {
		return err
	}
	reply, err := parseReply[Moderation](raw)
	if err != nil {
		return err
	}
	result[FieldModeration] = reply
	return nil
}
