package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Request is one self-contained transformation job. The worker needs nothing
// beyond a Request and the content store to complete it.
//
// The JSON tags are the queue wire format and must not change.
type Request struct {
	SourceKey  string            `json:"blobName"`
	Namespace  string            `json:"containerName"`
	MediaID    string            `json:"mediaId,omitempty"`
	Type       ProcessingType    `json:"processingType"`
	Parameters map[string]string `json:"parameters"`
}

// New builds a Request, copying params so the caller's map can be reused.
func New(namespace, sourceKey string, t ProcessingType, params map[string]string) Request {
	r := Request{
		SourceKey:  sourceKey,
		Namespace:  namespace,
		Type:       t,
		Parameters: make(map[string]string, len(params)),
	}
	for k, v := range params {
		r.Parameters[k] = v
	}
	return r
}

// WithMediaID returns a copy of r correlated to the given media item.
func (r Request) WithMediaID(id string) Request {
	r.MediaID = id
	return r
}

// Param returns the named parameter, or "" when absent.
func (r Request) Param(key string) string {
	if r.Parameters == nil {
		return ""
	}
	return r.Parameters[key]
}

// Validate checks the request shape. Every failure wraps ErrMalformedRequest;
// an unknown processing type additionally wraps ErrUnsupportedType.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SourceKey) == "" {
		missing = append(missing, "blobName")
	}
	if strings.TrimSpace(r.Namespace) == "" {
		missing = append(missing, "containerName")
	}
	if r.Type == "" {
		missing = append(missing, "processingType")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedRequest, strings.Join(missing, ", "))
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrMalformedRequest, ErrUnsupportedType, string(r.Type))
	}
	return nil
}

// Encode returns the queue payload for r.
func (r Request) Encode() (string, error) {
	if r.Parameters == nil {
		r.Parameters = map[string]string{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return string(data), nil
}

// Decode parses and validates a queue payload. The processing type is
// normalized the same way ParseType does before validation.
func Decode(body []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(body, &r); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Request{}, fmt.Errorf("%w: field %s: %v", ErrMalformedRequest, typeErr.Field, err)
		}
		return Request{}, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if r.Type != "" {
		if t, err := ParseType(string(r.Type)); err == nil {
			r.Type = t
		}
	}
	if r.Parameters == nil {
		r.Parameters = map[string]string{}
	}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}
