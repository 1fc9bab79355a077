// Package engine defines the contract shared by the image, video and analysis
// backends and the registry the worker dispatches through.
package engine

import (
	"context"
	"fmt"

	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

// Engine transforms source bytes according to a resolved plan. On failure it
// returns no output and an error wrapping request.ErrTransformFailure for
// codec problems, or an infrastructure error otherwise.
type Engine interface {
	Apply(ctx context.Context, data []byte, plan router.Plan) ([]byte, error)
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, data []byte, plan router.Plan) ([]byte, error)

func (f Func) Apply(ctx context.Context, data []byte, plan router.Plan) ([]byte, error) {
	return f(ctx, data, plan)
}

// TransformError reports a failed transform.
type TransformError struct {
	Type request.ProcessingType
	Op   string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap exposes both the cause and the ErrTransformFailure sentinel.
func (e *TransformError) Unwrap() []error {
	return []error{request.ErrTransformFailure, e.Err}
}

// Failed builds a TransformError.
func Failed(t request.ProcessingType, op string, err error) error {
	return &TransformError{Type: t, Op: op, Err: err}
}

// Registry maps engine kinds to implementations.
type Registry map[router.EngineKind]Engine

// Dispatch runs the engine registered for plan.Engine.
func (r Registry) Dispatch(ctx context.Context, data []byte, plan router.Plan) ([]byte, error) {
	e, ok := r[plan.Engine]
	if !ok || e == nil {
		return nil, Failed(plan.Type, "dispatch", fmt.Errorf("no %s engine configured", plan.Engine))
	}
	return e.Apply(ctx, data, plan)
}
