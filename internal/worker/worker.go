// Package worker executes processing requests end to end: fetch the source,
// route it to an engine, write the derived artifact, tag the source. It also
// decides what happens to the queue message afterwards.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/metrics"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
	"github.com/fpang/media-pipeline/internal/store"
)

// Source metadata keys written after a successful transform.
const (
	MetaProcessed      = "processed"
	MetaProcessingType = "processingType"
)

// Outcome describes a completed request.
type Outcome struct {
	Request     request.Request
	Plan        router.Plan
	Namespace   string
	DerivedKey  string
	ContentType string
	Size        int
}

// Ref returns the artifact reference as "namespace/key".
func (o Outcome) Ref() string { return o.Namespace + "/" + o.DerivedKey }

// Notifier is told about every artifact that was written.
type Notifier interface {
	ArtifactProcessed(ctx context.Context, o Outcome) error
}

// Worker processes one request at a time. It holds no per-request state and
// may be shared by any number of goroutines.
type Worker struct {
	Store   store.Store
	Engines engine.Registry
	// Notifier is optional. Its failures are logged only.
	Notifier Notifier
	// Metrics defaults to metrics.Discard.
	Metrics metrics.Sink
}

func (w *Worker) sink() metrics.Sink {
	if w.Metrics == nil {
		return metrics.Discard
	}
	return w.Metrics
}

// Process runs a validated request. The artifact is written before the
// source is tagged; a failure between the two leaves an artifact that the
// next delivery overwrites with equal bytes.
func (w *Worker) Process(ctx context.Context, req request.Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	plan, err := router.ResolveRequest(req)
	if err != nil {
		return Outcome{}, err
	}

	src, err := w.Store.Get(ctx, req.Namespace, req.SourceKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("fetch source: %w", err)
	}

	out, err := w.Engines.Dispatch(ctx, src, plan)
	if err != nil {
		return Outcome{}, err
	}
	if len(out) == 0 {
		return Outcome{}, engine.Failed(plan.Type, "apply", errors.New("engine produced no output"))
	}

	o := Outcome{
		Request:     req,
		Plan:        plan,
		Namespace:   plan.Namespace,
		DerivedKey:  plan.DerivedKey(req.SourceKey),
		ContentType: plan.ContentType,
		Size:        len(out),
	}
	if err := w.Store.Put(ctx, o.Namespace, o.DerivedKey, out, o.ContentType); err != nil {
		return Outcome{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := store.Merge(ctx, w.Store, req.Namespace, req.SourceKey, map[string]string{
		MetaProcessed:      "true",
		MetaProcessingType: req.Type.String(),
	}); errors.Is(err, store.ErrMetadataLimit) {
		// The artifact is written; a full tag set would fail the same way on
		// every delivery.
		log.Warn().Err(err).Str("key", req.SourceKey).Msg("Source has no room for processing tags")
	} else if err != nil {
		return Outcome{}, fmt.Errorf("tag source: %w", err)
	}

	if w.Notifier != nil {
		if err := w.Notifier.ArtifactProcessed(ctx, o); err != nil {
			log.Warn().Err(err).Str("artifact", o.Ref()).Msg("Artifact notification failed")
		}
	}
	return o, nil
}

// Handle decodes and processes one message body and reports what to do with
// the message. It never panics and never returns an error: every failure is
// folded into the disposition.
func (w *Worker) Handle(ctx context.Context, messageID string, body []byte) (d Disposition) {
	start := time.Now()
	var (
		req request.Request
		o   Outcome
		err error
	)
	sink := w.sink()
	sink.InFlight(1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", request.ErrTransformFailure, r)
			log.Error().
				Str("messageId", messageID).
				Str("stack", string(debug.Stack())).
				Msg("Recovered panic while processing request")
			d = Drop
		}
		sink.InFlight(-1)
		w.record(messageID, req, o, d, err, start)
	}()

	req, err = request.Decode(body)
	if err == nil {
		o, err = w.Process(ctx, req)
	}
	return Classify(err)
}

func (w *Worker) record(messageID string, req request.Request, o Outcome, d Disposition, err error, start time.Time) {
	elapsed := time.Since(start)
	evt := log.Info()
	switch d {
	case Drop:
		evt = log.Warn().Err(err)
	case Abandon:
		evt = log.Error().Err(err)
	}
	evt = evt.
		Str("messageId", messageID).
		Str("namespace", req.Namespace).
		Str("key", req.SourceKey).
		Str("processingType", req.Type.String()).
		Str("disposition", d.String()).
		Dur("elapsed", elapsed)
	if d == Ack {
		evt = evt.Str("artifact", o.Ref()).Int("size", o.Size)
	}
	evt.Msg("Processing request handled")

	engineKind := ""
	if o.Plan.Engine != "" {
		engineKind = string(o.Plan.Engine)
	} else if route, lerr := router.Lookup(req.Type); lerr == nil {
		engineKind = string(route.Engine)
	}
	w.sink().Observe(metrics.Observation{
		Type:        req.Type.String(),
		Engine:      engineKind,
		Disposition: d.String(),
		Duration:    elapsed,
		OutputBytes: o.Size,
	})
}
