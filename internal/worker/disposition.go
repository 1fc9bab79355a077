package worker

import (
	"errors"

	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/store"
)

// Disposition is what happens to a queue message after handling.
type Disposition int

const (
	// Ack deletes the message: the request completed.
	Ack Disposition = iota
	// Drop deletes the message: the request can never succeed.
	Drop
	// Abandon returns the message to the queue for redelivery.
	Abandon
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Abandon:
		return "abandon"
	default:
		return "unknown"
	}
}

// Deletes reports whether the message should be removed from the queue.
func (d Disposition) Deletes() bool { return d != Abandon }

// Classify maps a processing error to a disposition. Errors caused by the
// request or its source are dropped. Infrastructure errors and anything
// unrecognized are abandoned so a later delivery can try again.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, request.ErrStoreUnavailable),
		errors.Is(err, request.ErrQueueUnavailable):
		return Abandon
	case errors.Is(err, request.ErrMalformedRequest),
		errors.Is(err, request.ErrUnsupportedType),
		errors.Is(err, request.ErrSourceNotFound),
		errors.Is(err, request.ErrTransformFailure),
		errors.Is(err, store.ErrMetadataLimit):
		return Drop
	default:
		return Abandon
	}
}
