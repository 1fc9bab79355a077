package request

import "errors"

// Failure taxonomy. Adapters and engines wrap these so the worker can decide
// with errors.Is whether a message is dropped or abandoned for redelivery.
var (
	// ErrMalformedRequest marks a payload that can never succeed.
	ErrMalformedRequest = errors.New("malformed processing request")

	// ErrUnsupportedType marks a processing type outside the enumeration.
	ErrUnsupportedType = errors.New("unsupported processing type")

	// ErrSourceNotFound marks a request whose source object is absent.
	ErrSourceNotFound = errors.New("source object not found")

	// ErrTransformFailure marks a decode/encode failure inside an engine.
	ErrTransformFailure = errors.New("transform failed")

	// ErrStoreUnavailable marks a transient content store failure.
	ErrStoreUnavailable = errors.New("content store unavailable")

	// ErrQueueUnavailable marks a transient work queue failure.
	ErrQueueUnavailable = errors.New("work queue unavailable")
)

// IsClientError reports whether err was caused by the request itself rather
// than by infrastructure. Synchronous callers map these to 4xx responses.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrUnsupportedType)
}
