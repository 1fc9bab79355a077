package metrics

import (
	"io"
	"time"
)

// Observation describes one handled processing request.
type Observation struct {
	Type        string
	Engine      string
	Disposition string
	Duration    time.Duration
	InputBytes  int
	OutputBytes int
}

// Sink receives worker observations.
type Sink interface {
	Observe(o Observation)
	// InFlight adjusts the number of requests currently being handled.
	InFlight(delta int)
}

// Discard is a Sink that records nothing.
var Discard Sink = discard{}

type discard struct{}

func (discard) Observe(Observation) {}
func (discard) InFlight(int)        {}

// EMF writes one EMF line per observation.
type EMF struct {
	Namespace string
	// Out defaults to stdout when nil.
	Out io.Writer
}

func (e EMF) Observe(o Observation) {
	ns := e.Namespace
	if ns == "" {
		ns = Namespace
	}
	r := New(ns).
		Dimension("ProcessingType", o.Type).
		Dimension("Disposition", o.Disposition).
		Count("Requests").
		Metric("TransformMs", float64(o.Duration.Milliseconds()), UnitMilliseconds).
		Metric("OutputBytes", float64(o.OutputBytes), UnitBytes).
		Property("engine", o.Engine).
		Property("inputBytes", o.InputBytes)
	if e.Out != nil {
		r.To(e.Out)
	}
	r.Flush()
}

func (EMF) InFlight(int) {}

// Tee fans observations out to several sinks.
type Tee []Sink

func (t Tee) Observe(o Observation) {
	for _, s := range t {
		s.Observe(o)
	}
}

func (t Tee) InFlight(delta int) {
	for _, s := range t {
		s.InFlight(delta)
	}
}
