package metrics

import (
	"time"

	"github.com/medbox/dispenser/core/model"
)

// DispenseResult is one dispense attempt as seen by metric sinks.
type DispenseResult struct {
	Token     string
	Origin    model.Origin
	Outcome   model.Outcome
	Items     int
	Pills     int
	Latency   time.Duration
	Timestamp time.Time
	Error     string
}

// Sink records dispense results in a metrics backend.
type Sink interface {
	RecordDispense(res DispenseResult) error
}

// NopSink discards all records.
type NopSink struct{}

// RecordDispense implements Sink.
func (NopSink) RecordDispense(DispenseResult) error { return nil }
