package metrics

import coremetrics "github.com/medbox/dispenser/core/metrics"

// MultiSink fanouts dispense results to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDispense forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordDispense(res coremetrics.DispenseResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordDispense(res); err != nil {
			return err
		}
	}
	return nil
}
