package model

import "time"

// Outcome is the result of one orchestrated dispense attempt.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeError     Outcome = "ERROR"
)

// Origin identifies which entry point produced a dispense.
type Origin string

const (
	OriginManual    Origin = "MANUAL"
	OriginScheduled Origin = "SCHEDULED"
)

// HistoryRecord is the immutable audit entry written once per dispense
// attempt, whatever its outcome.
type HistoryRecord struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Items     []PlanItem `json:"items"`
	Outcome   Outcome    `json:"outcome"`
	Origin    Origin     `json:"origin"`

	// Ack holds the raw acknowledgment content returned by the device on
	// success; Error holds the failure description otherwise.
	Ack   string `json:"ack,omitempty"`
	Error string `json:"error,omitempty"`
}
