package model

import "time"

// AdHocCommand is an externally created, immediate dispense request. It is
// consumed exactly once by the ingestion bridge and deleted afterwards;
// while present it counts as in flight.
type AdHocCommand struct {
	ID        string     `json:"id"`
	Items     []PlanItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	Requester string     `json:"requester,omitempty"`
}
