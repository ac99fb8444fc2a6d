// Package events defines the dispense related events emitted on the event bus.
//
// Available event types:
//   - DispenseEvent: outcome of one orchestrated dispense attempt
//   - PlanEvent: plan status transition driven by the scheduler
//   - CommandEvent: ad-hoc command picked up by the ingestion bridge
package events

import (
	"time"

	"github.com/medbox/dispenser/core/model"
)

// DispenseEvent is published for each dispense attempt, acknowledged or not.
type DispenseEvent struct {
	Token   string
	Origin  model.Origin
	Outcome model.Outcome
	Items   []model.PlanItem
	Latency time.Duration
	Err     error
}

// PlanEvent is published when the scheduler moves a plan to a new status.
type PlanEvent struct {
	PlanID string
	Status model.PlanStatus
}

// CommandEvent is published when the ingestion bridge consumes a command.
type CommandEvent struct {
	CommandID string
	Requester string
	Deleted   bool
	Err       error
}
