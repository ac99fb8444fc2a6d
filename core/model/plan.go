package model

import (
	"fmt"
	"time"
)

// PlanKind distinguishes one-off plans from weekly recurring ones.
type PlanKind string

const (
	PlanOneShot   PlanKind = "ONE_SHOT"
	PlanRecurring PlanKind = "RECURRING"
)

// PlanStatus is the lifecycle state of a dispense plan.
type PlanStatus string

const (
	StatusPending    PlanStatus = "PENDING"
	StatusDispensing PlanStatus = "DISPENSING"
	StatusCompleted  PlanStatus = "COMPLETED"
	StatusError      PlanStatus = "ERROR"
)

// PlanItem describes one magazine slot and the number of pills to release
// from it.
type PlanItem struct {
	MagazineID   int    `json:"magazineId"`
	MagazineName string `json:"magazineName"`
	Amount       int    `json:"amount"`
}

// DispensePlan is a persisted request to dispense items at a given time,
// once or on a weekly pattern. Recurring plans cycle PENDING -> DISPENSING
// -> PENDING with an advancing ScheduledAt and never complete; one-shot
// plans terminate in COMPLETED or ERROR.
type DispensePlan struct {
	ID          string     `json:"id"`
	Kind        PlanKind   `json:"kind"`
	Items       []PlanItem `json:"items"`
	ScheduledAt time.Time  `json:"scheduledAt"`
	Status      PlanStatus `json:"status"`

	// TimeOfDay ("HH:MM") and RecurringDays (weekdays 0=Sunday..6) are set
	// for recurring plans only.
	TimeOfDay     string `json:"timeOfDay,omitempty"`
	RecurringDays []int  `json:"recurringDays,omitempty"`

	DispensedAt     *time.Time `json:"dispensedAt,omitempty"`
	LastDispensedAt *time.Time `json:"lastDispensedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Validate checks that the plan is well formed.
func (p DispensePlan) Validate() error {
	if p.Kind != PlanOneShot && p.Kind != PlanRecurring {
		return fmt.Errorf("unknown plan kind %q", p.Kind)
	}
	if err := ValidateItems(p.Items); err != nil {
		return err
	}
	if p.Kind == PlanRecurring {
		if p.TimeOfDay == "" {
			return fmt.Errorf("recurring plan requires timeOfDay")
		}
		for _, d := range p.RecurringDays {
			if d < 0 || d > 6 {
				return fmt.Errorf("weekday %d out of range", d)
			}
		}
	}
	return nil
}

// Due reports whether the plan is pending and scheduled at or before now.
func (p DispensePlan) Due(now time.Time) bool {
	return p.Status == StatusPending && !p.ScheduledAt.After(now)
}

// ValidateItems checks that at least one item is present and every amount
// is positive.
func ValidateItems(items []PlanItem) error {
	if len(items) == 0 {
		return fmt.Errorf("at least one item is required")
	}
	for _, it := range items {
		if it.Amount < 1 {
			return fmt.Errorf("magazine %d: amount must be >= 1", it.MagazineID)
		}
	}
	return nil
}

// TotalPills returns the total number of pills across all items.
func TotalPills(items []PlanItem) int {
	total := 0
	for _, it := range items {
		total += it.Amount
	}
	return total
}
