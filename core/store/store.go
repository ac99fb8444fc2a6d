// Package store defines the persistence boundary of the dispatch engine.
// The backing store is an opaque, strongly consistent collection store with
// query-by-field and atomic single-document updates.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/medbox/dispenser/core/model"
)

// ErrNotFound is returned when the addressed document does not exist.
var ErrNotFound = errors.New("document not found")

// PlanStore persists dispense plans. Plans are created by the planning
// surface and mutated only by the scheduler.
type PlanStore interface {
	Put(ctx context.Context, plan model.DispensePlan) error
	Get(ctx context.Context, id string) (model.DispensePlan, error)

	// FindDue returns all PENDING plans with scheduledAt <= now, ordered
	// ascending by scheduledAt.
	FindDue(ctx context.Context, now time.Time) ([]model.DispensePlan, error)

	// SetStatus atomically updates one plan's status.
	SetStatus(ctx context.Context, id string, status model.PlanStatus) error

	// MarkDispensed completes a one-shot plan and stamps dispensedAt.
	MarkDispensed(ctx context.Context, id string, at time.Time) error

	// Reschedule advances a recurring plan: scheduledAt = next, status back
	// to PENDING, lastDispensedAt stamped.
	Reschedule(ctx context.Context, id string, next, dispensedAt time.Time) error
}

// HistoryQuery filters history records.
type HistoryQuery struct {
	Start   time.Time
	End     time.Time
	Origin  model.Origin
	Outcome model.Outcome
}

// HistoryStore appends immutable dispense audit records.
type HistoryStore interface {
	Append(ctx context.Context, rec model.HistoryRecord) error
	Query(ctx context.Context, q HistoryQuery) ([]model.HistoryRecord, error)
}

// CommandStore holds ad-hoc dispense commands until they are consumed.
type CommandStore interface {
	Add(ctx context.Context, cmd model.AdHocCommand) error
	Delete(ctx context.Context, id string) error

	// Watch returns a channel that first replays every unconsumed command
	// already present, then streams commands as they are added. The channel
	// is closed when ctx is done.
	Watch(ctx context.Context) (<-chan model.AdHocCommand, error)
}

// MagazineStore describes the device's magazine slots.
type MagazineStore interface {
	// Seed inserts the given magazines if the collection is empty.
	Seed(ctx context.Context, mags []model.Magazine) error
	List(ctx context.Context) ([]model.Magazine, error)
}
