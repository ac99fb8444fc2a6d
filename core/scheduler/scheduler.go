package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medbox/dispenser/core/events"
	"github.com/medbox/dispenser/core/logger"
	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/core/store"
	"github.com/medbox/dispenser/internal/eventbus"
)

// Executor runs one physical dispense. It is implemented by the
// dispense.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, items []model.PlanItem, origin model.Origin) (model.HistoryRecord, error)
}

// Config defines the scheduler cadence loaded from configuration.
type Config struct {
	TickIntervalSeconds int `json:"tick_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TickIntervalSeconds <= 0 {
		c.TickIntervalSeconds = 60
	}
}

// Scheduler scans for due plans on a fixed cadence and drives each through
// its state machine. Plans are processed strictly sequentially; the device
// accepts one command at a time.
type Scheduler struct {
	plans  store.PlanStore
	exec   Executor
	cfg    Config
	logger logger.Logger
	bus    eventbus.EventBus

	// now is swapped in tests to control time.
	now func() time.Time
}

// New creates a Scheduler. The bus may be nil.
func New(plans store.PlanStore, exec Executor, cfg Config, log logger.Logger, bus eventbus.EventBus) (*Scheduler, error) {
	if plans == nil || exec == nil || log == nil {
		return nil, fmt.Errorf("scheduler: nil parameter provided to New")
	}
	cfg.SetDefaults()
	return &Scheduler{
		plans:  plans,
		exec:   exec,
		cfg:    cfg,
		logger: log,
		bus:    bus,
		now:    time.Now,
	}, nil
}

// Run executes ticks until the context is canceled. Ticks never overlap:
// the next tick fires only after the previous loop body has returned, and
// missed ticks are dropped rather than queued.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.TickIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Infof("scheduler started, tick every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one due-plan scan. A store failure aborts only this tick; a
// single plan's failure never aborts processing of the remaining due plans.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()
	due, err := s.plans.FindDue(ctx, now)
	if err != nil {
		s.logger.Errorf("query due plans: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.logger.Infof("found %d plans to process", len(due))
	for _, plan := range due {
		s.process(ctx, plan, now)
	}
}

func (s *Scheduler) process(ctx context.Context, plan model.DispensePlan, now time.Time) {
	// Mark the plan in flight before contacting the device so observers see
	// the DISPENSING state even if the process dies mid-dispatch.
	if err := s.plans.SetStatus(ctx, plan.ID, model.StatusDispensing); err != nil {
		s.logger.Errorf("plan %s: mark dispensing: %v", plan.ID, err)
		s.fail(ctx, plan.ID)
		return
	}
	s.emit(plan.ID, model.StatusDispensing)

	if _, err := s.exec.Execute(ctx, plan.Items, model.OriginScheduled); err != nil {
		s.logger.Errorf("plan %s: dispense: %v", plan.ID, err)
		s.fail(ctx, plan.ID)
		return
	}

	if plan.Kind == model.PlanRecurring {
		next, err := NextOccurrence(now, plan.TimeOfDay, plan.RecurringDays)
		if errors.Is(err, ErrNoNextOccurrence) {
			// Left DISPENSING on purpose; the plan needs operator attention.
			s.logger.Warnf("plan %s: could not reschedule, no valid next day", plan.ID)
			return
		}
		if err != nil {
			s.logger.Errorf("plan %s: next occurrence: %v", plan.ID, err)
			s.fail(ctx, plan.ID)
			return
		}
		if err := s.plans.Reschedule(ctx, plan.ID, next, now); err != nil {
			s.logger.Errorf("plan %s: reschedule: %v", plan.ID, err)
			s.fail(ctx, plan.ID)
			return
		}
		s.logger.Infof("plan %s rescheduled to %s", plan.ID, next)
		s.emit(plan.ID, model.StatusPending)
		return
	}

	if err := s.plans.MarkDispensed(ctx, plan.ID, now); err != nil {
		s.logger.Errorf("plan %s: mark completed: %v", plan.ID, err)
		s.fail(ctx, plan.ID)
		return
	}
	s.logger.Infof("plan %s completed", plan.ID)
	s.emit(plan.ID, model.StatusCompleted)
}

func (s *Scheduler) fail(ctx context.Context, id string) {
	if err := s.plans.SetStatus(ctx, id, model.StatusError); err != nil {
		s.logger.Errorf("plan %s: mark error: %v", id, err)
	}
	s.emit(id, model.StatusError)
}

func (s *Scheduler) emit(id string, status model.PlanStatus) {
	if s.bus != nil {
		s.bus.Publish(events.PlanEvent{PlanID: id, Status: status})
	}
}
