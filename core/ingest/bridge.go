// Package ingest consumes externally created ad-hoc dispense commands as a
// realtime stream and executes each exactly once per delivery. Records are
// deleted only after a successful dispense, so a crash between execution
// and deletion replays the command on the next start: execution is
// at-least-once by design.
package ingest

import (
	"context"
	"fmt"

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

// Bridge feeds ad-hoc commands into the orchestrator and retires them.
type Bridge struct {
	commands store.CommandStore
	exec     Executor
	logger   logger.Logger
	bus      eventbus.EventBus
}

// New creates a Bridge. The bus may be nil.
func New(commands store.CommandStore, exec Executor, log logger.Logger, bus eventbus.EventBus) (*Bridge, error) {
	if commands == nil || exec == nil || log == nil {
		return nil, fmt.Errorf("ingest: nil parameter provided to New")
	}
	return &Bridge{commands: commands, exec: exec, logger: log, bus: bus}, nil
}

// Run consumes the command stream until the context is canceled. The watch
// first replays every unconsumed record, then delivers new ones as they
// arrive.
func (b *Bridge) Run(ctx context.Context) error {
	ch, err := b.commands.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch commands: %w", err)
	}
	b.logger.Infof("listening for ad-hoc dispense commands")
	for cmd := range ch {
		b.Handle(ctx, cmd)
	}
	return nil
}

// Handle executes one command and deletes its record on success. On failure
// the record stays in place and is replayed on the next process start.
func (b *Bridge) Handle(ctx context.Context, cmd model.AdHocCommand) {
	b.logger.Infof("received command %s from %s", cmd.ID, cmd.Requester)

	_, err := b.exec.Execute(ctx, cmd.Items, model.OriginManual)
	if err != nil {
		b.logger.Errorf("command %s failed: %v", cmd.ID, err)
		b.emit(cmd, false, err)
		return
	}

	if err := b.commands.Delete(ctx, cmd.ID); err != nil {
		// The dispense already happened; a replay of this record will
		// dispense again.
		b.logger.Errorf("command %s executed but not deleted: %v", cmd.ID, err)
		b.emit(cmd, false, err)
		return
	}
	b.logger.Infof("command %s completed and deleted", cmd.ID)
	b.emit(cmd, true, nil)
}

func (b *Bridge) emit(cmd model.AdHocCommand, deleted bool, err error) {
	if b.bus != nil {
		b.bus.Publish(events.CommandEvent{
			CommandID: cmd.ID,
			Requester: cmd.Requester,
			Deleted:   deleted,
			Err:       err,
		})
	}
}
