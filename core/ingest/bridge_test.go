package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/core/store"
	"github.com/medbox/dispenser/infra/logger"
)

// memCommands is an in-memory CommandStore for tests.
type memCommands struct {
	mu   sync.Mutex
	cmds map[string]model.AdHocCommand
	feed chan model.AdHocCommand
}

func newMemCommands() *memCommands {
	return &memCommands{
		cmds: make(map[string]model.AdHocCommand),
		feed: make(chan model.AdHocCommand, 16),
	}
}

func (m *memCommands) Add(_ context.Context, cmd model.AdHocCommand) error {
	m.mu.Lock()
	m.cmds[cmd.ID] = cmd
	m.mu.Unlock()
	m.feed <- cmd
	return nil
}

func (m *memCommands) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cmds[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.cmds, id)
	return nil
}

func (m *memCommands) Watch(ctx context.Context) (<-chan model.AdHocCommand, error) {
	out := make(chan model.AdHocCommand)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case cmd := <-m.feed:
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *memCommands) remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cmds)
}

type countingExec struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingExec) Execute(context.Context, []model.PlanItem, model.Origin) (model.HistoryRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return model.HistoryRecord{Outcome: model.OutcomeError}, c.err
	}
	return model.HistoryRecord{Outcome: model.OutcomeCompleted}, nil
}

func (c *countingExec) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func command(id string) model.AdHocCommand {
	return model.AdHocCommand{
		ID:        id,
		Items:     []model.PlanItem{{MagazineID: 1, MagazineName: "Morning Mix", Amount: 1}},
		CreatedAt: time.Now(),
		Requester: "test",
	}
}

func TestHandleDeletesOnSuccess(t *testing.T) {
	cmds := newMemCommands()
	exec := &countingExec{}
	b, err := New(cmds, exec, logger.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := cmds.Add(context.Background(), command("c1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	b.Handle(context.Background(), command("c1"))

	if exec.count() != 1 {
		t.Fatalf("expected one execution, got %d", exec.count())
	}
	if cmds.remaining() != 0 {
		t.Fatalf("command not deleted")
	}
}

func TestHandleKeepsRecordOnFailure(t *testing.T) {
	cmds := newMemCommands()
	exec := &countingExec{err: errors.New("device unreachable")}
	b, _ := New(cmds, exec, logger.NopLogger{}, nil)
	if err := cmds.Add(context.Background(), command("c1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	b.Handle(context.Background(), command("c1"))

	if cmds.remaining() != 1 {
		t.Fatalf("failed command must stay for replay")
	}
}

// Replaying an unconsumed command, as happens after a crash between execute
// and delete, dispenses again. Two history-producing executions document
// the known at-least-once duplicate window.
func TestReplayedCommandDispensesTwice(t *testing.T) {
	cmds := newMemCommands()
	exec := &countingExec{}
	b, _ := New(cmds, exec, logger.NopLogger{}, nil)
	if err := cmds.Add(context.Background(), command("c1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	b.Handle(context.Background(), command("c1"))
	// Simulate the crash-before-delete replay of the same record.
	b.Handle(context.Background(), command("c1"))

	if exec.count() != 2 {
		t.Fatalf("expected duplicate dispense on replay, got %d executions", exec.count())
	}
}

func TestRunConsumesStream(t *testing.T) {
	cmds := newMemCommands()
	exec := &countingExec{}
	b, _ := New(cmds, exec, logger.NopLogger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	if err := cmds.Add(ctx, command("c1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := cmds.Add(ctx, command("c2")); err != nil {
		t.Fatalf("add: %v", err)
	}

	deadline := time.After(time.Second)
	for exec.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("commands not consumed, got %d", exec.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
