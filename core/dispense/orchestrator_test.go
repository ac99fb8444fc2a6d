package dispense

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/medbox/dispenser/core/model"
	coremqtt "github.com/medbox/dispenser/core/mqtt"
	"github.com/medbox/dispenser/core/store"
	"github.com/medbox/dispenser/infra/logger"
	infmqtt "github.com/medbox/dispenser/infra/mqtt"
	"github.com/medbox/dispenser/internal/eventbus"
)

// memHistory is an in-memory HistoryStore for tests.
type memHistory struct {
	mu   sync.Mutex
	recs []model.HistoryRecord
	err  error
}

func (m *memHistory) Append(_ context.Context, rec model.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memHistory) Query(context.Context, store.HistoryQuery) ([]model.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.HistoryRecord(nil), m.recs...), nil
}

func (m *memHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func testItems() []model.PlanItem {
	return []model.PlanItem{{MagazineID: 1, MagazineName: "Morning Mix", Amount: 2}}
}

func TestExecuteAck(t *testing.T) {
	client := &infmqtt.MockClient{AckRaw: `{"status":"ok"}`}
	hist := &memHistory{}
	o, err := New(client, hist, time.Second, logger.NopLogger{}, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rec, err := o.Execute(context.Background(), testItems(), model.OriginScheduled)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.Outcome != model.OutcomeCompleted {
		t.Fatalf("expected COMPLETED got %s", rec.Outcome)
	}
	if rec.Ack == "" || rec.Origin != model.OriginScheduled {
		t.Fatalf("bad record %+v", rec)
	}
	if hist.count() != 1 {
		t.Fatalf("expected one history record, got %d", hist.count())
	}
	if client.SentCount() != 1 {
		t.Fatalf("expected one publish, got %d", client.SentCount())
	}
}

// Every protocol outcome must leave exactly one history record behind:
// four scenarios, four records, none missing.
func TestExecuteWritesHistoryOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name    string
		client  *infmqtt.MockClient
		wantErr error
	}{
		{"ack", &infmqtt.MockClient{}, nil},
		{"timeout", &infmqtt.MockClient{AckErr: coremqtt.ErrAckTimeout}, coremqtt.ErrAckTimeout},
		{"publish_failed", &infmqtt.MockClient{SendErr: coremqtt.ErrPublishFailed}, coremqtt.ErrPublishFailed},
		{"not_connected", &infmqtt.MockClient{SendErr: coremqtt.ErrNotConnected}, coremqtt.ErrNotConnected},
	}
	hist := &memHistory{}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, err := New(tc.client, hist, time.Second, logger.NopLogger{}, nil, nil)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			rec, err := o.Execute(context.Background(), testItems(), model.OriginManual)
			if tc.wantErr == nil {
				if err != nil || rec.Outcome != model.OutcomeCompleted {
					t.Fatalf("want success, got %v %s", err, rec.Outcome)
				}
			} else {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				if rec.Outcome != model.OutcomeError || rec.Error == "" {
					t.Fatalf("error outcome not recorded: %+v", rec)
				}
			}
		})
	}
	if hist.count() != len(cases) {
		t.Fatalf("expected %d history records, got %d", len(cases), hist.count())
	}
}

func TestExecuteRejectsInvalidItems(t *testing.T) {
	hist := &memHistory{}
	o, _ := New(&infmqtt.MockClient{}, hist, time.Second, logger.NopLogger{}, nil, nil)
	if _, err := o.Execute(context.Background(), nil, model.OriginManual); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := o.Execute(context.Background(), []model.PlanItem{{MagazineID: 1, Amount: 0}}, model.OriginManual); err == nil {
		t.Fatalf("expected amount validation error")
	}
	if hist.count() != 0 {
		t.Fatalf("no history for rejected requests, got %d", hist.count())
	}
}

func TestExecutePublishesEvent(t *testing.T) {
	bus := eventbus.New()
	sub := bus.Subscribe()
	hist := &memHistory{}
	o, _ := New(&infmqtt.MockClient{}, hist, time.Second, logger.NopLogger{}, nil, bus)
	if _, err := o.Execute(context.Background(), testItems(), model.OriginManual); err != nil {
		t.Fatalf("execute: %v", err)
	}
	select {
	case <-sub:
	default:
		t.Fatalf("expected dispense event on bus")
	}
}

// Concurrent callers are serialized by the single-slot gate: every call
// still produces exactly one record and one publish.
func TestExecuteSerializesCallers(t *testing.T) {
	client := &infmqtt.MockClient{AckDelay: 5 * time.Millisecond}
	hist := &memHistory{}
	o, _ := New(client, hist, time.Second, logger.NopLogger{}, nil, nil)

	const callers = 4
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Execute(context.Background(), testItems(), model.OriginManual); err != nil {
				t.Errorf("execute: %v", err)
			}
		}()
	}
	wg.Wait()
	if hist.count() != callers || client.SentCount() != callers {
		t.Fatalf("records=%d sent=%d, want %d each", hist.count(), client.SentCount(), callers)
	}
}

func TestExecuteSurfacesHistoryFailure(t *testing.T) {
	hist := &memHistory{err: errors.New("store down")}
	o, _ := New(&infmqtt.MockClient{}, hist, time.Second, logger.NopLogger{}, nil, nil)
	if _, err := o.Execute(context.Background(), testItems(), model.OriginManual); err == nil {
		t.Fatalf("expected persistence error")
	}
}
