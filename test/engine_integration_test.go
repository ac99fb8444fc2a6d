package test

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/medbox/dispenser/core/dispense"
	"github.com/medbox/dispenser/core/ingest"
	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/core/scheduler"
	corestore "github.com/medbox/dispenser/core/store"
	"github.com/medbox/dispenser/infra/logger"
	"github.com/medbox/dispenser/infra/mqtt"
	"github.com/medbox/dispenser/infra/store"
	"github.com/medbox/dispenser/internal/eventbus"
	"github.com/medbox/dispenser/test/util"
)

// TestScheduledDispenseOverMQTT drives a due plan through the full stack: a
// real broker, the paho client, the orchestrator and the SQLite store, with
// a simulated device acknowledging the command.
func TestScheduledDispenseOverMQTT(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()

	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto not available: %v", err)
	}
	defer cleanup()

	device, err := util.ConnectDevice(broker, "01")
	if err != nil {
		t.Fatalf("device sim: %v", err)
	}
	defer device.Disconnect(100)

	client, err := mqtt.NewPahoClient(mqtt.Config{
		Broker:   broker,
		ClientID: "engine-test",
		DeviceID: "01",
	})
	if err != nil {
		t.Fatalf("mqtt client: %v", err)
	}
	defer client.Disconnect()

	db, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()

	bus := eventbus.New()
	defer bus.Close()
	orch, err := dispense.New(client, db.History(), 5*time.Second, logger.New("test-dispense"), nil, bus)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	sched, err := scheduler.New(db.Plans(), orch, scheduler.Config{TickIntervalSeconds: 1}, logger.New("test-scheduler"), bus)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	plan := model.DispensePlan{
		ID:          "plan-1",
		Kind:        model.PlanOneShot,
		Items:       []model.PlanItem{{MagazineID: 1, MagazineName: "Morning Mix", Amount: 2}},
		ScheduledAt: time.Now().Add(-time.Minute),
		Status:      model.StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := db.Plans().Put(ctx, plan); err != nil {
		t.Fatalf("put plan: %v", err)
	}

	sched.Tick(ctx)

	got, err := db.Plans().Get(ctx, "plan-1")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("plan status = %s, want COMPLETED", got.Status)
	}
	if got.DispensedAt == nil {
		t.Fatal("dispensedAt not set")
	}

	recs, err := db.History().Query(ctx, corestore.HistoryQuery{Origin: model.OriginScheduled})
	if err != nil {
		t.Fatalf("query history: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(recs))
	}
	if recs[0].Outcome != model.OutcomeCompleted {
		t.Fatalf("outcome = %s, want COMPLETED", recs[0].Outcome)
	}
	if recs[0].Ack == "" {
		t.Fatal("history record missing ack payload")
	}
}

// TestAdHocDispenseOverMQTT feeds an ad-hoc command through the ingestion
// bridge against a real broker and checks that the record is retired after
// the acknowledged dispense.
func TestAdHocDispenseOverMQTT(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Skipf("mosquitto not available: %v", err)
	}
	defer cleanup()

	device, err := util.ConnectDevice(broker, "01")
	if err != nil {
		t.Fatalf("device sim: %v", err)
	}
	defer device.Disconnect(100)

	client, err := mqtt.NewPahoClient(mqtt.Config{
		Broker:   broker,
		ClientID: "engine-test-adhoc",
		DeviceID: "01",
	})
	if err != nil {
		t.Fatalf("mqtt client: %v", err)
	}
	defer client.Disconnect()

	db, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()

	orch, err := dispense.New(client, db.History(), 5*time.Second, logger.New("test-dispense"), nil, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	bridge, err := ingest.New(db.Commands(), orch, logger.New("test-ingest"), nil)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	go func() { _ = bridge.Run(ctx) }()

	cmd := model.AdHocCommand{
		ID:        "cmd-1",
		Items:     []model.PlanItem{{MagazineID: 2, MagazineName: "Pain Relief", Amount: 1}},
		CreatedAt: time.Now(),
		Requester: "caregiver",
	}
	if err := db.Commands().Add(ctx, cmd); err != nil {
		t.Fatalf("add command: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		recs, err := db.History().Query(ctx, corestore.HistoryQuery{Origin: model.OriginManual})
		if err != nil {
			t.Fatalf("query history: %v", err)
		}
		if len(recs) == 1 && recs[0].Outcome == model.OutcomeCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("manual dispense not recorded, have %d records", len(recs))
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Retired after success: a fresh watch must replay nothing.
	deadline = time.Now().Add(5 * time.Second)
	for {
		if !commandStillStored(t, db) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("command record still present after successful dispense")
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func commandStillStored(t *testing.T, db *store.DB) bool {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := db.Commands().Watch(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	select {
	case _, ok := <-ch:
		return ok
	case <-time.After(300 * time.Millisecond):
		return false
	}
}
