package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/medbox/dispenser/config"
	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/infra/store"
)

// TestNewReleasesStoreOnClientFailure forces a constructor failure after the
// store is open and checks that New errors out instead of returning a half
// built service. The deferred cleanup closes the database handle on that
// path; the reopened handle then sees the seeded magazines.
func TestNewReleasesStoreOnClientFailure(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Path = filepath.Join(t.TempDir(), "svc.db")
	cfg.MQTT.Broker = "tcp://127.0.0.1:1"
	cfg.MQTT.ClientID = "svc-test"
	cfg.MQTT.DeviceID = "01"

	svc, err := New(cfg)
	if err == nil {
		_ = svc.Close()
		t.Fatal("expected error for unreachable broker")
	}
	if svc != nil {
		t.Fatalf("service must be nil on failure, got %+v", svc)
	}
	if !strings.Contains(err.Error(), "mqtt client") {
		t.Fatalf("unexpected error: %v", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = db.Close() }()
	mags, err := db.Magazines().List(context.Background())
	if err != nil {
		t.Fatalf("list magazines: %v", err)
	}
	if len(mags) != len(model.DefaultMagazines()) {
		t.Fatalf("expected seeded magazines, got %d", len(mags))
	}
}
