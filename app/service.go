// Package app wires the configured adapters into a running engine.
package app

import (
	"context"
	"fmt"

	"github.com/medbox/dispenser/config"
	"github.com/medbox/dispenser/core/dispense"
	"github.com/medbox/dispenser/core/events"
	"github.com/medbox/dispenser/core/ingest"
	coremetrics "github.com/medbox/dispenser/core/metrics"
	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/core/scheduler"
	"github.com/medbox/dispenser/infra/logger"
	"github.com/medbox/dispenser/infra/metrics"
	"github.com/medbox/dispenser/infra/mqtt"
	"github.com/medbox/dispenser/infra/store"
	"github.com/medbox/dispenser/internal/eventbus"
)

// Service owns the scheduler, the ingestion bridge and their shared
// orchestrator.
type Service struct {
	Orchestrator *dispense.Orchestrator
	Scheduler    *scheduler.Scheduler
	Bridge       *ingest.Bridge

	db          *store.DB
	client      *mqtt.PahoClient
	bus         eventbus.EventBus
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (svc *Service, err error) {
	logg := logger.New("service")

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	var client *mqtt.PahoClient
	// Any later constructor failure must release what is already open.
	defer func() {
		if err == nil {
			return
		}
		if client != nil {
			client.Disconnect()
		}
		if cerr := db.Close(); cerr != nil {
			logg.Errorf("store close: %v", cerr)
		}
	}()

	if err = db.Magazines().Seed(context.Background(), model.DefaultMagazines()); err != nil {
		return nil, fmt.Errorf("seed magazines: %w", err)
	}

	client, err = mqtt.NewPahoClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket))
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	bus := eventbus.New()
	orch, err := dispense.New(client, db.History(), cfg.Dispense.AckTimeout(), logger.New("dispense"), sink, bus)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	sched, err := scheduler.New(db.Plans(), orch, cfg.Scheduler, logger.New("scheduler"), bus)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	bridge, err := ingest.New(db.Commands(), orch, logger.New("ingest"), bus)
	if err != nil {
		return nil, fmt.Errorf("ingest bridge: %w", err)
	}

	return &Service{
		Orchestrator: orch,
		Scheduler:    sched,
		Bridge:       bridge,
		db:           db,
		client:       client,
		bus:          bus,
		log:          logg,
		promEnabled:  cfg.Metrics.PrometheusEnabled,
		promPort:     cfg.Metrics.PrometheusPort,
	}, nil
}

// Run starts the scheduler and the ingestion bridge and blocks until the
// context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	go s.Scheduler.Run(ctx)
	go func() {
		if err := s.Bridge.Run(ctx); err != nil {
			s.log.Errorf("ingest bridge: %v", err)
		}
	}()
	go s.logEvents(ctx)
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.log.Infof("engine started")
	<-ctx.Done()
	return nil
}

// logEvents mirrors the internal event stream into the service log.
func (s *Service) logEvents(ctx context.Context) {
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.DispenseEvent:
				s.log.Infof("dispense %s origin=%s outcome=%s latency=%s", e.Token, e.Origin, e.Outcome, e.Latency)
			case events.PlanEvent:
				s.log.Infof("plan %s -> %s", e.PlanID, e.Status)
			case events.CommandEvent:
				s.log.Infof("command %s deleted=%t", e.CommandID, e.Deleted)
			}
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.client.Disconnect()
	s.bus.Close()
	return s.db.Close()
}
