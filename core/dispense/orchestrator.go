// Package dispense turns one logical dispense request into exactly one
// protocol call and exactly one history record.
package dispense

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbox/dispenser/core/events"
	"github.com/medbox/dispenser/core/logger"
	"github.com/medbox/dispenser/core/metrics"
	"github.com/medbox/dispenser/core/model"
	"github.com/medbox/dispenser/core/mqtt"
	"github.com/medbox/dispenser/core/store"
	"github.com/medbox/dispenser/internal/eventbus"
)

// DefaultAckTimeout bounds the wait for a device acknowledgment.
const DefaultAckTimeout = 15 * time.Second

// Orchestrator serializes all device commands behind a single-slot gate:
// the mutex is held for the full publish-and-await-ack duration, so the
// scheduler and the ingestion bridge can never have two commands in flight
// against the device at once.
type Orchestrator struct {
	client     mqtt.Client
	history    store.HistoryStore
	ackTimeout time.Duration
	logger     logger.Logger
	sink       metrics.Sink
	bus        eventbus.EventBus

	mu sync.Mutex
}

// New creates an Orchestrator. If ackTimeout is zero, DefaultAckTimeout is
// used. Sink and bus may be nil.
func New(client mqtt.Client, history store.HistoryStore, ackTimeout time.Duration, log logger.Logger, sink metrics.Sink, bus eventbus.EventBus) (*Orchestrator, error) {
	if client == nil || history == nil || log == nil {
		return nil, fmt.Errorf("dispense: nil parameter provided to New")
	}
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Orchestrator{
		client:     client,
		history:    history,
		ackTimeout: ackTimeout,
		logger:     log,
		sink:       sink,
		bus:        bus,
	}, nil
}

// Execute sends one dispense command with a fresh correlation token and
// appends exactly one history record whatever the protocol outcome: ack,
// timeout, publish failure or no connection. The record is returned along
// with the protocol error, if any. Execute never retries.
func (o *Orchestrator) Execute(ctx context.Context, items []model.PlanItem, origin model.Origin) (model.HistoryRecord, error) {
	if err := model.ValidateItems(items); err != nil {
		return model.HistoryRecord{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	token := uuid.NewString()
	start := time.Now()
	var ack mqtt.Ack
	err := o.client.SendCommand("dispense", mqtt.CommandPayload{CorrelationToken: token, Items: items})
	if err != nil {
		publishFailure.Inc()
	} else {
		publishSuccess.Inc()
		ack, err = o.client.WaitForAck(token, o.ackTimeout)
	}
	latency := time.Since(start)

	rec := model.HistoryRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Items:     items,
		Origin:    origin,
	}
	if err != nil {
		rec.Outcome = model.OutcomeError
		rec.Error = err.Error()
		o.logger.Errorf("dispense %s failed: %v", token, err)
	} else {
		rec.Outcome = model.OutcomeCompleted
		rec.Ack = ack.Raw
		o.logger.Infof("dispense %s acknowledged in %s", token, latency)
	}

	// The audit trail must not lose failed attempts: the write happens on
	// every exit path, before the protocol error propagates.
	if aerr := o.history.Append(ctx, rec); aerr != nil {
		o.logger.Errorf("history append: %v", aerr)
		if err == nil {
			err = fmt.Errorf("history append: %w", aerr)
		}
	}

	dispensesTotal.WithLabelValues(string(origin), string(rec.Outcome)).Inc()
	ackLatency.WithLabelValues(string(origin)).Observe(latency.Seconds())

	if o.bus != nil {
		o.bus.Publish(events.DispenseEvent{
			Token:   token,
			Origin:  origin,
			Outcome: rec.Outcome,
			Items:   items,
			Latency: latency,
			Err:     err,
		})
	}
	if serr := o.sink.RecordDispense(metrics.DispenseResult{
		Token:     token,
		Origin:    origin,
		Outcome:   rec.Outcome,
		Items:     len(items),
		Pills:     model.TotalPills(items),
		Latency:   latency,
		Timestamp: rec.Timestamp,
		Error:     rec.Error,
	}); serr != nil {
		o.logger.Errorf("metrics sink: %v", serr)
	}

	return rec, err
}
