package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Magazines tracks per-slot pill levels of the simulated device. It is
// shared between the MQTT callback goroutine and the main loop.
type Magazines struct {
	mu     sync.Mutex
	levels map[int]int
}

// NewMagazines fills every slot with the given number of pills.
func NewMagazines(slots, pills int) *Magazines {
	levels := make(map[int]int, slots)
	for i := 1; i <= slots; i++ {
		levels[i] = pills
	}
	return &Magazines{levels: levels}
}

// Release removes amount pills from the slot. It returns the remaining
// level and false when the slot is unknown or underfilled; a refused
// release leaves the level untouched.
func (m *Magazines) Release(slot, amount int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	level, ok := m.levels[slot]
	if !ok || amount > level {
		return level, false
	}
	m.levels[slot] = level - amount
	return m.levels[slot], true
}

// Level returns the current fill of the slot.
func (m *Magazines) Level(slot int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[slot]
}

// Device simulates one dispenser: it consumes dispense commands, releases
// pills from its magazines and acknowledges through its strategy.
type Device struct {
	ID        string
	Broker    string
	Strategy  AckStrategy
	Magazines *Magazines

	cli paho.Client
}

type commandPayload struct {
	CorrelationToken string `json:"correlationToken"`
	Items            []struct {
		MagazineID int `json:"magazineId"`
		Amount     int `json:"amount"`
	} `json:"items"`
}

// connect dials the broker under the simulator's client identity. The
// connection auto-reconnects like the real firmware.
func (d *Device) connect() (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(d.Broker).SetClientID("medbox-sim-" + d.ID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

// Run connects the device and serves commands until the context is done.
func (d *Device) Run(ctx context.Context) error {
	cli, err := d.connect()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	d.cli = cli
	defer cli.Disconnect(250)

	topic := fmt.Sprintf("medbox/%s/dispense", d.ID)
	if token := cli.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		d.handle(ctx, msg.Payload())
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe: %w", token.Error())
	}
	log.Printf("device %s listening on %s", d.ID, topic)

	<-ctx.Done()
	return nil
}

func (d *Device) handle(ctx context.Context, payload []byte) {
	var cmd commandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Printf("device %s: bad command payload: %v", d.ID, err)
		return
	}
	for _, it := range cmd.Items {
		if left, ok := d.Magazines.Release(it.MagazineID, it.Amount); ok {
			log.Printf("device %s: released %d from slot %d, %d left", d.ID, it.Amount, it.MagazineID, left)
		} else {
			// The real device jams silently; the missing ack surfaces as a
			// timeout on the engine side.
			log.Printf("device %s: slot %d cannot release %d", d.ID, it.MagazineID, it.Amount)
			return
		}
	}
	d.Strategy.Ack(ctx, d.cli, d.ID, cmd.CorrelationToken)
}
