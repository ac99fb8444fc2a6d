package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// AckStrategy defines how the device acknowledges commands.
type AckStrategy interface {
	Ack(ctx context.Context, cli paho.Client, deviceID, token string)
}

// AutoAck echoes the correlation token after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, cli paho.Client, deviceID, token string) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return
		}
	}
	publishAck(cli, deviceID, ackPayload(token))
}

// RandomAck drops acknowledgments with the configured probability and
// waits for the specified delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context, cli paho.Client, deviceID, token string) {
	if r.DropRate > 0 && rng.Float64() < r.DropRate {
		return
	}
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return
		}
	}
	publishAck(cli, deviceID, ackPayload(token))
}

// LegacyAck publishes a bare "true" regardless of the received token, like
// firmware predating the correlation protocol.
type LegacyAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (l LegacyAck) Ack(ctx context.Context, cli paho.Client, deviceID, _ string) {
	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return
		}
	}
	publishAck(cli, deviceID, []byte("true"))
}

func ackPayload(token string) []byte {
	payload, err := json.Marshal(struct {
		CorrelationToken string `json:"correlationToken"`
	}{CorrelationToken: token})
	if err != nil {
		log.Printf("marshal ack: %v", err)
		return []byte("true")
	}
	return payload
}

func publishAck(cli paho.Client, deviceID string, payload []byte) {
	token := cli.Publish(fmt.Sprintf("medbox/%s/dispensed", deviceID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("ack publish timeout for %s", deviceID)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("publish ack error for %s: %v", deviceID, err)
	}
}
