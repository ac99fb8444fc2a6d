package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulated dispenser.
type Config struct {
	Broker     string
	DeviceID   string
	AckLatency time.Duration
	DropRate   float64
	// Legacy makes the device answer with a bare "true" payload instead of
	// echoing the correlation token, like early firmware revisions.
	Legacy bool
	// Pills is the starting fill level of every magazine slot.
	Pills   int
	Slots   int
	Verbose bool
}

// Validate checks mandatory fields.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device-id is required")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop-rate must be within [0,1]")
	}
	if c.Slots < 1 {
		return fmt.Errorf("at least one slot is required")
	}
	return nil
}
