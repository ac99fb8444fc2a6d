package dispense

import "time"

// Config holds the orchestrator settings loaded from configuration.
type Config struct {
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
}

// AckTimeout converts the configured timeout, falling back to
// DefaultAckTimeout when unset.
func (c Config) AckTimeout() time.Duration {
	if c.AckTimeoutSeconds <= 0 {
		return DefaultAckTimeout
	}
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}
