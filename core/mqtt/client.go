package mqtt

import (
	"time"

	"github.com/medbox/dispenser/core/model"
)

// Ack is a device acknowledgment correlated to one outstanding command.
type Ack struct {
	// Token is the correlation token echoed by the device, empty when the
	// firmware answered with an uncorrelated payload.
	Token string
	// Raw is the acknowledgment content as received, treated as an opaque
	// success signal.
	Raw string
}

// CommandPayload is the JSON body published on the device command topic.
type CommandPayload struct {
	CorrelationToken string           `json:"correlationToken"`
	Items            []model.PlanItem `json:"items"`
}

// Client sends dispense commands to the medication device and collects the
// matching acknowledgments. Implementations own a single persistent broker
// connection; retry policy belongs to the caller.
type Client interface {
	// SendCommand publishes the payload to the device command topic. The
	// correlation token is registered before publishing so a fast ack
	// cannot be missed.
	SendCommand(command string, payload CommandPayload) error

	// WaitForAck blocks until the acknowledgment carrying the payload's
	// token arrives or the timeout elapses. Acks bearing a foreign token
	// never settle the wait.
	WaitForAck(token string, timeout time.Duration) (Ack, error)

	// Disconnect gracefully closes the broker connection.
	Disconnect()
}
