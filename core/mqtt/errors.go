package mqtt

import "errors"

var (
	// ErrNotConnected is returned when no broker connection exists at call time.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrPublishFailed is returned when the transport rejected the publish.
	ErrPublishFailed = errors.New("publish failed")
	// ErrAckTimeout is returned when no matching acknowledgment is received
	// before the timeout.
	ErrAckTimeout = errors.New("timeout waiting for ack")
)
