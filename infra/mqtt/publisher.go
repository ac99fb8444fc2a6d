package mqtt

import (
	"sync"
	"time"

	coremqtt "github.com/medbox/dispenser/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockClient is a scriptable protocol client used in tests.
type MockClient struct {
	mu   sync.Mutex
	Sent []coremqtt.CommandPayload

	// SendErr fails SendCommand; AckErr fails WaitForAck. AckRaw is the
	// acknowledgment content returned on success ("true" when empty).
	SendErr error
	AckErr  error
	AckRaw  string

	// AckDelay makes WaitForAck race its timeout.
	AckDelay time.Duration
}

// SendCommand records the payload or returns the configured error.
func (m *MockClient) SendCommand(_ string, payload coremqtt.CommandPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, payload)
	return nil
}

// WaitForAck simulates the device acknowledgment.
func (m *MockClient) WaitForAck(token string, timeout time.Duration) (coremqtt.Ack, error) {
	if m.AckDelay > 0 {
		if m.AckDelay > timeout {
			time.Sleep(timeout)
			return coremqtt.Ack{}, coremqtt.ErrAckTimeout
		}
		time.Sleep(m.AckDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return coremqtt.Ack{}, m.AckErr
	}
	raw := m.AckRaw
	if raw == "" {
		raw = "true"
	}
	return coremqtt.Ack{Token: token, Raw: raw}, nil
}

// Disconnect implements the interface.
func (m *MockClient) Disconnect() {}

// SentCount returns the number of successfully published commands.
func (m *MockClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
