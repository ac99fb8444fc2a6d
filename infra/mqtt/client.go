package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/medbox/dispenser/core/mqtt"
	"github.com/medbox/dispenser/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// DeviceID addresses the single physical dispenser, e.g. "01".
	DeviceID string `json:"device_id"`
	// AckTopic overrides the per-device acknowledgment topic. Empty selects
	// medbox/{device_id}/dispensed.
	AckTopic   string          `json:"ack_topic"`
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	// ReconnectIntervalMS is the fixed backoff between reconnect attempts.
	ReconnectIntervalMS int `json:"reconnect_interval_ms"`
}

// ackTopicFor returns the effective ack topic for the configured device.
func (c Config) ackTopicFor() string {
	if c.AckTopic != "" {
		return c.AckTopic
	}
	return fmt.Sprintf("medbox/%s/dispensed", c.DeviceID)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoClient implements the core mqtt.Client interface using Eclipse Paho.
// It owns the single persistent connection to the broker and the pending
// acknowledgment table keyed by correlation token.
type PahoClient struct {
	cli      pahoClient
	deviceID string
	ackTopic string
	qos      map[string]byte

	mu      sync.Mutex
	pending map[string]chan coremqtt.Ack
	logger  logger.Logger
}

// NewPahoClient connects to the MQTT broker and subscribes to the per-device
// acknowledgment topic. Reconnection is automatic with a fixed backoff;
// in-flight calls are not resumed and time out independently.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	pc := &PahoClient{
		deviceID: cfg.DeviceID,
		ackTopic: cfg.ackTopicFor(),
		qos:      cfg.QoS,
		pending:  make(map[string]chan coremqtt.Ack),
		logger:   log,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		qos := byte(1)
		if q, ok := pc.qos["ack"]; ok {
			qos = q
		}
		if token := c.Subscribe(pc.ackTopic, qos, pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	if cfg.DeviceID == "" && cfg.AckTopic == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	backoff := time.Duration(cfg.ReconnectIntervalMS) * time.Millisecond
	if backoff <= 0 {
		backoff = time.Second
	}
	// Paho grows the interval up to this cap; a cap equal to the base keeps
	// the backoff fixed.
	opts.SetMaxReconnectInterval(backoff)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// onAck routes an inbound acknowledgment to the waiter registered under its
// correlation token. Messages carrying a foreign token are discarded so a
// concurrent call can never settle on someone else's ack. Firmware revisions
// that answer with an uncorrelated payload (a bare "true") are matched to
// the single outstanding call when exactly one is pending.
func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	raw := string(msg.Payload())
	var m struct {
		CorrelationToken string `json:"correlationToken"`
	}
	token := ""
	if err := json.Unmarshal(msg.Payload(), &m); err == nil {
		token = m.CorrelationToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token == "" {
		if len(p.pending) != 1 {
			p.logger.Warnf("dropping uncorrelated ack with %d calls pending", len(p.pending))
			return
		}
		for tok, ch := range p.pending {
			select {
			case ch <- coremqtt.Ack{Raw: raw}:
			default:
			}
			p.logger.Infof("matched uncorrelated ack to %s", tok)
		}
		return
	}
	ch, ok := p.pending[token]
	if !ok {
		p.logger.Warnf("discarding ack with unknown token %s", token)
		return
	}
	select {
	case ch <- coremqtt.Ack{Token: token, Raw: raw}:
	default:
	}
	p.logger.Infof("received ack %s", token)
}

// SendCommand publishes the payload to medbox/{device}/{command}. The
// correlation token is registered before the publish so the ack cannot be
// missed, and unregistered again if the publish fails.
func (p *PahoClient) SendCommand(command string, payload coremqtt.CommandPayload) error {
	if p.cli == nil || !p.cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.pending[payload.CorrelationToken] = make(chan coremqtt.Ack, 1)
	p.mu.Unlock()

	topic := fmt.Sprintf("medbox/%s/%s", p.deviceID, command)
	qos := byte(1)
	if q, ok := p.qos["command"]; ok {
		qos = q
	}
	token := p.cli.Publish(topic, qos, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		p.mu.Lock()
		delete(p.pending, payload.CorrelationToken)
		p.mu.Unlock()
		return fmt.Errorf("%w: %v", coremqtt.ErrPublishFailed, err)
	}
	p.logger.Infof("sent command %s to %s", payload.CorrelationToken, topic)
	return nil
}

// WaitForAck blocks until the ack for the given correlation token is
// received or the timeout elapses. Exactly one of the two settles the call;
// either path removes the pending entry.
func (p *PahoClient) WaitForAck(token string, timeout time.Duration) (coremqtt.Ack, error) {
	p.mu.Lock()
	ch := p.pending[token]
	p.mu.Unlock()
	if ch == nil {
		return coremqtt.Ack{}, fmt.Errorf("unknown command %s", token)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ack := <-ch:
		p.mu.Lock()
		delete(p.pending, token)
		p.mu.Unlock()
		return ack, nil
	case <-timer.C:
		p.mu.Lock()
		delete(p.pending, token)
		p.mu.Unlock()
		return coremqtt.Ack{}, coremqtt.ErrAckTimeout
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
