package mqttpub

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lumabench/spectro-service/internal/domain"
)

const publishTimeout = 5 * time.Second

// publishClient is the slice of mqtt.Client the publisher needs
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends measurement telemetry to an MQTT broker.
// A nil inner client turns every publish into a no-op, so the rest of
// the service doesn't need to care whether a broker is configured.
type Publisher struct {
	client publishClient
	prefix string
}

// envelope is the JSON wrapper around every published payload
type envelope struct {
	MessageID string      `json:"message_id"`
	Serial    string      `json:"serial"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// flickerPayload is the published subset of a flicker analysis
type flickerPayload struct {
	Percent   float64 `json:"percent"`
	Index     float64 `json:"index"`
	Frequency float64 `json:"frequency"`
}

// Connect dials the broker and returns a ready publisher
func Connect(brokerURL, clientID, topicPrefix string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID(clientID)
	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(2 * time.Second)
	opts.SetAutoReconnect(true)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", brokerURL, token.Error())
	}

	log.Info().Str("broker", brokerURL).Str("client_id", clientID).Msg("connected to MQTT broker")
	return &Publisher{client: c, prefix: topicPrefix}, nil
}

// Disabled returns a publisher that silently drops everything
func Disabled() *Publisher {
	return &Publisher{}
}

// PublishMeasurement publishes a capture to spectro/<serial>/measurement
func (p *Publisher) PublishMeasurement(m *domain.Measurement) error {
	topic := fmt.Sprintf("%s/%s/measurement", p.prefix, m.Serial)
	return p.publish(topic, m.Serial, m)
}

// PublishFlicker publishes flicker metrics to spectro/<serial>/flicker.
// The waveform and spectrum bins are omitted to keep messages small.
func (p *Publisher) PublishFlicker(serial string, fr *domain.FlickerReading) error {
	topic := fmt.Sprintf("%s/%s/flicker", p.prefix, serial)
	return p.publish(topic, serial, flickerPayload{
		Percent:   fr.Percent,
		Index:     fr.Index,
		Frequency: fr.Frequency,
	})
}

func (p *Publisher) publish(topic, serial string, payload interface{}) error {
	if p.client == nil {
		return nil
	}

	msg, err := json.Marshal(envelope{
		MessageID: uuid.NewString(),
		Serial:    serial,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshaling telemetry: %w", err)
	}

	token := p.client.Publish(topic, 1, false, msg)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	if p.client == nil {
		return
	}
	p.client.Disconnect(250)
	log.Info().Msg("disconnected from MQTT broker")
}
