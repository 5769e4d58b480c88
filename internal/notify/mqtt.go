package notify

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	bufferSize     = 100
)

// MQTTOptions configure the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string

	// Topic is the base topic. Transmission events go to Topic/events and
	// lifecycle events to Topic/system.
	Topic string
}

// MQTTPublisher publishes to an MQTT broker. Messages published while the
// connection is down are buffered and sent on reconnect.
type MQTTPublisher struct {
	client      paho.Client
	eventTopic  string
	systemTopic string
	log         zerolog.Logger

	mu  sync.Mutex
	buf *outbox
}

// NewMQTTPublisher connects to the broker. If the broker is not reachable
// within the connect timeout the publisher is still returned; the client
// keeps retrying in the background and buffers until it connects.
func NewMQTTPublisher(opts MQTTOptions, log zerolog.Logger) *MQTTPublisher {
	p := newMQTTPublisherWithClient(nil, opts.Topic, log)

	will, _ := FormatSystemPayload(SystemEvent{Event: EventOffline})
	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(p.systemTopic, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("mqtt connection lost")
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warn().Str("broker", opts.Broker).Msg("mqtt broker not reachable yet, buffering")
	} else if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("broker", opts.Broker).Msg("mqtt connect failed, buffering")
	}
	return p
}

func newMQTTPublisherWithClient(client paho.Client, topic string, log zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client:      client,
		eventTopic:  topic + "/events",
		systemTopic: topic + "/system",
		log:         log,
		buf:         newOutbox(bufferSize),
	}
}

// onConnect replays everything buffered while disconnected.
func (p *MQTTPublisher) onConnect() {
	p.mu.Lock()
	msgs, dropped := p.buf.drain()
	p.mu.Unlock()

	p.log.Info().Int("buffered", len(msgs)).Int("dropped", dropped).Msg("mqtt connected")
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			p.log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt replay failed")
		}
	}
}

// Publish sends a transmission event at QoS 0.
func (p *MQTTPublisher) Publish(event Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.eventTopic, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *MQTTPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.systemTopic, payload: payload, qos: 1, retained: event.Retained})
}

func (p *MQTTPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.enqueue(m)
		return err
	}
	return nil
}

func (p *MQTTPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

func (p *MQTTPublisher) enqueue(m bufferedMsg) {
	p.mu.Lock()
	dropped := p.buf.push(m)
	p.mu.Unlock()
	if dropped {
		p.log.Warn().Int("capacity", bufferSize).Msg("mqtt buffer full, dropping oldest")
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *MQTTPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
