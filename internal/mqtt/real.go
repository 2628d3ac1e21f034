package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/metrics"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	TopicPrefix string
	// ClientID defaults to "pulse-relay-" plus a random UUID.
	ClientID      string
	ReplaySize    int
	RetryInterval time.Duration
	// ConnectTimeout bounds the wait for the first connection.
	ConnectTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Publishes made while the
// connection is down are queued and replayed once it comes back.
type RealPublisher struct {
	client paho.Client
	runs   string
	system string

	mu     sync.Mutex
	replay *replayQueue
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: the client keeps retrying in the background and
// publishes are queued until it connects.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if o.TopicPrefix == "" {
		o.TopicPrefix = DefaultTopicPrefix
	}
	if o.ClientID == "" {
		o.ClientID = "pulse-relay-" + uuid.NewString()
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 5 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = connectTimeout
	}

	p := &RealPublisher{
		runs:   RunsTopic(o.TopicPrefix),
		system: SystemTopic(o.TopicPrefix),
		replay: newReplayQueue(o.ReplaySize),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(o.RetryInterval).
		SetMaxReconnectInterval(o.RetryInterval).
		SetBinaryWill(p.system, will, 1, true).
		SetOnConnectHandler(func(c paho.Client) {
			slog.Info("mqtt: connected", "broker", o.Broker)
			go p.replayQueued(c)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt: connection lost", "err", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		slog.Warn("mqtt: broker not reachable yet, queueing", "broker", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishRun sends a run event at QoS 0.
func (p *RealPublisher) PublishRun(event logic.RunEvent, at time.Time) error {
	payload, err := FormatRunPayload(event, at)
	if err != nil {
		return fmt.Errorf("format run payload: %w", err)
	}
	return p.publish(pendingMsg{topic: p.runs, payload: payload})
}

// PublishSystem sends a system lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(pendingMsg{topic: p.system, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for replay.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replay.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg pendingMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(msg)
		return nil
	}
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		p.enqueue(msg)
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.enqueue(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg pendingMsg) {
	p.mu.Lock()
	p.replay.push(msg)
	n := p.replay.len()
	p.mu.Unlock()
	metrics.SetMQTTBuffered(n)
}

func (p *RealPublisher) replayQueued(c paho.Client) {
	p.mu.Lock()
	msgs := p.replay.drain()
	p.mu.Unlock()
	metrics.SetMQTTBuffered(0)
	if len(msgs) == 0 {
		return
	}

	slog.Info("mqtt: replaying queued messages", "count", len(msgs))
	for i, msg := range msgs {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			// Connection dropped again; requeue the rest for the next connect.
			p.mu.Lock()
			for _, m := range msgs[i:] {
				p.replay.push(m)
			}
			n := p.replay.len()
			p.mu.Unlock()
			metrics.SetMQTTBuffered(n)
			return
		}
	}
}
