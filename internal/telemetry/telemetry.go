// Package telemetry publishes tick snapshots to an MQTT broker so a run can
// be watched remotely. Every tick is one JSON message on
// <topic>/<run id>/tick.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"

	"github.com/softboiler/boilerdaq/internal/looper"
)

// Config locates the broker.
type Config struct {
	Broker    string // host:port
	Topic     string
	ClientID  string
	KeepAlive time.Duration
	QoS       byte

	// PublishTimeout bounds the wait for a QoS 1 or 2 acknowledgement.
	PublishTimeout time.Duration
}

// DefaultPublishTimeout applies when Config.PublishTimeout is zero.
const DefaultPublishTimeout = 2 * time.Second

// Publisher is a looper.Sink that forwards snapshots to MQTT.
type Publisher struct {
	client *paho.Client
	topic  string
	run    string
	qos     byte
	timeout time.Duration
	log     *zap.Logger
}

// Message is the payload of one tick.
type Message struct {
	Run    string  `json:"run"`
	Tick   uint64  `json:"tick"`
	Time   string  `json:"time"`
	Values []Value `json:"values"`
}

// Value is one result in a Message. Missing values are null.
type Value struct {
	Name      string   `json:"name"`
	Unit      string   `json:"unit"`
	Value     *float64 `json:"value"`
	Rise      *float64 `json:"rise,omitempty"`
	Remaining *float64 `json:"remaining,omitempty"`
}

// Topic returns the topic ticks of run are published on.
func Topic(base, run string) string {
	return fmt.Sprintf("%s/%s/tick", base, run)
}

// Dial connects to the broker.
func Dial(ctx context.Context, cfg Config, run string, log *zap.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("telemetry: no broker address")
	}
	if cfg.Topic == "" {
		cfg.Topic = "boilerdaq"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "boilerdaq-" + run
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial %s: %w", cfg.Broker, err)
	}
	client := paho.NewClient(paho.ClientConfig{
		ClientID: cfg.ClientID,
		Conn:     conn,
	})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   cfg.ClientID,
		KeepAlive:  uint16(cfg.KeepAlive / time.Second),
		CleanStart: true,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("telemetry: connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		conn.Close()
		return nil, fmt.Errorf("telemetry: connect refused: reason %d", ack.ReasonCode)
	}

	p := &Publisher{
		client:  client,
		topic:   Topic(cfg.Topic, run),
		run:     run,
		qos:     cfg.QoS,
		timeout: cfg.PublishTimeout,
		log:     log,
	}
	log.Info("telemetry connected", zap.String("broker", cfg.Broker), zap.String("topic", p.topic))
	return p, nil
}

// Publish sends one snapshot. It returns within the publish timeout even
// when the broker stops acknowledging; the message is then dropped.
func (p *Publisher) Publish(ctx context.Context, s *looper.Snapshot) error {
	payload, err := json.Marshal(NewMessage(p.run, s))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	_, err = p.client.Publish(ctx, &paho.Publish{
		Topic:   p.topic,
		QoS:     p.qos,
		Payload: payload,
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("telemetry: tick %d not acknowledged within %s: %w", s.Tick, p.timeout, err)
	}
	if err != nil {
		return fmt.Errorf("telemetry: publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	return p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

// NewMessage converts a snapshot into a message.
func NewMessage(run string, s *looper.Snapshot) Message {
	m := Message{
		Run:    run,
		Tick:   s.Tick,
		Time:   s.Time.Format(time.RFC3339Nano),
		Values: make([]Value, len(s.Values)),
	}
	for i, v := range s.Values {
		m.Values[i] = Value{
			Name:      v.Name,
			Unit:      v.Unit,
			Value:     finite(v.Value),
			Rise:      finite(v.Rise),
			Remaining: finite(v.Remaining),
		}
	}
	return m
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
