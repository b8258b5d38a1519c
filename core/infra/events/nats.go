package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/logging"
)

const subjectPrefix = "notelock."

// Subject maps an event type to its NATS subject.
func Subject(eventType string) string {
	return subjectPrefix + eventType
}

// NatsPublisher forwards events to NATS for external consumers. Publishing
// is best-effort: failures are logged and dropped.
type NatsPublisher struct {
	nc *nats.Conn
}

// NewNatsPublisher dials NATS at the provided URL.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	opts := []nats.Option{
		nats.Name("notelock-events"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Error("EVENTS", "disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("EVENTS", "reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("EVENTS", "NATS connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc}, nil
}

func (p *NatsPublisher) Publish(ev Event) {
	if p == nil || p.nc == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logging.Error("EVENTS", "encode event", "type", ev.Type, "error", err)
		return
	}
	if err := p.nc.Publish(Subject(ev.Type), data); err != nil {
		logging.Error("EVENTS", "publish event", "subject", Subject(ev.Type), "error", err)
	}
}

func (p *NatsPublisher) IsConnected() bool {
	return p != nil && p.nc != nil && p.nc.IsConnected()
}

func (p *NatsPublisher) ConnectedURL() string {
	if p == nil || p.nc == nil {
		return ""
	}
	return p.nc.ConnectedUrl()
}

// Close shuts down the underlying NATS connection.
func (p *NatsPublisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
