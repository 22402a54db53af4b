package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/italolelis/ytaudio_archiver/internal/transfer"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// msgPublisher is the part of *nats.Conn used here.
type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

// headerCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}

	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}

	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}

	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}

	return keys
}

// NATSPublisher publishes every outcome as JSON so a fleet of workers can be
// followed from one place. It satisfies transfer.Ledger and is used as a mirror.
type NATSPublisher struct {
	conn    msgPublisher
	subject string
}

// ConnectNATS dials url and returns a publisher for subject along with the
// connection, which the caller drains on shutdown.
func ConnectNATS(url, subject, name string) (*NATSPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return NewNATSPublisher(nc, subject), nc, nil
}

// NewNATSPublisher creates a publisher over an existing connection.
func NewNATSPublisher(conn msgPublisher, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// Append publishes o. Trace context from ctx is injected into the headers.
func (p *NATSPublisher) Append(ctx context.Context, o transfer.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	msg := &nats.Msg{Subject: p.subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}

	return nil
}
