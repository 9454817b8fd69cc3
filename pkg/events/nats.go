package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// DefaultSubject is where progress events are published when no subject
// is configured.
const DefaultSubject = "disclosure.progress"

// NATSNotifier publishes progress events as JSON messages. Trace context
// from ctx is injected into the message headers so an external observer
// can correlate events with the operation that produced them.
type NATSNotifier struct {
	Conn    *nats.Conn
	Subject string
}

// natsHeaderCarrier adapts nats.Msg headers for the OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Notify publishes the event. Publish failures are dropped: progress is
// advisory and must never fail the operation that emitted it.
func (n NATSNotifier) Notify(ctx context.Context, p Progress) {
	if n.Conn == nil {
		return
	}
	subject := n.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	_ = n.Conn.PublishMsg(msg)
}
