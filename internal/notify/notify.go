// Package notify implements the optional EventNotifier: publishes AR
// alerts and periodic summaries to external subscribers. A no-op
// implementation is the default; a NATS-backed one is opt-in.
//
// Grounded on pkg/messaging.Client wrapping nats.go.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/meridianhealth/claimsim/pkg/breaker"
)

// Notifier publishes domain events to an external sink.
type Notifier interface {
	Publish(ctx context.Context, subject string, payload any) error
	Close()
}

// Noop discards every publish. It is the default Notifier.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close()                                     {}

// NATSNotifier publishes JSON-encoded payloads over a NATS connection.
type NATSNotifier struct {
	conn *nats.Conn
	log  *zap.Logger
}

// DialNATS connects to url. On failure it returns a nil *NATSNotifier
// and an error; callers should fall back to Noop rather than fail
// orchestrator start (publishing is explicitly non-critical).
func DialNATS(url string, log *zap.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("claimsim"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &NATSNotifier{conn: conn, log: log}, nil
}

func (n *NATSNotifier) Publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}

func (n *NATSNotifier) Close() {
	n.conn.Close()
}

// Breaking wraps a Notifier with a circuit breaker: repeated publish
// failures trip it and short-circuit further calls for a cooldown
// window, so a misbehaving notifier can never back-pressure the core
// pipeline.
type Breaking struct {
	inner Notifier
	br    *breaker.Breaker
}

// WithBreaker wraps inner in a Breaker using the given failure/cooldown
// policy.
func WithBreaker(inner Notifier, maxFailures int, cooldown time.Duration) *Breaking {
	return &Breaking{
		inner: inner,
		br:    breaker.New(breaker.Config{Name: "notifier", MaxFailures: maxFailures, Cooldown: cooldown}),
	}
}

func (b *Breaking) Publish(ctx context.Context, subject string, payload any) error {
	return b.br.Call(func() error { return b.inner.Publish(ctx, subject, payload) })
}

func (b *Breaking) Close() {
	b.inner.Close()
}
