// Package outbound publishes completed market events to NATS JetStream for
// downstream consumers. Delivery is best-effort: a consumer that misses
// events can rebuild from the query surface.
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/tracer-protocol/perpetual-contracts-sub002/internal/market"
)

// StreamName holds every outbound market event.
const StreamName = "PERP_MARKET_EVENTS"

// Publisher drains the market's event channel into JetStream. Subjects
// follow the pattern perp.market.events.{event_type}.{market_address}.
type Publisher struct {
	js    jetstream.JetStream
	input <-chan market.Event
	log   zerolog.Logger
}

// NewPublisher returns a publisher reading from input.
func NewPublisher(js jetstream.JetStream, input <-chan market.Event, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, input: input, log: log}
}

// Run drains the event channel until the context is cancelled or the
// channel closes. Publish failures are logged, never fatal.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, evt); err != nil {
				p.log.Warn().
					Err(err).
					Str("event", string(evt.Type)).
					Str("id", evt.ID.String()).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt market.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("perp.market.events.%s.%s", evt.Type, evt.Market)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}

// ConnectNATS dials the NATS server with unlimited reconnects.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}

// EnsureEventStream creates or updates the outbound event stream.
func EnsureEventStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"perp.market.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
