package events

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher implements Publisher using NATS.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher connects to NATS and returns a publisher rooted at the
// given subject.
func NewNATSPublisher(natsURL, subject string, logger zerolog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// Close closes the NATS connection.
func (n *NATSPublisher) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// PublishModelEvent publishes to the root subject and to a per-event routing
// key so consumers can subscribe to activations only.
func (n *NATSPublisher) PublishModelEvent(ctx context.Context, event ModelEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		n.logger.Error().Err(err).Str("subject", n.subject).Msg("Failed to publish model event")
		return err
	}
	routingKey := n.subject + "." + event.Event
	if err := n.conn.Publish(routingKey, data); err != nil {
		n.logger.Error().Err(err).Str("subject", routingKey).Msg("Failed to publish routed model event")
		return err
	}
	return nil
}
