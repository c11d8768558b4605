// Package events publishes auth events for the notification side of the system.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type conn interface {
	Publish(subj string, data []byte) error
}

// NatsPublisher publishes events as JSON on a NATS subject.
type NatsPublisher struct {
	nc  conn
	log logrus.FieldLogger
}

func NewNatsPublisher(nc *nats.Conn, logger logrus.FieldLogger) *NatsPublisher {
	return &NatsPublisher{nc: nc, log: logger}
}

func (p *NatsPublisher) Publish(_ context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.WithField("subject", subject).Debug("event published")
	return nil
}

// Connect dials NATS with reconnects enabled. An empty url returns nil, nil
// and the service runs without events.
func Connect(url string, logger logrus.FieldLogger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name("automobile-auth"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
}
