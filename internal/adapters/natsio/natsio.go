// Package natsio carries classified events between a standalone monitor
// process and the hub process over NATS. It is the shared-nothing seam for
// producers that cannot reach the hub's memory.
package natsio

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/domain"
	"github.com/authtail/authtail/internal/ports"
)

const (
	// DefaultSubject carries classified events from monitors to the hub.
	DefaultSubject = "authtail.events.classified"

	connectTimeout = 10 * time.Second
	reconnectWait  = 5 * time.Second
)

func connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS %s: %w", url, err)
	}
	return nc, nil
}

// Publisher forwards classified events onto a NATS subject. Implements the
// EventSink port; a monitor process uses it in place of the in-process hub.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

func NewPublisher(url, subject string) (*Publisher, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := connect(url)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("NATS publisher connected")
	return &Publisher{conn: nc, subject: subject}, nil
}

func (p *Publisher) Publish(event *domain.Event) {
	if event == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", event.ID).Msg("Failed to marshal event")
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		log.Warn().Err(err).Str("event", event.ID).Msg("NATS publish failed")
	}
}

func (p *Publisher) Close() {
	p.conn.Drain()
	p.conn.Close()
}

// Consumer subscribes to the classified-event subject and republishes each
// event into the local sinks, exactly as if it had been produced in
// process. Payloads are trusted as already classified; only undecodable
// messages are dropped.
type Consumer struct {
	conn *nats.Conn
	sub  *nats.Subscription
}

func NewConsumer(url, subject string, sinks ...ports.EventSink) (*Consumer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := connect(url)
	if err != nil {
		return nil, err
	}

	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var event domain.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Warn().Err(err).Msg("Dropping undecodable event message")
			return
		}
		for _, sink := range sinks {
			sink.Publish(&event)
		}
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	log.Info().Str("url", url).Str("subject", subject).Msg("NATS consumer subscribed")
	return &Consumer{conn: nc, sub: sub}, nil
}

func (c *Consumer) Close() {
	c.sub.Unsubscribe()
	c.conn.Drain()
	c.conn.Close()
}
