package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// Config holds connection settings for the message bus.
type Config struct {
	URL           string
	ClientName    string
	SubjectPrefix string
}

// Publisher sends ticket events and notification requests to NATS.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

var (
	_ ports.EventBroadcaster = (*Publisher)(nil)
	_ ports.Notifier         = (*Publisher)(nil)
)

// Connect dials NATS and returns a publisher.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewPublisher(nc, cfg.SubjectPrefix, logger), nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(nc *nats.Conn, prefix string, logger *slog.Logger) *Publisher {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "tickets"
	}
	return &Publisher{nc: nc, prefix: prefix, logger: logger.With("component", "nats")}
}

// EventSubject is where events of the given type are published.
func (p *Publisher) EventSubject(t domain.EventType) string {
	return p.prefix + ".events." + strings.ToLower(string(t))
}

// NotificationSubject is where notification requests of the given type go.
func (p *Publisher) NotificationSubject(eventType string) string {
	return p.prefix + ".notifications." + strings.ReplaceAll(eventType, ".", "_")
}

// Broadcast publishes a ticket event.
func (p *Publisher) Broadcast(event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.nc.Publish(p.EventSubject(event.Type), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// notificationMessage is the wire form of a notification request.
type notificationMessage struct {
	TicketID     string    `json:"ticketId"`
	TicketNumber string    `json:"ticketNumber,omitempty"`
	EventType    string    `json:"eventType"`
	Participants []string  `json:"participants"`
	Message      string    `json:"message,omitempty"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// Notify hands a notification request to the delivery service. Failures are
// logged; delivery is not this service's concern.
func (p *Publisher) Notify(ctx context.Context, params ports.NotificationParams) {
	participants := make([]string, 0, len(params.Participants))
	for _, id := range params.Participants {
		participants = append(participants, id.String())
	}

	data, err := json.Marshal(notificationMessage{
		TicketID:     params.TicketID.String(),
		TicketNumber: params.TicketNumber,
		EventType:    params.EventType,
		Participants: participants,
		Message:      params.Message,
		RequestedAt:  time.Now().UTC(),
	})
	if err != nil {
		p.logger.Error("failed to encode notification", "ticket_id", params.TicketID, "error", err)
		return
	}

	if err := p.nc.Publish(p.NotificationSubject(params.EventType), data); err != nil {
		p.logger.Error("failed to publish notification", "ticket_id", params.TicketID, "error", err)
		return
	}
	if ctx.Err() == nil {
		p.logger.Debug("notification published", "ticket_id", params.TicketID, "event_type", params.EventType)
	}
}

// Ping reports whether the connection is usable.
func (p *Publisher) Ping(context.Context) error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
