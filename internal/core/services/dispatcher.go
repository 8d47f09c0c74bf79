package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

const (
	sideEffectTimeout = 10 * time.Second
	sideEffectBacklog = 1024
)

// Dispatcher runs post-commit side effects (broadcasts, notifications, channel
// membership) in the background. They never affect the committed result.
// Side effects run one at a time in the order they were queued, so events for
// a ticket leave in commit order and a channel join precedes the broadcast
// queued after it.
type Dispatcher struct {
	notifier    ports.Notifier
	broadcaster ports.EventBroadcaster
	channels    ports.ChannelManager
	revoker     ports.AccessRevoker
	logger      *slog.Logger

	queue chan func(ctx context.Context)
	start sync.Once
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Nil collaborators are skipped.
func NewDispatcher(
	notifier ports.Notifier,
	broadcaster ports.EventBroadcaster,
	channels ports.ChannelManager,
	revoker ports.AccessRevoker,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier:    notifier,
		broadcaster: broadcaster,
		channels:    channels,
		revoker:     revoker,
		logger:      logger.With("component", "dispatcher"),
		queue:       make(chan func(ctx context.Context), sideEffectBacklog),
	}
}

// run queues fn. It blocks only when the backlog is full.
func (d *Dispatcher) run(fn func(ctx context.Context)) {
	d.start.Do(func() { go d.loop() })
	d.wg.Add(1)
	d.queue <- fn
}

func (d *Dispatcher) loop() {
	for fn := range d.queue {
		d.exec(fn)
	}
}

func (d *Dispatcher) exec(fn func(ctx context.Context)) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("side effect panicked", "panic", r)
		}
	}()
	// The request context may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	fn(ctx)
}

// TicketChanged broadcasts the change and notifies the other participants.
func (d *Dispatcher) TicketChanged(before, after *domain.Ticket, action domain.Action, actor domain.Actor, at time.Time) {
	event := domain.NewTicketChangedEvent(before, after, action, actor.ID, at)
	participants := without(after.Participants(), actor.ID)

	d.run(func(ctx context.Context) {
		d.broadcast(event)
		d.notify(ctx, ports.NotificationParams{
			TicketID:     after.ID,
			TicketNumber: after.TicketNumber,
			EventType:    domain.NotifyStatusChanged,
			Participants: participants,
			Message:      "Ticket " + after.TicketNumber + " is now " + after.DisplayStatus(),
		})
	})
}

// Notify sends a notification in the background.
func (d *Dispatcher) Notify(params ports.NotificationParams) {
	d.run(func(ctx context.Context) {
		d.notify(ctx, params)
	})
}

// Broadcast publishes an event in the background.
func (d *Dispatcher) Broadcast(event domain.Event) {
	d.run(func(context.Context) {
		d.broadcast(event)
	})
}

// JoinGroup adds every participant to every ticket channel of the group.
func (d *Dispatcher) JoinGroup(ticketIDs, participants []uuid.UUID) {
	if d.channels == nil {
		return
	}
	d.run(func(ctx context.Context) {
		for _, ticketID := range ticketIDs {
			for _, participant := range participants {
				if err := d.channels.JoinChannel(ctx, ticketID, participant); err != nil {
					d.logger.Warn("failed to join ticket channel",
						"ticket_id", ticketID, "participant_id", participant, "error", err)
				}
			}
		}
	})
}

// Revoke removes a former participant from the ticket channel.
func (d *Dispatcher) Revoke(ticketID, userID uuid.UUID) {
	if d.revoker == nil {
		return
	}
	d.run(func(ctx context.Context) {
		if err := d.revoker.RevokeAccess(ctx, ticketID, userID); err != nil {
			d.logger.Warn("failed to revoke ticket access", "ticket_id", ticketID, "user_id", userID, "error", err)
		}
	})
}

func (d *Dispatcher) broadcast(event domain.Event) {
	if d.broadcaster == nil {
		return
	}
	if err := d.broadcaster.Broadcast(event); err != nil {
		d.logger.Warn("failed to broadcast event", "type", event.Type, "ticket_id", event.TicketID, "error", err)
	}
}

func (d *Dispatcher) notify(ctx context.Context, params ports.NotificationParams) {
	if d.notifier == nil || len(params.Participants) == 0 {
		return
	}
	d.notifier.Notify(ctx, params)
}

// Wait blocks until all in-flight side effects finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func without(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

// Broadcasters sends every event to each of its members. Failures of one
// member do not stop the others.
type Broadcasters []ports.EventBroadcaster

var _ ports.EventBroadcaster = Broadcasters(nil)

func (b Broadcasters) Broadcast(event domain.Event) error {
	var errs []error
	for _, member := range b {
		if member == nil {
			continue
		}
		if err := member.Broadcast(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
