package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of real-time event.
type EventType string

const (
	EventTicketChanged EventType = "TICKET_CHANGED"
	EventTicketSplit   EventType = "TICKET_SPLIT"
)

// Event is the payload sent over WebSocket and the message bus.
type Event struct {
	Type     EventType   `json:"type"`
	Payload  interface{} `json:"payload"`
	TicketID uuid.UUID   `json:"ticketId"` // Used for routing to specific ticket "rooms"
}

// TicketChanged is emitted after every committed state change.
type TicketChanged struct {
	TicketID  uuid.UUID `json:"ticketId"`
	FromState string    `json:"fromState"`
	ToState   string    `json:"toState"`
	Action    Action    `json:"action"`
	ActorID   uuid.UUID `json:"actorId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTicketChangedEvent wraps a change for broadcast.
func NewTicketChangedEvent(before, after *Ticket, action Action, actorID uuid.UUID, at time.Time) Event {
	from := ""
	if before != nil {
		from = before.DisplayStatus()
	}
	return Event{
		Type:     EventTicketChanged,
		TicketID: after.ID,
		Payload: TicketChanged{
			TicketID:  after.ID,
			FromState: from,
			ToState:   after.DisplayStatus(),
			Action:    action,
			ActorID:   actorID,
			Timestamp: at.UTC(),
		},
	}
}

// Notification event types handed to the Notifier.
const (
	NotifyStatusChanged         = "ticket.status_changed"
	NotifyClarificationRequired = "ticket.clarification_requested"
	NotifyTicketSplit           = "ticket.split"
	NotifyTicketReassigned      = "ticket.reassigned"
	NotifyAssignmentUndone      = "ticket.assignment_undone"
)
