package domain

import (
	"time"
)

// TicketSnapshot matches the API response shape for tickets.
type TicketSnapshot struct {
	ID             string  `json:"id"`
	TicketNumber   string  `json:"ticketNumber"`
	Subject        string  `json:"subject"`
	Status         string  `json:"status"`
	Department     string  `json:"department"`
	Priority       string  `json:"priority,omitempty"`
	RequesterID    string  `json:"requesterId"`
	AssigneeID     *string `json:"assigneeId"`
	ParentTicketID *string `json:"parentTicketId"`
	Version        int64   `json:"version"`
	UpdatedAt      string  `json:"updatedAt"`
}

// NewTicketSnapshot builds a compact ticket view for event payloads.
func NewTicketSnapshot(ticket *Ticket) TicketSnapshot {
	var assigneeID *string
	if ticket.AssigneeID != nil {
		value := ticket.AssigneeID.String()
		assigneeID = &value
	}

	var parentID *string
	if ticket.ParentTicketID != nil {
		value := ticket.ParentTicketID.String()
		parentID = &value
	}

	return TicketSnapshot{
		ID:             ticket.ID.String(),
		TicketNumber:   ticket.TicketNumber,
		Subject:        ticket.Subject,
		Status:         ticket.DisplayStatus(),
		Department:     ticket.Department,
		Priority:       string(ticket.Priority),
		RequesterID:    ticket.RequesterID.String(),
		AssigneeID:     assigneeID,
		ParentTicketID: parentID,
		Version:        ticket.Version,
		UpdatedAt:      ticket.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SplitPayload is broadcast to the parent room once children exist.
type SplitPayload struct {
	Parent   TicketSnapshot   `json:"parent"`
	Children []TicketSnapshot `json:"children"`
}
