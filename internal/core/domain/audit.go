package domain

import (
	"time"

	"github.com/google/uuid"
)

// StateSnapshot is the ticket state recorded before and after a change.
type StateSnapshot struct {
	Status          TicketStatus   `json:"status"`
	Department      string         `json:"department"`
	Priority        TicketPriority `json:"priority,omitempty"`
	AssigneeID      *uuid.UUID     `json:"assigneeId,omitempty"`
	AssigneeName    string         `json:"assigneeName,omitempty"`
	ModeratorID     *uuid.UUID     `json:"moderatorId,omitempty"`
	SLAHours        int            `json:"slaHours"`
	DueDateOverride *time.Time     `json:"dueDateOverride,omitempty"`
	ReopenCount     int            `json:"reopenCount"`
	IsApproved      *bool          `json:"isApproved,omitempty"`
	Deleted         bool           `json:"deleted,omitempty"`
	Version         int64          `json:"version"`
}

// CaptureState records the audited fields of a ticket.
func CaptureState(t *Ticket) *StateSnapshot {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &StateSnapshot{
		Status:          c.Status,
		Department:      c.Department,
		Priority:        c.Priority,
		AssigneeID:      c.AssigneeID,
		AssigneeName:    c.AssigneeName,
		ModeratorID:     c.ModeratorID,
		SLAHours:        c.SLAHours,
		DueDateOverride: c.DueDateOverride,
		ReopenCount:     c.ReopenCount,
		IsApproved:      c.IsApproved,
		Deleted:         c.DeletedAt != nil,
		Version:         c.Version,
	}
}

// AuditEntry is one immutable line of a ticket's history.
type AuditEntry struct {
	ID          uuid.UUID
	TicketID    uuid.UUID
	ActionType  Action
	ActorID     uuid.UUID
	ActorName   string
	Reason      string
	BeforeState *StateSnapshot
	AfterState  *StateSnapshot
	Details     map[string]any
	Timestamp   time.Time
}

// NewAuditEntry builds an entry for a change made by actor.
func NewAuditEntry(ticketID uuid.UUID, action Action, actor Actor, reason string, before, after *Ticket, at time.Time) *AuditEntry {
	return &AuditEntry{
		ID:          uuid.New(),
		TicketID:    ticketID,
		ActionType:  action,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Reason:      reason,
		BeforeState: CaptureState(before),
		AfterState:  CaptureState(after),
		Timestamp:   at,
	}
}
