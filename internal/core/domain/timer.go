package domain

import (
	"time"

	"github.com/google/uuid"
)

// TimerKind distinguishes the durable timers a ticket can have.
type TimerKind string

const (
	TimerUndo      TimerKind = "undo"
	TimerAutoClose TimerKind = "auto_close"
)

// Default timer durations.
const (
	DefaultUndoWindow     = 900 * time.Second
	DefaultAutoCloseAfter = 48 * time.Hour
)

// AssignmentSnapshot is what an undo puts back.
type AssignmentSnapshot struct {
	Status          TicketStatus   `json:"status"`
	Department      string         `json:"department"`
	AssigneeID      *uuid.UUID     `json:"assigneeId,omitempty"`
	AssigneeName    string         `json:"assigneeName,omitempty"`
	ModeratorID     *uuid.UUID     `json:"moderatorId,omitempty"`
	ModeratorName   string         `json:"moderatorName,omitempty"`
	Priority        TicketPriority `json:"priority,omitempty"`
	SLAHours        int            `json:"slaHours"`
	DueDateOverride *time.Time     `json:"dueDateOverride,omitempty"`
	AssignedDate    *time.Time     `json:"assignedDate,omitempty"`
	AcknowledgedAt  *time.Time     `json:"acknowledgedAt,omitempty"`
}

// SnapshotAssignment captures the fields approve_assign may change.
func SnapshotAssignment(t *Ticket) *AssignmentSnapshot {
	c := t.Clone()
	return &AssignmentSnapshot{
		Status:          c.Status,
		Department:      c.Department,
		AssigneeID:      c.AssigneeID,
		AssigneeName:    c.AssigneeName,
		ModeratorID:     c.ModeratorID,
		ModeratorName:   c.ModeratorName,
		Priority:        c.Priority,
		SLAHours:        c.SLAHours,
		DueDateOverride: c.DueDateOverride,
		AssignedDate:    c.AssignedDate,
		AcknowledgedAt:  c.AcknowledgedAt,
	}
}

// RestoreAssignment returns a copy of t with the snapshot written back. This
// bypasses the transition table.
func RestoreAssignment(t *Ticket, s *AssignmentSnapshot, now time.Time) *Ticket {
	next := t.Clone()
	next.Status = s.Status
	next.Department = s.Department
	next.AssigneeID = cloneUUID(s.AssigneeID)
	next.AssigneeName = s.AssigneeName
	next.ModeratorID = cloneUUID(s.ModeratorID)
	next.ModeratorName = s.ModeratorName
	next.Priority = s.Priority
	next.SLAHours = s.SLAHours
	next.DueDateOverride = cloneTime(s.DueDateOverride)
	next.AssignedDate = cloneTime(s.AssignedDate)
	next.AcknowledgedAt = cloneTime(s.AcknowledgedAt)
	next.UpdatedAt = now
	return next
}

// TimerRecord is a persisted deadline for a ticket. At most one record per
// (ticket, kind) is active.
type TimerRecord struct {
	ID        uuid.UUID
	TicketID  uuid.UUID
	Kind      TimerKind
	Deadline  time.Time
	Payload   *AssignmentSnapshot
	Active    bool
	CreatedAt time.Time
}

// NewUndoTimer opens an undo window holding the pre-assignment snapshot.
func NewUndoTimer(ticketID uuid.UUID, snapshot *AssignmentSnapshot, now time.Time, window time.Duration) *TimerRecord {
	return &TimerRecord{
		ID:        uuid.New(),
		TicketID:  ticketID,
		Kind:      TimerUndo,
		Deadline:  now.Add(window),
		Payload:   snapshot,
		Active:    true,
		CreatedAt: now,
	}
}

// NewAutoCloseTimer schedules closure relative to the resolution time.
func NewAutoCloseTimer(ticketID uuid.UUID, resolvedAt time.Time, after time.Duration, now time.Time) *TimerRecord {
	return &TimerRecord{
		ID:        uuid.New(),
		TicketID:  ticketID,
		Kind:      TimerAutoClose,
		Deadline:  resolvedAt.Add(after),
		Active:    true,
		CreatedAt: now,
	}
}

// ExpiredAt reports whether the deadline has been reached.
func (r *TimerRecord) ExpiredAt(now time.Time) bool {
	return !now.Before(r.Deadline)
}
