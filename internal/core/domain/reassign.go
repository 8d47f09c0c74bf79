package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
)

// Reassignment moves a ticket to another department and assignee.
type Reassignment struct {
	Department   string
	AssigneeID   uuid.UUID
	AssigneeName string
	Reason       string
}

// Validate checks the request fields.
func (r Reassignment) Validate() error {
	errs := apperrors.NewValidationErrors()
	if strings.TrimSpace(r.Department) == "" {
		errs.Add("department", "department is required")
	}
	if r.AssigneeID == uuid.Nil {
		errs.Add("assigneeId", "assignee is required")
	}
	requireReason(errs, "reason", r.Reason, "reassignment reason")
	return errs.OrNil()
}

// ApplyReassignment returns a reassigned copy of t.
func ApplyReassignment(actor Actor, t *Ticket, r Reassignment, now time.Time) (*Ticket, error) {
	if t.DeletedAt != nil || !IsReassignable(t.Status) {
		return nil, apperrors.NewRuleError(apperrors.ErrInvalidTransition,
			"ticket cannot be reassigned while it is %s", t.DisplayStatus())
	}
	if !actor.IsModerator() {
		return nil, apperrors.PermissionDenied("only a moderator may reassign this ticket")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	next := t.Clone()
	next.Department = strings.TrimSpace(r.Department)
	assigneeID := r.AssigneeID
	next.AssigneeID = &assigneeID
	next.AssigneeName = r.AssigneeName
	next.AssignedDate = timePtr(now)
	next.AcknowledgedAt = nil
	next.ReassignmentReason = strings.TrimSpace(r.Reason)
	next.UpdatedAt = now
	return next, nil
}
