package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
)

type rule struct {
	guard Guard
	to    TicketStatus
}

// transitions is the whole workflow: action -> from-status -> rule.
// A missing entry is an invalid transition.
var transitions = map[Action]map[TicketStatus]rule{
	ActionSubmit: {StatusDraft: {GuardRequester, StatusSubmitted}},
	ActionCancel: {StatusDraft: {GuardRequester, StatusDraft}},

	ActionApproveAssign:        {StatusSubmitted: {GuardModerator, StatusAssigned}},
	ActionReject:               {StatusSubmitted: {GuardModerator, StatusRejected}},
	ActionRequestClarification: {StatusSubmitted: {GuardModerator, StatusSubmitted}},

	ActionAcknowledge: {StatusAssigned: {GuardAssignee, StatusAssigned}},
	ActionStartWork:   {StatusAssigned: {GuardAssignee, StatusInProgress}},
	ActionPostpone: {
		StatusAssigned:   {GuardAssignee, StatusPostponed},
		StatusInProgress: {GuardAssignee, StatusPostponed},
	},
	ActionResume: {StatusPostponed: {GuardAssignee, StatusInProgress}},

	ActionRequestApproval: {StatusInProgress: {GuardAssignee, StatusWaitingApproval}},
	ActionApproveRequest:  {StatusWaitingApproval: {GuardApprover, StatusInProgress}},
	ActionDenyRequest:     {StatusWaitingApproval: {GuardApprover, StatusInProgress}},

	ActionMarkComplete:  {StatusInProgress: {GuardAssignee, StatusCompleted}},
	ActionResolve:       {StatusCompleted: {GuardRequester, StatusResolved}},
	ActionRequestRework: {StatusCompleted: {GuardRequester, StatusInProgress}},

	ActionAutoCloseExpiry: {StatusResolved: {GuardSystem, StatusClosed}},
	ActionReopen: {
		StatusResolved: {GuardRequester, StatusSubmitted},
		StatusClosed:   {GuardRequester, StatusSubmitted},
	},
}

// actionOrder keeps AllowedActions output stable.
var actionOrder = []Action{
	ActionSubmit, ActionCancel,
	ActionApproveAssign, ActionReject, ActionRequestClarification,
	ActionAcknowledge, ActionStartWork, ActionPostpone, ActionResume,
	ActionRequestApproval, ActionApproveRequest, ActionDenyRequest,
	ActionMarkComplete, ActionResolve, ActionRequestRework,
	ActionAutoCloseExpiry, ActionReopen,
}

// Actions lists every workflow action in table order.
func Actions() []Action {
	out := make([]Action, len(actionOrder))
	copy(out, actionOrder)
	return out
}

// TargetStatus returns the status the action leads to from the given status.
func TargetStatus(from TicketStatus, action Action) (TicketStatus, bool) {
	r, ok := transitions[action][from]
	return r.to, ok
}

// CheckTransition verifies that the action exists for the ticket's status and
// that the actor passes its guard and preconditions. It does not look at the
// payload.
func CheckTransition(actor Actor, t *Ticket, action Action) error {
	r, ok := transitions[action][t.Status]
	if !ok || t.DeletedAt != nil {
		return apperrors.InvalidTransition(string(t.Status), string(action))
	}
	if !r.guard.Allows(actor, t) {
		return apperrors.PermissionDenied("%s may %s this ticket", r.guard.describe(), strings.ReplaceAll(string(action), "_", " "))
	}

	switch action {
	case ActionReopen:
		if t.ReopenCount >= MaxReopenCount {
			return apperrors.NewRuleError(apperrors.ErrReopenLimitExceeded,
				"ticket has already been reopened %d times", t.ReopenCount)
		}
	case ActionRequestApproval:
		if !IsFinanceDepartment(t.Department) {
			return apperrors.PermissionDenied("approval can only be requested for Finance tickets")
		}
	}
	return nil
}

// ApplyAction runs the transition on a copy of the ticket and returns it. The
// input ticket is never modified. Roster membership of a payload assignee is
// the caller's concern; AssigneeName is taken as given.
func ApplyAction(actor Actor, t *Ticket, action Action, payload ActionPayload, assigneeName string, now time.Time) (*Ticket, error) {
	if err := CheckTransition(actor, t, action); err != nil {
		return nil, err
	}
	if err := validatePayload(t, action, payload); err != nil {
		return nil, err
	}

	next := t.Clone()
	next.Status, _ = TargetStatus(t.Status, action)
	next.UpdatedAt = now

	switch action {
	case ActionSubmit:
		next.SubmittedDate = timePtr(now)

	case ActionCancel:
		next.DeletedAt = timePtr(now)

	case ActionApproveAssign:
		applyAssignment(next, actor, payload, assigneeName, now)

	case ActionReject:
		next.RejectionReason = strings.TrimSpace(payload.Reason)

	case ActionAcknowledge:
		claim(next, actor)
		next.AcknowledgedAt = timePtr(now)

	case ActionStartWork:
		claim(next, actor)
		if next.AcknowledgedAt == nil {
			next.AcknowledgedAt = timePtr(now)
		}

	case ActionPostpone:
		claim(next, actor)
		next.PostponementReason = strings.TrimSpace(payload.Reason)

	case ActionResume:
		next.PostponementReason = ""

	case ActionRequestApproval:
		next.IsApproved = nil

	case ActionApproveRequest:
		approved := true
		next.IsApproved = &approved

	case ActionDenyRequest:
		denied := false
		next.IsApproved = &denied

	case ActionMarkComplete:
		next.CompletionNote = strings.TrimSpace(payload.Notes)
		next.CompletedDate = timePtr(now)

	case ActionResolve:
		next.ResolvedDate = timePtr(now)

	case ActionRequestRework:
		next.CompletedDate = nil
		next.CompletionNote = ""

	case ActionReopen:
		next.ReopenCount++
		next.SubmittedDate = timePtr(now)
		next.CompletedDate = nil
		next.ResolvedDate = nil
		next.DueDateOverride = nil
	}

	return next, nil
}

func applyAssignment(next *Ticket, actor Actor, payload ActionPayload, assigneeName string, now time.Time) {
	if dept := strings.TrimSpace(payload.Department); dept != "" {
		next.Department = dept
	}
	moderatorID := actor.ID
	next.ModeratorID = &moderatorID
	next.ModeratorName = actor.Name

	if payload.AssigneeID != nil {
		assigneeID := *payload.AssigneeID
		next.AssigneeID = &assigneeID
		next.AssigneeName = assigneeName
	} else {
		next.AssigneeID = nil
		next.AssigneeName = ""
	}
	next.AssignedDate = timePtr(now)
	next.AcknowledgedAt = nil

	if payload.Priority != PriorityUnset {
		next.Priority = payload.Priority
		if payload.SLAHours == nil {
			next.SLAHours = DefaultSLAPolicy.HoursFor(payload.Priority)
		}
	}
	if payload.SLAHours != nil {
		next.SLAHours = *payload.SLAHours
	}
	if payload.DueDate != nil {
		due := payload.DueDate.UTC()
		next.DueDateOverride = &due
	}
}

// claim makes the actor the assignee of an unclaimed ticket.
func claim(next *Ticket, actor Actor) {
	if next.AssigneeID != nil {
		return
	}
	id := actor.ID
	next.AssigneeID = &id
	next.AssigneeName = actor.Name
}

const maxSLAHours = 24 * 90

func validatePayload(t *Ticket, action Action, p ActionPayload) error {
	errs := apperrors.NewValidationErrors()

	switch action {
	case ActionApproveAssign:
		dept := strings.TrimSpace(p.Department)
		if dept == "" && strings.TrimSpace(t.Department) == "" {
			errs.Add("department", "department is required")
		}
		if p.AssigneeID != nil && *p.AssigneeID == uuid.Nil {
			errs.Add("assigneeId", "assignee id is invalid")
		}
		if !p.Priority.IsValid() {
			errs.Add("priority", "priority must be one of low, medium, high, urgent")
		}
		if p.SLAHours != nil && (*p.SLAHours < 1 || *p.SLAHours > maxSLAHours) {
			errs.Add("slaHours", "SLA hours must be between 1 and 2160")
		}
		if p.DueDate != nil && t.SubmittedDate != nil && !p.DueDate.After(*t.SubmittedDate) {
			errs.Add("dueDate", "due date must be after the submission date")
		}

	case ActionReject:
		requireReason(errs, "reason", p.Reason, "rejection reason")

	case ActionRequestClarification:
		requireReason(errs, "message", p.Message, "clarification message")

	case ActionPostpone:
		requireReason(errs, "reason", p.Reason, "postponement reason")

	case ActionDenyRequest:
		requireReason(errs, "reason", p.Reason, "denial reason")

	case ActionMarkComplete:
		if strings.TrimSpace(p.Notes) == "" {
			errs.Add("notes", "completion notes are required")
		}

	case ActionRequestRework:
		if strings.TrimSpace(p.Reason) == "" {
			errs.Add("reason", "rework reason is required")
		}
	}

	return errs.OrNil()
}

func requireReason(errs *apperrors.ValidationErrors, field, value, label string) {
	if len(strings.TrimSpace(value)) < MinReasonLength {
		errs.Add(field, label+" must be at least 10 characters")
	}
}

// AuditReason picks the human text worth recording for the action.
func AuditReason(action Action, p ActionPayload) string {
	switch action {
	case ActionRequestClarification:
		return strings.TrimSpace(p.Message)
	case ActionMarkComplete:
		return strings.TrimSpace(p.Notes)
	}
	return strings.TrimSpace(p.Reason)
}
