package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action names a workflow step a caller may request.
type Action string

const (
	ActionSubmit               Action = "submit"
	ActionCancel               Action = "cancel"
	ActionApproveAssign        Action = "approve_assign"
	ActionReject               Action = "reject"
	ActionRequestClarification Action = "request_clarification"
	ActionAcknowledge          Action = "acknowledge"
	ActionStartWork            Action = "start_work"
	ActionRequestApproval      Action = "request_approval"
	ActionApproveRequest       Action = "approve_request"
	ActionDenyRequest          Action = "deny_request"
	ActionPostpone             Action = "postpone"
	ActionResume               Action = "resume"
	ActionMarkComplete         Action = "mark_complete"
	ActionResolve              Action = "resolve"
	ActionRequestRework        Action = "request_rework"
	ActionAutoCloseExpiry      Action = "auto_close_expiry"
	ActionReopen               Action = "reopen"
)

// Audit-only action types recorded by operations outside the transition table.
const (
	ActionCreate   Action = "create"
	ActionSplit    Action = "split"
	ActionReassign Action = "reassign"
	ActionUndo     Action = "undo"
)

// ParseAction normalizes a user-supplied action name.
func ParseAction(value string) (Action, bool) {
	a := Action(strings.ToLower(strings.TrimSpace(value)))
	_, ok := transitions[a]
	return a, ok
}

// ActionPayload carries the optional inputs an action may need. Which fields
// are required depends on the action.
type ActionPayload struct {
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Notes   string `json:"notes,omitempty"`

	Department string         `json:"department,omitempty"`
	AssigneeID *uuid.UUID     `json:"assigneeId,omitempty"`
	Priority   TicketPriority `json:"priority,omitempty"`
	SLAHours   *int           `json:"slaHours,omitempty"`
	DueDate    *time.Time     `json:"dueDate,omitempty"`
}

// Command is one request to move a ticket.
type Command struct {
	TicketID        uuid.UUID
	Action          Action
	Payload         ActionPayload
	ExpectedVersion *int64
}
