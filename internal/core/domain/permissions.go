package domain

import (
	"github.com/google/uuid"
)

// Role is the coarse role carried in the caller's identity.
type Role string

const (
	RoleRequester Role = "requester"
	RoleModerator Role = "moderator"
	RoleAssignee  Role = "assignee"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

// IsValid checks if the role is a known value.
func (r Role) IsValid() bool {
	switch r {
	case RoleRequester, RoleModerator, RoleAssignee, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// SystemActorID identifies timer-driven changes in the audit log.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Actor is the identity performing an operation.
type Actor struct {
	ID         uuid.UUID
	Name       string
	Role       Role
	Department string
	IsCEO      bool
}

// SystemActor returns the identity used by the timer scheduler.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Name: "system", Role: RoleSystem}
}

// IsModerator reports whether the actor may triage tickets.
func (a Actor) IsModerator() bool {
	return a.Role == RoleModerator || a.Role == RoleAdmin
}

// IsSystem reports whether the actor is the internal scheduler.
func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

// Guard is a named permission predicate over (actor, ticket).
type Guard string

const (
	GuardRequester Guard = "requester"
	GuardModerator Guard = "moderator"
	GuardAssignee  Guard = "assignee"
	GuardSystem    Guard = "system"
	GuardApprover  Guard = "approver"
)

// Allows evaluates the guard. All role checks of the workflow go through here.
func (g Guard) Allows(actor Actor, t *Ticket) bool {
	switch g {
	case GuardRequester:
		return t.IsOwnedBy(actor.ID)
	case GuardModerator:
		return actor.IsModerator()
	case GuardAssignee:
		return CanActAsAssignee(actor, t)
	case GuardSystem:
		return actor.IsSystem()
	case GuardApprover:
		return actor.IsCEO
	}
	return false
}

func (g Guard) describe() string {
	switch g {
	case GuardRequester:
		return "only the requester"
	case GuardModerator:
		return "only a moderator"
	case GuardAssignee:
		return "only the assignee"
	case GuardSystem:
		return "only the system"
	case GuardApprover:
		return "only the CEO approver"
	}
	return "nobody"
}

// CanActAsAssignee is true for the current assignee, or for any assignee of
// the ticket's department while the ticket is unclaimed.
func CanActAsAssignee(actor Actor, t *Ticket) bool {
	if t.AssigneeID != nil {
		return *t.AssigneeID == actor.ID
	}
	return actor.Role == RoleAssignee && t.Department != "" && SameDepartment(actor.Department, t.Department)
}

// CanView decides read access. Moderators see everything, assignees see their
// department, requesters see their own tickets.
func CanView(actor Actor, t *Ticket) bool {
	switch {
	case actor.IsModerator(), actor.IsSystem():
		return true
	case t.IsOwnedBy(actor.ID), t.IsAssignedTo(actor.ID):
		return true
	case actor.Role == RoleAssignee:
		return t.Department != "" && SameDepartment(actor.Department, t.Department)
	}
	return false
}

var splittableStatuses = map[TicketStatus]bool{
	StatusSubmitted: true,
	StatusAssigned:  true,
}

var reassignableStatuses = map[TicketStatus]bool{
	StatusSubmitted:       true,
	StatusAssigned:        true,
	StatusInProgress:      true,
	StatusWaitingApproval: true,
	StatusPostponed:       true,
}

// CanSplit reports whether the actor may split the ticket in its current state.
func CanSplit(actor Actor, t *Ticket) bool {
	if !splittableStatuses[t.Status] || t.IsChild() {
		return false
	}
	return actor.IsModerator() || t.IsAssignedTo(actor.ID)
}

// IsReassignable reports whether the status allows reassignment.
func IsReassignable(status TicketStatus) bool {
	return reassignableStatuses[status]
}

// Permissions is the derived capability set for one actor on one ticket.
type Permissions struct {
	Actions     []Action `json:"actions"`
	CanEdit     bool     `json:"canEdit"`
	CanCancel   bool     `json:"canCancel"`
	CanReopen   bool     `json:"canReopen"`
	CanSplit    bool     `json:"canSplit"`
	CanReassign bool     `json:"canReassign"`
	CanUndo     bool     `json:"canUndo"`
}

// AllowedActions derives everything the actor can do with the ticket right now.
// undoOpen tells whether an active undo window exists for the ticket.
func AllowedActions(actor Actor, t *Ticket, undoOpen bool) Permissions {
	perms := Permissions{Actions: []Action{}}
	if t.DeletedAt != nil {
		return perms
	}

	for _, action := range actionOrder {
		if err := CheckTransition(actor, t, action); err == nil {
			perms.Actions = append(perms.Actions, action)
		}
	}

	for _, a := range perms.Actions {
		switch a {
		case ActionCancel:
			perms.CanCancel = true
		case ActionReopen:
			perms.CanReopen = true
		}
	}
	perms.CanEdit = t.Status == StatusDraft && t.IsOwnedBy(actor.ID)
	perms.CanSplit = CanSplit(actor, t)
	perms.CanReassign = actor.IsModerator() && IsReassignable(t.Status)
	perms.CanUndo = undoOpen && actor.IsModerator() && t.Status == StatusAssigned
	return perms
}
