package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
)

// Field limits shared by drafts and split children.
const (
	MinSubjectLength     = 5
	MaxSubjectLength     = 255
	MinDescriptionLength = 10
	MaxDescriptionLength = 10000
	MinReasonLength      = 10

	DefaultSLAHours = 72
	MaxReopenCount  = 2
)

// TicketStatus represents the possible states of a ticket.
type TicketStatus string

const (
	StatusDraft           TicketStatus = "draft"
	StatusSubmitted       TicketStatus = "submitted"
	StatusAssigned        TicketStatus = "assigned"
	StatusInProgress      TicketStatus = "in_progress"
	StatusWaitingApproval TicketStatus = "waiting_approval"
	StatusPostponed       TicketStatus = "postponed"
	StatusCompleted       TicketStatus = "completed"
	StatusResolved        TicketStatus = "resolved"
	StatusRejected        TicketStatus = "rejected"
	StatusClosed          TicketStatus = "closed"

	// StatusPendingLabel is how a reopened submitted ticket is shown. It is
	// never stored.
	StatusPendingLabel = "pending"
)

var allStatuses = []TicketStatus{
	StatusDraft, StatusSubmitted, StatusAssigned, StatusInProgress, StatusWaitingApproval,
	StatusPostponed, StatusCompleted, StatusResolved, StatusRejected, StatusClosed,
}

// AllStatuses returns every stored status.
func AllStatuses() []TicketStatus {
	out := make([]TicketStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// IsValid checks if the status is a known value.
func (s TicketStatus) IsValid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further workflow action can leave the status
// except reopen.
func (s TicketStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusClosed
}

// ParseStatus accepts stored names plus the "pending" display alias. The
// alias selects submitted tickets that were reopened, reported by reopened.
func ParseStatus(value string) (status TicketStatus, reopened bool, ok bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == StatusPendingLabel {
		return StatusSubmitted, true, true
	}
	s := TicketStatus(v)
	return s, false, s.IsValid()
}

// TicketPriority represents the urgency of a ticket. The zero value means unset.
type TicketPriority string

const (
	PriorityUnset  TicketPriority = ""
	PriorityLow    TicketPriority = "low"
	PriorityMedium TicketPriority = "medium"
	PriorityHigh   TicketPriority = "high"
	PriorityUrgent TicketPriority = "urgent"
)

// IsValid checks if the priority is a known value. Unset is valid.
func (p TicketPriority) IsValid() bool {
	switch p {
	case PriorityUnset, PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket is the core aggregate.
type Ticket struct {
	ID           uuid.UUID
	TicketNumber string
	Subject      string
	Description  string
	Department   string
	Priority     TicketPriority
	Status       TicketStatus

	RequesterID   uuid.UUID
	RequesterName string
	ModeratorID   *uuid.UUID
	ModeratorName string
	AssigneeID    *uuid.UUID
	AssigneeName  string

	SubmittedDate  *time.Time
	AssignedDate   *time.Time
	AcknowledgedAt *time.Time
	CompletedDate  *time.Time
	ResolvedDate   *time.Time

	DueDateOverride *time.Time
	SLAHours        int
	ReopenCount     int
	ParentTicketID  *uuid.UUID

	RejectionReason    string
	CompletionNote     string
	PostponementReason string
	ReassignmentReason string
	IsApproved         *bool

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// DraftParams holds the requester-provided fields for a new ticket.
type DraftParams struct {
	Subject       string
	Description   string
	Department    string
	Priority      TicketPriority
	RequesterID   uuid.UUID
	RequesterName string
}

// NewDraft validates input and builds a draft ticket.
func NewDraft(params DraftParams, now time.Time) (*Ticket, error) {
	errs := apperrors.NewValidationErrors()

	subject := strings.TrimSpace(params.Subject)
	description := strings.TrimSpace(params.Description)
	validateSubject(errs, "subject", subject)
	validateDescription(errs, "description", description)

	if !params.Priority.IsValid() {
		errs.Add("priority", "priority must be one of low, medium, high, urgent")
	}
	if params.RequesterID == uuid.Nil {
		errs.Add("requesterId", "requester is required")
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	return &Ticket{
		ID:            uuid.New(),
		Subject:       subject,
		Description:   description,
		Department:    strings.TrimSpace(params.Department),
		Priority:      params.Priority,
		Status:        StatusDraft,
		RequesterID:   params.RequesterID,
		RequesterName: params.RequesterName,
		SLAHours:      DefaultSLAHours,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func validateSubject(errs *apperrors.ValidationErrors, field, subject string) {
	switch {
	case len(subject) < MinSubjectLength:
		errs.Add(field, "subject must be at least 5 characters")
	case len(subject) > MaxSubjectLength:
		errs.Add(field, "subject must be at most 255 characters")
	}
}

func validateDescription(errs *apperrors.ValidationErrors, field, description string) {
	switch {
	case len(description) < MinDescriptionLength:
		errs.Add(field, "description must be at least 10 characters")
	case len(description) > MaxDescriptionLength:
		errs.Add(field, "description is too long")
	}
}

// Clone returns a deep copy, so a loaded ticket can be mutated without
// touching the caller's view of the persisted state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.ModeratorID = cloneUUID(t.ModeratorID)
	c.AssigneeID = cloneUUID(t.AssigneeID)
	c.ParentTicketID = cloneUUID(t.ParentTicketID)
	c.SubmittedDate = cloneTime(t.SubmittedDate)
	c.AssignedDate = cloneTime(t.AssignedDate)
	c.AcknowledgedAt = cloneTime(t.AcknowledgedAt)
	c.CompletedDate = cloneTime(t.CompletedDate)
	c.ResolvedDate = cloneTime(t.ResolvedDate)
	c.DueDateOverride = cloneTime(t.DueDateOverride)
	c.DeletedAt = cloneTime(t.DeletedAt)
	if t.IsApproved != nil {
		v := *t.IsApproved
		c.IsApproved = &v
	}
	return &c
}

// DisplayStatus is the status label shown to users.
func (t *Ticket) DisplayStatus() string {
	if t.Status == StatusSubmitted && t.ReopenCount > 0 {
		return StatusPendingLabel
	}
	return string(t.Status)
}

// IsOwnedBy reports whether the user requested the ticket.
func (t *Ticket) IsOwnedBy(userID uuid.UUID) bool {
	return t.RequesterID == userID
}

// IsAssignedTo reports whether the user is the current assignee.
func (t *Ticket) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// IsChild reports whether the ticket was produced by a split.
func (t *Ticket) IsChild() bool {
	return t.ParentTicketID != nil
}

// Participants lists everyone with a stake in the ticket, without duplicates.
func (t *Ticket) Participants() []uuid.UUID {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	add := func(id *uuid.UUID) {
		if id == nil || *id == uuid.Nil || seen[*id] {
			return
		}
		seen[*id] = true
		out = append(out, *id)
	}
	requester := t.RequesterID
	add(&requester)
	add(t.ModeratorID)
	add(t.AssigneeID)
	return out
}

// SameDepartment compares department names the way users type them.
func SameDepartment(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// IsFinanceDepartment reports whether approval requests apply to the department.
func IsFinanceDepartment(department string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(department)), "finance")
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
