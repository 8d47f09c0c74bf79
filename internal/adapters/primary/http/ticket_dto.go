package http

import (
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// UserInfoDTO represents a lightweight user reference in responses.
type UserInfoDTO struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

func toUserInfoDTO(id *uuid.UUID, name string) *UserInfoDTO {
	if id == nil {
		return nil
	}
	return &UserInfoDTO{ID: id.String(), FullName: name}
}

// TicketDTO defines the JSON response for tickets.
type TicketDTO struct {
	ID            string `json:"id"`
	TicketNumber  string `json:"ticketNumber"`
	Subject       string `json:"subject"`
	Description   string `json:"description"`
	Department    string `json:"department"`
	Priority      string `json:"priority,omitempty"`
	Status        string `json:"status"`
	DisplayStatus string `json:"displayStatus"`

	Requester *UserInfoDTO `json:"requester"`
	Moderator *UserInfoDTO `json:"moderator"`
	Assignee  *UserInfoDTO `json:"assignee"`

	SubmittedDate   *string `json:"submittedDate"`
	AssignedDate    *string `json:"assignedDate"`
	AcknowledgedAt  *string `json:"acknowledgedAt"`
	CompletedDate   *string `json:"completedDate"`
	ResolvedDate    *string `json:"resolvedDate"`
	DueDate         *string `json:"dueDate"`
	DueDateOverride *string `json:"dueDateOverride"`
	SLAHours        int     `json:"slaHours"`

	ReopenCount        int     `json:"reopenCount"`
	ParentTicketID     *string `json:"parentTicketId"`
	RejectionReason    string  `json:"rejectionReason,omitempty"`
	CompletionNote     string  `json:"completionNote,omitempty"`
	PostponementReason string  `json:"postponementReason,omitempty"`
	ReassignmentReason string  `json:"reassignmentReason,omitempty"`
	IsApproved         *bool   `json:"isApproved"`

	Version   int64  `json:"version"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := t.UTC().Format(time.RFC3339)
	return &value
}

func toTicketDTO(ticket *domain.Ticket) TicketDTO {
	var parentID *string
	if ticket.ParentTicketID != nil {
		value := ticket.ParentTicketID.String()
		parentID = &value
	}

	var dueDate *string
	if due, ok := (domain.SLATracker{}).EffectiveDueDate(ticket); ok {
		dueDate = formatTime(&due)
	}

	requesterID := ticket.RequesterID

	return TicketDTO{
		ID:                 ticket.ID.String(),
		TicketNumber:       ticket.TicketNumber,
		Subject:            ticket.Subject,
		Description:        ticket.Description,
		Department:         ticket.Department,
		Priority:           string(ticket.Priority),
		Status:             string(ticket.Status),
		DisplayStatus:      ticket.DisplayStatus(),
		Requester:          toUserInfoDTO(&requesterID, ticket.RequesterName),
		Moderator:          toUserInfoDTO(ticket.ModeratorID, ticket.ModeratorName),
		Assignee:           toUserInfoDTO(ticket.AssigneeID, ticket.AssigneeName),
		SubmittedDate:      formatTime(ticket.SubmittedDate),
		AssignedDate:       formatTime(ticket.AssignedDate),
		AcknowledgedAt:     formatTime(ticket.AcknowledgedAt),
		CompletedDate:      formatTime(ticket.CompletedDate),
		ResolvedDate:       formatTime(ticket.ResolvedDate),
		DueDate:            dueDate,
		DueDateOverride:    formatTime(ticket.DueDateOverride),
		SLAHours:           ticket.SLAHours,
		ReopenCount:        ticket.ReopenCount,
		ParentTicketID:     parentID,
		RejectionReason:    ticket.RejectionReason,
		CompletionNote:     ticket.CompletionNote,
		PostponementReason: ticket.PostponementReason,
		ReassignmentReason: ticket.ReassignmentReason,
		IsApproved:         ticket.IsApproved,
		Version:            ticket.Version,
		CreatedAt:          ticket.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          ticket.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toTicketDTOs(tickets []*domain.Ticket) []TicketDTO {
	response := make([]TicketDTO, 0, len(tickets))
	for _, ticket := range tickets {
		response = append(response, toTicketDTO(ticket))
	}
	return response
}

// TicketResponse wraps a single ticket.
type TicketResponse struct {
	Ticket TicketDTO `json:"ticket"`
}

// AuditEntryDTO is one line of ticket history.
type AuditEntryDTO struct {
	ID          string                `json:"id"`
	TicketID    string                `json:"ticketId"`
	ActionType  string                `json:"actionType"`
	ActorID     string                `json:"actorId"`
	ActorName   string                `json:"actorName,omitempty"`
	Reason      string                `json:"reason,omitempty"`
	BeforeState *domain.StateSnapshot `json:"beforeState"`
	AfterState  *domain.StateSnapshot `json:"afterState"`
	Details     map[string]any        `json:"details,omitempty"`
	Timestamp   string                `json:"timestamp"`
}

func toAuditEntryDTO(e *domain.AuditEntry) *AuditEntryDTO {
	if e == nil {
		return nil
	}
	return &AuditEntryDTO{
		ID:          e.ID.String(),
		TicketID:    e.TicketID.String(),
		ActionType:  string(e.ActionType),
		ActorID:     e.ActorID.String(),
		ActorName:   e.ActorName,
		Reason:      e.Reason,
		BeforeState: e.BeforeState,
		AfterState:  e.AfterState,
		Details:     e.Details,
		Timestamp:   e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func toAuditEntryDTOs(entries []*domain.AuditEntry) []AuditEntryDTO {
	response := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		response = append(response, *toAuditEntryDTO(e))
	}
	return response
}

// ActionResultDTO is the response of a successful action.
type ActionResultDTO struct {
	Ticket     TicketDTO      `json:"ticket"`
	AuditEntry *AuditEntryDTO `json:"auditEntry"`
}

func toActionResultDTO(result *ports.ActionResult) ActionResultDTO {
	return ActionResultDTO{
		Ticket:     toTicketDTO(result.Ticket),
		AuditEntry: toAuditEntryDTO(result.AuditEntry),
	}
}

// BulkActionResultDTO is one ticket's outcome in a bulk response.
type BulkActionResultDTO struct {
	TicketID string           `json:"ticketId"`
	Status   int              `json:"status"`
	Result   *ActionResultDTO `json:"result,omitempty"`
	Error    *ErrorResponse   `json:"error,omitempty"`
}

// BulkActionResponse reports every ticket of a bulk request.
type BulkActionResponse struct {
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	Results   []BulkActionResultDTO `json:"results"`
}

// SplitResponse returns the parent with its new children.
type SplitResponse struct {
	Parent   TicketDTO   `json:"parent"`
	Children []TicketDTO `json:"children"`
}

// SLADTO reports deadline health. Only Applicable is set when the ticket's
// status does not take part in SLA tracking.
type SLADTO struct {
	Applicable bool    `json:"applicable"`
	DueDate    *string `json:"dueDate,omitempty"`
	// RemainingOrOverdue is in seconds; negative once the deadline passed.
	RemainingOrOverdue *int64   `json:"remainingOrOverdue,omitempty"`
	Percentage         *float64 `json:"percentage,omitempty"`
	Breached           *bool    `json:"breached,omitempty"`
	Approaching        *bool    `json:"approaching,omitempty"`
}

func toSLADTO(s domain.SLAStatus) SLADTO {
	if !s.Applicable {
		return SLADTO{Applicable: false}
	}
	seconds := int64(s.RemainingOrOverdue / time.Second)
	percentage := s.Percentage
	breached := s.Breached
	approaching := s.Approaching
	return SLADTO{
		Applicable:         true,
		DueDate:            formatTime(&s.DueDate),
		RemainingOrOverdue: &seconds,
		Percentage:         &percentage,
		Breached:           &breached,
		Approaching:        &approaching,
	}
}
