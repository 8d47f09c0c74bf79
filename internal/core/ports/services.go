package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
)

// CreateDraftParams defines the required input for creating a new ticket.
type CreateDraftParams struct {
	Subject     string
	Description string
	Department  string
	Priority    domain.TicketPriority
}

// SLAFilter narrows a listing by deadline health.
type SLAFilter string

const (
	SLAFilterNone        SLAFilter = ""
	SLAFilterBreached    SLAFilter = "breached"
	SLAFilterApproaching SLAFilter = "approaching"
)

// ListTicketsParams defines the input for listing tickets.
type ListTicketsParams struct {
	Status         *domain.TicketStatus
	ReopenedOnly   bool // "pending": submitted tickets with reopenCount > 0
	Department     *string
	RequesterID    *uuid.UUID
	AssigneeID     *uuid.UUID
	ParentTicketID *uuid.UUID
	SLA            SLAFilter
	SortByDueDate  bool
	Limit          int
	Offset         int
}

// ActionResult is the outcome of one successful workflow action.
type ActionResult struct {
	Ticket     *domain.Ticket
	AuditEntry *domain.AuditEntry
}

// BulkActionItem is one ticket's outcome in a bulk request.
type BulkActionItem struct {
	TicketID uuid.UUID
	Result   *ActionResult
	Err      error
}

// SplitResult holds the untouched parent and the new children.
type SplitResult struct {
	Parent   *domain.Ticket
	Children []*domain.Ticket
}

// ReassignParams defines the input for moving a ticket to another assignee.
type ReassignParams struct {
	TicketID        uuid.UUID
	Department      string
	AssigneeID      uuid.UUID
	Reason          string
	ExpectedVersion *int64
}

// TimerReport summarizes one scheduler pass.
type TimerReport struct {
	Expired int
	Closed  int
	Ignored int
	Failed  int
}

// Settled counts timers the pass took off the active list.
func (r TimerReport) Settled() int {
	return r.Expired + r.Closed + r.Ignored
}

// Total counts every timer the pass looked at.
func (r TimerReport) Total() int {
	return r.Settled() + r.Failed
}

// WorkflowService is the workflow engine.
type WorkflowService interface {
	CreateDraft(ctx context.Context, actor domain.Actor, params CreateDraftParams) (*domain.Ticket, error)
	SubmitAction(ctx context.Context, actor domain.Actor, cmd domain.Command) (*ActionResult, error)
	BulkSubmitAction(ctx context.Context, actor domain.Actor, cmds []domain.Command) []BulkActionItem
	GetTicket(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error)
	ListTickets(ctx context.Context, actor domain.Actor, params ListTicketsParams) ([]*domain.Ticket, error)
	GetHistory(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) ([]*domain.AuditEntry, error)
	GetSLA(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (domain.SLAStatus, error)
	AllowedActions(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (domain.Permissions, error)
	Shutdown()
}

// TimerService owns undo windows and auto-close deadlines.
type TimerService interface {
	Undo(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error)
	ProcessDue(ctx context.Context, now time.Time) (TimerReport, error)
}

// SplitService carves child tickets out of a parent.
type SplitService interface {
	SplitTicket(ctx context.Context, actor domain.Actor, parentID uuid.UUID, specs []domain.ChildSpec) (*SplitResult, error)
}

// ReassignmentService moves tickets between departments and assignees.
type ReassignmentService interface {
	Reassign(ctx context.Context, actor domain.Actor, params ReassignParams) (*domain.Ticket, error)
}

// AssigneeService defines the port for reading and maintaining rosters.
type AssigneeService interface {
	ListAssignees(ctx context.Context, actor domain.Actor, department string) ([]domain.Assignee, error)
	UpsertMember(ctx context.Context, actor domain.Actor, department string, member domain.Assignee) (domain.Assignee, error)
}

// NotificationParams defines the input for sending a notification.
type NotificationParams struct {
	TicketID     uuid.UUID
	TicketNumber string
	EventType    string
	Participants []uuid.UUID
	Message      string
}

// Notifier defines the port for sending asynchronous notifications.
type Notifier interface {
	Notify(ctx context.Context, params NotificationParams)
}

// EventBroadcaster pushes real-time events to subscribers.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}

// ChannelManager manages chat channel membership per ticket.
type ChannelManager interface {
	JoinChannel(ctx context.Context, ticketID, participantID uuid.UUID) error
}

// AccessRevoker removes a user's access to a ticket's live channel.
type AccessRevoker interface {
	RevokeAccess(ctx context.Context, ticketID, userID uuid.UUID) error
}

// Clock abstracts time for services and timers.
type Clock interface {
	Now() time.Time
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
