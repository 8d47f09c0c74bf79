package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
)

// Visibility limits a listing to what a non-moderator may see: tickets the
// user requested or is assigned to, plus tickets of Department when set.
type Visibility struct {
	UserID     uuid.UUID
	Department string
}

// TicketFilter defines the repository-level query for listing tickets.
type TicketFilter struct {
	Status         *domain.TicketStatus
	ReopenedOnly   bool
	Department     *string
	RequesterID    *uuid.UUID
	AssigneeID     *uuid.UUID
	ParentTicketID *uuid.UUID
	Visibility     *Visibility
	SortByDueDate  bool
	Limit          int
	Offset         int
}

// TicketRepository stores tickets with optimistic versioning.
type TicketRepository interface {
	// Create assigns the ticket number and version 1.
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
	// GetByID returns apperrors.ErrTicketNotFound for unknown or cancelled tickets.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error)
	// Update persists the ticket only if the stored version still equals
	// expectedVersion, and bumps it. A mismatch is apperrors.ErrConcurrencyConflict.
	Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, error)
}

// AuditRepository is append-only.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	// ListByTicket returns entries newest first.
	ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]*domain.AuditEntry, error)
}

// TimerRepository stores durable timers.
type TimerRepository interface {
	// Schedule deactivates any active timer of the same (ticket, kind) and
	// stores the new one.
	Schedule(ctx context.Context, timer *domain.TimerRecord) error
	// GetActive returns apperrors.ErrNotFound when no timer is active.
	GetActive(ctx context.Context, ticketID uuid.UUID, kind domain.TimerKind) (*domain.TimerRecord, error)
	// Deactivate is a no-op for a timer that is already inactive.
	Deactivate(ctx context.Context, id uuid.UUID) error
	CancelActive(ctx context.Context, ticketID uuid.UUID, kind domain.TimerKind) error
	// ListDue returns active timers with deadline <= now, oldest deadline first.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.TimerRecord, error)
}

// Directory resolves department rosters.
type Directory interface {
	AssigneesOf(ctx context.Context, department string) ([]domain.Assignee, error)
}

// Roster is a Directory that can also be maintained.
type Roster interface {
	Directory
	UpsertMember(ctx context.Context, department string, member domain.Assignee) error
}
