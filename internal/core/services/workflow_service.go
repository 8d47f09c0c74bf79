package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// Listing bounds.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// WorkflowService implements the ticket state machine.
type WorkflowService struct {
	stores     Stores
	directory  ports.Directory
	dispatcher *Dispatcher
	clock      ports.Clock
	policy     TimerPolicy
	sla        domain.SLATracker
	logger     *slog.Logger
}

var _ ports.WorkflowService = (*WorkflowService)(nil)

// NewWorkflowService creates a new workflow service
func NewWorkflowService(
	stores Stores,
	directory ports.Directory,
	dispatcher *Dispatcher,
	clock ports.Clock,
	policy TimerPolicy,
	logger *slog.Logger,
) ports.WorkflowService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowService{
		stores:     stores,
		directory:  directory,
		dispatcher: dispatcher,
		clock:      clock,
		policy:     policy,
		logger:     logger.With("component", "workflow"),
	}
}

// CreateDraft stores a new draft owned by the actor.
func (s *WorkflowService) CreateDraft(ctx context.Context, actor domain.Actor, params ports.CreateDraftParams) (*domain.Ticket, error) {
	if actor.IsSystem() {
		return nil, apperrors.PermissionDenied("the system cannot create tickets")
	}

	now := s.clock.Now()
	draft, err := domain.NewDraft(domain.DraftParams{
		Subject:       params.Subject,
		Description:   params.Description,
		Department:    params.Department,
		Priority:      params.Priority,
		RequesterID:   actor.ID,
		RequesterName: actor.Name,
	}, now)
	if err != nil {
		return nil, err
	}

	var created *domain.Ticket
	err = s.stores.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		saved, err := s.stores.Tickets.Create(ctx, draft)
		if err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		entry := domain.NewAuditEntry(saved.ID, domain.ActionCreate, actor, "", nil, saved, now)
		if err := s.stores.Audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}
		created = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// SubmitAction runs one workflow action as a single unit of work.
func (s *WorkflowService) SubmitAction(ctx context.Context, actor domain.Actor, cmd domain.Command) (*ports.ActionResult, error) {
	var (
		result *ports.ActionResult
		before *domain.Ticket
	)
	now := s.clock.Now()

	err := s.stores.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.stores.Tickets.GetByID(ctx, cmd.TicketID)
		if err != nil {
			return err
		}
		if err := checkVersion(ticket, cmd.ExpectedVersion); err != nil {
			return err
		}
		if err := domain.CheckTransition(actor, ticket, cmd.Action); err != nil {
			return err
		}

		assigneeName, err := s.resolveAssignee(ctx, ticket, cmd)
		if err != nil {
			return err
		}

		next, err := domain.ApplyAction(actor, ticket, cmd.Action, cmd.Payload, assigneeName, now)
		if err != nil {
			return err
		}

		saved, err := s.stores.Tickets.Update(ctx, next, ticket.Version)
		if err != nil {
			return err
		}
		if err := applyTimerEffects(ctx, s.stores.Timers, s.policy, ticket, saved, cmd.Action, now); err != nil {
			return fmt.Errorf("update timers: %w", err)
		}

		entry := domain.NewAuditEntry(ticket.ID, cmd.Action, actor, domain.AuditReason(cmd.Action, cmd.Payload), ticket, saved, now)
		if err := s.stores.Audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		before = ticket
		result = &ports.ActionResult{Ticket: saved, AuditEntry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterAction(before, result.Ticket, cmd, actor, now)
	return result, nil
}

// resolveAssignee checks an explicit approve_assign assignee against the
// target department's roster and returns their display name.
func (s *WorkflowService) resolveAssignee(ctx context.Context, ticket *domain.Ticket, cmd domain.Command) (string, error) {
	if cmd.Action != domain.ActionApproveAssign || cmd.Payload.AssigneeID == nil {
		return "", nil
	}
	department := strings.TrimSpace(cmd.Payload.Department)
	if department == "" {
		department = ticket.Department
	}
	return verifyRoster(ctx, s.directory, department, *cmd.Payload.AssigneeID)
}

func (s *WorkflowService) afterAction(before, after *domain.Ticket, cmd domain.Command, actor domain.Actor, at time.Time) {
	if s.dispatcher == nil {
		return
	}
	switch cmd.Action {
	case domain.ActionRequestClarification:
		s.dispatcher.Notify(ports.NotificationParams{
			TicketID:     after.ID,
			TicketNumber: after.TicketNumber,
			EventType:    domain.NotifyClarificationRequired,
			Participants: []uuid.UUID{after.RequesterID},
			Message:      strings.TrimSpace(cmd.Payload.Message),
		})
		return
	case domain.ActionApproveAssign, domain.ActionAcknowledge, domain.ActionStartWork:
		if after.AssigneeID != nil {
			s.dispatcher.JoinGroup([]uuid.UUID{after.ID}, []uuid.UUID{*after.AssigneeID})
		}
	}
	s.dispatcher.TicketChanged(before, after, cmd.Action, actor, at)
}

// BulkSubmitAction applies each command in its own transaction. Failures do
// not affect the other tickets.
func (s *WorkflowService) BulkSubmitAction(ctx context.Context, actor domain.Actor, cmds []domain.Command) []ports.BulkActionItem {
	items := make([]ports.BulkActionItem, 0, len(cmds))
	for _, cmd := range cmds {
		result, err := s.SubmitAction(ctx, actor, cmd)
		if err != nil {
			s.logger.Debug("bulk action failed", "ticket_id", cmd.TicketID, "action", cmd.Action, "error", err)
		}
		items = append(items, ports.BulkActionItem{TicketID: cmd.TicketID, Result: result, Err: err})
	}
	return items
}

// GetTicket retrieves a ticket the actor may see.
func (s *WorkflowService) GetTicket(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error) {
	return loadVisible(ctx, s.stores.Tickets, actor, ticketID)
}

// ListTickets returns the actor's view of the ticket queue.
func (s *WorkflowService) ListTickets(ctx context.Context, actor domain.Actor, params ports.ListTicketsParams) ([]*domain.Ticket, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	filter := ports.TicketFilter{
		Status:         params.Status,
		ReopenedOnly:   params.ReopenedOnly,
		Department:     params.Department,
		RequesterID:    params.RequesterID,
		AssigneeID:     params.AssigneeID,
		ParentTicketID: params.ParentTicketID,
		SortByDueDate:  params.SortByDueDate,
		Limit:          limit,
		Offset:         offset,
	}

	switch {
	case actor.IsModerator(), actor.IsSystem():
	case actor.Role == domain.RoleAssignee:
		filter.Visibility = &ports.Visibility{UserID: actor.ID, Department: actor.Department}
	default:
		filter.Visibility = &ports.Visibility{UserID: actor.ID}
	}

	tickets, err := s.stores.Tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if params.SLA == ports.SLAFilterNone {
		return tickets, nil
	}

	now := s.clock.Now()
	filtered := make([]*domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		status := s.sla.Evaluate(t, now)
		switch {
		case params.SLA == ports.SLAFilterBreached && status.Breached,
			params.SLA == ports.SLAFilterApproaching && status.Approaching:
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// GetHistory returns the ticket's audit trail, newest first.
func (s *WorkflowService) GetHistory(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) ([]*domain.AuditEntry, error) {
	if _, err := loadVisible(ctx, s.stores.Tickets, actor, ticketID); err != nil {
		return nil, err
	}
	return s.stores.Audit.ListByTicket(ctx, ticketID)
}

// GetSLA evaluates the ticket's deadline health now.
func (s *WorkflowService) GetSLA(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (domain.SLAStatus, error) {
	ticket, err := loadVisible(ctx, s.stores.Tickets, actor, ticketID)
	if err != nil {
		return domain.SLAStatus{}, err
	}
	return s.sla.Evaluate(ticket, s.clock.Now()), nil
}

// AllowedActions derives the actor's permissions on the ticket.
func (s *WorkflowService) AllowedActions(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (domain.Permissions, error) {
	ticket, err := loadVisible(ctx, s.stores.Tickets, actor, ticketID)
	if err != nil {
		return domain.Permissions{}, err
	}
	undo, err := activeUndo(ctx, s.stores.Timers, ticketID, s.clock.Now())
	if err != nil {
		return domain.Permissions{}, err
	}
	return domain.AllowedActions(actor, ticket, undo != nil), nil
}

// Shutdown waits for background side effects to finish.
func (s *WorkflowService) Shutdown() {
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}
}

func verifyRoster(ctx context.Context, directory ports.Directory, department string, assigneeID uuid.UUID) (string, error) {
	roster, err := directory.AssigneesOf(ctx, department)
	if err != nil {
		return "", fmt.Errorf("load roster for %q: %w", department, err)
	}
	member, ok := domain.FindAssignee(roster, assigneeID)
	errs := apperrors.NewValidationErrors()
	switch {
	case !ok:
		errs.Add("assigneeId", fmt.Sprintf("assignee is not a member of department %q", department))
	case !member.Available:
		errs.Add("assigneeId", fmt.Sprintf("assignee %s is not available", member.Name))
	}
	if err := errs.OrNil(); err != nil {
		return "", err
	}
	return member.Name, nil
}
