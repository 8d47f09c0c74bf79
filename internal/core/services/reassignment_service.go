package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// ReassignmentService moves tickets between departments.
type ReassignmentService struct {
	stores     Stores
	directory  ports.Directory
	dispatcher *Dispatcher
	clock      ports.Clock
}

var _ ports.ReassignmentService = (*ReassignmentService)(nil)

// NewReassignmentService creates a new reassignment service.
func NewReassignmentService(stores Stores, directory ports.Directory, dispatcher *Dispatcher, clock ports.Clock) ports.ReassignmentService {
	return &ReassignmentService{
		stores:     stores,
		directory:  directory,
		dispatcher: dispatcher,
		clock:      clock,
	}
}

// Reassign hands the ticket to an assignee of another department. Revoking
// the previous assignee's access happens after commit.
func (s *ReassignmentService) Reassign(ctx context.Context, actor domain.Actor, params ports.ReassignParams) (*domain.Ticket, error) {
	if !actor.IsModerator() {
		return nil, apperrors.PermissionDenied("only a moderator may reassign this ticket")
	}

	now := s.clock.Now()
	var before, saved *domain.Ticket

	err := s.stores.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.stores.Tickets.GetByID(ctx, params.TicketID)
		if err != nil {
			return err
		}
		if err := checkVersion(ticket, params.ExpectedVersion); err != nil {
			return err
		}

		req := domain.Reassignment{
			Department: params.Department,
			AssigneeID: params.AssigneeID,
			Reason:     params.Reason,
		}
		// Cheap checks first so a bad request never hits the directory.
		if _, err := domain.ApplyReassignment(actor, ticket, req, now); err != nil {
			return err
		}
		name, err := verifyRoster(ctx, s.directory, params.Department, params.AssigneeID)
		if err != nil {
			return err
		}
		req.AssigneeName = name

		next, err := domain.ApplyReassignment(actor, ticket, req, now)
		if err != nil {
			return err
		}
		updated, err := s.stores.Tickets.Update(ctx, next, ticket.Version)
		if err != nil {
			return err
		}
		// A pending undo would restore a pre-reassignment snapshot.
		if err := s.stores.Timers.CancelActive(ctx, ticket.ID, domain.TimerUndo); err != nil {
			return fmt.Errorf("cancel undo timer: %w", err)
		}

		entry := domain.NewAuditEntry(ticket.ID, domain.ActionReassign, actor, next.ReassignmentReason, ticket, updated, now)
		if err := s.stores.Audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		before, saved = ticket, updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		if before.AssigneeID != nil && *before.AssigneeID != params.AssigneeID {
			s.dispatcher.Revoke(saved.ID, *before.AssigneeID)
		}
		s.dispatcher.JoinGroup([]uuid.UUID{saved.ID}, []uuid.UUID{params.AssigneeID})
		s.dispatcher.Notify(ports.NotificationParams{
			TicketID:     saved.ID,
			TicketNumber: saved.TicketNumber,
			EventType:    domain.NotifyTicketReassigned,
			Participants: without(saved.Participants(), actor.ID),
			Message:      fmt.Sprintf("Ticket %s was reassigned to %s (%s)", saved.TicketNumber, saved.AssigneeName, saved.Department),
		})
		s.dispatcher.Broadcast(domain.NewTicketChangedEvent(before, saved, domain.ActionReassign, actor.ID, now))
	}
	return saved, nil
}
