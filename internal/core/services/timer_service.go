package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// DefaultTimerBatchSize bounds one ProcessDue pass.
const DefaultTimerBatchSize = 100

// TimerService handles undo requests and fires due timers.
type TimerService struct {
	stores     Stores
	workflow   ports.WorkflowService
	dispatcher *Dispatcher
	clock      ports.Clock
	batchSize  int
	logger     *slog.Logger
}

var _ ports.TimerService = (*TimerService)(nil)

// NewTimerService creates a timer service. Auto-close firings go through
// workflow so they follow the same transition rules as user actions.
func NewTimerService(
	stores Stores,
	workflow ports.WorkflowService,
	dispatcher *Dispatcher,
	clock ports.Clock,
	batchSize int,
	logger *slog.Logger,
) ports.TimerService {
	if batchSize <= 0 {
		batchSize = DefaultTimerBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimerService{
		stores:     stores,
		workflow:   workflow,
		dispatcher: dispatcher,
		clock:      clock,
		batchSize:  batchSize,
		logger:     logger.With("component", "timers"),
	}
}

// Undo reverts the last approve_assign while its window is open.
func (s *TimerService) Undo(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error) {
	if !actor.IsModerator() {
		return nil, apperrors.PermissionDenied("only a moderator may undo an assignment")
	}

	now := s.clock.Now()
	var (
		before, restored *domain.Ticket
		expired          bool
	)

	err := s.stores.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.stores.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}

		timer, err := s.stores.Timers.GetActive(ctx, ticketID, domain.TimerUndo)
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.ErrNoActiveUndoWindow
		}
		if err != nil {
			return err
		}

		if timer.ExpiredAt(now) || ticket.Status != domain.StatusAssigned || timer.Payload == nil {
			// Discard the stale window and commit that.
			expired = true
			return s.stores.Timers.Deactivate(ctx, timer.ID)
		}

		next := domain.RestoreAssignment(ticket, timer.Payload, now)
		saved, err := s.stores.Tickets.Update(ctx, next, ticket.Version)
		if err != nil {
			return err
		}
		if err := s.stores.Timers.Deactivate(ctx, timer.ID); err != nil {
			return fmt.Errorf("deactivate undo timer: %w", err)
		}

		entry := domain.NewAuditEntry(ticket.ID, domain.ActionUndo, actor, "assignment undone", ticket, saved, now)
		if err := s.stores.Audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		before, restored = ticket, saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, apperrors.ErrNoActiveUndoWindow
	}

	if s.dispatcher != nil {
		s.dispatcher.TicketChanged(before, restored, domain.ActionUndo, actor, now)
		if before.AssigneeID != nil && !restored.IsAssignedTo(*before.AssigneeID) {
			s.dispatcher.Revoke(restored.ID, *before.AssigneeID)
			s.dispatcher.Notify(ports.NotificationParams{
				TicketID:     restored.ID,
				TicketNumber: restored.TicketNumber,
				EventType:    domain.NotifyAssignmentUndone,
				Participants: []uuid.UUID{*before.AssigneeID},
				Message:      "Your assignment to " + restored.TicketNumber + " was undone",
			})
		}
	}
	return restored, nil
}

// ProcessDue handles every active timer whose deadline has passed. Errors on
// one timer are logged and do not stop the pass.
func (s *TimerService) ProcessDue(ctx context.Context, now time.Time) (ports.TimerReport, error) {
	var report ports.TimerReport

	due, err := s.stores.Timers.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list due timers: %w", err)
	}

	for _, timer := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		switch timer.Kind {
		case domain.TimerUndo:
			// The assignment becomes permanent.
			if err := s.stores.Timers.Deactivate(ctx, timer.ID); err != nil {
				report.Failed++
				s.logger.Error("failed to expire undo window", "timer_id", timer.ID, "ticket_id", timer.TicketID, "error", err)
				continue
			}
			report.Expired++

		case domain.TimerAutoClose:
			switch err := s.fireAutoClose(ctx, timer); {
			case err == nil:
				report.Closed++
			case errors.Is(err, apperrors.ErrTimerRaceIgnored):
				report.Ignored++
				s.logger.Info("auto-close ignored", "timer_id", timer.ID, "ticket_id", timer.TicketID, "reason", err)
			default:
				report.Failed++
				s.logger.Error("failed to auto-close ticket", "timer_id", timer.ID, "ticket_id", timer.TicketID, "error", err)
			}

		default:
			s.logger.Warn("unknown timer kind", "timer_id", timer.ID, "kind", timer.Kind)
			if err := s.stores.Timers.Deactivate(ctx, timer.ID); err != nil {
				report.Failed++
			}
		}
	}

	return report, nil
}

// fireAutoClose re-checks the ticket and closes it through the workflow. A
// ticket that already left resolved makes the firing a no-op.
func (s *TimerService) fireAutoClose(ctx context.Context, timer *domain.TimerRecord) error {
	ticket, err := s.stores.Tickets.GetByID(ctx, timer.TicketID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return s.ignore(ctx, timer, "ticket no longer exists")
	}
	if err != nil {
		return err
	}
	if ticket.Status != domain.StatusResolved {
		return s.ignore(ctx, timer, fmt.Sprintf("ticket is %s", ticket.DisplayStatus()))
	}

	version := ticket.Version
	_, err = s.workflow.SubmitAction(ctx, domain.SystemActor(), domain.Command{
		TicketID:        ticket.ID,
		Action:          domain.ActionAutoCloseExpiry,
		ExpectedVersion: &version,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return s.ignore(ctx, timer, "ticket left resolved before closing")
	default:
		// Conflicts leave the timer active for the next pass.
		return err
	}
}

func (s *TimerService) ignore(ctx context.Context, timer *domain.TimerRecord, reason string) error {
	if err := s.stores.Timers.Deactivate(ctx, timer.ID); err != nil {
		return fmt.Errorf("deactivate stale timer: %w", err)
	}
	return fmt.Errorf("%s: %w", reason, apperrors.ErrTimerRaceIgnored)
}
