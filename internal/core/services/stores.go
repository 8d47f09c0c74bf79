package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// Stores groups the persistence ports every mutating service writes through.
type Stores struct {
	Tickets   ports.TicketRepository
	Audit     ports.AuditRepository
	Timers    ports.TimerRepository
	TxManager ports.TransactionManager
}

// TimerPolicy holds the configured timer durations.
type TimerPolicy struct {
	UndoWindow     time.Duration
	AutoCloseAfter time.Duration
}

// DefaultTimerPolicy returns the standard 15 minute undo window and 48 hour
// auto-close.
func DefaultTimerPolicy() TimerPolicy {
	return TimerPolicy{
		UndoWindow:     domain.DefaultUndoWindow,
		AutoCloseAfter: domain.DefaultAutoCloseAfter,
	}
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// applyTimerEffects schedules and cancels timers for a committed transition.
// It must run inside the same transaction as the ticket update.
func applyTimerEffects(ctx context.Context, timers ports.TimerRepository, policy TimerPolicy, before, after *domain.Ticket, action domain.Action, now time.Time) error {
	if action == domain.ActionApproveAssign {
		timer := domain.NewUndoTimer(after.ID, domain.SnapshotAssignment(before), now, policy.UndoWindow)
		if err := timers.Schedule(ctx, timer); err != nil {
			return err
		}
	}

	if before.Status == domain.StatusAssigned && after.Status != domain.StatusAssigned {
		if err := timers.CancelActive(ctx, after.ID, domain.TimerUndo); err != nil {
			return err
		}
	}

	enteredResolved := after.Status == domain.StatusResolved && before.Status != domain.StatusResolved
	leftResolved := before.Status == domain.StatusResolved && after.Status != domain.StatusResolved

	if enteredResolved {
		resolvedAt := now
		if after.ResolvedDate != nil {
			resolvedAt = *after.ResolvedDate
		}
		timer := domain.NewAutoCloseTimer(after.ID, resolvedAt, policy.AutoCloseAfter, now)
		if err := timers.Schedule(ctx, timer); err != nil {
			return err
		}
	}
	if leftResolved {
		if err := timers.CancelActive(ctx, after.ID, domain.TimerAutoClose); err != nil {
			return err
		}
	}
	return nil
}

// activeUndo returns the open undo window, or nil when there is none.
func activeUndo(ctx context.Context, timers ports.TimerRepository, ticketID uuid.UUID, now time.Time) (*domain.TimerRecord, error) {
	timer, err := timers.GetActive(ctx, ticketID, domain.TimerUndo)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if timer.ExpiredAt(now) {
		return nil, nil
	}
	return timer, nil
}

func checkVersion(ticket *domain.Ticket, expected *int64) error {
	if expected != nil && *expected != ticket.Version {
		return apperrors.NewRuleError(apperrors.ErrConcurrencyConflict,
			"ticket was modified concurrently: expected version %d, found %d", *expected, ticket.Version)
	}
	return nil
}

func loadVisible(ctx context.Context, tickets ports.TicketRepository, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error) {
	ticket, err := tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !domain.CanView(actor, ticket) {
		return nil, apperrors.PermissionDenied("you do not have access to this ticket")
	}
	return ticket, nil
}
