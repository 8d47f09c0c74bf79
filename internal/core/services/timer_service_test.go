package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/mocks"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTimerService_Undo(t *testing.T) {
	ctx := context.Background()

	t.Run("inside the window restores the previous state", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.submitted(t)
		h.act(t, h.moderator, ticket.ID, domain.ActionApproveAssign, domain.ActionPayload{Department: "IT"})

		h.clock.Advance(500 * time.Second)
		restored, err := h.timers.Undo(ctx, h.moderator, ticket.ID)
		require.NoError(t, err)

		assert.Equal(t, domain.StatusSubmitted, restored.Status)
		assert.Nil(t, restored.ModeratorID)
		assert.Nil(t, restored.AssignedDate)

		_, err = h.store.Timers().GetActive(ctx, ticket.ID, domain.TimerUndo)
		assert.ErrorIs(t, err, apperrors.ErrNotFound, "undo clears the timer")

		history, err := h.workflow.GetHistory(ctx, h.moderator, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionUndo, history[0].ActionType)
		assert.Equal(t, domain.StatusAssigned, history[0].BeforeState.Status)
		assert.Equal(t, domain.StatusSubmitted, history[0].AfterState.Status)
	})

	t.Run("the deadline itself is already too late", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.submitted(t)
		h.act(t, h.moderator, ticket.ID, domain.ActionApproveAssign, domain.ActionPayload{Department: "IT"})

		h.clock.Advance(domain.DefaultUndoWindow)
		_, err := h.timers.Undo(ctx, h.moderator, ticket.ID)
		assert.ErrorIs(t, err, apperrors.ErrNoActiveUndoWindow)
	})

	t.Run("after the window there is nothing to undo", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.submitted(t)
		h.act(t, h.moderator, ticket.ID, domain.ActionApproveAssign, domain.ActionPayload{Department: "IT"})

		h.clock.Advance(901 * time.Second)
		_, err := h.timers.Undo(ctx, h.moderator, ticket.ID)
		assert.ErrorIs(t, err, apperrors.ErrNoActiveUndoWindow)

		reloaded, err := h.workflow.GetTicket(ctx, h.moderator, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssigned, reloaded.Status)

		_, err = h.store.Timers().GetActive(ctx, ticket.ID, domain.TimerUndo)
		assert.ErrorIs(t, err, apperrors.ErrNotFound, "stale window is discarded")
	})

	t.Run("undo twice", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.assigned(t)

		_, err := h.timers.Undo(ctx, h.moderator, ticket.ID)
		require.NoError(t, err)
		_, err = h.timers.Undo(ctx, h.moderator, ticket.ID)
		assert.ErrorIs(t, err, apperrors.ErrNoActiveUndoWindow)
	})

	t.Run("only moderators undo", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.assigned(t)

		_, err := h.timers.Undo(ctx, h.requester, ticket.ID)
		assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	})

	t.Run("starting work closes the window", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.assigned(t)
		h.act(t, h.assignee, ticket.ID, domain.ActionStartWork, domain.ActionPayload{})

		_, err := h.timers.Undo(ctx, h.moderator, ticket.ID)
		assert.ErrorIs(t, err, apperrors.ErrNoActiveUndoWindow)
	})

	t.Run("displaced assignee loses access and is told", func(t *testing.T) {
		revoker := mocks.NewMockAccessRevoker()
		revoker.On("RevokeAccess", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		notifier := mocks.NewMockNotifier()
		notifier.On("Notify", mock.Anything, mock.Anything).Return()
		h := newHarness(t, withRevoker(revoker), withNotifier(notifier))
		ticket := h.assigned(t)

		_, err := h.timers.Undo(ctx, h.moderator, ticket.ID)
		require.NoError(t, err)
		h.workflow.Shutdown()

		revoker.AssertCalled(t, "RevokeAccess", mock.Anything, ticket.ID, h.assignee.ID)
		notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(p ports.NotificationParams) bool {
			return p.EventType == domain.NotifyAssignmentUndone && len(p.Participants) == 1 && p.Participants[0] == h.assignee.ID
		}))
	})
}

func TestTimerService_ProcessDue(t *testing.T) {
	ctx := context.Background()

	t.Run("auto-close fires after 48 hours", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.resolved(t)

		timer, err := h.store.Timers().GetActive(ctx, ticket.ID, domain.TimerAutoClose)
		require.NoError(t, err)
		assert.Equal(t, ticket.ResolvedDate.Add(48*time.Hour), timer.Deadline)

		report, err := h.timers.ProcessDue(ctx, h.clock.Advance(47*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, report.Closed)

		now := h.clock.Advance(time.Hour)
		report, err = h.timers.ProcessDue(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Closed)
		assert.Zero(t, report.Expired, "start_work already closed the undo window")

		closed, err := h.workflow.GetTicket(ctx, h.requester, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusClosed, closed.Status)

		history, err := h.workflow.GetHistory(ctx, h.requester, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ActionAutoCloseExpiry, history[0].ActionType)
		assert.Equal(t, domain.SystemActorID, history[0].ActorID)

		report, err = h.timers.ProcessDue(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, report.Total(), "fired timers are not picked up again")
	})

	t.Run("reopen before deadline makes firing a no-op", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.resolved(t)
		stale, err := h.store.Timers().GetActive(ctx, ticket.ID, domain.TimerAutoClose)
		require.NoError(t, err)

		h.clock.Advance(time.Hour)
		h.act(t, h.requester, ticket.ID, domain.ActionReopen, domain.ActionPayload{})

		// Simulate the race: the timer was read before reopen cancelled it.
		require.NoError(t, h.store.Timers().Schedule(ctx, stale))

		report, err := h.timers.ProcessDue(ctx, h.clock.Advance(48*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Ignored)
		assert.Zero(t, report.Closed)

		reloaded, err := h.workflow.GetTicket(ctx, h.requester, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSubmitted, reloaded.Status)
		assert.Equal(t, 1, reloaded.ReopenCount)
	})

	t.Run("undo windows expire silently", func(t *testing.T) {
		h := newHarness(t)
		ticket := h.assigned(t)

		report, err := h.timers.ProcessDue(ctx, h.clock.Advance(15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, report.Expired)

		reloaded, err := h.workflow.GetTicket(ctx, h.moderator, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssigned, reloaded.Status)
	})
}
