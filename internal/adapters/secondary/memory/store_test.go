package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newTicket(t *testing.T, s *Store, department string) *domain.Ticket {
	t.Helper()
	draft, err := domain.NewDraft(domain.DraftParams{
		Subject:     "VPN keeps dropping",
		Description: "Disconnects every ten minutes since Monday",
		Department:  department,
		Priority:    domain.PriorityHigh,
		RequesterID: uuid.New(),
	}, t0)
	require.NoError(t, err)
	created, err := s.Tickets().Create(context.Background(), draft)
	require.NoError(t, err)
	return created
}

func TestStore_TicketNumbersAndVersions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first := newTicket(t, s, "IT")
	second := newTicket(t, s, "IT")
	assert.Equal(t, "TKT-000001", first.TicketNumber)
	assert.Equal(t, "TKT-000002", second.TicketNumber)
	assert.Equal(t, int64(1), first.Version)

	first.Subject = "Changed by caller"
	stored, err := s.Tickets().GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "VPN keeps dropping", stored.Subject, "store hands out copies")

	updated, err := s.Tickets().Update(ctx, first, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = s.Tickets().Update(ctx, first, 1)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
}

func TestStore_WithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("abort")

	var created *domain.Ticket
	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		created = newTicketCtx(ctx, t, s)
		require.NoError(t, s.Timers().Schedule(ctx, domain.NewAutoCloseTimer(created.ID, t0, time.Hour, t0)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Tickets().GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
	due, err := s.Timers().ListDue(ctx, t0.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	// The sequence is restored too.
	assert.Equal(t, "TKT-000001", newTicket(t, s, "IT").TicketNumber)
}

func newTicketCtx(ctx context.Context, t *testing.T, s *Store) *domain.Ticket {
	t.Helper()
	draft, err := domain.NewDraft(domain.DraftParams{
		Subject:     "Badge reader broken",
		Description: "Front door badge reader is dead",
		Department:  "Facilities",
		RequesterID: uuid.New(),
	}, t0)
	require.NoError(t, err)
	created, err := s.Tickets().Create(ctx, draft)
	require.NoError(t, err)
	return created
}

func TestStore_ListSortsByEffectiveDueDate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	submit := func(tk *domain.Ticket, at time.Time) {
		tk.Status = domain.StatusSubmitted
		tk.SubmittedDate = &at
		_, err := s.Tickets().Update(ctx, tk, tk.Version)
		require.NoError(t, err)
	}

	late := newTicket(t, s, "IT")
	submit(late, t0.Add(24*time.Hour))
	early := newTicket(t, s, "it")
	submit(early, t0)
	draft := newTicket(t, s, "HR")

	got, err := s.Tickets().List(ctx, ports.TicketFilter{SortByDueDate: true})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uuid.UUID{early.ID, late.ID, draft.ID}, []uuid.UUID{got[0].ID, got[1].ID, got[2].ID})

	dept := "IT"
	got, err = s.Tickets().List(ctx, ports.TicketFilter{Department: &dept, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.Tickets().List(ctx, ports.TicketFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_TimersAndRoster(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ticketID := uuid.New()

	first := domain.NewUndoTimer(ticketID, &domain.AssignmentSnapshot{}, t0, domain.DefaultUndoWindow)
	second := domain.NewUndoTimer(ticketID, &domain.AssignmentSnapshot{}, t0.Add(time.Minute), domain.DefaultUndoWindow)
	require.NoError(t, s.Timers().Schedule(ctx, first))
	require.NoError(t, s.Timers().Schedule(ctx, second))

	active, err := s.Timers().GetActive(ctx, ticketID, domain.TimerUndo)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	due, err := s.Timers().ListDue(ctx, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1, "the replaced timer is inactive")

	s.AddMember(" IT ", domain.Assignee{ID: uuid.New(), Name: "Ann Assignee", Available: true})
	members, err := s.Directory().AssigneesOf(ctx, "it")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "IT", members[0].Department)
}

func TestStore_RosterSpellingsShareOneEntry(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	bob := domain.Assignee{ID: uuid.New(), Name: "Bob Backup", Available: true}

	require.NoError(t, s.Directory().UpsertMember(ctx, "IT", bob))
	bob.Available = false
	require.NoError(t, s.Directory().UpsertMember(ctx, "it", bob))

	members, err := s.Directory().AssigneesOf(ctx, "IT")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.False(t, members[0].Available)
	assert.Equal(t, "it", members[0].Department)
}
