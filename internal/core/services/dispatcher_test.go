package services_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/mocks"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/lorrc/ticket-workflow/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestBroadcasters(t *testing.T) {
	event := domain.Event{Type: domain.EventTicketChanged, TicketID: uuid.New()}

	first := mocks.NewMockEventBroadcaster()
	second := mocks.NewMockEventBroadcaster()
	boom := errors.New("bus down")
	first.On("Broadcast", event).Return(boom)
	second.On("Broadcast", event).Return(nil)

	err := services.Broadcasters{first, nil, second}.Broadcast(event)

	assert.ErrorIs(t, err, boom)
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestDispatcher_TicketChangedSkipsActor(t *testing.T) {
	notifier := mocks.NewMockNotifier()
	broadcaster := mocks.NewMockEventBroadcaster()
	broadcaster.On("Broadcast", mock.Anything).Return(nil)

	requester := uuid.New()
	moderator := domain.Actor{ID: uuid.New(), Role: domain.RoleModerator}
	ticket := &domain.Ticket{ID: uuid.New(), RequesterID: requester, ModeratorID: &moderator.ID, Status: domain.StatusRejected}

	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(p ports.NotificationParams) bool {
		return len(p.Participants) == 1 && p.Participants[0] == requester
	})).Return()

	d := services.NewDispatcher(notifier, broadcaster, nil, nil, nil)
	d.TicketChanged(ticket, ticket, domain.ActionReject, moderator, t0)
	d.Wait()

	notifier.AssertExpectations(t)
	broadcaster.AssertExpectations(t)
}

func TestDispatcher_JoinGroup(t *testing.T) {
	channels := mocks.NewMockChannelManager()
	tickets := []uuid.UUID{uuid.New(), uuid.New()}
	participants := []uuid.UUID{uuid.New(), uuid.New()}
	channels.On("JoinChannel", mock.Anything, tickets[0], mock.Anything).Return(errors.New("channel gone"))
	channels.On("JoinChannel", mock.Anything, tickets[1], mock.Anything).Return(nil)

	d := services.NewDispatcher(nil, nil, channels, nil, nil)
	d.JoinGroup(tickets, participants)
	d.Wait()

	channels.AssertNumberOfCalls(t, "JoinChannel", 4)
}

func TestDispatcher_PreservesOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(entry string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, entry)
	}

	channels := mocks.NewMockChannelManager()
	channels.On("JoinChannel", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		record("join")
	})
	broadcaster := mocks.NewMockEventBroadcaster()
	broadcaster.On("Broadcast", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		record(args.Get(0).(domain.Event).Payload.(string))
	})

	d := services.NewDispatcher(nil, broadcaster, channels, nil, nil)
	ticketID := uuid.New()
	d.JoinGroup([]uuid.UUID{ticketID}, []uuid.UUID{uuid.New()})
	want := []string{"join"}
	for i := 0; i < 50; i++ {
		payload := fmt.Sprintf("change-%d", i)
		d.Broadcast(domain.Event{Type: domain.EventTicketChanged, TicketID: ticketID, Payload: payload})
		want = append(want, payload)
	}
	d.Wait()

	assert.Equal(t, want, order)
}
