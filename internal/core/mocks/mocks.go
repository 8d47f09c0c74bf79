package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockTicketRepository is a mock implementation of ports.TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

var _ ports.TicketRepository = (*MockTicketRepository)(nil)

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{}
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedVersion int64) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket, expectedVersion)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) List(ctx context.Context, filter ports.TicketFilter) ([]*domain.Ticket, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

// MockRoster is a mock implementation of ports.Roster
type MockRoster struct {
	mock.Mock
}

var _ ports.Roster = (*MockRoster)(nil)

func NewMockRoster() *MockRoster {
	return &MockRoster{}
}

func (m *MockRoster) AssigneesOf(ctx context.Context, department string) ([]domain.Assignee, error) {
	args := m.Called(ctx, department)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Assignee), args.Error(1)
}

func (m *MockRoster) UpsertMember(ctx context.Context, department string, member domain.Assignee) error {
	args := m.Called(ctx, department, member)
	return args.Error(0)
}

// MockNotifier is a mock implementation of ports.Notifier
type MockNotifier struct {
	mock.Mock
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, params ports.NotificationParams) {
	m.Called(ctx, params)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockChannelManager is a mock implementation of ports.ChannelManager
type MockChannelManager struct {
	mock.Mock
}

func NewMockChannelManager() *MockChannelManager {
	return &MockChannelManager{}
}

func (m *MockChannelManager) JoinChannel(ctx context.Context, ticketID, participantID uuid.UUID) error {
	args := m.Called(ctx, ticketID, participantID)
	return args.Error(0)
}

// MockAccessRevoker is a mock implementation of ports.AccessRevoker
type MockAccessRevoker struct {
	mock.Mock
}

func NewMockAccessRevoker() *MockAccessRevoker {
	return &MockAccessRevoker{}
}

func (m *MockAccessRevoker) RevokeAccess(ctx context.Context, ticketID, userID uuid.UUID) error {
	args := m.Called(ctx, ticketID, userID)
	return args.Error(0)
}

// MockTimerService is a mock implementation of ports.TimerService
type MockTimerService struct {
	mock.Mock
}

var _ ports.TimerService = (*MockTimerService)(nil)

func NewMockTimerService() *MockTimerService {
	return &MockTimerService{}
}

func (m *MockTimerService) Undo(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, actor, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTimerService) ProcessDue(ctx context.Context, now time.Time) (ports.TimerReport, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(ports.TimerReport), args.Error(1)
}

// MockAssigneeService is a mock implementation of ports.AssigneeService
type MockAssigneeService struct {
	mock.Mock
}

var _ ports.AssigneeService = (*MockAssigneeService)(nil)

func NewMockAssigneeService() *MockAssigneeService {
	return &MockAssigneeService{}
}

func (m *MockAssigneeService) ListAssignees(ctx context.Context, actor domain.Actor, department string) ([]domain.Assignee, error) {
	args := m.Called(ctx, actor, department)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Assignee), args.Error(1)
}

func (m *MockAssigneeService) UpsertMember(ctx context.Context, actor domain.Actor, department string, member domain.Assignee) (domain.Assignee, error) {
	args := m.Called(ctx, actor, department, member)
	return args.Get(0).(domain.Assignee), args.Error(1)
}

// FakeClock is a manually advanced ports.Clock.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ ports.Clock = (*FakeClock)(nil)

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now.UTC()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now.UTC()
}
