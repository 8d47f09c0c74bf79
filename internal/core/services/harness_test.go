package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/mocks"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/lorrc/ticket-workflow/internal/core/services"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	store    *memory.Store
	clock    *mocks.FakeClock
	workflow ports.WorkflowService
	timers   ports.TimerService
	splitter ports.SplitService
	reassign ports.ReassignmentService

	requester domain.Actor
	moderator domain.Actor
	assignee  domain.Actor
	finance   domain.Actor
}

type harnessOption func(*harnessDeps)

type harnessDeps struct {
	notifier    ports.Notifier
	broadcaster ports.EventBroadcaster
	channels    ports.ChannelManager
	revoker     ports.AccessRevoker
}

func withNotifier(n ports.Notifier) harnessOption {
	return func(d *harnessDeps) { d.notifier = n }
}

func withRevoker(r ports.AccessRevoker) harnessOption {
	return func(d *harnessDeps) { d.revoker = r }
}

func withBroadcaster(b ports.EventBroadcaster) harnessOption {
	return func(d *harnessDeps) { d.broadcaster = b }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	var deps harnessDeps
	for _, opt := range opts {
		opt(&deps)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	clock := mocks.NewFakeClock(t0)
	stores := services.Stores{
		Tickets:   store.Tickets(),
		Audit:     store.Audit(),
		Timers:    store.Timers(),
		TxManager: store,
	}
	dispatcher := services.NewDispatcher(deps.notifier, deps.broadcaster, deps.channels, deps.revoker, logger)
	workflow := services.NewWorkflowService(stores, store.Directory(), dispatcher, clock, services.DefaultTimerPolicy(), logger)

	h := &harness{
		store:     store,
		clock:     clock,
		workflow:  workflow,
		timers:    services.NewTimerService(stores, workflow, dispatcher, clock, 10, logger),
		splitter:  services.NewSplitService(stores, dispatcher, clock, logger),
		reassign:  services.NewReassignmentService(stores, store.Directory(), dispatcher, clock),
		requester: domain.Actor{ID: uuid.New(), Name: "Rita Requester", Role: domain.RoleRequester},
		moderator: domain.Actor{ID: uuid.New(), Name: "Max Moderator", Role: domain.RoleModerator},
		assignee:  domain.Actor{ID: uuid.New(), Name: "Ann Assignee", Role: domain.RoleAssignee, Department: "IT"},
		finance:   domain.Actor{ID: uuid.New(), Name: "Fred Finance", Role: domain.RoleAssignee, Department: "Finance & Accounts"},
	}
	store.AddMember("IT", domain.Assignee{ID: h.assignee.ID, Name: h.assignee.Name, Available: true})
	store.AddMember("Finance & Accounts", domain.Assignee{ID: h.finance.ID, Name: h.finance.Name, Available: true})

	t.Cleanup(workflow.Shutdown)
	return h
}

// draft creates a draft owned by the requester.
func (h *harness) draft(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := h.workflow.CreateDraft(context.Background(), h.requester, ports.CreateDraftParams{
		Subject:     "Disk almost full",
		Description: "The shared drive reports 98% usage",
		Department:  "IT",
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) act(t *testing.T, actor domain.Actor, ticketID uuid.UUID, action domain.Action, payload domain.ActionPayload) *domain.Ticket {
	t.Helper()
	result, err := h.workflow.SubmitAction(context.Background(), actor, domain.Command{
		TicketID: ticketID,
		Action:   action,
		Payload:  payload,
	})
	require.NoError(t, err, "%s", action)
	return result.Ticket
}

// submitted returns a submitted ticket.
func (h *harness) submitted(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := h.draft(t)
	return h.act(t, h.requester, ticket.ID, domain.ActionSubmit, domain.ActionPayload{})
}

// assigned returns a ticket assigned to h.assignee in IT.
func (h *harness) assigned(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := h.submitted(t)
	assigneeID := h.assignee.ID
	return h.act(t, h.moderator, ticket.ID, domain.ActionApproveAssign, domain.ActionPayload{
		Department: "IT",
		AssigneeID: &assigneeID,
	})
}

// resolved walks a ticket all the way to resolved.
func (h *harness) resolved(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket := h.assigned(t)
	h.act(t, h.assignee, ticket.ID, domain.ActionStartWork, domain.ActionPayload{})
	h.act(t, h.assignee, ticket.ID, domain.ActionMarkComplete, domain.ActionPayload{Notes: "Fixed disk"})
	return h.act(t, h.requester, ticket.ID, domain.ActionResolve, domain.ActionPayload{})
}
