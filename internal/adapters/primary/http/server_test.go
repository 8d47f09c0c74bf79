package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	mw "github.com/lorrc/ticket-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/ticket-workflow/internal/auth"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/mocks"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/lorrc/ticket-workflow/internal/core/services"
)

var t0 = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// testServer wires the HTTP layer to real services over the memory store.
type testServer struct {
	router   *chi.Mux
	tokens   *auth.TokenManager
	store    *memory.Store
	clock    *mocks.FakeClock
	workflow ports.WorkflowService

	requester domain.Actor
	moderator domain.Actor
	assignee  domain.Actor
	admin     domain.Actor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()
	clock := mocks.NewFakeClock(t0)
	stores := services.Stores{
		Tickets:   store.Tickets(),
		Audit:     store.Audit(),
		Timers:    store.Timers(),
		TxManager: store,
	}
	dispatcher := services.NewDispatcher(nil, nil, nil, nil, logger)
	workflow := services.NewWorkflowService(stores, store.Directory(), dispatcher, clock, services.DefaultTimerPolicy(), logger)
	t.Cleanup(workflow.Shutdown)

	timers := services.NewTimerService(stores, workflow, dispatcher, clock, 10, logger)
	splitter := services.NewSplitService(stores, dispatcher, clock, logger)
	reassigner := services.NewReassignmentService(stores, store.Directory(), dispatcher, clock)
	assignees := services.NewAssigneeService(store.Directory())

	errorHandler := NewErrorHandler(logger)
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	router := chi.NewRouter()
	router.Use(mw.RequestID)
	router.Group(func(r chi.Router) {
		r.Use(mw.JWTMiddleware(tokens))
		r.Route("/tickets", NewTicketHandler(workflow, timers, splitter, reassigner, errorHandler, logger).RegisterRoutes)
		r.Route("/departments", NewAssigneeHandler(assignees, errorHandler, logger).RegisterRoutes)
		r.Route("/admin", NewAdminHandler(assignees, errorHandler, logger).RegisterRoutes)
		r.Route("/me", NewMeHandler(logger).RegisterRoutes)
	})

	s := &testServer{
		router:    router,
		tokens:    tokens,
		store:     store,
		clock:     clock,
		workflow:  workflow,
		requester: domain.Actor{ID: uuid.New(), Name: "Rita Requester", Role: domain.RoleRequester},
		moderator: domain.Actor{ID: uuid.New(), Name: "Max Moderator", Role: domain.RoleModerator},
		assignee:  domain.Actor{ID: uuid.New(), Name: "Ann Assignee", Role: domain.RoleAssignee, Department: "IT"},
		admin:     domain.Actor{ID: uuid.New(), Name: "Ada Admin", Role: domain.RoleAdmin},
	}
	store.AddMember("IT", domain.Assignee{ID: s.assignee.ID, Name: s.assignee.Name, Available: true})
	return s
}

// do sends a request as actor; a zero actor sends no token.
func (s *testServer) do(t *testing.T, actor domain.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor.ID != uuid.Nil {
		token, err := s.tokens.GenerateToken(actor)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	s.router.ServeHTTP(recorder, req)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&v), recorder.Body.String())
	return v
}

// createDraft posts a valid draft as the requester.
func (s *testServer) createDraft(t *testing.T) TicketDTO {
	t.Helper()
	rec := s.do(t, s.requester, stdhttp.MethodPost, "/tickets", CreateTicketRequest{
		Subject:     "Monitor flickers",
		Description: "Second screen flickers after lunch every day",
		Department:  "IT",
		Priority:    "high",
	})
	require.Equal(t, stdhttp.StatusCreated, rec.Code, rec.Body.String())
	return decode[TicketDTO](t, rec)
}

// action posts an action and requires it to succeed.
func (s *testServer) action(t *testing.T, actor domain.Actor, ticketID string, req ActionRequest) ActionResultDTO {
	t.Helper()
	rec := s.do(t, actor, stdhttp.MethodPost, "/tickets/"+ticketID+"/actions", req)
	require.Equal(t, stdhttp.StatusOK, rec.Code, rec.Body.String())
	return decode[ActionResultDTO](t, rec)
}

func (s *testServer) submittedTicket(t *testing.T) TicketDTO {
	t.Helper()
	draft := s.createDraft(t)
	return s.action(t, s.requester, draft.ID, ActionRequest{Action: "submit"}).Ticket
}

func (s *testServer) assignedTicket(t *testing.T) TicketDTO {
	t.Helper()
	ticket := s.submittedTicket(t)
	assigneeID := s.assignee.ID.String()
	return s.action(t, s.moderator, ticket.ID, ActionRequest{
		Action:       "approve_assign",
		ActionFields: ActionFields{Department: "IT", AssigneeID: &assigneeID},
	}).Ticket
}
