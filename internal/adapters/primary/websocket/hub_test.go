package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
)

type authorizerFunc func(actor domain.Actor, ticketID uuid.UUID) error

func (f authorizerFunc) GetTicket(_ context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error) {
	if err := f(actor, ticketID); err != nil {
		return nil, err
	}
	return &domain.Ticket{ID: ticketID}, nil
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// connect serves a single upgraded connection for actor and dials it.
func connect(t *testing.T, hub *Hub, actor domain.Actor) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, actor, hub.logger)
		client.SetKeepalive(50*time.Millisecond, time.Second)
		hub.Register <- client
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, ticketID uuid.UUID) {
	t.Helper()
	payload, err := json.Marshal(SubscribePayload{TicketID: ticketID})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: msgType, Payload: payload}))
}

func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event domain.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := startHub(t)
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleRequester}
	ticketID := uuid.New()
	require.NoError(t, hub.JoinChannel(context.Background(), ticketID, actor.ID))

	conn := connect(t, hub, actor)
	send(t, conn, "SUBSCRIBE_TO_TICKET", ticketID)

	ack := readEvent(t, conn)
	assert.Equal(t, EventSubscribed, ack.Type)
	assert.Equal(t, ticketID, ack.TicketID)

	require.NoError(t, hub.Broadcast(domain.Event{Type: domain.EventTicketChanged, TicketID: ticketID}))
	got := readEvent(t, conn)
	assert.Equal(t, domain.EventTicketChanged, got.Type)
	assert.Equal(t, 1, hub.GetClientsInRoom(ticketID))
}

func TestHub_SubscriptionDenied(t *testing.T) {
	hub := startHub(t)
	hub.SetAuthorizer(authorizerFunc(func(domain.Actor, uuid.UUID) error {
		return apperrors.ErrPermissionDenied
	}))

	conn := connect(t, hub, domain.Actor{ID: uuid.New(), Role: domain.RoleRequester})
	send(t, conn, "SUBSCRIBE_TO_TICKET", uuid.New())

	assert.Equal(t, EventSubscriptionDenied, readEvent(t, conn).Type)
}

func TestHub_AuthorizerGrantsNonMembers(t *testing.T) {
	hub := startHub(t)
	hub.SetAuthorizer(authorizerFunc(func(domain.Actor, uuid.UUID) error { return nil }))
	ticketID := uuid.New()

	conn := connect(t, hub, domain.Actor{ID: uuid.New(), Role: domain.RoleModerator})
	send(t, conn, "SUBSCRIBE_TO_TICKET", ticketID)

	assert.Equal(t, EventSubscribed, readEvent(t, conn).Type)
}

func TestHub_RevokeAccess(t *testing.T) {
	hub := startHub(t)
	actor := domain.Actor{ID: uuid.New(), Role: domain.RoleAssignee}
	ticketID := uuid.New()
	require.NoError(t, hub.JoinChannel(context.Background(), ticketID, actor.ID))

	conn := connect(t, hub, actor)
	send(t, conn, "SUBSCRIBE_TO_TICKET", ticketID)
	require.Equal(t, EventSubscribed, readEvent(t, conn).Type)

	require.NoError(t, hub.RevokeAccess(context.Background(), ticketID, actor.ID))

	assert.False(t, hub.IsMember(ticketID, actor.ID))
	assert.Zero(t, hub.GetClientsInRoom(ticketID))
}

func TestHub_Ping(t *testing.T) {
	hub := startHub(t)
	conn := connect(t, hub, domain.Actor{ID: uuid.New(), Role: domain.RoleRequester})

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "PING"}))

	assert.Equal(t, EventPong, readEvent(t, conn).Type)
	assert.Equal(t, 1, hub.GetClientCount())
}

func TestClient_SetKeepalive(t *testing.T) {
	c := &Client{pongWait: defaultPongWait}

	c.SetKeepalive(0, 10*time.Second)
	assert.Equal(t, 10*time.Second, c.pongWait)
	assert.Equal(t, 9*time.Second, c.pingPeriod)

	c.SetKeepalive(20*time.Second, 0)
	assert.Equal(t, 9*time.Second, c.pingPeriod, "ping period must stay below the pong wait")

	c.SetKeepalive(5*time.Second, 0)
	assert.Equal(t, 5*time.Second, c.pingPeriod)
}
