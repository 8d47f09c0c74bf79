package nats

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// startNATS runs a throwaway NATS server and returns its client URL.
func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("nats container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("could not terminate nats container: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	return endpoint
}

func TestPublisher_Subjects(t *testing.T) {
	p := NewPublisher(nil, ".desk.", discard)
	assert.Equal(t, "desk.events.ticket_split", p.EventSubject(domain.EventTicketSplit))
	assert.Equal(t, "desk.notifications.status_changed", p.NotificationSubject("status.changed"))

	p = NewPublisher(nil, "", discard)
	assert.Equal(t, "tickets.events.ticket_changed", p.EventSubject(domain.EventTicketChanged))
	assert.Error(t, p.Ping(context.Background()))
}

func TestPublisher_PublishesEventsAndNotifications(t *testing.T) {
	url := startNATS(t)
	ctx := context.Background()

	pub, err := Connect(Config{URL: url, ClientName: "ticket-workflow-test", SubjectPrefix: "tickets"}, discard)
	require.NoError(t, err)
	t.Cleanup(pub.Close)
	require.NoError(t, pub.Ping(ctx))

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	events, err := sub.SubscribeSync("tickets.events.>")
	require.NoError(t, err)
	notifications, err := sub.SubscribeSync("tickets.notifications.>")
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	ticketID := uuid.New()
	requester := uuid.New()

	// 1. Event
	require.NoError(t, pub.Broadcast(domain.Event{
		Type:     domain.EventTicketChanged,
		TicketID: ticketID,
		Payload:  domain.TicketChanged{TicketID: ticketID, FromState: "submitted"},
	}))

	msg, err := events.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "tickets.events.ticket_changed", msg.Subject)

	var event struct {
		Type     string    `json:"type"`
		TicketID uuid.UUID `json:"ticketId"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "TICKET_CHANGED", event.Type)
	assert.Equal(t, ticketID, event.TicketID)

	// 2. Notification
	pub.Notify(ctx, ports.NotificationParams{
		TicketID:     ticketID,
		TicketNumber: "TKT-000042",
		EventType:    domain.NotifyClarificationRequired,
		Participants: []uuid.UUID{requester},
		Message:      "Please add the asset tag",
	})

	msg, err = notifications.NextMsg(2 * time.Second)
	require.NoError(t, err)

	var note notificationMessage
	require.NoError(t, json.Unmarshal(msg.Data, &note))
	assert.Equal(t, "TKT-000042", note.TicketNumber)
	assert.Equal(t, []string{requester.String()}, note.Participants)
	assert.Equal(t, pub.NotificationSubject(domain.NotifyClarificationRequired), msg.Subject)
}
