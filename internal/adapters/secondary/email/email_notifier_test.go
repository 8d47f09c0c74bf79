package email

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		name   string
		params ports.NotificationParams
		want   string
	}{
		{"known event", ports.NotificationParams{EventType: domain.NotifyTicketSplit, TicketNumber: "TKT-000007"}, "[TKT-000007] Ticket split into child tickets"},
		{"no number", ports.NotificationParams{EventType: domain.NotifyAssignmentUndone}, "Assignment undone"},
		{"unknown event", ports.NotificationParams{EventType: "sla_breached"}, "sla breached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(tt.params))
		})
	}
}

func TestMockSMTPNotifier_OneMailPerRecipient(t *testing.T) {
	var buf bytes.Buffer
	n := NewMockSMTPNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	a, b := uuid.New(), uuid.New()
	n.Notify(context.Background(), ports.NotificationParams{
		TicketID:     uuid.New(),
		TicketNumber: "TKT-000001",
		EventType:    domain.NotifyStatusChanged,
		Participants: []uuid.UUID{a, b},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "mock email sent", first["msg"])
	assert.Equal(t, a.String(), first["to_user_id"])
	assert.Equal(t, "[TKT-000001] Ticket status changed", first["subject"])
	assert.Equal(t, "email_notifier", first["component"])
}

func TestMockSMTPNotifier_NoRecipients(t *testing.T) {
	var buf bytes.Buffer
	n := NewMockSMTPNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.Notify(context.Background(), ports.NotificationParams{TicketID: uuid.New(), EventType: domain.NotifyStatusChanged})

	assert.Empty(t, buf.String(), "debug output is below the default level")
}
