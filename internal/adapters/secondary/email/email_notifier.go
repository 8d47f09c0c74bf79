package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// MockSMTPNotifier is a secondary adapter that mocks sending emails.
// It is the notifier used when no message bus is configured.
type MockSMTPNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*MockSMTPNotifier)(nil)

// NewMockSMTPNotifier creates a new mock notifier with the given logger.
func NewMockSMTPNotifier(logger *slog.Logger) *MockSMTPNotifier {
	return &MockSMTPNotifier{
		logger: logger.With("component", "email_notifier"),
	}
}

// Subject renders the mail subject for a notification.
func Subject(params ports.NotificationParams) string {
	label := subjects[params.EventType]
	if label == "" {
		label = strings.ReplaceAll(params.EventType, "_", " ")
	}
	if params.TicketNumber == "" {
		return label
	}
	return fmt.Sprintf("[%s] %s", params.TicketNumber, label)
}

var subjects = map[string]string{
	domain.NotifyStatusChanged:         "Ticket status changed",
	domain.NotifyClarificationRequired: "Clarification requested",
	domain.NotifyTicketSplit:           "Ticket split into child tickets",
	domain.NotifyTicketReassigned:      "Ticket reassigned",
	domain.NotifyAssignmentUndone:      "Assignment undone",
}

// Notify logs one mock email per participant instead of sending mail.
func (n *MockSMTPNotifier) Notify(ctx context.Context, params ports.NotificationParams) {
	if len(params.Participants) == 0 {
		n.logger.DebugContext(ctx, "notification has no recipients", "ticket_id", params.TicketID)
		return
	}

	subject := Subject(params)
	for _, recipient := range params.Participants {
		n.logger.InfoContext(ctx, "mock email sent",
			"to_user_id", recipient,
			"subject", subject,
			"ticket_id", params.TicketID,
			"event_type", params.EventType,
		)
	}
}
