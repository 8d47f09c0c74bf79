package domain_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestTicketPriority_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		priority domain.TicketPriority
		want     bool
	}{
		{"unset is valid", domain.PriorityUnset, true},
		{"low is valid", domain.PriorityLow, true},
		{"urgent is valid", domain.PriorityUrgent, true},
		{"uppercase is invalid", domain.TicketPriority("HIGH"), false},
		{"unknown is invalid", domain.TicketPriority("critical"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.priority.IsValid())
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input        string
		want         domain.TicketStatus
		wantReopened bool
		wantOK       bool
	}{
		{"draft", domain.StatusDraft, false, true},
		{" In_Progress ", domain.StatusInProgress, false, true},
		{"submitted", domain.StatusSubmitted, false, true},
		{"pending", domain.StatusSubmitted, true, true},
		{"open", domain.TicketStatus("open"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, reopened, ok := domain.ParseStatus(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, tt.wantReopened, reopened)
			}
		})
	}
}

func TestNewDraft(t *testing.T) {
	requesterID := uuid.New()

	tests := []struct {
		name        string
		params      domain.DraftParams
		expectError bool
		errorField  string
	}{
		{
			name: "valid draft",
			params: domain.DraftParams{
				Subject:     "Laptop broken",
				Description: "Screen flickers after update",
				Priority:    domain.PriorityHigh,
				RequesterID: requesterID,
			},
		},
		{
			name: "subject too short",
			params: domain.DraftParams{
				Subject:     "Hi",
				Description: "Screen flickers after update",
				RequesterID: requesterID,
			},
			expectError: true,
			errorField:  "subject",
		},
		{
			name: "subject too long",
			params: domain.DraftParams{
				Subject:     strings.Repeat("a", 256),
				Description: "Screen flickers after update",
				RequesterID: requesterID,
			},
			expectError: true,
			errorField:  "subject",
		},
		{
			name: "description too short",
			params: domain.DraftParams{
				Subject:     "Laptop broken",
				Description: "short",
				RequesterID: requesterID,
			},
			expectError: true,
			errorField:  "description",
		},
		{
			name: "invalid priority",
			params: domain.DraftParams{
				Subject:     "Laptop broken",
				Description: "Screen flickers after update",
				Priority:    domain.TicketPriority("asap"),
				RequesterID: requesterID,
			},
			expectError: true,
			errorField:  "priority",
		},
		{
			name: "missing requester",
			params: domain.DraftParams{
				Subject:     "Laptop broken",
				Description: "Screen flickers after update",
			},
			expectError: true,
			errorField:  "requesterId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket, err := domain.NewDraft(tt.params, baseTime)

			if tt.expectError {
				require.Error(t, err)
				assert.Nil(t, ticket)

				var validationErr *apperrors.ValidationErrors
				require.ErrorAs(t, err, &validationErr)
				assert.Contains(t, validationErr.Errors, tt.errorField)
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.StatusDraft, ticket.Status)
			assert.Equal(t, domain.DefaultSLAHours, ticket.SLAHours)
			assert.Nil(t, ticket.SubmittedDate)
			assert.Equal(t, baseTime, ticket.CreatedAt)
		})
	}
}

func TestTicket_DisplayStatus(t *testing.T) {
	ticket := &domain.Ticket{Status: domain.StatusSubmitted}
	assert.Equal(t, "submitted", ticket.DisplayStatus())

	ticket.ReopenCount = 1
	assert.Equal(t, "pending", ticket.DisplayStatus())

	ticket.Status = domain.StatusAssigned
	assert.Equal(t, "assigned", ticket.DisplayStatus())
}

func TestTicket_Participants(t *testing.T) {
	requester := uuid.New()
	assignee := uuid.New()
	ticket := &domain.Ticket{
		RequesterID: requester,
		ModeratorID: &requester,
		AssigneeID:  &assignee,
	}

	assert.Equal(t, []uuid.UUID{requester, assignee}, ticket.Participants())
}

func TestTicket_Clone(t *testing.T) {
	assignee := uuid.New()
	submitted := baseTime
	approved := true
	original := &domain.Ticket{
		AssigneeID:    &assignee,
		SubmittedDate: &submitted,
		IsApproved:    &approved,
	}

	c := original.Clone()
	*c.AssigneeID = uuid.New()
	*c.SubmittedDate = baseTime.Add(time.Hour)
	*c.IsApproved = false

	assert.Equal(t, assignee, *original.AssigneeID)
	assert.Equal(t, baseTime, *original.SubmittedDate)
	assert.True(t, *original.IsApproved)
}

func TestIsFinanceDepartment(t *testing.T) {
	assert.True(t, domain.IsFinanceDepartment("Finance"))
	assert.True(t, domain.IsFinanceDepartment(" finance & accounts"))
	assert.False(t, domain.IsFinanceDepartment("IT"))
	assert.False(t, domain.IsFinanceDepartment(""))
}
