package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// SplitService creates independently routed child tickets.
type SplitService struct {
	stores     Stores
	dispatcher *Dispatcher
	clock      ports.Clock
	logger     *slog.Logger
}

var _ ports.SplitService = (*SplitService)(nil)

// NewSplitService creates a new split service.
func NewSplitService(stores Stores, dispatcher *Dispatcher, clock ports.Clock, logger *slog.Logger) ports.SplitService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SplitService{
		stores:     stores,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     logger.With("component", "split"),
	}
}

// SplitTicket validates the whole batch, then creates every child in one
// transaction. The parent's state is not changed.
func (s *SplitService) SplitTicket(ctx context.Context, actor domain.Actor, parentID uuid.UUID, specs []domain.ChildSpec) (*ports.SplitResult, error) {
	now := s.clock.Now()
	var result *ports.SplitResult

	err := s.stores.TxManager.WithTransaction(ctx, func(ctx context.Context) error {
		parent, err := s.stores.Tickets.GetByID(ctx, parentID)
		if err != nil {
			return err
		}
		if err := domain.ValidateSplit(actor, parent, specs); err != nil {
			return err
		}

		children := make([]*domain.Ticket, 0, len(specs))
		childIDs := make([]string, 0, len(specs))
		for _, spec := range specs {
			child := domain.NewChildTicket(parent, spec, now)
			saved, err := s.stores.Tickets.Create(ctx, child)
			if err != nil {
				return fmt.Errorf("create child ticket: %w", err)
			}
			entry := domain.NewAuditEntry(saved.ID, domain.ActionCreate, actor, "split from "+parent.TicketNumber, nil, saved, now)
			entry.Details = map[string]any{"parentTicketId": parent.ID.String()}
			if err := s.stores.Audit.Append(ctx, entry); err != nil {
				return fmt.Errorf("append child audit entry: %w", err)
			}
			children = append(children, saved)
			childIDs = append(childIDs, saved.ID.String())
		}

		entry := domain.NewAuditEntry(parent.ID, domain.ActionSplit, actor,
			fmt.Sprintf("split into %d tickets", len(children)), parent, parent, now)
		entry.Details = map[string]any{"childTicketIds": childIDs}
		if err := s.stores.Audit.Append(ctx, entry); err != nil {
			return fmt.Errorf("append split audit entry: %w", err)
		}

		result = &ports.SplitResult{Parent: parent, Children: children}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(result, actor)
	return result, nil
}

// announce joins parent and children participants into one group.
func (s *SplitService) announce(result *ports.SplitResult, actor domain.Actor) {
	if s.dispatcher == nil {
		return
	}

	ticketIDs := []uuid.UUID{result.Parent.ID}
	children := make([]domain.TicketSnapshot, 0, len(result.Children))
	for _, child := range result.Children {
		ticketIDs = append(ticketIDs, child.ID)
		children = append(children, domain.NewTicketSnapshot(child))
	}
	participants := result.Parent.Participants()
	if !containsID(participants, actor.ID) && !actor.IsSystem() {
		participants = append(participants, actor.ID)
	}

	s.dispatcher.JoinGroup(ticketIDs, participants)
	s.dispatcher.Broadcast(domain.Event{
		Type:     domain.EventTicketSplit,
		TicketID: result.Parent.ID,
		Payload: domain.SplitPayload{
			Parent:   domain.NewTicketSnapshot(result.Parent),
			Children: children,
		},
	})
	for _, ticketID := range ticketIDs {
		s.dispatcher.Notify(ports.NotificationParams{
			TicketID:     ticketID,
			TicketNumber: result.Parent.TicketNumber,
			EventType:    domain.NotifyTicketSplit,
			Participants: without(participants, actor.ID),
			Message:      fmt.Sprintf("Ticket %s was split into %d tickets", result.Parent.TicketNumber, len(result.Children)),
		})
	}
	s.logger.Info("ticket split", "parent_id", result.Parent.ID, "children", len(result.Children))
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
