package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// TicketAuthorizer decides whether an actor may watch a ticket.
// ports.WorkflowService satisfies it.
type TicketAuthorizer interface {
	GetTicket(ctx context.Context, actor domain.Actor, ticketID uuid.UUID) (*domain.Ticket, error)
}

// Hub maintains the set of active Clients and broadcasts messages to them.
// It also owns chat channel membership per ticket.
type Hub struct {
	// Clients maps user IDs to their active connections
	// A single user can have multiple connections (multiple tabs/devices)
	clients map[uuid.UUID]map[*Client]bool

	// Rooms maps ticket IDs to subscribed clients
	rooms map[uuid.UUID]map[*Client]bool

	// members maps ticket IDs to the users in the ticket's channel
	members map[uuid.UUID]map[uuid.UUID]bool

	broadcast  chan domain.Event
	Register   chan *Client
	Unregister chan *Client

	authorizer TicketAuthorizer

	// mu protects clients, rooms and members
	mu sync.RWMutex

	logger *slog.Logger
}

var (
	_ ports.EventBroadcaster = (*Hub)(nil)
	_ ports.ChannelManager   = (*Hub)(nil)
	_ ports.AccessRevoker    = (*Hub)(nil)
)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		members:    make(map[uuid.UUID]map[uuid.UUID]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// SetAuthorizer installs the read-access check used for subscriptions by
// users who are not channel members. It is set after the services exist.
func (h *Hub) SetAuthorizer(a TicketAuthorizer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authorizer = a
}

// Broadcast sends an event to the hub's internal broadcast channel.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"ticket_id", event.TicketID,
		)
		return nil
	}
}

// Run starts the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	h.logger.Info("client registered",
		"user_id", client.UserID,
		"total_connections", len(h.clients[client.UserID]),
	)
}

// unregisterClient removes a client from the hub and all rooms
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		if _, exists := userClients[client]; exists {
			delete(userClients, client)
			if len(userClients) == 0 {
				delete(h.clients, client.UserID)
			}
		}
	}

	for _, ticketID := range client.GetSubscriptions() {
		h.leaveRoomLocked(client, ticketID)
	}

	client.CloseSend()

	h.logger.Info("client unregistered", "user_id", client.UserID)
}

// broadcastEvent sends an event to all clients subscribed to the ticket
func (h *Hub) broadcastEvent(event domain.Event) {
	h.mu.RLock()
	room, ok := h.rooms[event.TicketID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"ticket_id", event.TicketID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		select {
		case client.Send <- event:
		default:
			h.logger.Warn("client send buffer full, unregistering", "user_id", client.UserID)
			go func(c *Client) { h.Unregister <- c }(client)
		}
	}
}

// JoinChannel adds a participant to a ticket's channel.
func (h *Hub) JoinChannel(_ context.Context, ticketID, participantID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.members[ticketID] == nil {
		h.members[ticketID] = make(map[uuid.UUID]bool)
	}
	h.members[ticketID][participantID] = true
	return nil
}

// RevokeAccess drops the user from the ticket channel and closes their live
// subscriptions to it.
func (h *Hub) RevokeAccess(_ context.Context, ticketID, userID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, ok := h.members[ticketID]; ok {
		delete(m, userID)
		if len(m) == 0 {
			delete(h.members, ticketID)
		}
	}
	for client := range h.clients[userID] {
		h.leaveRoomLocked(client, ticketID)
	}
	h.logger.Info("ticket access revoked", "ticket_id", ticketID, "user_id", userID)
	return nil
}

// IsMember reports whether the user is in the ticket's channel.
func (h *Hub) IsMember(ticketID, userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.members[ticketID][userID]
}

// subscribe adds the client to a ticket room if it may see the ticket.
func (h *Hub) subscribe(ctx context.Context, client *Client, ticketID uuid.UUID) bool {
	h.mu.RLock()
	member := h.members[ticketID][client.UserID]
	authorizer := h.authorizer
	h.mu.RUnlock()

	if !member {
		if authorizer == nil {
			return false
		}
		if _, err := authorizer.GetTicket(ctx, client.Actor, ticketID); err != nil {
			h.logger.Debug("subscription denied", "user_id", client.UserID, "ticket_id", ticketID, "error", err)
			return false
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[ticketID] == nil {
		h.rooms[ticketID] = make(map[*Client]bool)
	}
	h.rooms[ticketID][client] = true
	client.AddSubscription(ticketID)

	h.logger.Debug("client subscribed to ticket", "user_id", client.UserID, "ticket_id", ticketID)
	return true
}

func (h *Hub) unsubscribe(client *Client, ticketID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client, ticketID)
}

func (h *Hub) leaveRoomLocked(client *Client, ticketID uuid.UUID) {
	if room, ok := h.rooms[ticketID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, ticketID)
		}
	}
	client.RemoveSubscription(ticketID)
}

// GetClientCount returns the total number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, userClients := range h.clients {
		count += len(userClients)
	}
	return count
}

// GetClientsInRoom returns the number of clients subscribed to a ticket
func (h *Hub) GetClientsInRoom(ticketID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ticketID])
}
