package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/ticket-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
)

// MeResponse describes the authenticated caller.
type MeResponse struct {
	ID          string      `json:"id"`
	FullName    string      `json:"fullName"`
	Role        domain.Role `json:"role"`
	Department  string      `json:"department,omitempty"`
	IsCEO       bool        `json:"isCeo"`
	IsModerator bool        `json:"isModerator"`
}

// MeHandler handles HTTP requests for the authenticated user.
type MeHandler struct {
	logger *slog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(logger *slog.Logger) *MeHandler {
	return &MeHandler{
		logger: logger.With("handler", "me"),
	}
}

// RegisterRoutes registers the /me routes.
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleMe)
}

// HandleMe handles GET /me.
func (h *MeHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := mw.GetActor(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	WriteJSON(w, http.StatusOK, MeResponse{
		ID:          actor.ID.String(),
		FullName:    actor.Name,
		Role:        actor.Role,
		Department:  actor.Department,
		IsCEO:       actor.IsCEO,
		IsModerator: actor.IsModerator(),
	})
}
