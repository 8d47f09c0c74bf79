package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/ticket-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// AssigneeDTO represents a user that can be assigned to tickets.
type AssigneeDTO struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	Department string `json:"department"`
	Available  bool   `json:"available"`
}

// AssigneeHandler handles HTTP requests for department rosters.
type AssigneeHandler struct {
	assigneeService ports.AssigneeService
	errorHandler    *ErrorHandler
	logger          *slog.Logger
}

// NewAssigneeHandler creates a new AssigneeHandler.
func NewAssigneeHandler(
	assigneeService ports.AssigneeService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *AssigneeHandler {
	return &AssigneeHandler{
		assigneeService: assigneeService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "assignees"),
	}
}

// RegisterRoutes registers the /departments routes.
func (h *AssigneeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{department}/assignees", h.HandleListAssignees)
}

// HandleListAssignees handles GET /departments/{department}/assignees.
func (h *AssigneeHandler) HandleListAssignees(w http.ResponseWriter, r *http.Request) {
	actor, ok := mw.GetActor(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	department := strings.TrimSpace(chi.URLParam(r, "department"))
	if department == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Department is required"))
		return
	}

	assignees, err := h.assigneeService.ListAssignees(r.Context(), actor, department)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, mapAssignees(assignees))
}

func mapAssignees(roster []domain.Assignee) []AssigneeDTO {
	assignees := make([]AssigneeDTO, 0, len(roster))
	for _, a := range roster {
		assignees = append(assignees, AssigneeDTO{
			ID:         a.ID.String(),
			FullName:   a.Name,
			Department: a.Department,
			Available:  a.Available,
		})
	}
	return assignees
}
