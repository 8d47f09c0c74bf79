package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/ticket-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-workflow/internal/adapters/primary/validation"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// AdminHandler exposes roster maintenance to administrators.
type AdminHandler struct {
	assigneeService ports.AssigneeService
	errorHandler    *ErrorHandler
	logger          *slog.Logger
}

func NewAdminHandler(assigneeService ports.AssigneeService, errorHandler *ErrorHandler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		assigneeService: assigneeService,
		errorHandler:    errorHandler,
		logger:          logger.With("handler", "admin"),
	}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Put("/departments/{department}/members/{userID}", h.HandleUpsertMember)
}

type UpsertMemberRequest struct {
	FullName  string `json:"fullName"`
	Available *bool  `json:"available"`
}

func (r *UpsertMemberRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("fullName", r.FullName).
		MaxLength("fullName", r.FullName, 255)
	v.NotNil("available", r.Available)

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// HandleUpsertMember handles PUT /admin/departments/{department}/members/{userID}
func (h *AdminHandler) HandleUpsertMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := mw.GetActor(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return
	}

	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid user ID"))
		return
	}
	department := strings.TrimSpace(chi.URLParam(r, "department"))

	req, err := validation.DecodeAndValidate[UpsertMemberRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	member, err := h.assigneeService.UpsertMember(r.Context(), actor, department, domain.Assignee{
		ID:        userID,
		Name:      req.FullName,
		Available: *req.Available,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "roster updated",
		"department", member.Department,
		"member_id", member.ID,
		"available", member.Available,
	)

	WriteJSON(w, http.StatusOK, mapAssignees([]domain.Assignee{member})[0])
}
