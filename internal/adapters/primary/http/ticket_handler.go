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
	"github.com/lorrc/ticket-workflow/internal/infrastructure/logging"
)

const (
	maxTicketsPerPage = 100
	maxBulkTickets    = 100
)

// TicketHandler handles HTTP requests for tickets
type TicketHandler struct {
	workflow     ports.WorkflowService
	timers       ports.TimerService
	splitter     ports.SplitService
	reassigner   ports.ReassignmentService
	bulkLimiter  func(http.Handler) http.Handler
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(
	workflow ports.WorkflowService,
	timers ports.TimerService,
	splitter ports.SplitService,
	reassigner ports.ReassignmentService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		workflow:     workflow,
		timers:       timers,
		splitter:     splitter,
		reassigner:   reassigner,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "ticket"),
	}
}

// WithBulkLimiter installs a stricter limiter on the bulk endpoint.
func (h *TicketHandler) WithBulkLimiter(limiter func(http.Handler) http.Handler) *TicketHandler {
	h.bulkLimiter = limiter
	return h
}

// tagTicket adds the addressed ticket to the request's log context.
func tagTicket(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTicketID(r.Context(), chi.URLParam(r, "ticketID"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RegisterRoutes sets up the routing for all ticket endpoints.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleListTickets)
	r.Post("/", h.HandleCreateTicket)

	if h.bulkLimiter != nil {
		r.With(h.bulkLimiter).Post("/bulk-actions", h.HandleBulkActions)
	} else {
		r.Post("/bulk-actions", h.HandleBulkActions)
	}

	// Routes for a specific ticket
	r.Route("/{ticketID}", func(r chi.Router) {
		r.Use(tagTicket)
		r.Get("/", h.HandleGetTicket)
		r.Post("/actions", h.HandleSubmitAction)
		r.Get("/sla", h.HandleGetSLA)
		r.Get("/allowed-actions", h.HandleAllowedActions)
		r.Post("/split", h.HandleSplit)
		r.Post("/reassign", h.HandleReassign)
		r.Get("/history", h.HandleHistory)
		r.Post("/undo", h.HandleUndo)
	})
}

// --- Request DTOs ---

// CreateTicketRequest defines the expected JSON body for creating a draft
type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Department  string `json:"department"`
	Priority    string `json:"priority"`
}

// Validate validates the create ticket request
func (r *CreateTicketRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("subject", r.Subject).
		MaxLength("subject", r.Subject, domain.MaxSubjectLength)
	v.Required("description", r.Description).
		MaxLength("description", r.Description, domain.MaxDescriptionLength)
	v.OneOf("priority", strings.ToLower(r.Priority), priorityNames())

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// ActionFields are the optional inputs shared by single and bulk actions.
type ActionFields struct {
	Reason     string  `json:"reason,omitempty"`
	Message    string  `json:"message,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	Department string  `json:"department,omitempty"`
	AssigneeID *string `json:"assigneeId,omitempty"`
	Priority   string  `json:"priority,omitempty"`
	SLAHours   *int    `json:"slaHours,omitempty"`
	DueDate    *string `json:"dueDate,omitempty"`
}

// payload converts the fields, collecting format errors in v. Business
// rules on the values are enforced by the workflow.
func (f ActionFields) payload(v *validation.Validator) domain.ActionPayload {
	v.OneOf("priority", strings.ToLower(f.Priority), priorityNames())

	return domain.ActionPayload{
		Reason:     f.Reason,
		Message:    f.Message,
		Notes:      f.Notes,
		Department: strings.TrimSpace(f.Department),
		AssigneeID: v.OptionalUUID("assigneeId", f.AssigneeID),
		Priority:   domain.TicketPriority(strings.ToLower(f.Priority)),
		SLAHours:   f.SLAHours,
		DueDate:    v.OptionalTime("dueDate", f.DueDate),
	}
}

// ActionRequest defines the expected JSON body for POST /tickets/{id}/actions
type ActionRequest struct {
	Action string `json:"action"`
	ActionFields
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// BulkActionRequest applies one action to many tickets.
type BulkActionRequest struct {
	Action    string   `json:"action"`
	TicketIDs []string `json:"ticketIds"`
	ActionFields
	// ExpectedVersions optionally pins versions per ticket id.
	ExpectedVersions map[string]int64 `json:"expectedVersions,omitempty"`
}

// SplitRequest defines the expected JSON body for splitting a ticket
type SplitRequest struct {
	Children []ChildRequest `json:"children"`
}

// ChildRequest describes one child ticket.
type ChildRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Department  string `json:"department"`
}

// ReassignRequest defines the expected JSON body for reassignment
type ReassignRequest struct {
	Department      string `json:"department"`
	AssigneeID      string `json:"assigneeId"`
	Reason          string `json:"reason"`
	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

// Validate validates the reassign request shape
func (r *ReassignRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("department", r.Department)
	v.Required("assigneeId", r.AssigneeID).
		UUID("assigneeId", r.AssigneeID)

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

func priorityNames() []string {
	return []string{
		string(domain.PriorityLow),
		string(domain.PriorityMedium),
		string(domain.PriorityHigh),
		string(domain.PriorityUrgent),
	}
}

// --- Handlers ---

// HandleListTickets handles GET /tickets
func (h *TicketHandler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.getActor(w, r)
	if !ok {
		return
	}

	pagination := validation.ParsePagination(r, maxTicketsPerPage)
	v := validation.NewValidator()

	params := ports.ListTicketsParams{
		Department:     validation.ParseStringQueryParam(r, "department"),
		RequesterID:    v.OptionalUUID("requesterId", validation.ParseStringQueryParam(r, "requesterId")),
		AssigneeID:     v.OptionalUUID("assigneeId", validation.ParseStringQueryParam(r, "assigneeId")),
		ParentTicketID: v.OptionalUUID("parentTicketId", validation.ParseStringQueryParam(r, "parentTicketId")),
		SortByDueDate:  r.URL.Query().Get("sort") == "dueDate",
		// One extra row tells WritePaginatedSimple whether more pages exist
		Limit:  pagination.Limit + 1,
		Offset: pagination.Offset,
	}

	if raw := validation.ParseStringQueryParam(r, "status"); raw != nil {
		status, reopened, valid := domain.ParseStatus(*raw)
		v.Custom("status", valid, "Unknown status")
		params.Status = &status
		params.ReopenedOnly = reopened
	}

	switch sla := ports.SLAFilter(r.URL.Query().Get("sla")); sla {
	case ports.SLAFilterNone, ports.SLAFilterBreached, ports.SLAFilterApproaching:
		params.SLA = sla
	default:
		v.Custom("sla", false, "Must be one of: breached, approaching")
	}

	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	tickets, err := h.workflow.ListTickets(r.Context(), actor, params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WritePaginatedSimple(w, toTicketDTOs(tickets), pagination.Limit, pagination.Offset)
}

// HandleCreateTicket handles POST /tickets
func (h *TicketHandler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.getActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[CreateTicketRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.workflow.CreateDraft(r.Context(), actor, ports.CreateDraftParams{
		Subject:     req.Subject,
		Description: req.Description,
		Department:  req.Department,
		Priority:    domain.TicketPriority(strings.ToLower(req.Priority)),
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "draft created", "ticket_id", ticket.ID, "ticket_number", ticket.TicketNumber)

	WriteCreated(w, toTicketDTO(ticket))
}

// HandleGetTicket handles GET /tickets/{ticketID}
func (h *TicketHandler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	ticket, err := h.workflow.GetTicket(r.Context(), actor, ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toTicketDTO(ticket))
}

// HandleSubmitAction handles POST /tickets/{ticketID}/actions
func (h *TicketHandler) HandleSubmitAction(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[ActionRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	v := validation.NewValidator()
	action := parseAction(v, req.Action)
	payload := req.ActionFields.payload(v)
	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	result, err := h.workflow.SubmitAction(r.Context(), actor, domain.Command{
		TicketID:        ticketID,
		Action:          action,
		Payload:         payload,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toActionResultDTO(result))
}

// HandleBulkActions handles POST /tickets/bulk-actions. Each ticket succeeds
// or fails on its own; the response is always 200 with per-ticket results.
func (h *TicketHandler) HandleBulkActions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.getActor(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[BulkActionRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	v := validation.NewValidator()
	action := parseAction(v, req.Action)
	payload := req.ActionFields.payload(v)
	v.Range("ticketIds", len(req.TicketIDs), 1, maxBulkTickets)

	cmds := make([]domain.Command, 0, len(req.TicketIDs))
	seen := make(map[uuid.UUID]bool, len(req.TicketIDs))
	for _, raw := range req.TicketIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			v.Custom("ticketIds", false, "Must contain valid UUIDs")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		cmd := domain.Command{TicketID: id, Action: action, Payload: payload}
		if version, ok := req.ExpectedVersions[raw]; ok {
			cmd.ExpectedVersion = &version
		}
		cmds = append(cmds, cmd)
	}

	if v.HasErrors() {
		h.errorHandler.Handle(w, r, v.Errors())
		return
	}

	items := h.workflow.BulkSubmitAction(r.Context(), actor, cmds)

	response := BulkActionResponse{Results: make([]BulkActionResultDTO, 0, len(items))}
	for _, item := range items {
		dto := BulkActionResultDTO{TicketID: item.TicketID.String()}
		if item.Err != nil {
			status, body := Describe(item.Err)
			dto.Status = status
			dto.Error = &body
			response.Failed++
		} else {
			result := toActionResultDTO(item.Result)
			dto.Status = http.StatusOK
			dto.Result = &result
			response.Succeeded++
		}
		response.Results = append(response.Results, dto)
	}

	h.logger.InfoContext(r.Context(), "bulk action processed",
		"action", action,
		"succeeded", response.Succeeded,
		"failed", response.Failed,
	)

	WriteJSON(w, http.StatusOK, response)
}

// HandleGetSLA handles GET /tickets/{ticketID}/sla
func (h *TicketHandler) HandleGetSLA(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	status, err := h.workflow.GetSLA(r.Context(), actor, ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, toSLADTO(status))
}

// HandleAllowedActions handles GET /tickets/{ticketID}/allowed-actions
func (h *TicketHandler) HandleAllowedActions(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	perms, err := h.workflow.AllowedActions(r.Context(), actor, ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if perms.Actions == nil {
		perms.Actions = []domain.Action{}
	}

	WriteJSON(w, http.StatusOK, perms)
}

// HandleSplit handles POST /tickets/{ticketID}/split
func (h *TicketHandler) HandleSplit(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[SplitRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	specs := make([]domain.ChildSpec, 0, len(req.Children))
	for _, c := range req.Children {
		specs = append(specs, domain.ChildSpec{
			Subject:     c.Subject,
			Description: c.Description,
			Department:  c.Department,
		})
	}

	result, err := h.splitter.SplitTicket(r.Context(), actor, ticketID, specs)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "ticket split", "ticket_id", ticketID, "children", len(result.Children))

	WriteCreated(w, SplitResponse{
		Parent:   toTicketDTO(result.Parent),
		Children: toTicketDTOs(result.Children),
	})
}

// HandleReassign handles POST /tickets/{ticketID}/reassign
func (h *TicketHandler) HandleReassign(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[ReassignRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.reassigner.Reassign(r.Context(), actor, ports.ReassignParams{
		TicketID:        ticketID,
		Department:      req.Department,
		AssigneeID:      uuid.MustParse(strings.TrimSpace(req.AssigneeID)),
		Reason:          req.Reason,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, TicketResponse{Ticket: toTicketDTO(ticket)})
}

// HandleHistory handles GET /tickets/{ticketID}/history
func (h *TicketHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	entries, err := h.workflow.GetHistory(r.Context(), actor, ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, toAuditEntryDTOs(entries))
}

// HandleUndo handles POST /tickets/{ticketID}/undo
func (h *TicketHandler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.actorAndTicket(w, r)
	if !ok {
		return
	}

	ticket, err := h.timers.Undo(r.Context(), actor, ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "assignment undone", "ticket_id", ticketID)

	WriteJSON(w, http.StatusOK, TicketResponse{Ticket: toTicketDTO(ticket)})
}

// --- Helpers ---

func parseAction(v *validation.Validator, raw string) domain.Action {
	v.Required("action", raw)
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	action, ok := domain.ParseAction(raw)
	v.Custom("action", ok, "Unknown action")
	return action
}

// getActor extracts the authenticated caller from the request context.
func (h *TicketHandler) getActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := mw.GetActor(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *TicketHandler) actorAndTicket(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := h.getActor(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, false
	}

	ticketID, err := uuid.Parse(chi.URLParam(r, "ticketID"))
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid ticket ID"))
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, ticketID, true
}
