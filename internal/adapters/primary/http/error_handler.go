package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	mw "github.com/lorrc/ticket-workflow/internal/adapters/primary/http/middleware"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
)

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return mw.GetRequestID(ctx)
}

// ErrorResponse is the standard JSON error response format
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse includes field-level validation errors
type ValidationErrorResponse struct {
	Error  string              `json:"error"`
	Code   string              `json:"code"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler with the given logger
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error and writes the appropriate HTTP response
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())

	// Field-level validation errors carry their own body shape
	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		h.logError(r, http.StatusUnprocessableEntity, err, requestID)
		h.writeValidationErrorResponse(w, validationErrs)
		return
	}

	statusCode, response := Describe(err)
	h.logError(r, statusCode, err, requestID)
	h.writeErrorResponse(w, statusCode, response)
}

// Describe maps an error to its HTTP status and response body. Bulk
// endpoints use it to report per-item failures.
func Describe(err error) (int, ErrorResponse) {
	// Check for AppError first (our custom error type)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode, ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Code,
			Details: appErr.Details,
		}
	}

	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]interface{}, len(validationErrs.Errors))
		for field, msgs := range validationErrs.Errors {
			details[field] = msgs
		}
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Validation failed",
			Code:    "VALIDATION_ERROR",
			Details: details,
		}
	}

	return mapDomainError(err)
}

// mapDomainError converts domain errors to HTTP status codes and responses.
// Rule violations expose their reason; it never contains internal detail.
func mapDomainError(err error) (int, ErrorResponse) {
	switch {
	// Authentication & Authorization
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{
			Error: "Authentication required",
			Code:  "UNAUTHORIZED",
		}
	case errors.Is(err, apperrors.ErrPermissionDenied):
		return http.StatusForbidden, ErrorResponse{
			Error: ruleReason(err, "You do not have permission to perform this action"),
			Code:  "PERMISSION_DENIED",
		}

	// Not Found errors
	case errors.Is(err, apperrors.ErrTicketNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: "Ticket not found",
			Code:  "TICKET_NOT_FOUND",
		}
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{
			Error: "Resource not found",
			Code:  "NOT_FOUND",
		}

	// Validation without field detail
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusUnprocessableEntity, ErrorResponse{
			Error: ruleReason(err, "Validation failed"),
			Code:  "VALIDATION_ERROR",
		}

	// Workflow rule violations
	case errors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{
			Error: ruleReason(err, "Invalid status transition"),
			Code:  "INVALID_TRANSITION",
		}
	case errors.Is(err, apperrors.ErrReopenLimitExceeded):
		return http.StatusConflict, ErrorResponse{
			Error: ruleReason(err, "Ticket has been reopened too many times"),
			Code:  "REOPEN_LIMIT_EXCEEDED",
		}
	case errors.Is(err, apperrors.ErrConcurrencyConflict):
		return http.StatusConflict, ErrorResponse{
			Error: ruleReason(err, "Ticket was modified by someone else; reload and retry"),
			Code:  "CONCURRENCY_CONFLICT",
		}
	case errors.Is(err, apperrors.ErrNoActiveUndoWindow):
		return http.StatusConflict, ErrorResponse{
			Error: "There is no assignment to undo",
			Code:  "NO_ACTIVE_UNDO_WINDOW",
		}

	case errors.Is(err, apperrors.ErrBadRequest):
		return http.StatusBadRequest, ErrorResponse{
			Error: "Bad request",
			Code:  "BAD_REQUEST",
		}

	// Rate limiting
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many requests. Please try again later.",
			Code:  "RATE_LIMITED",
		}

	// Default to internal server error
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error: "An unexpected error occurred",
			Code:  "INTERNAL_ERROR",
		}
	}
}

// ruleReason returns the human reason of a RuleError, or fallback.
func ruleReason(err error, fallback string) string {
	var ruleErr *apperrors.RuleError
	if errors.As(err, &ruleErr) && ruleErr.Reason != "" {
		return ruleErr.Reason
	}
	return fallback
}

// logError logs the error with appropriate context
func (h *ErrorHandler) logError(r *http.Request, statusCode int, err error, requestID string) {
	logAttrs := []any{
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error", err.Error(),
	}

	// Log at different levels based on status code
	switch {
	case statusCode >= 500:
		h.logger.Error("server error", logAttrs...)
	case statusCode >= 400:
		h.logger.Warn("client error", logAttrs...)
	default:
		h.logger.Info("request error", logAttrs...)
	}
}

// writeErrorResponse writes a JSON error response
func (h *ErrorHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, response ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// writeValidationErrorResponse writes a validation error response
func (h *ErrorHandler) writeValidationErrorResponse(w http.ResponseWriter, errs *apperrors.ValidationErrors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(ValidationErrorResponse{
		Error:  "Validation failed",
		Code:   "VALIDATION_ERROR",
		Fields: errs.Errors,
	})
}
