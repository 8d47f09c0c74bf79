package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// AssigneeService implements business logic for listing assignable users.
type AssigneeService struct {
	roster ports.Roster
}

var _ ports.AssigneeService = (*AssigneeService)(nil)

// NewAssigneeService creates a new assignee service.
func NewAssigneeService(roster ports.Roster) ports.AssigneeService {
	return &AssigneeService{roster: roster}
}

// ListAssignees returns the roster of a department. Moderators may look at
// any department, assignees only at their own.
func (s *AssigneeService) ListAssignees(ctx context.Context, actor domain.Actor, department string) ([]domain.Assignee, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		errs := apperrors.NewValidationErrors()
		errs.Add("department", "department is required")
		return nil, errs
	}

	switch {
	case actor.IsModerator():
	case actor.Role == domain.RoleAssignee && domain.SameDepartment(actor.Department, department):
	default:
		return nil, apperrors.PermissionDenied("you cannot view the roster of %s", department)
	}

	return s.roster.AssigneesOf(ctx, department)
}

// UpsertMember adds a user to a department roster or updates their entry.
// Only admins maintain rosters.
func (s *AssigneeService) UpsertMember(ctx context.Context, actor domain.Actor, department string, member domain.Assignee) (domain.Assignee, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.Assignee{}, apperrors.PermissionDenied("only administrators can maintain rosters")
	}

	errs := apperrors.NewValidationErrors()
	department = strings.TrimSpace(department)
	member.Name = strings.TrimSpace(member.Name)
	if department == "" {
		errs.Add("department", "department is required")
	}
	if member.ID == uuid.Nil {
		errs.Add("userId", "user id is required")
	}
	if member.Name == "" {
		errs.Add("fullName", "full name is required")
	}
	if err := errs.OrNil(); err != nil {
		return domain.Assignee{}, err
	}

	member.Department = department
	if err := s.roster.UpsertMember(ctx, department, member); err != nil {
		return domain.Assignee{}, fmt.Errorf("failed to save roster entry: %w", err)
	}
	return member, nil
}
