package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
)

// MaxSplitChildren bounds one split batch.
const MaxSplitChildren = 10

// ChildSpec describes one ticket to carve out of a parent.
type ChildSpec struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Department  string `json:"department"`
}

// ValidateSplit checks the parent and the whole batch before anything is
// written. All field problems are reported together.
func ValidateSplit(actor Actor, parent *Ticket, specs []ChildSpec) error {
	if parent.DeletedAt != nil || !splittableStatuses[parent.Status] {
		return apperrors.NewRuleError(apperrors.ErrInvalidTransition,
			"ticket cannot be split while it is %s", parent.DisplayStatus())
	}
	if parent.IsChild() {
		errs := apperrors.NewValidationErrors()
		errs.Add("parentTicketId", "child tickets cannot be split further")
		return errs
	}
	if !CanSplit(actor, parent) {
		return apperrors.PermissionDenied("only a moderator or the assignee may split this ticket")
	}

	errs := apperrors.NewValidationErrors()
	switch {
	case len(specs) == 0:
		errs.Add("children", "at least one child ticket is required")
	case len(specs) > MaxSplitChildren:
		errs.Add("children", fmt.Sprintf("at most %d child tickets can be created at once", MaxSplitChildren))
	}

	seen := make(map[string]int, len(specs))
	for i, spec := range specs {
		prefix := fmt.Sprintf("children[%d].", i)
		validateSubject(errs, prefix+"subject", strings.TrimSpace(spec.Subject))
		validateDescription(errs, prefix+"description", strings.TrimSpace(spec.Description))

		dept := strings.ToLower(strings.TrimSpace(spec.Department))
		if dept == "" {
			errs.Add(prefix+"department", "department is required")
			continue
		}
		if first, dup := seen[dept]; dup {
			errs.Add(prefix+"department", fmt.Sprintf("department %q is already used by child %d", strings.TrimSpace(spec.Department), first))
			continue
		}
		seen[dept] = i
	}
	return errs.OrNil()
}

// NewChildTicket builds a submitted child that inherits the parent's requester
// and SLA settings.
func NewChildTicket(parent *Ticket, spec ChildSpec, now time.Time) *Ticket {
	parentID := parent.ID
	return &Ticket{
		ID:             uuid.New(),
		Subject:        strings.TrimSpace(spec.Subject),
		Description:    strings.TrimSpace(spec.Description),
		Department:     strings.TrimSpace(spec.Department),
		Priority:       parent.Priority,
		Status:         StatusSubmitted,
		RequesterID:    parent.RequesterID,
		RequesterName:  parent.RequesterName,
		SubmittedDate:  timePtr(now),
		SLAHours:       parent.SLAHours,
		ParentTicketID: &parentID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
