package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/lorrc/ticket-workflow/internal/core/utils"
)

const ticketColumns = `id, ticket_number, subject, description, department, priority, status,
	requester_id, requester_name, moderator_id, moderator_name, assignee_id, assignee_name,
	submitted_date, assigned_date, acknowledged_at, completed_date, resolved_date,
	due_date_override, sla_hours, reopen_count, parent_ticket_id,
	rejection_reason, completion_note, postponement_reason, reassignment_reason, is_approved,
	version, created_at, updated_at, deleted_at`

// effectiveDueDate mirrors domain.SLATracker.EffectiveDueDate.
const effectiveDueDate = `COALESCE(due_date_override, submitted_date + make_interval(hours => sla_hours))`

// TicketRepository is the secondary adapter for ticket persistence.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// Ensure TicketRepository implements the ports.TicketRepository interface.
var _ ports.TicketRepository = (*TicketRepository)(nil)

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) ports.TicketRepository {
	return &TicketRepository{pool: pool}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		t                                                 domain.Ticket
		department, priority, requesterName               pgtype.Text
		moderatorName, assigneeName                       pgtype.Text
		rejection, completion, postponement, reassignment pgtype.Text
		moderatorID, assigneeID, parentID                 pgtype.UUID
		submitted, assigned, acknowledged, completed      pgtype.Timestamptz
		resolved, dueOverride, deleted                    pgtype.Timestamptz
		isApproved                                        pgtype.Bool
		status                                            string
	)

	err := row.Scan(
		&t.ID, &t.TicketNumber, &t.Subject, &t.Description, &department, &priority, &status,
		&t.RequesterID, &requesterName, &moderatorID, &moderatorName, &assigneeID, &assigneeName,
		&submitted, &assigned, &acknowledged, &completed, &resolved,
		&dueOverride, &t.SLAHours, &t.ReopenCount, &parentID,
		&rejection, &completion, &postponement, &reassignment, &isApproved,
		&t.Version, &t.CreatedAt, &t.UpdatedAt, &deleted,
	)
	if err != nil {
		return nil, err
	}

	t.Department = utils.FromString(department)
	t.Priority = domain.TicketPriority(utils.FromString(priority))
	t.Status = domain.TicketStatus(status)
	t.RequesterName = utils.FromString(requesterName)
	t.ModeratorID = utils.FromUUID(moderatorID)
	t.ModeratorName = utils.FromString(moderatorName)
	t.AssigneeID = utils.FromUUID(assigneeID)
	t.AssigneeName = utils.FromString(assigneeName)
	t.SubmittedDate = utils.FromTimestamptz(submitted)
	t.AssignedDate = utils.FromTimestamptz(assigned)
	t.AcknowledgedAt = utils.FromTimestamptz(acknowledged)
	t.CompletedDate = utils.FromTimestamptz(completed)
	t.ResolvedDate = utils.FromTimestamptz(resolved)
	t.DueDateOverride = utils.FromTimestamptz(dueOverride)
	t.ParentTicketID = utils.FromUUID(parentID)
	t.RejectionReason = utils.FromString(rejection)
	t.CompletionNote = utils.FromString(completion)
	t.PostponementReason = utils.FromString(postponement)
	t.ReassignmentReason = utils.FromString(reassignment)
	t.IsApproved = utils.FromBool(isApproved)
	t.DeletedAt = utils.FromTimestamptz(deleted)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

// Create persists a new ticket entity.
func (r *TicketRepository) Create(ctx context.Context, t *domain.Ticket) (*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)
	row := q.QueryRow(ctx, `
		INSERT INTO tickets (
			id, subject, description, department, priority, status,
			requester_id, requester_name, moderator_id, moderator_name, assignee_id, assignee_name,
			submitted_date, assigned_date, due_date_override, sla_hours, reopen_count, parent_ticket_id,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 1, $19, $19)
		RETURNING `+ticketColumns,
		t.ID, t.Subject, t.Description, utils.ToString(t.Department), utils.ToString(string(t.Priority)), string(t.Status),
		t.RequesterID, utils.ToString(t.RequesterName), utils.ToUUID(t.ModeratorID), utils.ToString(t.ModeratorName),
		utils.ToUUID(t.AssigneeID), utils.ToString(t.AssigneeName),
		utils.ToTimestamptz(t.SubmittedDate), utils.ToTimestamptz(t.AssignedDate), utils.ToTimestamptz(t.DueDateOverride),
		t.SLAHours, t.ReopenCount, utils.ToUUID(t.ParentTicketID),
		t.CreatedAt.UTC(),
	)

	created, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	return created, nil
}

// GetByID retrieves a single live ticket by its ID.
func (r *TicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)
	row := q.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 AND deleted_at IS NULL`, id)

	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

// Update writes the ticket if nobody changed it since expectedVersion.
func (r *TicketRepository) Update(ctx context.Context, t *domain.Ticket, expectedVersion int64) (*domain.Ticket, error) {
	q := GetDBTX(ctx, r.pool)
	row := q.QueryRow(ctx, `
		UPDATE tickets SET
			subject = $3, description = $4, department = $5, priority = $6, status = $7,
			moderator_id = $8, moderator_name = $9, assignee_id = $10, assignee_name = $11,
			submitted_date = $12, assigned_date = $13, acknowledged_at = $14, completed_date = $15,
			resolved_date = $16, due_date_override = $17, sla_hours = $18, reopen_count = $19,
			rejection_reason = $20, completion_note = $21, postponement_reason = $22,
			reassignment_reason = $23, is_approved = $24, updated_at = $25, deleted_at = $26,
			version = version + 1
		WHERE id = $1 AND version = $2 AND deleted_at IS NULL
		RETURNING `+ticketColumns,
		t.ID, expectedVersion,
		t.Subject, t.Description, utils.ToString(t.Department), utils.ToString(string(t.Priority)), string(t.Status),
		utils.ToUUID(t.ModeratorID), utils.ToString(t.ModeratorName), utils.ToUUID(t.AssigneeID), utils.ToString(t.AssigneeName),
		utils.ToTimestamptz(t.SubmittedDate), utils.ToTimestamptz(t.AssignedDate), utils.ToTimestamptz(t.AcknowledgedAt),
		utils.ToTimestamptz(t.CompletedDate), utils.ToTimestamptz(t.ResolvedDate), utils.ToTimestamptz(t.DueDateOverride),
		t.SLAHours, t.ReopenCount,
		utils.ToString(t.RejectionReason), utils.ToString(t.CompletionNote), utils.ToString(t.PostponementReason),
		utils.ToString(t.ReassignmentReason), utils.ToBool(t.IsApproved), t.UpdatedAt.UTC(), utils.ToTimestamptz(t.DeletedAt),
	)

	updated, err := scanTicket(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update ticket: %w", err)
	}

	// Distinguish a missing ticket from a stale version.
	var current int64
	err = q.QueryRow(ctx, `SELECT version FROM tickets WHERE id = $1 AND deleted_at IS NULL`, t.ID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("check ticket version: %w", err)
	}
	return nil, apperrors.NewRuleError(apperrors.ErrConcurrencyConflict,
		"ticket was modified concurrently: expected version %d, found %d", expectedVersion, current)
}

// List returns live tickets matching the filter.
func (r *TicketRepository) List(ctx context.Context, f ports.TicketFilter) ([]*domain.Ticket, error) {
	where := []string{"deleted_at IS NULL"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		where = append(where, "status = "+arg(string(*f.Status)))
	}
	if f.ReopenedOnly {
		where = append(where, "reopen_count > 0")
	}
	if f.Department != nil {
		where = append(where, "lower(department) = lower("+arg(strings.TrimSpace(*f.Department))+")")
	}
	if f.RequesterID != nil {
		where = append(where, "requester_id = "+arg(*f.RequesterID))
	}
	if f.AssigneeID != nil {
		where = append(where, "assignee_id = "+arg(*f.AssigneeID))
	}
	if f.ParentTicketID != nil {
		where = append(where, "parent_ticket_id = "+arg(*f.ParentTicketID))
	}
	if v := f.Visibility; v != nil {
		user := arg(v.UserID)
		clause := "requester_id = " + user + " OR assignee_id = " + user
		if v.Department != "" {
			clause += " OR lower(department) = lower(" + arg(v.Department) + ")"
		}
		where = append(where, "("+clause+")")
	}

	order := "created_at DESC, id"
	if f.SortByDueDate {
		order = effectiveDueDate + " ASC NULLS LAST, created_at DESC, id"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + order + ` LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]*domain.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
