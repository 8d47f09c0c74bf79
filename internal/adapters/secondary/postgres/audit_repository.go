package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
	"github.com/lorrc/ticket-workflow/internal/core/utils"
)

// AuditRepository stores the append-only ticket history.
type AuditRepository struct {
	pool *pgxpool.Pool
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(pool *pgxpool.Pool) ports.AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append inserts one entry.
func (r *AuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	before, err := marshalNullable(e.BeforeState)
	if err != nil {
		return fmt.Errorf("encode before state: %w", err)
	}
	after, err := marshalNullable(e.AfterState)
	if err != nil {
		return fmt.Errorf("encode after state: %w", err)
	}
	var details []byte
	if len(e.Details) > 0 {
		if details, err = json.Marshal(e.Details); err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
	}

	_, err = GetDBTX(ctx, r.pool).Exec(ctx, `
		INSERT INTO ticket_audit_entries
			(id, ticket_id, action_type, actor_id, actor_name, reason, before_state, after_state, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TicketID, string(e.ActionType), e.ActorID, utils.ToString(e.ActorName), utils.ToString(e.Reason),
		before, after, details, e.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByTicket returns the ticket's entries newest first.
func (r *AuditRepository) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]*domain.AuditEntry, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, `
		SELECT id, ticket_id, action_type, actor_id, actor_name, reason, before_state, after_state, details, created_at
		FROM ticket_audit_entries
		WHERE ticket_id = $1
		ORDER BY created_at DESC, seq DESC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var (
			e                      domain.AuditEntry
			action                 string
			actorName, reason      pgtype.Text
			before, after, details []byte
		)
		if err := rows.Scan(&e.ID, &e.TicketID, &action, &e.ActorID, &actorName, &reason,
			&before, &after, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActionType = domain.Action(action)
		e.ActorName = utils.FromString(actorName)
		e.Reason = utils.FromString(reason)
		e.Timestamp = e.Timestamp.UTC()

		if len(before) > 0 {
			e.BeforeState = &domain.StateSnapshot{}
			if err := json.Unmarshal(before, e.BeforeState); err != nil {
				return nil, fmt.Errorf("decode before state: %w", err)
			}
		}
		if len(after) > 0 {
			e.AfterState = &domain.StateSnapshot{}
			if err := json.Unmarshal(after, e.AfterState); err != nil {
				return nil, fmt.Errorf("decode after state: %w", err)
			}
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// marshalNullable encodes v as JSON, or returns nil for a nil pointer so the
// column stays NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
