package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	apperrors "github.com/lorrc/ticket-workflow/internal/core/errors"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

const timerColumns = `id, ticket_id, kind, deadline, payload, active, created_at`

// TimerRepository stores durable ticket timers.
type TimerRepository struct {
	pool *pgxpool.Pool
}

var _ ports.TimerRepository = (*TimerRepository)(nil)

// NewTimerRepository creates a new timer repository.
func NewTimerRepository(pool *pgxpool.Pool) ports.TimerRepository {
	return &TimerRepository{pool: pool}
}

func scanTimer(row pgx.Row) (*domain.TimerRecord, error) {
	var (
		t       domain.TimerRecord
		kind    string
		payload []byte
	)
	if err := row.Scan(&t.ID, &t.TicketID, &kind, &t.Deadline, &payload, &t.Active, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Kind = domain.TimerKind(kind)
	t.Deadline = t.Deadline.UTC()
	t.CreatedAt = t.CreatedAt.UTC()
	if len(payload) > 0 {
		t.Payload = &domain.AssignmentSnapshot{}
		if err := json.Unmarshal(payload, t.Payload); err != nil {
			return nil, fmt.Errorf("decode timer payload: %w", err)
		}
	}
	return &t, nil
}

// Schedule replaces any active timer of the same kind for the ticket.
func (r *TimerRepository) Schedule(ctx context.Context, t *domain.TimerRecord) error {
	payload, err := marshalNullable(t.Payload)
	if err != nil {
		return fmt.Errorf("encode timer payload: %w", err)
	}

	q := GetDBTX(ctx, r.pool)
	if _, err := q.Exec(ctx,
		`UPDATE ticket_timers SET active = FALSE WHERE ticket_id = $1 AND kind = $2 AND active`,
		t.TicketID, string(t.Kind)); err != nil {
		return fmt.Errorf("replace active timer: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO ticket_timers (id, ticket_id, kind, deadline, payload, active, created_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6)`,
		t.ID, t.TicketID, string(t.Kind), t.Deadline.UTC(), payload, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert timer: %w", err)
	}
	return nil
}

// GetActive returns the ticket's active timer of the given kind.
func (r *TimerRepository) GetActive(ctx context.Context, ticketID uuid.UUID, kind domain.TimerKind) (*domain.TimerRecord, error) {
	row := GetDBTX(ctx, r.pool).QueryRow(ctx,
		`SELECT `+timerColumns+` FROM ticket_timers WHERE ticket_id = $1 AND kind = $2 AND active`,
		ticketID, string(kind))

	t, err := scanTimer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active timer: %w", err)
	}
	return t, nil
}

// Deactivate marks one timer as done.
func (r *TimerRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	if _, err := GetDBTX(ctx, r.pool).Exec(ctx,
		`UPDATE ticket_timers SET active = FALSE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deactivate timer: %w", err)
	}
	return nil
}

// CancelActive deactivates the ticket's active timer of the given kind, if any.
func (r *TimerRepository) CancelActive(ctx context.Context, ticketID uuid.UUID, kind domain.TimerKind) error {
	if _, err := GetDBTX(ctx, r.pool).Exec(ctx,
		`UPDATE ticket_timers SET active = FALSE WHERE ticket_id = $1 AND kind = $2 AND active`,
		ticketID, string(kind)); err != nil {
		return fmt.Errorf("cancel timer: %w", err)
	}
	return nil
}

// ListDue returns active timers whose deadline has passed.
func (r *TimerRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.TimerRecord, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, `
		SELECT `+timerColumns+` FROM ticket_timers
		WHERE active AND deadline <= $1
		ORDER BY deadline, id
		LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list due timers: %w", err)
	}
	defer rows.Close()

	timers := make([]*domain.TimerRecord, 0)
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		timers = append(timers, t)
	}
	return timers, rows.Err()
}
