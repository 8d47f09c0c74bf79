package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

// DirectoryRepository reads department rosters from department_members.
type DirectoryRepository struct {
	pool *pgxpool.Pool
}

var _ ports.Roster = (*DirectoryRepository)(nil)

// NewDirectoryRepository creates a new directory repository.
func NewDirectoryRepository(pool *pgxpool.Pool) *DirectoryRepository {
	return &DirectoryRepository{pool: pool}
}

// AssigneesOf lists the members of a department, matched case-insensitively.
func (r *DirectoryRepository) AssigneesOf(ctx context.Context, department string) ([]domain.Assignee, error) {
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, `
		SELECT user_id, full_name, department, available
		FROM department_members
		WHERE lower(department) = lower($1)
		ORDER BY full_name, user_id`, strings.TrimSpace(department))
	if err != nil {
		return nil, fmt.Errorf("list department members: %w", err)
	}
	defer rows.Close()

	members := make([]domain.Assignee, 0)
	for rows.Next() {
		var a domain.Assignee
		if err := rows.Scan(&a.ID, &a.Name, &a.Department, &a.Available); err != nil {
			return nil, fmt.Errorf("scan department member: %w", err)
		}
		members = append(members, a)
	}
	return members, rows.Err()
}

// UpsertMember adds or updates a roster entry. Departments differing only in
// case or surrounding spaces share one entry; the latest spelling is kept.
func (r *DirectoryRepository) UpsertMember(ctx context.Context, department string, member domain.Assignee) error {
	_, err := GetDBTX(ctx, r.pool).Exec(ctx, `
		INSERT INTO department_members (department, user_id, full_name, available)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lower(department), user_id) DO UPDATE
		SET department = EXCLUDED.department,
			full_name = EXCLUDED.full_name,
			available = EXCLUDED.available`,
		strings.TrimSpace(department), member.ID, member.Name, member.Available)
	if err != nil {
		return fmt.Errorf("upsert department member: %w", err)
	}
	return nil
}
