package postgres

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(testPool)
	dept := uniqueDepartment("Legal")

	ann := domain.Assignee{ID: uuid.New(), Name: "Ann Assignee", Available: true}
	bob := domain.Assignee{ID: uuid.New(), Name: "Bob Backup", Available: true}
	require.NoError(t, repo.UpsertMember(ctx, dept, bob))
	require.NoError(t, repo.UpsertMember(ctx, " "+dept+" ", ann))

	// Upsert flips availability in place.
	bob.Available = false
	require.NoError(t, repo.UpsertMember(ctx, dept, bob))

	members, err := repo.AssigneesOf(ctx, dept)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, "Ann Assignee", members[0].Name)
	assert.Equal(t, dept, members[0].Department)
	assert.True(t, members[0].Available)
	assert.Equal(t, bob.ID, members[1].ID)
	assert.False(t, members[1].Available)

	empty, err := repo.AssigneesOf(ctx, uniqueDepartment("Nobody"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDirectoryRepository_SpellingsShareOneEntry(t *testing.T) {
	ctx := context.Background()
	repo := NewDirectoryRepository(testPool)
	dept := uniqueDepartment("Ops")

	bob := domain.Assignee{ID: uuid.New(), Name: "Bob Backup", Available: true}
	require.NoError(t, repo.UpsertMember(ctx, dept, bob))

	bob.Available = false
	require.NoError(t, repo.UpsertMember(ctx, strings.ToLower(dept), bob))

	for _, spelling := range []string{dept, strings.ToUpper(dept)} {
		members, err := repo.AssigneesOf(ctx, spelling)
		require.NoError(t, err)
		require.Len(t, members, 1, spelling)
		assert.False(t, members[0].Available)
		assert.Equal(t, strings.ToLower(dept), members[0].Department)
	}
}
