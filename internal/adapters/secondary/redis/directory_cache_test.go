package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/mocks"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// startRedis runs a throwaway Redis container for the calling test.
func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("could not terminate redis container: %v", err)
		}
	})

	addr, err := container.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)

	client := NewClient(ctx, Config{Addr: addr}, discard)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDirectoryCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)

	roster := []domain.Assignee{{ID: uuid.New(), Name: "Ann Assignee", Department: "IT", Available: true}}
	next := mocks.NewMockRoster()
	next.On("AssigneesOf", mock.Anything, "IT").Return(roster, nil).Once()

	cache := NewDirectoryCache(client, next, time.Minute, discard)

	// 1. Miss loads from the backing roster
	got, err := cache.AssigneesOf(ctx, "IT")
	require.NoError(t, err)
	assert.Equal(t, roster, got)

	// 2. Hit, with the key normalised
	got, err = cache.AssigneesOf(ctx, " it ")
	require.NoError(t, err)
	assert.Equal(t, roster, got)
	next.AssertNumberOfCalls(t, "AssigneesOf", 1)

	ttl, err := client.TTL(ctx, rosterKey("IT")).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestDirectoryCache_UpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)

	member := domain.Assignee{ID: uuid.New(), Name: "Bob Backup", Department: "HR", Available: true}
	next := mocks.NewMockRoster()
	next.On("AssigneesOf", mock.Anything, "HR").Return([]domain.Assignee{}, nil).Once()
	next.On("UpsertMember", mock.Anything, "HR", member).Return(nil)
	next.On("AssigneesOf", mock.Anything, "HR").Return([]domain.Assignee{member}, nil).Once()

	cache := NewDirectoryCache(client, next, time.Minute, discard)

	got, err := cache.AssigneesOf(ctx, "HR")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, cache.UpsertMember(ctx, "HR", member))

	got, err = cache.AssigneesOf(ctx, "HR")
	require.NoError(t, err)
	assert.Equal(t, []domain.Assignee{member}, got)
	next.AssertExpectations(t)
}

func TestDirectoryCache_CorruptEntryReloads(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	require.NoError(t, client.Set(ctx, rosterKey("Legal"), "not json", time.Minute).Err())

	next := mocks.NewMockRoster()
	next.On("AssigneesOf", mock.Anything, "Legal").Return([]domain.Assignee{}, nil).Once()

	got, err := NewDirectoryCache(client, next, time.Minute, discard).AssigneesOf(ctx, "Legal")

	require.NoError(t, err)
	assert.Empty(t, got)
	next.AssertExpectations(t)
}

func TestDirectoryCache_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	roster := []domain.Assignee{{ID: uuid.New(), Name: "Ann Assignee", Department: "IT"}}
	next := mocks.NewMockRoster()
	next.On("AssigneesOf", mock.Anything, "IT").Return(roster, nil).Twice()

	cache := NewDirectoryCache(client, next, 0, discard)
	assert.Equal(t, 5*time.Minute, cache.ttl)

	for i := 0; i < 2; i++ {
		got, err := cache.AssigneesOf(ctx, "IT")
		require.NoError(t, err)
		assert.Equal(t, roster, got)
	}
	next.AssertExpectations(t)
	assert.Error(t, cache.Ping(ctx))
}
