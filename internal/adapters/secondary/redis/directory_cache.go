package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lorrc/ticket-workflow/internal/core/domain"
	"github.com/lorrc/ticket-workflow/internal/core/ports"
)

const keyPrefix = "directory:roster:"

// Config holds connection settings for the roster cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewClient connects to Redis. An unreachable server is logged, not fatal:
// the cache falls through to the backing directory.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", "addr", cfg.Addr, "error", err)
	} else {
		logger.Info("connected to redis", "addr", cfg.Addr)
	}
	return client
}

// DirectoryCache is a read-through cache in front of another Directory.
type DirectoryCache struct {
	client *goredis.Client
	next   ports.Roster
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.Roster = (*DirectoryCache)(nil)

// NewDirectoryCache wraps next with a Redis cache.
func NewDirectoryCache(client *goredis.Client, next ports.Roster, ttl time.Duration, logger *slog.Logger) *DirectoryCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DirectoryCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger.With("component", "directory_cache"),
	}
}

func rosterKey(department string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(department))
}

// AssigneesOf serves the roster from Redis, loading it on a miss. Redis
// errors degrade to the backing directory.
func (c *DirectoryCache) AssigneesOf(ctx context.Context, department string) ([]domain.Assignee, error) {
	key := rosterKey(department)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var roster []domain.Assignee
		if jsonErr := json.Unmarshal(raw, &roster); jsonErr == nil {
			return roster, nil
		}
		c.logger.Warn("discarding corrupt roster cache entry", "key", key)
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("roster cache read failed", "key", key, "error", err)
	}

	roster, err := c.next.AssigneesOf(ctx, department)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(roster); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("roster cache write failed", "key", key, "error", err)
		}
	}
	return roster, nil
}

// UpsertMember writes through to the backing roster and drops the cached
// entry so the next read reloads it.
func (c *DirectoryCache) UpsertMember(ctx context.Context, department string, member domain.Assignee) error {
	if err := c.next.UpsertMember(ctx, department, member); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, department); err != nil {
		c.logger.Warn("roster cache invalidation failed", "department", department, "error", err)
	}
	return nil
}

// Invalidate drops the cached roster of a department.
func (c *DirectoryCache) Invalidate(ctx context.Context, department string) error {
	if err := c.client.Del(ctx, rosterKey(department)).Err(); err != nil {
		return fmt.Errorf("invalidate roster cache: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *DirectoryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
