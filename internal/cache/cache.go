package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nisimpson/userstore"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is used when a cache is created without a TTL.
	DefaultTTL = 5 * time.Minute

	// DefaultTombstoneTTL is how long an invalidated user stays uncacheable.
	// It must outlast the slowest store read.
	DefaultTombstoneTTL = 30 * time.Second
)

// keyPrefix namespaces user entries in a shared Redis database.
const keyPrefix = "user:"

// tombstone marks an invalidated entry.
const tombstone = "-"

// Client is the subset of the go-redis client used by the cache.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
}

// Open creates a Redis client and pings it to validate the connection.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("empty redis addr")
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// UserCache stores users as JSON under "user:<id>". It implements
// userstore.Cache.
//
// Entries are only written when the key is absent, and Invalidate replaces
// the entry with a tombstone. A read that raced a write therefore cannot
// bring back the old user until the tombstone expires.
type UserCache struct {
	client Client
	ttl    time.Duration

	// TombstoneTTL defaults to DefaultTombstoneTTL.
	TombstoneTTL time.Duration
}

var _ userstore.Cache = (*UserCache)(nil)

// NewUserCache creates a cache whose entries expire after ttl.
func NewUserCache(client Client, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &UserCache{client: client, ttl: ttl, TombstoneTTL: DefaultTombstoneTTL}
}

// Key returns the Redis key of a user.
func Key(id string) string {
	return keyPrefix + id
}

// Get returns the cached user, or nil when the entry is missing or
// invalidated.
func (c *UserCache) Get(ctx context.Context, id string) (*userstore.User, error) {
	data, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached user %s: %w", id, err)
	}
	if string(data) == tombstone {
		return nil, nil
	}

	var u userstore.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode cached user %s: %w", id, err)
	}
	return &u, nil
}

// Set caches u until the TTL expires. It does nothing when the user is
// already cached or was recently invalidated.
func (c *UserCache) Set(ctx context.Context, u *userstore.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = c.client.SetArgs(ctx, Key(u.UserID), data, redis.SetArgs{Mode: "NX", TTL: c.ttl}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// Invalidate replaces the cached entry of a user with a tombstone.
func (c *UserCache) Invalidate(ctx context.Context, id string) error {
	ttl := c.TombstoneTTL
	if ttl <= 0 {
		ttl = DefaultTombstoneTTL
	}
	return c.client.Set(ctx, Key(id), tombstone, ttl).Err()
}
