// Package redis provides Redis-backed identity bindings and an event stream.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/aliaswatch/internal/core/domain"
)

// DefaultKeyPrefix namespaces every key written by this package.
const DefaultKeyPrefix = "aliaswatch"

// Client wraps Redis operations.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
}

// Config holds Redis connection configuration.
type Config struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return Wrap(rdb, cfg.KeyPrefix), nil
}

// Wrap adapts an existing client.
func Wrap(rdb redis.UniversalClient, prefix string) *Client {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Client{rdb: rdb, prefix: prefix}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func (c *Client) bindingKey(addr domain.Address) string {
	return fmt.Sprintf("%s:binding:%s", c.prefix, addr)
}

func (c *Client) bindingIndexKey() string {
	return c.prefix + ":bindings"
}

func (c *Client) eventMarkerKey(id string) string {
	return fmt.Sprintf("%s:event:%s", c.prefix, id)
}

func (c *Client) streamKey() string {
	return c.prefix + ":events"
}
