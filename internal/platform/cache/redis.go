// Package cache connects the Redis instance that holds sessions and the job queue.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// New dials Redis at addr and returns an error when it does not answer a PING.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("platform/cache: redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping checks the connection, bounded by a short timeout.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("platform/cache: ping: %w", err)
	}
	return nil
}
