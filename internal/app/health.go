package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresCheck pings the pool.
func PostgresCheck(pool *pgxpool.Pool) HealthCheck {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}

// RedisCheck pings redis.
func RedisCheck(client redis.UniversalClient) HealthCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
