package storage

import "time"

// Config holds connection configuration for Postgres and Redis
type Config struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration
	MaxLifetime      time.Duration
	MaxIdleTime      time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	CacheEnabled bool
	CacheTTL     time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 25,
		PostgresMinConns: 5,
		PostgresTimeout:  10 * time.Second,
		MaxLifetime:      30 * time.Minute,
		MaxIdleTime:      5 * time.Minute,
		RedisDB:          0,
		CacheEnabled:     false,
		CacheTTL:         time.Minute,
	}
}
