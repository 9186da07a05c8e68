package storage

import "time"

// Config holds postgres and redis connection settings
type Config struct {
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// DefaultConfig returns sensible development defaults
func DefaultConfig() Config {
	return Config{
		PostgresURL:      "postgres://localhost:5432/docuvault?sslmode=disable",
		PostgresMaxConns: 25,
		PostgresMinConns: 5,
		PostgresTimeout:  5 * time.Second,
		RedisURL:         "redis://localhost:6379",
	}
}
