// Package redis keeps credentials in a single Redis hash (username -> hash).
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vovakirdan/linechat/internal/store"
)

// DefaultKey is the hash used when none is configured.
const DefaultKey = "linechat:credentials"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Store implements store.CredentialStore on a Redis hash.
type Store struct {
	client *redis.Client
	key    string
}

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return NewWithClient(client, opts.Key), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{client: client, key: key}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Load returns the whole hash.
func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key, err)
	}
	return all, nil
}

// Lookup returns the hash for username.
func (s *Store) Lookup(ctx context.Context, username string) (string, error) {
	hash, err := s.client.HGet(ctx, s.key, username).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hget %s: %w", s.key, err)
	}
	return hash, nil
}

// Contains reports whether username has a field in the hash.
func (s *Store) Contains(ctx context.Context, username string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.key, username).Result()
	if err != nil {
		return false, fmt.Errorf("hexists %s: %w", s.key, err)
	}
	return ok, nil
}

// Save uses HSETNX so concurrent registrations have a single winner.
func (s *Store) Save(ctx context.Context, username, passwordHash string) error {
	created, err := s.client.HSetNX(ctx, s.key, username, passwordHash).Result()
	if err != nil {
		return fmt.Errorf("hsetnx %s: %w", s.key, err)
	}
	if !created {
		return store.ErrUserExists
	}
	return nil
}
