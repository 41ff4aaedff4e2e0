// Package redis implements the embedding cache backend on Redis or Valkey
// through rueidis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/rueidis"

	"github.com/kailas-cloud/retriever/internal/db"
)

var _ db.Cache = (*Store)(nil)

const (
	clientName        = "retriever"
	readyInitialDelay = 50 * time.Millisecond
	readyMaxDelay     = time.Second
)

// Config holds connection parameters.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// Store is a db.Cache backed by a rueidis client.
type Store struct {
	client rueidis.Client
}

// NewStore connects to the first reachable address of cfg.Addrs.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("cache addrs required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		ClientName:   clientName,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreForTest wraps an existing client.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady pings with exponential backoff until the backend answers or
// timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = readyInitialDelay
	b.MaxInterval = readyMaxDelay
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error { return s.Ping(ctx) }, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("cache not ready after %s: %w", timeout, err)
	}
	return nil
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
