// Package redis keeps login sessions in Redis instead of SQLite, for
// deployments that run several server processes against one session store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/model"
)

const keyPrefix = "session:"

// SessionStore implements repository.SessionStore on top of go-redis.
// Each session is a JSON value whose key TTL is the time left until expiry,
// so Redis drops expired sessions by itself.
type SessionStore struct {
	client *goredis.Client
	now    func() time.Time
}

// New connects to addr and verifies the connection with PING.
func New(ctx context.Context, addr, password string, db int) (*SessionStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return &SessionStore{client: client, now: time.Now}, nil
}

// Close releases the connection pool.
func (s *SessionStore) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable, for /healthz.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func key(id string) string {
	return keyPrefix + id
}

// CreateSession stores the session until its ExpiresAt.
func (s *SessionStore) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = s.now().UTC()
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return apperror.ValidationFailed("expires_at", "session already expired")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis: encoding session: %w", err)
	}

	if err := s.client.Set(ctx, key(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: storing session: %w", err)
	}
	return nil
}

// GetSession returns the session or apperror.ErrNotFound.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, apperror.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: reading session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("redis: decoding session %s: %w", id, err)
	}
	return &session, nil
}

// DeleteSession removes the session. Deleting a missing session is not an error.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("redis: deleting session: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: key TTLs already evict expired sessions.
func (s *SessionStore) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}
