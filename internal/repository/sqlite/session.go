package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/repository"
)

var _ repository.SessionStore = (*SessionDB)(nil)

// SessionDB keeps login sessions in the same database as everything else.
// expires_at is stored as unix seconds so expiry checks compare numbers.
type SessionDB struct {
	conn *sql.DB
}

// CreateSession stores a session. The caller supplies ID and ExpiresAt.
func (s *SessionDB) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.CreatedAt,
		session.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session for user %s: %w", session.UserID, err)
	}
	return nil
}

// GetSession returns the session with the given ID, expired or not.
// Expiry is the service's decision, not the store's.
func (s *SessionDB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		session   model.Session
		expiresAt int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&session.ID, &session.UserID, &session.CreatedAt, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}
	session.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &session, nil
}

// DeleteSession removes a session. Deleting a missing session is not an error:
// logging out twice should be harmless.
func (s *SessionDB) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	return nil
}

// DeleteExpired removes every session whose expiry has passed.
func (s *SessionDB) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
