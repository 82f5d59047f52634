package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores user accounts.
type UserDB struct {
	conn *sql.DB
}

const selectUsers = `SELECT id, username, password_hash, github_id, created_at, updated_at FROM users`

// Create inserts a new user. The username column is UNIQUE, so registering a
// name twice fails here with apperror.ErrConflict and no second row is written.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, github_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		nullInt64(user.GitHubID),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", uniqueColumn(err, "username"))
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUsers+` WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username (exact, case-sensitive match).
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUsers+` WHERE username = ?`, username))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return user, nil
}

// UpsertGitHub links a GitHub identity to an account.
//
// First sign-in INSERTs a password-less user named after the GitHub login.
// Later sign-ins return the existing row unchanged: the local username is
// the account's identity here, so a renamed GitHub login does not rename it.
// If the GitHub login collides with a local username the insert fails with
// ErrConflict; the caller decides what to tell the user.
func (u *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upserting GitHub user %q: missing GitHub ID", user.Username)
	}

	existing, err := scanUser(u.conn.QueryRowContext(ctx, selectUsers+` WHERE github_id = ?`, *user.GitHubID))
	switch {
	case err == nil:
		*user = *existing
		return nil
	case err != sql.ErrNoRows:
		return fmt.Errorf("sqlite: looking up user by github_id %d: %w", *user.GitHubID, err)
	}

	return u.Create(ctx, user)
}

func scanUser(row scanner) (*model.User, error) {
	var (
		user     model.User
		githubID sql.NullInt64
	)
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&githubID,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		user.GitHubID = &id
	}
	return &user, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// uniqueColumn pulls the column name out of "UNIQUE constraint failed: users.username".
func uniqueColumn(err error, fallback string) string {
	msg := err.Error()
	idx := strings.LastIndex(msg, "users.")
	if idx < 0 {
		return fallback
	}
	col := msg[idx+len("users."):]
	if end := strings.IndexAny(col, " ,)"); end >= 0 {
		col = col[:end]
	}
	return col
}
