package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snippetbox/internal/apperror"
	"github.com/sakif/snippetbox/internal/auth"
	"github.com/sakif/snippetbox/internal/model"
	"github.com/sakif/snippetbox/internal/repository"
)

// User-facing messages. Login failures share one message so the form never
// reveals whether a username exists.
const (
	MsgBadCredentials = "There is no user with that username and or password."
	MsgUsernameTaken  = "That username is already taken."
	MsgUnknownError   = "You have encountered an unknown error."
)

// DefaultSessionTTL is how long a login lasts when the config doesn't say.
const DefaultSessionTTL = 24 * time.Hour

// RegisterInput is the validated registration form.
type RegisterInput struct {
	Username string `form:"username" validate:"required,alphanum,max=64"`
	Password string `form:"password" validate:"required,max=72"`
}

// LoginInput is the validated login form.
type LoginInput struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// LoginResult is what the handler needs to set the session cookie.
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// AuthService owns accounts and login sessions.
//
// A login is two things: a row in the session store and a signed token
// naming that row. The token alone is not enough; Resolve also requires the
// row, which is what makes Logout effective immediately.
type AuthService struct {
	users     repository.UserRepository
	sessions  repository.SessionStore
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the account and session stores to the token and
// password services. A non-positive ttl selects DefaultSessionTTL.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionStore,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Register validates the form, hashes the password and stores the account.
// It does not log the new user in.
//
// Errors: apperror.FieldErrors for form or schema problems, an ErrConflict
// carrying MsgUsernameTaken for a taken username.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := check(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperror.FieldErrors{"password": fmt.Sprintf("Password must be at most %d bytes", auth.MaxPasswordBytes)}
	}
	if err != nil {
		return nil, fmt.Errorf("registering %q: %w", in.Username, err)
	}

	user := &model.User{Username: in.Username, PasswordHash: hash}
	if err := check(user); err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Duplicate("username", MsgUsernameTaken)
		}
		return nil, fmt.Errorf("registering %q: %w", in.Username, err)
	}

	s.logger.Info("user registered",
		slog.String("id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate returns the user whose password matches, or an
// ErrUnauthorized carrying MsgBadCredentials. Unknown usernames still pay for
// a bcrypt comparison so response time doesn't reveal which usernames exist.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperror.ErrNotFound) {
		_ = s.passwords.Verify(s.dummy(), password)
		return nil, apperror.Unauthorized(MsgBadCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("authenticating %q: %w", username, err)
	}

	// GitHub-only accounts have no password to match.
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized(MsgBadCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("stored password hash is unusable",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized(MsgBadCredentials)
	}

	return user, nil
}

// Login checks the form, authenticates and opens a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := check(in); err != nil {
		return nil, err
	}

	user, err := s.Authenticate(ctx, in.Username, in.Password)
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, user)
}

// LoginGitHub finds or creates the account linked to a GitHub identity and
// opens a session for it.
func (s *AuthService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*LoginResult, error) {
	ghID := gh.ID
	user := &model.User{Username: gh.Login, GitHubID: &ghID}
	if err := check(user); err != nil {
		return nil, err
	}

	if err := s.users.UpsertGitHub(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.Duplicate("username", MsgUsernameTaken)
		}
		return nil, fmt.Errorf("github login for %q: %w", gh.Login, err)
	}

	return s.startSession(ctx, user)
}

func (s *AuthService) startSession(ctx context.Context, user *model.User) (*LoginResult, error) {
	now := s.now().UTC()
	session := &model.Session{
		ID:        xid.New().String(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("opening session for %s: %w", user.ID, err)
	}

	token, err := s.tokens.Generate(user.ID, session.ID, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("opening session for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("sessionID", session.ID),
	)
	return &LoginResult{User: user, Token: token, ExpiresAt: session.ExpiresAt}, nil
}

// Resolve maps a session token back to its user. It is the auth.Resolver
// used by the identity middleware.
//
// Any reason the token no longer identifies someone (bad signature, revoked
// or expired session, deleted user) is an ErrUnauthorized; storage failures
// are returned as they are.
func (s *AuthService) Resolve(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized("invalid session token")
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("session has ended")
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	if session.UserID != claims.UserID {
		return nil, apperror.Unauthorized("session belongs to another user")
	}
	if session.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, session.ID); err != nil {
			s.logger.Warn("deleting expired session", slog.String("error", err.Error()))
		}
		return nil, apperror.Unauthorized("session has expired")
	}

	user, err := s.users.GetUserByID(ctx, session.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("user no longer exists")
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	return user, nil
}

// Logout revokes the session named by token. An unreadable token has no
// session to revoke and is not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	s.logger.Info("user logged out",
		slog.String("userID", claims.UserID),
		slog.String("sessionID", claims.SessionID),
	)
	return nil
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged expired sessions", slog.Int64("count", n))
	}
	return n, nil
}

// dummy returns a hash to compare against when the username is unknown.
func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.passwords.Hash(xid.New().String())
	})
	return s.dummyHash
}
